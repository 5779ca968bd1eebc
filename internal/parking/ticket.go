package parking

import (
	"time"
)

// VehicleType classifies vehicles and the slots that fit them.
type VehicleType string

const (
	Car        VehicleType = "CAR"
	Truck      VehicleType = "TRUCK"
	Motorcycle VehicleType = "MOTORCYCLE"
)

// Vehicle identifies a parked vehicle.
type Vehicle struct {
	LicenseNumber string
	Type          VehicleType
}

// Ticket records one active parking session.  The ticket number is the
// lot-wide handle; the fee is computed from EntryTime when the vehicle
// leaves.
type Ticket struct {
	Number     string
	Vehicle    Vehicle
	SlotNumber int
	EntryTime  time.Time
}

// FeeCents charges per started hour: any partial hour costs a full hour,
// but an exact multiple of an hour is not rounded further up.  A stay of
// zero duration is free.
func FeeCents(parked time.Duration, hourlyRateCents uint32) uint64 {
	if parked <= 0 {
		return 0
	}
	hours := uint64(parked / time.Hour)
	if parked%time.Hour != 0 {
		hours++
	}
	return hours * uint64(hourlyRateCents)
}
