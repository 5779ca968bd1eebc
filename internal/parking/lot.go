// Package parking implements the garage attached to the cinema building.
// It is a small self-contained inventory: fixed slots per vehicle type,
// tickets issued on entry and priced per started hour on exit.  The lot is
// safe for concurrent use by the entry and exit gates.
package parking

import (
	"errors"
	"fmt"
	"sync"

	"github.com/juju/clock"
)

var (
	// ErrLotFull is returned when no slot fits the vehicle.
	ErrLotFull = errors.New("parking: no free slot for vehicle type")
	// ErrUnknownTicket is returned for exit attempts with a ticket the lot
	// did not issue or has already closed.
	ErrUnknownTicket = errors.New("parking: unknown ticket")
	// ErrAlreadyParked is returned when a license plate already has an
	// active ticket.
	ErrAlreadyParked = errors.New("parking: vehicle already parked")
)

type slot struct {
	number  int
	typ     VehicleType
	vehicle *Vehicle // nil when free
}

// Lot is the parking garage.  Slots are numbered from 1 in declaration
// order: trucks first, then cars, then motorcycles.
type Lot struct {
	clock           clock.Clock
	hourlyRateCents uint32

	mu         sync.Mutex
	slots      []*slot
	tickets    map[string]*Ticket // by ticket number
	byLicense  map[string]string  // license -> ticket number
	nextTicket int
}

// NewLot builds a lot with the given per-type capacities and hourly rate.
func NewLot(clk clock.Clock, carSlots, truckSlots, motorcycleSlots int, hourlyRateCents uint32) *Lot {
	l := &Lot{
		clock:           clk,
		hourlyRateCents: hourlyRateCents,
		tickets:         make(map[string]*Ticket),
		byLicense:       make(map[string]string),
		nextTicket:      1,
	}
	number := 1
	for i := 0; i < truckSlots; i++ {
		l.slots = append(l.slots, &slot{number: number, typ: Truck})
		number++
	}
	for i := 0; i < carSlots; i++ {
		l.slots = append(l.slots, &slot{number: number, typ: Car})
		number++
	}
	for i := 0; i < motorcycleSlots; i++ {
		l.slots = append(l.slots, &slot{number: number, typ: Motorcycle})
		number++
	}
	return l
}

// Park assigns the vehicle a slot and issues a ticket.  A car prefers a car
// slot and falls back to an empty truck slot; trucks and motorcycles only
// fit their own slot type.
func (l *Lot) Park(v Vehicle) (*Ticket, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, parked := l.byLicense[v.LicenseNumber]; parked {
		return nil, ErrAlreadyParked
	}
	s := l.findSlot(v.Type)
	if s == nil {
		return nil, ErrLotFull
	}
	vehicle := v
	s.vehicle = &vehicle

	t := &Ticket{
		Number:     fmt.Sprintf("TKT%08d", l.nextTicket),
		Vehicle:    v,
		SlotNumber: s.number,
		EntryTime:  l.clock.Now().UTC(),
	}
	l.nextTicket++
	l.tickets[t.Number] = t
	l.byLicense[v.LicenseNumber] = t.Number
	return t, nil
}

// findSlot picks the first free slot of the exact type, then the truck
// fallback for cars.  Caller holds the lock.
func (l *Lot) findSlot(typ VehicleType) *slot {
	for _, s := range l.slots {
		if s.vehicle == nil && s.typ == typ {
			return s
		}
	}
	if typ == Car {
		for _, s := range l.slots {
			if s.vehicle == nil && s.typ == Truck {
				return s
			}
		}
	}
	return nil
}

// Exit closes the ticket, frees the slot and returns the fee in cents.
func (l *Lot) Exit(ticketNumber string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.tickets[ticketNumber]
	if !ok {
		return 0, ErrUnknownTicket
	}
	fee := FeeCents(l.clock.Now().UTC().Sub(t.EntryTime), l.hourlyRateCents)

	for _, s := range l.slots {
		if s.number == t.SlotNumber {
			s.vehicle = nil
			break
		}
	}
	delete(l.tickets, ticketNumber)
	delete(l.byLicense, t.Vehicle.LicenseNumber)
	return fee, nil
}

// AvailableSpaces counts free slots of exactly the given type.  Truck
// slots a car could fall back into are not counted as car capacity; they
// show up under Truck only, so the per-type numbers always sum to the
// total free count.
func (l *Lot) AvailableSpaces(typ VehicleType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, s := range l.slots {
		if s.vehicle == nil && s.typ == typ {
			n++
		}
	}
	return n
}

// TotalSpaces returns the number of slots in the lot.
func (l *Lot) TotalSpaces() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

// OccupiedSpaces returns the number of slots currently holding a vehicle.
func (l *Lot) OccupiedSpaces() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, s := range l.slots {
		if s.vehicle != nil {
			n++
		}
	}
	return n
}

// Full reports whether no slot of any type is free.
func (l *Lot) Full() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.slots {
		if s.vehicle == nil {
			return false
		}
	}
	return true
}

// FullFor reports whether a vehicle of the given type would be turned
// away, honoring the car-into-truck-slot fallback.
func (l *Lot) FullFor(typ VehicleType) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.findSlot(typ) == nil
}
