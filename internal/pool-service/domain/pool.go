package domain

import (
	"fmt"
	"time"
)

// PoolTTL is the absolute lifetime of an unresolved pool, counted from creation.
const PoolTTL = 24 * time.Hour

// PoolStatus represents the lifecycle state of a pool
type PoolStatus string

const (
	StatusOpen       PoolStatus = "open"
	StatusLocked     PoolStatus = "locked"
	StatusInProgress PoolStatus = "in-progress"
	StatusCompleted  PoolStatus = "completed"
	StatusCancelled  PoolStatus = "cancelled"
)

func (s PoolStatus) String() string {
	return string(s)
}

func (s PoolStatus) IsValid() bool {
	switch s {
	case StatusOpen, StatusLocked, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsClosed reports whether the pool is permanently finished.
func (s PoolStatus) IsClosed() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Membership is one passenger's seat reservation inside a pool.
type Membership struct {
	PassengerID    string
	PassengerName  string
	PassengerPhone string
	Pickup         Coordinate
	Dropoff        Coordinate
	TerminalCode   string
	LuggageCount   int
	SeatsNeeded    int
	Fare           float64
	// RequestKey is the idempotency key of the request that created this
	// membership.
	RequestKey string
	JoinedAt   time.Time
}

// RidePool is a shared ride to one terminal. Capacity fields always satisfy
// seatsRemaining == totalSeats - sum(members.SeatsNeeded), and likewise for
// luggage.
type RidePool struct {
	id               string
	members          []Membership
	status           PoolStatus
	driverID         *string
	startLocation    Coordinate
	terminalCode     string
	totalSeats       int
	seatsRemaining   int
	luggageCapacity  int
	luggageRemaining int
	startTime        *time.Time
	createdAt        time.Time
	expiresAt        time.Time
}

// NewPool creates an open pool seeded with its first passenger. The start
// location is that passenger's pickup.
func NewPool(id string, first Membership, totalSeats, luggageCapacity int, now time.Time) (*RidePool, error) {
	if totalSeats < 1 || luggageCapacity < 0 {
		return nil, fmt.Errorf("invalid pool capacity %d seats / %d luggage", totalSeats, luggageCapacity)
	}
	p := &RidePool{
		id:               id,
		status:           StatusOpen,
		startLocation:    first.Pickup,
		terminalCode:     first.TerminalCode,
		totalSeats:       totalSeats,
		seatsRemaining:   totalSeats,
		luggageCapacity:  luggageCapacity,
		luggageRemaining: luggageCapacity,
		createdAt:        now,
		expiresAt:        now.Add(PoolTTL),
	}
	if first.JoinedAt.IsZero() {
		first.JoinedAt = now
	}
	if err := p.Join(first); err != nil {
		return nil, err
	}
	return p, nil
}

// ReconstructPool rebuilds a pool from persistence (used by repositories).
func ReconstructPool(
	id string,
	members []Membership,
	status PoolStatus,
	driverID *string,
	startLocation Coordinate,
	terminalCode string,
	totalSeats, seatsRemaining int,
	luggageCapacity, luggageRemaining int,
	startTime *time.Time,
	createdAt, expiresAt time.Time,
) *RidePool {
	ms := make([]Membership, len(members))
	copy(ms, members)
	return &RidePool{
		id:               id,
		members:          ms,
		status:           status,
		driverID:         driverID,
		startLocation:    startLocation,
		terminalCode:     terminalCode,
		totalSeats:       totalSeats,
		seatsRemaining:   seatsRemaining,
		luggageCapacity:  luggageCapacity,
		luggageRemaining: luggageRemaining,
		startTime:        startTime,
		createdAt:        createdAt,
		expiresAt:        expiresAt,
	}
}

// CanSeat reports whether the pool has room for the given consumption.
func (p *RidePool) CanSeat(seats, luggage int) error {
	if p.seatsRemaining < seats || p.luggageRemaining < luggage {
		return fmt.Errorf("%w: need %d seats/%d luggage, have %d/%d",
			ErrInsufficientCapacity, seats, luggage, p.seatsRemaining, p.luggageRemaining)
	}
	return nil
}

// Join appends a member and consumes its capacity. The pool becomes locked
// when the last seat is taken. Nothing changes on error.
func (p *RidePool) Join(m Membership) error {
	if p.status != StatusOpen {
		return fmt.Errorf("%w: cannot join a %s pool", ErrInvalidTransition, p.status)
	}
	if m.SeatsNeeded < 1 || m.LuggageCount < 0 {
		return fmt.Errorf("%w: seats %d, luggage %d", ErrInvalidRequest, m.SeatsNeeded, m.LuggageCount)
	}
	if p.HasPassenger(m.PassengerID) {
		return ErrAlreadyMember
	}
	if err := p.CanSeat(m.SeatsNeeded, m.LuggageCount); err != nil {
		return err
	}

	p.members = append(p.members, m)
	p.seatsRemaining -= m.SeatsNeeded
	p.luggageRemaining -= m.LuggageCount
	if p.seatsRemaining == 0 {
		p.status = StatusLocked
	}
	return nil
}

// Accept assigns a driver. Open and full (locked) pools can be accepted. A
// pool that reopened after its riders left keeps its driver, and only that
// driver may accept it again.
func (p *RidePool) Accept(driverID string, now time.Time) error {
	if p.status != StatusOpen && p.status != StatusLocked {
		return fmt.Errorf("%w: cannot accept a %s pool", ErrInvalidTransition, p.status)
	}
	if p.driverID != nil && *p.driverID != driverID {
		return fmt.Errorf("%w: pool is already assigned to another driver", ErrInvalidTransition)
	}
	p.driverID = &driverID
	p.status = StatusInProgress
	p.startTime = &now
	return nil
}

// RemovePassenger drops one member and restores its capacity. An emptied
// pool, or a locked pool that regains a seat, reopens.
func (p *RidePool) RemovePassenger(passengerID string) (Membership, error) {
	if p.status.IsClosed() {
		return Membership{}, fmt.Errorf("%w: cannot cancel from a %s pool", ErrInvalidTransition, p.status)
	}
	idx := p.memberIndex(passengerID)
	if idx < 0 {
		return Membership{}, ErrNotMember
	}

	removed := p.members[idx]
	p.members = append(p.members[:idx:idx], p.members[idx+1:]...)
	p.seatsRemaining = min(p.totalSeats, p.seatsRemaining+removed.SeatsNeeded)
	p.luggageRemaining = min(p.luggageCapacity, p.luggageRemaining+removed.LuggageCount)

	if len(p.members) == 0 || (p.status == StatusLocked && p.seatsRemaining > 0) {
		p.status = StatusOpen
	}
	return removed, nil
}

// Complete finishes an in-progress pool. Only the assigned driver may do it.
func (p *RidePool) Complete(driverID string) error {
	if p.status != StatusInProgress {
		return fmt.Errorf("%w: cannot complete a %s pool", ErrInvalidTransition, p.status)
	}
	if p.driverID == nil || *p.driverID != driverID {
		return ErrNotAssignedDriver
	}
	p.status = StatusCompleted
	return nil
}

// CheckInvariants verifies the capacity identities and bounds.
func (p *RidePool) CheckInvariants() error {
	seats, luggage := 0, 0
	seen := make(map[string]struct{}, len(p.members))
	for _, m := range p.members {
		if _, dup := seen[m.PassengerID]; dup {
			return fmt.Errorf("pool %s: duplicate passenger %s", p.id, m.PassengerID)
		}
		seen[m.PassengerID] = struct{}{}
		seats += m.SeatsNeeded
		luggage += m.LuggageCount
	}
	if p.seatsRemaining+seats != p.totalSeats {
		return fmt.Errorf("pool %s: seats %d + used %d != total %d", p.id, p.seatsRemaining, seats, p.totalSeats)
	}
	if p.luggageRemaining+luggage != p.luggageCapacity {
		return fmt.Errorf("pool %s: luggage %d + used %d != capacity %d", p.id, p.luggageRemaining, luggage, p.luggageCapacity)
	}
	if p.seatsRemaining < 0 || p.seatsRemaining > p.totalSeats {
		return fmt.Errorf("pool %s: seats remaining %d out of range", p.id, p.seatsRemaining)
	}
	if p.luggageRemaining < 0 || p.luggageRemaining > p.luggageCapacity {
		return fmt.Errorf("pool %s: luggage remaining %d out of range", p.id, p.luggageRemaining)
	}
	return nil
}

func (p *RidePool) HasPassenger(passengerID string) bool {
	return p.memberIndex(passengerID) >= 0
}

// HasRequestKey reports whether a membership was created by the request key.
func (p *RidePool) HasRequestKey(key string) bool {
	if key == "" {
		return false
	}
	for _, m := range p.members {
		if m.RequestKey == key {
			return true
		}
	}
	return false
}

func (p *RidePool) IsExpired(now time.Time) bool {
	return !now.Before(p.expiresAt)
}

// Route is the pickup order followed by the terminal drop-off.
func (p *RidePool) Route() []Coordinate {
	if len(p.members) == 0 {
		return nil
	}
	route := make([]Coordinate, 0, len(p.members)+1)
	for _, m := range p.members {
		route = append(route, m.Pickup)
	}
	return append(route, p.members[0].Dropoff)
}

func (p *RidePool) memberIndex(passengerID string) int {
	for i, m := range p.members {
		if m.PassengerID == passengerID {
			return i
		}
	}
	return -1
}

// Getters

func (p *RidePool) ID() string                { return p.id }
func (p *RidePool) Status() PoolStatus        { return p.status }
func (p *RidePool) DriverID() *string         { return p.driverID }
func (p *RidePool) StartLocation() Coordinate { return p.startLocation }
func (p *RidePool) TerminalCode() string      { return p.terminalCode }
func (p *RidePool) TotalSeats() int           { return p.totalSeats }
func (p *RidePool) SeatsRemaining() int       { return p.seatsRemaining }
func (p *RidePool) LuggageCapacity() int      { return p.luggageCapacity }
func (p *RidePool) LuggageRemaining() int     { return p.luggageRemaining }
func (p *RidePool) StartTime() *time.Time     { return p.startTime }
func (p *RidePool) CreatedAt() time.Time      { return p.createdAt }
func (p *RidePool) ExpiresAt() time.Time      { return p.expiresAt }
func (p *RidePool) PassengerCount() int       { return len(p.members) }

// Members returns a copy of the memberships in join order.
func (p *RidePool) Members() []Membership {
	out := make([]Membership, len(p.members))
	copy(out, p.members)
	return out
}

// Clone returns a deep copy, so callers can mutate it without affecting p.
func (p *RidePool) Clone() *RidePool {
	c := *p
	c.members = p.Members()
	if p.driverID != nil {
		d := *p.driverID
		c.driverID = &d
	}
	if p.startTime != nil {
		t := *p.startTime
		c.startTime = &t
	}
	return &c
}
