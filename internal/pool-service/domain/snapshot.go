package domain

import "time"

// PoolSnapshot is the externally visible view of a pool, used as the job
// result and as the rideMatched payload.
type PoolSnapshot struct {
	ID               string           `json:"id"`
	Status           string           `json:"status"`
	Terminal         string           `json:"terminal"`
	Members          []MemberSnapshot `json:"members"`
	TotalSeats       int              `json:"total_seats"`
	SeatsRemaining   int              `json:"seats_remaining"`
	LuggageCapacity  int              `json:"luggage_capacity"`
	LuggageRemaining int              `json:"luggage_remaining"`
	StartLocation    PointSnapshot    `json:"start_location"`
	Route            []PointSnapshot  `json:"route,omitempty"`
	Driver           *string          `json:"driver,omitempty"`
	CreatedAt        string           `json:"created_at"`
	ExpiresAt        string           `json:"expires_at"`
}

type MemberSnapshot struct {
	PassengerID  string        `json:"passenger_id"`
	Name         string        `json:"name,omitempty"`
	Phone        string        `json:"phone,omitempty"`
	Pickup       PointSnapshot `json:"pickup"`
	Terminal     string        `json:"terminal"`
	LuggageCount int           `json:"luggage_count"`
	SeatsNeeded  int           `json:"seats_needed"`
	Fare         float64       `json:"fare"`
}

type PointSnapshot struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func pointOf(c Coordinate) PointSnapshot {
	return PointSnapshot{Latitude: c.Latitude(), Longitude: c.Longitude()}
}

// Snapshot converts the pool to its public view. Member contact details are
// left out.
func (p *RidePool) Snapshot() PoolSnapshot {
	return p.snapshot(false)
}

// SnapshotFor is the view shown to viewerID. Members of the pool and its
// assigned driver also see every member's name and phone.
func (p *RidePool) SnapshotFor(viewerID string) PoolSnapshot {
	return p.snapshot(p.canSeeContacts(viewerID))
}

func (p *RidePool) canSeeContacts(viewerID string) bool {
	if viewerID == "" {
		return false
	}
	if p.driverID != nil && *p.driverID == viewerID {
		return true
	}
	return p.HasPassenger(viewerID)
}

func (p *RidePool) snapshot(contacts bool) PoolSnapshot {
	s := PoolSnapshot{
		ID:               p.id,
		Status:           p.status.String(),
		Terminal:         p.terminalCode,
		Members:          make([]MemberSnapshot, 0, len(p.members)),
		TotalSeats:       p.totalSeats,
		SeatsRemaining:   p.seatsRemaining,
		LuggageCapacity:  p.luggageCapacity,
		LuggageRemaining: p.luggageRemaining,
		StartLocation:    pointOf(p.startLocation),
		CreatedAt:        p.createdAt.UTC().Format(time.RFC3339),
		ExpiresAt:        p.expiresAt.UTC().Format(time.RFC3339),
	}
	if p.driverID != nil {
		d := *p.driverID
		s.Driver = &d
	}
	for _, m := range p.members {
		ms := MemberSnapshot{
			PassengerID:  m.PassengerID,
			Pickup:       pointOf(m.Pickup),
			Terminal:     m.TerminalCode,
			LuggageCount: m.LuggageCount,
			SeatsNeeded:  m.SeatsNeeded,
			Fare:         m.Fare,
		}
		if contacts {
			ms.Name = m.PassengerName
			ms.Phone = m.PassengerPhone
		}
		s.Members = append(s.Members, ms)
	}
	for _, c := range p.Route() {
		s.Route = append(s.Route, pointOf(c))
	}
	return s
}
