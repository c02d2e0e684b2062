package domain

import "time"

// Notification event names as seen by subscribers.
const (
	EventRideMatched   = "rideMatched"
	EventRideAccepted  = "rideAccepted"
	EventRideError     = "rideError"
	EventRideCancelled = "rideCancelled"
)

// DomainEvent is the interface for all events pushed to passengers
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// RideMatchedEvent is raised when a request has been placed in a pool
type RideMatchedEvent struct {
	PassengerID string
	JobID       string
	Pool        PoolSnapshot
	IsNewPool   bool
	MatchedAt   time.Time
}

func (e RideMatchedEvent) EventType() string     { return EventRideMatched }
func (e RideMatchedEvent) OccurredAt() time.Time { return e.MatchedAt }

// RideAcceptedEvent is raised for every member when a driver takes the pool
type RideAcceptedEvent struct {
	PassengerID string
	PoolID      string
	DriverName  string
	DriverPhone string
	AcceptedAt  time.Time
}

func (e RideAcceptedEvent) EventType() string     { return EventRideAccepted }
func (e RideAcceptedEvent) OccurredAt() time.Time { return e.AcceptedAt }

// RideErrorEvent is raised when a match job fails
type RideErrorEvent struct {
	PassengerID string
	JobID       string
	Message     string
	FailedAt    time.Time
}

func (e RideErrorEvent) EventType() string     { return EventRideError }
func (e RideErrorEvent) OccurredAt() time.Time { return e.FailedAt }

// RideCancelledEvent confirms a passenger's own cancellation
type RideCancelledEvent struct {
	PassengerID string
	PoolID      string
	PoolStatus  PoolStatus
	CancelledAt time.Time
}

func (e RideCancelledEvent) EventType() string     { return EventRideCancelled }
func (e RideCancelledEvent) OccurredAt() time.Time { return e.CancelledAt }
