package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ride-pool/internal/pool-service/domain"
)

var ErrJobNotFound = errors.New("job not found")

// Lease is proof of holding a distributed lock. Token fences release and
// extension so that only the holder can touch the key.
type Lease struct {
	Key       string
	Token     string
	ExpiresAt time.Time
}

// Locker is a non-blocking, auto-expiring mutual exclusion service.
type Locker interface {
	// Acquire returns ok=false, without error, when the key is already held.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error)
	// Release is a no-op when the lease has expired or belongs to someone else.
	Release(ctx context.Context, lease Lease) error
	// Extend resets the expiry of a lease that is still held. ok=false means
	// the lease was lost.
	Extend(ctx context.Context, lease Lease, ttl time.Duration) (bool, error)
}

// PoolLockKey is the lock key guarding one pool.
func PoolLockKey(poolID string) string {
	return "lock:pool:" + poolID
}

// Notifier delivers an event to one user, best effort.
type Notifier interface {
	Notify(ctx context.Context, userID string, event domain.DomainEvent) error
}

// TerminalDirectory resolves terminal codes to coordinates.
type TerminalDirectory interface {
	Lookup(code string) (domain.Coordinate, bool)
}

// TerminalMap is a static TerminalDirectory.
type TerminalMap map[string]domain.Coordinate

func (m TerminalMap) Lookup(code string) (domain.Coordinate, bool) {
	c, ok := m[code]
	return c, ok
}

// MatchMetrics receives matching outcomes.
type MatchMetrics interface {
	ObserveMatch(outcome string, elapsed time.Duration)
	CandidateSkipped(reason string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveMatch(string, time.Duration) {}
func (nopMetrics) CandidateSkipped(string)            {}

// JobStatus is the lifecycle of an asynchronous match job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// MatchJob is the queued unit of work. It carries everything the worker
// needs, so a redelivery reproduces the same request.
type MatchJob struct {
	JobID           string               `json:"job_id"`
	Passenger       domain.Identity      `json:"passenger"`
	Pickup          domain.PointSnapshot `json:"pickup"`
	Terminal        string               `json:"terminal"`
	SeatsNeeded     int                  `json:"seats_needed"`
	LuggageCount    int                  `json:"luggage_count"`
	ClientRequestID string               `json:"client_request_id,omitempty"`
	RequestedAt     time.Time            `json:"requested_at"`
}

// RideRequest rebuilds the validated domain request from the job payload.
func (j MatchJob) RideRequest() (domain.RideRequest, error) {
	pickup, err := domain.NewCoordinate(j.Pickup.Latitude, j.Pickup.Longitude)
	if err != nil {
		return domain.RideRequest{}, fmt.Errorf("%w: pickup: %v", domain.ErrInvalidRequest, err)
	}
	req := domain.RideRequest{
		Pickup:          pickup,
		TerminalCode:    j.Terminal,
		SeatsNeeded:     j.SeatsNeeded,
		LuggageCount:    j.LuggageCount,
		ClientRequestID: j.ClientRequestID,
	}
	if err := req.Validate(); err != nil {
		return domain.RideRequest{}, err
	}
	return req, nil
}

// JobRecord is the pollable state of a match job.
type JobRecord struct {
	ID          string               `json:"job_id"`
	PassengerID string               `json:"passenger_id"`
	Status      JobStatus            `json:"status"`
	IsNewPool   bool                 `json:"is_new_pool,omitempty"`
	Result      *domain.PoolSnapshot `json:"result,omitempty"`
	Error       string               `json:"error,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// JobQueue hands match jobs to the workers with at-least-once delivery.
type JobQueue interface {
	Enqueue(ctx context.Context, job MatchJob) error
}

// JobStore keeps job records for polling.
type JobStore interface {
	Create(ctx context.Context, job JobRecord) error
	MarkProcessing(ctx context.Context, jobID string) error
	Complete(ctx context.Context, jobID string, result domain.PoolSnapshot, isNewPool bool) error
	Fail(ctx context.Context, jobID string, reason string) error
	// Get returns ErrJobNotFound for unknown or expired jobs.
	Get(ctx context.Context, jobID string) (*JobRecord, error)
}
