package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ride-pool/internal/pool-service/domain"
	"ride-pool/pkg/logger"
)

// RequestRideCommand represents the input for requesting a pooled ride
type RequestRideCommand struct {
	Passenger       domain.Identity
	PickupLatitude  float64
	PickupLongitude float64
	Terminal        string
	SeatsNeeded     int
	LuggageCount    int
	ClientRequestID string
}

// RequestRideUseCase validates a request and queues it for matching. It
// never touches pool state.
type RequestRideUseCase struct {
	queue     JobQueue
	jobs      JobStore
	terminals TerminalDirectory
	capacity  domain.Capacity
	logger    logger.Logger
	now       func() time.Time
	newID     func() string
}

// NewRequestRideUseCase creates a new use case instance
func NewRequestRideUseCase(
	queue JobQueue,
	jobs JobStore,
	terminals TerminalDirectory,
	capacity domain.Capacity,
	logger logger.Logger,
) *RequestRideUseCase {
	return &RequestRideUseCase{
		queue:     queue,
		jobs:      jobs,
		terminals: terminals,
		capacity:  capacity,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Execute returns the job id the caller polls or waits on.
func (uc *RequestRideUseCase) Execute(ctx context.Context, cmd RequestRideCommand) (string, error) {
	// 1. Validate shape
	pickup, err := domain.NewCoordinate(cmd.PickupLatitude, cmd.PickupLongitude)
	if err != nil {
		return "", fmt.Errorf("%w: pickup: %v", domain.ErrInvalidRequest, err)
	}
	req := domain.RideRequest{
		Pickup:          pickup,
		TerminalCode:    cmd.Terminal,
		SeatsNeeded:     cmd.SeatsNeeded,
		LuggageCount:    cmd.LuggageCount,
		ClientRequestID: cmd.ClientRequestID,
	}
	if err := req.Validate(); err != nil {
		return "", err
	}
	if err := req.FitsCapacity(uc.capacity); err != nil {
		return "", err
	}
	if _, ok := uc.terminals.Lookup(cmd.Terminal); !ok {
		return "", fmt.Errorf("%w: unknown terminal %q", domain.ErrInvalidRequest, cmd.Terminal)
	}
	if cmd.Passenger.ID == "" {
		return "", fmt.Errorf("%w: passenger id is required", domain.ErrInvalidRequest)
	}

	// 2. Record the job before it can be picked up
	now := uc.now()
	job := MatchJob{
		JobID:           uc.newID(),
		Passenger:       cmd.Passenger,
		Pickup:          domain.PointSnapshot{Latitude: pickup.Latitude(), Longitude: pickup.Longitude()},
		Terminal:        cmd.Terminal,
		SeatsNeeded:     cmd.SeatsNeeded,
		LuggageCount:    cmd.LuggageCount,
		ClientRequestID: cmd.ClientRequestID,
		RequestedAt:     now,
	}
	log := uc.logger.WithFields(logger.LogFields{
		"job_id":       job.JobID,
		"passenger_id": cmd.Passenger.ID,
	})

	if err := uc.jobs.Create(ctx, JobRecord{
		ID:          job.JobID,
		PassengerID: cmd.Passenger.ID,
		Status:      JobQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		log.Error("create_job_failed", err)
		return "", fmt.Errorf("failed to record job: %w", err)
	}

	// 3. Hand off to the workers
	if err := uc.queue.Enqueue(ctx, job); err != nil {
		log.Error("enqueue_job_failed", err)
		if ferr := uc.jobs.Fail(ctx, job.JobID, "could not be queued"); ferr != nil {
			log.Error("mark_job_failed_failed", ferr)
		}
		return "", fmt.Errorf("failed to queue request: %w", err)
	}

	log.Info("ride_request_queued", "Ride request queued for matching")
	return job.JobID, nil
}
