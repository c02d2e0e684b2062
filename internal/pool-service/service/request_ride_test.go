package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ride-pool/internal/pool-service/domain"
	"ride-pool/pkg/logger"
)

func validRideCommand() RequestRideCommand {
	return RequestRideCommand{
		Passenger:       rider("p1"),
		PickupLatitude:  12.97,
		PickupLongitude: 77.59,
		Terminal:        "T1",
		SeatsNeeded:     1,
		LuggageCount:    2,
	}
}

func TestRequestRide_QueuesJob(t *testing.T) {
	queue, jobs := &mockJobQueue{}, newMemJobStore()
	queue.On("Enqueue", mock.Anything, mock.MatchedBy(func(j MatchJob) bool {
		return j.Passenger.ID == "p1" && j.Terminal == "T1" && j.LuggageCount == 2
	})).Return(nil).Once()
	uc := NewRequestRideUseCase(queue, jobs, terminals, DefaultMatchConfig().Capacity(), logger.NewNop())

	jobID, err := uc.Execute(context.Background(), validRideCommand())

	require.NoError(t, err)
	assert.NotEmpty(t, jobID)
	job, err := jobs.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, JobQueued, job.Status)
	assert.Equal(t, "p1", job.PassengerID)
	queue.AssertExpectations(t)
}

func TestRequestRide_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RequestRideCommand)
	}{
		{name: "latitude", mutate: func(c *RequestRideCommand) { c.PickupLatitude = 120 }},
		{name: "seats", mutate: func(c *RequestRideCommand) { c.SeatsNeeded = 0 }},
		{name: "luggage", mutate: func(c *RequestRideCommand) { c.LuggageCount = -1 }},
		{name: "more seats than a pool holds", mutate: func(c *RequestRideCommand) { c.SeatsNeeded = 5 }},
		{name: "more luggage than a pool holds", mutate: func(c *RequestRideCommand) { c.LuggageCount = 9 }},
		{name: "missing terminal", mutate: func(c *RequestRideCommand) { c.Terminal = "" }},
		{name: "unknown terminal", mutate: func(c *RequestRideCommand) { c.Terminal = "T9" }},
		{name: "anonymous", mutate: func(c *RequestRideCommand) { c.Passenger = domain.Identity{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue, jobs := &mockJobQueue{}, newMemJobStore()
			uc := NewRequestRideUseCase(queue, jobs, terminals, DefaultMatchConfig().Capacity(), logger.NewNop())
			cmd := validRideCommand()
			tt.mutate(&cmd)

			_, err := uc.Execute(context.Background(), cmd)

			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
			assert.Empty(t, jobs.jobs)
			queue.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
		})
	}
}

func TestRequestRide_EnqueueFailureMarksJobFailed(t *testing.T) {
	queue, jobs := &mockJobQueue{}, newMemJobStore()
	queue.On("Enqueue", mock.Anything, mock.Anything).Return(assert.AnError)
	uc := NewRequestRideUseCase(queue, jobs, terminals, DefaultMatchConfig().Capacity(), logger.NewNop())

	_, err := uc.Execute(context.Background(), validRideCommand())

	require.ErrorIs(t, err, assert.AnError)
	require.Len(t, jobs.jobs, 1)
	for _, j := range jobs.jobs {
		assert.Equal(t, JobFailed, j.Status)
	}
}

func TestMatchJob_RideRequest(t *testing.T) {
	job := MatchJob{
		Pickup:       domain.PointSnapshot{Latitude: 12.97, Longitude: 77.59},
		Terminal:     "T1",
		SeatsNeeded:  2,
		LuggageCount: 1,
	}

	req, err := job.RideRequest()
	require.NoError(t, err)
	assert.Equal(t, basePickup, req.Pickup)
	assert.Equal(t, 2, req.SeatsNeeded)

	job.Pickup.Longitude = 200
	_, err = job.RideRequest()
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestPoolQueries(t *testing.T) {
	repo, jobs := newMemPoolRepo(), newMemJobStore()
	seedPool(t, repo, "pool-1", 1)
	q := NewPoolQueries(repo, jobs, domain.NewFareCalculator())
	ctx := context.Background()

	pool, err := q.GetPool(ctx, "pool-1")
	require.NoError(t, err)
	assert.Equal(t, "pool-1", pool.ID())

	_, err = q.GetPool(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrPoolNotFound)

	open, err := q.ListOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	require.NoError(t, jobs.Create(ctx, JobRecord{ID: "job-1", PassengerID: "p1", Status: JobQueued}))
	job, err := q.GetJob(ctx, "job-1", "p1")
	require.NoError(t, err)
	assert.Equal(t, JobQueued, job.Status)
	_, err = q.GetJob(ctx, "job-1", "p2")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestPoolQueries_Estimate(t *testing.T) {
	q := NewPoolQueries(newMemPoolRepo(), newMemJobStore(), domain.NewFareCalculator())

	est, err := q.Estimate(10, 1)
	require.NoError(t, err)
	assert.Equal(t, 25.0, est.Fare)

	est, err = q.Estimate(15, 2)
	require.NoError(t, err)
	assert.Equal(t, 28.0, est.Fare)

	_, err = q.Estimate(-1, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	_, err = q.Estimate(1, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}
