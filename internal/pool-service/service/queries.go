package service

import (
	"context"
	"fmt"

	"ride-pool/internal/pool-service/domain"
)

// FareEstimate is a quote for a trip of the given length
type FareEstimate struct {
	DistanceKm float64 `json:"distance_km"`
	Seats      int     `json:"seats"`
	Fare       float64 `json:"fare"`
}

// PoolQueries serves the read-only endpoints.
type PoolQueries struct {
	poolRepo       domain.PoolRepository
	jobs           JobStore
	fareCalculator *domain.FareCalculator
}

func NewPoolQueries(poolRepo domain.PoolRepository, jobs JobStore, fareCalculator *domain.FareCalculator) *PoolQueries {
	return &PoolQueries{poolRepo: poolRepo, jobs: jobs, fareCalculator: fareCalculator}
}

func (q *PoolQueries) GetPool(ctx context.Context, poolID string) (*domain.RidePool, error) {
	return q.poolRepo.FindByID(ctx, poolID)
}

func (q *PoolQueries) ListOpen(ctx context.Context) ([]*domain.RidePool, error) {
	return q.poolRepo.FindOpen(ctx)
}

// GetJob returns the job only to the passenger who submitted it.
func (q *PoolQueries) GetJob(ctx context.Context, jobID, passengerID string) (*JobRecord, error) {
	job, err := q.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.PassengerID != passengerID {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// Estimate prices a trip without surge. seats counts as the number of
// passengers sharing it.
func (q *PoolQueries) Estimate(distanceKm float64, seats int) (FareEstimate, error) {
	if distanceKm < 0 {
		return FareEstimate{}, fmt.Errorf("%w: distance cannot be negative", domain.ErrInvalidRequest)
	}
	if seats < 1 {
		return FareEstimate{}, fmt.Errorf("%w: seats must be at least 1", domain.ErrInvalidRequest)
	}
	return FareEstimate{
		DistanceKm: distanceKm,
		Seats:      seats,
		Fare:       q.fareCalculator.Fare(distanceKm, 1.0, seats),
	}, nil
}
