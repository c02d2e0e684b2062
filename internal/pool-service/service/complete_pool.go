package service

import (
	"context"
	"fmt"

	"ride-pool/internal/pool-service/domain"
	"ride-pool/pkg/logger"
)

// CompletePoolCommand represents the assigned driver finishing the ride
type CompletePoolCommand struct {
	PoolID   string
	DriverID string
}

type CompletePoolUseCase struct {
	poolRepo domain.PoolRepository
	locker   Locker
	policy   LockPolicy
	logger   logger.Logger
}

func NewCompletePoolUseCase(
	poolRepo domain.PoolRepository,
	locker Locker,
	policy LockPolicy,
	logger logger.Logger,
) *CompletePoolUseCase {
	return &CompletePoolUseCase{
		poolRepo: poolRepo,
		locker:   locker,
		policy:   policy,
		logger:   logger,
	}
}

// Execute runs the use case
func (uc *CompletePoolUseCase) Execute(ctx context.Context, cmd CompletePoolCommand) (*domain.RidePool, error) {
	log := uc.logger.WithFields(logger.LogFields{
		"pool_id":   cmd.PoolID,
		"driver_id": cmd.DriverID,
	})

	lease, err := acquireWithRetry(ctx, uc.locker, PoolLockKey(cmd.PoolID), uc.policy)
	if err != nil {
		log.Error("complete_lock_failed", err)
		return nil, err
	}
	defer releaseLease(ctx, uc.locker, lease, uc.logger)

	pool, err := uc.poolRepo.FindByID(ctx, cmd.PoolID)
	if err != nil {
		return nil, fmt.Errorf("pool not found: %w", err)
	}

	if err := pool.Complete(cmd.DriverID); err != nil {
		log.Error("complete_pool_declined", err)
		return nil, fmt.Errorf("cannot complete pool: %w", err)
	}

	if err := uc.poolRepo.SaveStatus(ctx, pool); err != nil {
		log.Error("save_completion_failed", err)
		return nil, fmt.Errorf("failed to update pool: %w", err)
	}

	log.Info("pool_completed", "Pool ride completed")
	return pool, nil
}
