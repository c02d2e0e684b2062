package service

import (
	"context"
	"fmt"
	"time"

	"ride-pool/internal/pool-service/domain"
	"ride-pool/pkg/logger"
)

// CancelMembershipCommand represents a passenger leaving a pool
type CancelMembershipCommand struct {
	PoolID      string
	PassengerID string
}

// CancelMembershipUseCase removes a passenger and gives their capacity back
type CancelMembershipUseCase struct {
	poolRepo domain.PoolRepository
	locker   Locker
	notifier Notifier
	policy   LockPolicy
	logger   logger.Logger
	now      func() time.Time
}

// NewCancelMembershipUseCase creates a new use case instance
func NewCancelMembershipUseCase(
	poolRepo domain.PoolRepository,
	locker Locker,
	notifier Notifier,
	policy LockPolicy,
	logger logger.Logger,
) *CancelMembershipUseCase {
	return &CancelMembershipUseCase{
		poolRepo: poolRepo,
		locker:   locker,
		notifier: notifier,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

// Execute runs the use case
func (uc *CancelMembershipUseCase) Execute(ctx context.Context, cmd CancelMembershipCommand) (*domain.RidePool, error) {
	log := uc.logger.WithFields(logger.LogFields{
		"pool_id":      cmd.PoolID,
		"passenger_id": cmd.PassengerID,
	})

	lease, err := acquireWithRetry(ctx, uc.locker, PoolLockKey(cmd.PoolID), uc.policy)
	if err != nil {
		log.Error("cancel_lock_failed", err)
		return nil, err
	}
	defer releaseLease(ctx, uc.locker, lease, uc.logger)

	pool, err := uc.poolRepo.FindByID(ctx, cmd.PoolID)
	if err != nil {
		return nil, fmt.Errorf("pool not found: %w", err)
	}

	removed, err := pool.RemovePassenger(cmd.PassengerID)
	if err != nil {
		log.WithFields(logger.LogFields{"status": pool.Status().String()}).Error("cancel_membership_declined", err)
		return nil, fmt.Errorf("cannot cancel membership: %w", err)
	}

	if err := uc.poolRepo.SaveRemoval(ctx, pool, cmd.PassengerID); err != nil {
		log.Error("save_removal_failed", err)
		return nil, fmt.Errorf("failed to update pool: %w", err)
	}

	log.WithFields(logger.LogFields{
		"seats_released":  removed.SeatsNeeded,
		"seats_remaining": pool.SeatsRemaining(),
		"status":          pool.Status().String(),
	}).Info("membership_cancelled", "Passenger left pool")

	event := domain.RideCancelledEvent{
		PassengerID: cmd.PassengerID,
		PoolID:      pool.ID(),
		PoolStatus:  pool.Status(),
		CancelledAt: uc.now(),
	}
	if err := uc.notifier.Notify(ctx, cmd.PassengerID, event); err != nil {
		log.Error("notify_cancelled_failed", err)
	}

	return pool, nil
}
