package service

import (
	"context"
	"fmt"
	"time"

	"ride-pool/internal/pool-service/domain"
	"ride-pool/pkg/logger"
)

// AcceptPoolCommand represents a driver taking a pool
type AcceptPoolCommand struct {
	PoolID string
	Driver domain.Identity
}

// AcceptPoolUseCase assigns a driver and tells every passenger who is coming
type AcceptPoolUseCase struct {
	poolRepo domain.PoolRepository
	locker   Locker
	notifier Notifier
	policy   LockPolicy
	logger   logger.Logger
	now      func() time.Time
}

// NewAcceptPoolUseCase creates a new use case instance
func NewAcceptPoolUseCase(
	poolRepo domain.PoolRepository,
	locker Locker,
	notifier Notifier,
	policy LockPolicy,
	logger logger.Logger,
) *AcceptPoolUseCase {
	return &AcceptPoolUseCase{
		poolRepo: poolRepo,
		locker:   locker,
		notifier: notifier,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

// Execute runs the use case
func (uc *AcceptPoolUseCase) Execute(ctx context.Context, cmd AcceptPoolCommand) (*domain.RidePool, error) {
	log := uc.logger.WithFields(logger.LogFields{
		"pool_id":   cmd.PoolID,
		"driver_id": cmd.Driver.ID,
	})

	lease, err := acquireWithRetry(ctx, uc.locker, PoolLockKey(cmd.PoolID), uc.policy)
	if err != nil {
		log.Error("accept_lock_failed", err)
		return nil, err
	}
	defer releaseLease(ctx, uc.locker, lease, uc.logger)

	pool, err := uc.poolRepo.FindByID(ctx, cmd.PoolID)
	if err != nil {
		return nil, fmt.Errorf("pool not found: %w", err)
	}

	acceptedAt := uc.now()
	if err := pool.Accept(cmd.Driver.ID, acceptedAt); err != nil {
		log.WithFields(logger.LogFields{"status": pool.Status().String()}).Error("accept_pool_declined", err)
		return nil, fmt.Errorf("cannot accept pool: %w", err)
	}

	if err := uc.poolRepo.SaveStatus(ctx, pool); err != nil {
		log.Error("save_acceptance_failed", err)
		return nil, fmt.Errorf("failed to update pool: %w", err)
	}

	log.WithFields(logger.LogFields{"passengers": pool.PassengerCount()}).Info("pool_accepted", "Driver assigned to pool")

	for _, m := range pool.Members() {
		event := domain.RideAcceptedEvent{
			PassengerID: m.PassengerID,
			PoolID:      pool.ID(),
			DriverName:  cmd.Driver.Name,
			DriverPhone: cmd.Driver.Phone,
			AcceptedAt:  acceptedAt,
		}
		if err := uc.notifier.Notify(ctx, m.PassengerID, event); err != nil {
			log.WithFields(logger.LogFields{"passenger_id": m.PassengerID}).Error("notify_accepted_failed", err)
		}
	}

	return pool, nil
}
