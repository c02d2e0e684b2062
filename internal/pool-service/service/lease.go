package service

import (
	"context"
	"fmt"
	"time"

	"ride-pool/internal/pool-service/domain"
	"ride-pool/pkg/logger"
)

// LockPolicy bounds how long state-machine operations wait for a pool lock.
type LockPolicy struct {
	TTL     time.Duration
	Retries int
	Backoff time.Duration
}

func DefaultLockPolicy() LockPolicy {
	return LockPolicy{TTL: 2 * time.Second, Retries: 5, Backoff: 50 * time.Millisecond}
}

// acquireWithRetry tries the lock up to policy.Retries times and returns
// domain.ErrLockContention when it stays held.
func acquireWithRetry(ctx context.Context, locker Locker, key string, policy LockPolicy) (Lease, error) {
	attempts := max(policy.Retries, 1)
	for i := 0; i < attempts; i++ {
		lease, ok, err := locker.Acquire(ctx, key, policy.TTL)
		if err != nil {
			return Lease{}, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return lease, nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return Lease{}, ctx.Err()
		case <-time.After(policy.Backoff):
		}
	}
	return Lease{}, domain.ErrLockContention
}

// releaseLease releases even when ctx is already cancelled; a failure only
// means the lock lives until its TTL.
func releaseLease(ctx context.Context, locker Locker, lease Lease, log logger.Logger) {
	if err := locker.Release(context.WithoutCancel(ctx), lease); err != nil {
		log.WithFields(logger.LogFields{"lock_key": lease.Key}).Error("lock_release_failed", err)
	}
}
