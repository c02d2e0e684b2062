package domain

import (
	"context"
	"time"
)

// PoolRepository is the port for pool persistence. Implementations must
// persist each mutating call as a single unit.
type PoolRepository interface {
	// FindNearbyOpen returns open pools for the terminal whose start location
	// lies within radiusKm of point, nearest first.
	FindNearbyOpen(ctx context.Context, point Coordinate, terminal string, radiusKm float64) ([]*RidePool, error)

	// FindByID returns ErrPoolNotFound when no pool matches.
	FindByID(ctx context.Context, poolID string) (*RidePool, error)

	// FindByRequestKey returns the unfinished pool holding a membership
	// created by the given idempotency key, or ErrPoolNotFound. Completed and
	// cancelled pools are ignored.
	FindByRequestKey(ctx context.Context, requestKey string) (*RidePool, error)

	// FindOpen lists every open pool, newest first.
	FindOpen(ctx context.Context) ([]*RidePool, error)

	// Create persists a new pool together with its first member and that
	// member's pricing log.
	Create(ctx context.Context, pool *RidePool, log PricingLog) error

	// SaveJoin persists a join: the pool's capacity and status, the new
	// member and its pricing log, all or nothing.
	SaveJoin(ctx context.Context, pool *RidePool, member Membership, log PricingLog) error

	// SaveRemoval persists the removal of passengerID with the pool's
	// restored capacity and status.
	SaveRemoval(ctx context.Context, pool *RidePool, passengerID string) error

	// SaveStatus persists status, driver and start time.
	SaveStatus(ctx context.Context, pool *RidePool) error

	// PurgeExpired deletes unresolved (open or locked) pools whose expiry has
	// passed and reports how many were removed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
