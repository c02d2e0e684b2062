package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ride-pool/internal/pool-service/domain"
)

const uniqueViolation = "23505"

const poolColumns = `
	p.id::text, p.status, p.driver_id, p.terminal,
	p.start_latitude, p.start_longitude,
	p.total_seats, p.seats_remaining, p.luggage_capacity, p.luggage_remaining,
	p.start_time, p.created_at, p.expires_at`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresPoolRepository implements domain.PoolRepository on PostGIS
type PostgresPoolRepository struct {
	db *pgxpool.Pool
}

var _ domain.PoolRepository = (*PostgresPoolRepository)(nil)

// NewPostgresPoolRepository creates a new PostgreSQL repository
func NewPostgresPoolRepository(db *pgxpool.Pool) *PostgresPoolRepository {
	return &PostgresPoolRepository{
		db: db,
	}
}

// FindNearbyOpen retrieves open pools around a pickup, nearest first
func (r *PostgresPoolRepository) FindNearbyOpen(
	ctx context.Context,
	point domain.Coordinate,
	terminal string,
	radiusKm float64,
) ([]*domain.RidePool, error) {
	return r.queryPools(ctx, `
		SELECT `+poolColumns+`
		FROM ride_pools p
		WHERE p.status = 'open'
		  AND p.terminal = $3
		  AND p.seats_remaining > 0
		  AND ST_DWithin(
		        p.start_location,
		        ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography,
		        $4
		      )
		ORDER BY ST_Distance(
		        p.start_location,
		        ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography
		      ) ASC
	`, point.Latitude(), point.Longitude(), terminal, radiusKm*1000)
}

// FindByID retrieves a pool with its members
func (r *PostgresPoolRepository) FindByID(ctx context.Context, poolID string) (*domain.RidePool, error) {
	if _, err := uuid.Parse(poolID); err != nil {
		return nil, domain.ErrPoolNotFound
	}
	pools, err := r.queryPools(ctx, `
		SELECT `+poolColumns+`
		FROM ride_pools p
		WHERE p.id = $1
	`, poolID)
	if err != nil {
		return nil, err
	}
	if len(pools) == 0 {
		return nil, domain.ErrPoolNotFound
	}
	return pools[0], nil
}

// FindByRequestKey retrieves the pool holding the membership created by key
func (r *PostgresPoolRepository) FindByRequestKey(ctx context.Context, requestKey string) (*domain.RidePool, error) {
	pools, err := r.queryPools(ctx, `
		SELECT `+poolColumns+`
		FROM ride_pools p
		JOIN pool_members m ON m.pool_id = p.id
		WHERE m.request_key = $1
		  AND p.status NOT IN ('completed', 'cancelled')
	`, requestKey)
	if err != nil {
		return nil, err
	}
	if len(pools) == 0 {
		return nil, domain.ErrPoolNotFound
	}
	return pools[0], nil
}

// FindOpen lists open pools, newest first
func (r *PostgresPoolRepository) FindOpen(ctx context.Context) ([]*domain.RidePool, error) {
	return r.queryPools(ctx, `
		SELECT `+poolColumns+`
		FROM ride_pools p
		WHERE p.status = 'open'
		ORDER BY p.created_at DESC
	`)
}

// Create persists a new pool, its first member and the member's pricing log
func (r *PostgresPoolRepository) Create(ctx context.Context, pool *domain.RidePool, log domain.PricingLog) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	start := pool.StartLocation()
	_, err = tx.Exec(ctx, `
		INSERT INTO ride_pools (
			id, status, driver_id, terminal,
			start_latitude, start_longitude, start_location,
			total_seats, seats_remaining, luggage_capacity, luggage_remaining,
			start_time, created_at, expires_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, ST_SetSRID(ST_MakePoint($6, $5), 4326)::geography,
			$7, $8, $9, $10,
			$11, $12, $13
		)
	`,
		pool.ID(),
		pool.Status().String(),
		pool.DriverID(),
		pool.TerminalCode(),
		start.Latitude(),
		start.Longitude(),
		pool.TotalSeats(),
		pool.SeatsRemaining(),
		pool.LuggageCapacity(),
		pool.LuggageRemaining(),
		pool.StartTime(),
		pool.CreatedAt(),
		pool.ExpiresAt(),
	)
	if err != nil {
		return fmt.Errorf("insert pool: %w", err)
	}

	for _, m := range pool.Members() {
		if err := insertMember(ctx, tx, pool.ID(), m); err != nil {
			return err
		}
	}
	if err := insertPricingLog(ctx, tx, log); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// SaveJoin persists a join as one unit. The status guard refuses to write
// over a pool that stopped being open.
func (r *PostgresPoolRepository) SaveJoin(
	ctx context.Context,
	pool *domain.RidePool,
	member domain.Membership,
	log domain.PricingLog,
) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE ride_pools
		SET seats_remaining = $1,
		    luggage_remaining = $2,
		    status = $3,
		    updated_at = NOW()
		WHERE id = $4 AND status = 'open'
	`,
		pool.SeatsRemaining(),
		pool.LuggageRemaining(),
		pool.Status().String(),
		pool.ID(),
	)
	if err != nil {
		return fmt.Errorf("update pool capacity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update pool capacity: %w", domain.ErrStaleState)
	}

	if err := insertMember(ctx, tx, pool.ID(), member); err != nil {
		return err
	}
	if err := insertPricingLog(ctx, tx, log); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// SaveRemoval deletes the membership and writes back the restored capacity
func (r *PostgresPoolRepository) SaveRemoval(ctx context.Context, pool *domain.RidePool, passengerID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		DELETE FROM pool_members WHERE pool_id = $1 AND passenger_id = $2
	`, pool.ID(), passengerID)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete member: %w", domain.ErrNotMember)
	}

	_, err = tx.Exec(ctx, `
		UPDATE ride_pools
		SET seats_remaining = $1,
		    luggage_remaining = $2,
		    status = $3,
		    updated_at = NOW()
		WHERE id = $4
	`,
		pool.SeatsRemaining(),
		pool.LuggageRemaining(),
		pool.Status().String(),
		pool.ID(),
	)
	if err != nil {
		return fmt.Errorf("update pool capacity: %w", err)
	}

	return tx.Commit(ctx)
}

// SaveStatus updates status, driver and start time
func (r *PostgresPoolRepository) SaveStatus(ctx context.Context, pool *domain.RidePool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE ride_pools
		SET status = $1,
		    driver_id = $2,
		    start_time = $3,
		    updated_at = NOW()
		WHERE id = $4
	`,
		pool.Status().String(),
		pool.DriverID(),
		pool.StartTime(),
		pool.ID(),
	)
	if err != nil {
		return fmt.Errorf("update pool status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPoolNotFound
	}
	return nil
}

// PurgeExpired deletes unresolved pools past their expiry
func (r *PostgresPoolRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM ride_pools
		WHERE status IN ('open', 'locked') AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("purge expired pools: %w", err)
	}
	return tag.RowsAffected(), nil
}

func insertMember(ctx context.Context, tx pgx.Tx, poolID string, m domain.Membership) error {
	var requestKey *string
	if m.RequestKey != "" {
		requestKey = &m.RequestKey
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO pool_members (
			pool_id, passenger_id, passenger_name, passenger_phone,
			pickup_latitude, pickup_longitude, dropoff_latitude, dropoff_longitude,
			terminal, luggage_count, seats_needed, fare, request_key, joined_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		poolID,
		m.PassengerID,
		m.PassengerName,
		m.PassengerPhone,
		m.Pickup.Latitude(),
		m.Pickup.Longitude(),
		m.Dropoff.Latitude(),
		m.Dropoff.Longitude(),
		m.TerminalCode,
		m.LuggageCount,
		m.SeatsNeeded,
		m.Fare,
		requestKey,
		m.JoinedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("insert member: %w", domain.ErrAlreadyMember)
		}
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func insertPricingLog(ctx context.Context, tx pgx.Tx, log domain.PricingLog) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO pricing_logs (
			pool_id, passenger_id, base_fare, distance_km, surge_multiplier,
			passenger_count, total_fare, calculated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		log.PoolID,
		log.PassengerID,
		log.BaseFare,
		log.DistanceKm,
		log.SurgeMultiplier,
		log.PassengerCount,
		log.TotalFare,
		log.CalculatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pricing log: %w", err)
	}
	return nil
}

// poolRow is one ride_pools row before its members are attached
type poolRow struct {
	id               string
	status           string
	driverID         *string
	terminal         string
	startLat         float64
	startLng         float64
	totalSeats       int
	seatsRemaining   int
	luggageCapacity  int
	luggageRemaining int
	startTime        *time.Time
	createdAt        time.Time
	expiresAt        time.Time
}

// queryPools runs a query selecting poolColumns and loads members for every
// returned pool, preserving row order.
func (r *PostgresPoolRepository) queryPools(ctx context.Context, sql string, args ...any) ([]*domain.RidePool, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query pools: %w", err)
	}
	defer rows.Close()

	var heads []poolRow
	for rows.Next() {
		var h poolRow
		if err := rows.Scan(
			&h.id, &h.status, &h.driverID, &h.terminal,
			&h.startLat, &h.startLng,
			&h.totalSeats, &h.seatsRemaining, &h.luggageCapacity, &h.luggageRemaining,
			&h.startTime, &h.createdAt, &h.expiresAt,
		); err != nil {
			return nil, fmt.Errorf("scan pool: %w", err)
		}
		heads = append(heads, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pools: %w", err)
	}
	if len(heads) == 0 {
		return nil, nil
	}

	ids := make([]string, len(heads))
	for i, h := range heads {
		ids[i] = h.id
	}
	members, err := loadMembers(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}

	pools := make([]*domain.RidePool, 0, len(heads))
	for _, h := range heads {
		start, err := domain.NewCoordinate(h.startLat, h.startLng)
		if err != nil {
			return nil, fmt.Errorf("pool %s start location: %w", h.id, err)
		}
		pools = append(pools, domain.ReconstructPool(
			h.id,
			members[h.id],
			domain.PoolStatus(h.status),
			h.driverID,
			start,
			h.terminal,
			h.totalSeats, h.seatsRemaining,
			h.luggageCapacity, h.luggageRemaining,
			h.startTime,
			h.createdAt, h.expiresAt,
		))
	}
	return pools, nil
}

func loadMembers(ctx context.Context, q querier, poolIDs []string) (map[string][]domain.Membership, error) {
	rows, err := q.Query(ctx, `
		SELECT
			pool_id::text, passenger_id, passenger_name, passenger_phone,
			pickup_latitude, pickup_longitude, dropoff_latitude, dropoff_longitude,
			terminal, luggage_count, seats_needed, fare::float8,
			COALESCE(request_key, ''), joined_at
		FROM pool_members
		WHERE pool_id = ANY($1)
		ORDER BY pool_id, seq
	`, poolIDs)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.Membership, len(poolIDs))
	for rows.Next() {
		var (
			poolID                 string
			m                      domain.Membership
			pickupLat, pickupLng   float64
			dropoffLat, dropoffLng float64
		)
		if err := rows.Scan(
			&poolID, &m.PassengerID, &m.PassengerName, &m.PassengerPhone,
			&pickupLat, &pickupLng, &dropoffLat, &dropoffLng,
			&m.TerminalCode, &m.LuggageCount, &m.SeatsNeeded, &m.Fare,
			&m.RequestKey, &m.JoinedAt,
		); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		if m.Pickup, err = domain.NewCoordinate(pickupLat, pickupLng); err != nil {
			return nil, fmt.Errorf("member %s pickup: %w", m.PassengerID, err)
		}
		if m.Dropoff, err = domain.NewCoordinate(dropoffLat, dropoffLng); err != nil {
			return nil, fmt.Errorf("member %s dropoff: %w", m.PassengerID, err)
		}
		out[poolID] = append(out[poolID], m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return out, nil
}
