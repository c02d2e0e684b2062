package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ride-pool/internal/pool-service/domain"
	"ride-pool/pkg/logger"
)

// Match outcomes reported to MatchMetrics.
const (
	OutcomeJoined   = "joined"
	OutcomeCreated  = "created"
	OutcomeReplayed = "replayed"
	OutcomeFailed   = "failed"
)

// MatchConfig tunes the matching engine.
type MatchConfig struct {
	SearchRadiusKm  float64
	MaxDetourKm     float64
	LockTTL         time.Duration
	TotalSeats      int
	LuggageCapacity int
	JoinSurge       float64
	NewPoolSurge    float64
	// FallbackTripKm prices trips whose terminal has no known coordinates.
	FallbackTripKm float64
}

func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		SearchRadiusKm:  5,
		MaxDetourKm:     5,
		LockTTL:         2 * time.Second,
		TotalSeats:      4,
		LuggageCapacity: 4,
		JoinSurge:       1.2,
		NewPoolSurge:    1.0,
		FallbackTripKm:  10,
	}
}

// Capacity is the allowance of every newly opened pool.
func (c MatchConfig) Capacity() domain.Capacity {
	return domain.Capacity{Seats: c.TotalSeats, Luggage: c.LuggageCapacity}
}

// MatchPoolCommand is one passenger's request to be pooled. JobID is the
// queued job the request arrived with and is stable across redeliveries.
type MatchPoolCommand struct {
	JobID     string
	Passenger domain.Identity
	Request   domain.RideRequest
}

// MatchResult is the pool the passenger ended up in.
type MatchResult struct {
	Pool      *domain.RidePool
	IsNewPool bool
	// Replayed is set when the request had already been committed and
	// nothing was mutated.
	Replayed bool
}

// MatchPoolUseCase places a passenger into the nearest pool that can take
// them, or opens a new pool.
type MatchPoolUseCase struct {
	poolRepo       domain.PoolRepository
	locker         Locker
	terminals      TerminalDirectory
	fareCalculator *domain.FareCalculator
	metrics        MatchMetrics
	cfg            MatchConfig
	logger         logger.Logger
	now            func() time.Time
	newID          func() string
}

// NewMatchPoolUseCase creates a new use case instance. metrics may be nil.
func NewMatchPoolUseCase(
	poolRepo domain.PoolRepository,
	locker Locker,
	terminals TerminalDirectory,
	fareCalculator *domain.FareCalculator,
	metrics MatchMetrics,
	cfg MatchConfig,
	logger logger.Logger,
) *MatchPoolUseCase {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &MatchPoolUseCase{
		poolRepo:       poolRepo,
		locker:         locker,
		terminals:      terminals,
		fareCalculator: fareCalculator,
		metrics:        metrics,
		cfg:            cfg,
		logger:         logger,
		now:            time.Now,
		newID:          uuid.NewString,
	}
}

// Execute runs the use case. Candidate-level rejections are never returned;
// an error means the request could not be placed at all.
func (uc *MatchPoolUseCase) Execute(ctx context.Context, cmd MatchPoolCommand) (*MatchResult, error) {
	started := uc.now()
	result, err := uc.match(ctx, cmd)

	outcome := OutcomeFailed
	switch {
	case err != nil:
	case result.Replayed:
		outcome = OutcomeReplayed
	case result.IsNewPool:
		outcome = OutcomeCreated
	default:
		outcome = OutcomeJoined
	}
	uc.metrics.ObserveMatch(outcome, uc.now().Sub(started))
	return result, err
}

func (uc *MatchPoolUseCase) match(ctx context.Context, cmd MatchPoolCommand) (*MatchResult, error) {
	req := cmd.Request
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := req.FitsCapacity(uc.cfg.Capacity()); err != nil {
		return nil, err
	}
	if cmd.Passenger.ID == "" {
		return nil, fmt.Errorf("%w: passenger id is required", domain.ErrInvalidRequest)
	}
	if cmd.JobID == "" {
		return nil, fmt.Errorf("%w: job id is required", domain.ErrInvalidRequest)
	}
	key := req.IdempotencyKey(cmd.Passenger, cmd.JobID)
	log := uc.logger.WithFields(logger.LogFields{
		"request_id":   key[:16],
		"passenger_id": cmd.Passenger.ID,
		"terminal":     req.TerminalCode,
	})

	// 1. A redelivered request that already committed returns its pool
	existing, err := uc.poolRepo.FindByRequestKey(ctx, key)
	switch {
	case err == nil:
		log.WithFields(logger.LogFields{"pool_id": existing.ID()}).Info("match_replayed", "Request already matched")
		return &MatchResult{Pool: existing, Replayed: true}, nil
	case !errors.Is(err, domain.ErrPoolNotFound):
		return nil, fmt.Errorf("failed to look up request: %w", err)
	}

	// 2. Candidates, nearest first
	candidates, err := uc.poolRepo.FindNearbyOpen(ctx, req.Pickup, req.TerminalCode, uc.cfg.SearchRadiusKm)
	if err != nil {
		log.Error("find_candidates_failed", err)
		return nil, fmt.Errorf("failed to find nearby pools: %w", err)
	}
	log.WithFields(logger.LogFields{"candidates": len(candidates)}).Debug("candidates_found", "Nearby open pools loaded")

	// 3. Greedy: the first candidate that accepts the passenger wins
	for _, candidate := range candidates {
		if candidate.HasPassenger(cmd.Passenger.ID) {
			uc.metrics.CandidateSkipped("already_member")
			continue
		}
		if err := candidate.CanSeat(req.SeatsNeeded, req.LuggageCount); err != nil {
			uc.metrics.CandidateSkipped("capacity")
			continue
		}

		pool, replayed, err := uc.tryJoin(ctx, candidate.ID(), cmd.Passenger, req, key)
		if err == nil {
			log.WithFields(logger.LogFields{
				"pool_id":         pool.ID(),
				"seats_remaining": pool.SeatsRemaining(),
				"status":          pool.Status().String(),
			}).Info("pool_joined", "Passenger joined existing pool")
			return &MatchResult{Pool: pool, Replayed: replayed}, nil
		}
		if reason, skip := candidateSkipReason(err); skip {
			uc.metrics.CandidateSkipped(reason)
			log.WithFields(logger.LogFields{
				"pool_id": candidate.ID(),
				"reason":  reason,
			}).Debug("candidate_skipped", err.Error())
			continue
		}
		log.WithFields(logger.LogFields{"pool_id": candidate.ID()}).Error("join_pool_failed", err)
		return nil, err
	}

	// 4. Nobody could take the passenger
	pool, err := uc.createPool(ctx, cmd.Passenger, req, key)
	if err != nil {
		log.Error("create_pool_failed", err)
		return nil, err
	}
	log.WithFields(logger.LogFields{"pool_id": pool.ID()}).Info("pool_created", "New pool opened")
	return &MatchResult{Pool: pool, IsNewPool: true}, nil
}

// tryJoin re-validates the candidate under its lock and commits the join.
// The lock is released on every path.
func (uc *MatchPoolUseCase) tryJoin(
	ctx context.Context,
	poolID string,
	passenger domain.Identity,
	req domain.RideRequest,
	key string,
) (*domain.RidePool, bool, error) {
	lease, ok, err := uc.locker.Acquire(ctx, PoolLockKey(poolID), uc.cfg.LockTTL)
	if err != nil {
		return nil, false, fmt.Errorf("failed to lock pool: %w", err)
	}
	if !ok {
		return nil, false, domain.ErrLockContention
	}
	defer releaseLease(ctx, uc.locker, lease, uc.logger)

	pool, err := uc.poolRepo.FindByID(ctx, poolID)
	if errors.Is(err, domain.ErrPoolNotFound) {
		return nil, false, domain.ErrStaleState
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to reload pool: %w", err)
	}
	if pool.HasRequestKey(key) {
		return pool, true, nil
	}
	if pool.Status() != domain.StatusOpen {
		return nil, false, fmt.Errorf("%w: pool is %s", domain.ErrStaleState, pool.Status())
	}
	if pool.HasPassenger(passenger.ID) {
		return nil, false, domain.ErrAlreadyMember
	}
	if err := pool.CanSeat(req.SeatsNeeded, req.LuggageCount); err != nil {
		return nil, false, err
	}
	if detour := pool.StartLocation().DistanceTo(req.Pickup); detour > uc.cfg.MaxDetourKm {
		return nil, false, fmt.Errorf("%w: %.2f km", domain.ErrDetourExceeded, detour)
	}

	now := uc.now()
	member, pricing := uc.price(pool.ID(), passenger, req, key, uc.cfg.JoinSurge, pool.PassengerCount()+1, now)
	if err := pool.Join(member); err != nil {
		return nil, false, err
	}

	// Do not write if the lease ran out while we were validating.
	held, err := uc.locker.Extend(ctx, lease, uc.cfg.LockTTL)
	if err != nil {
		return nil, false, fmt.Errorf("failed to extend pool lock: %w", err)
	}
	if !held {
		return nil, false, fmt.Errorf("%w: lock expired before commit", domain.ErrStaleState)
	}

	if err := uc.poolRepo.SaveJoin(ctx, pool, member, pricing); err != nil {
		return nil, false, fmt.Errorf("failed to save join: %w", err)
	}
	return pool, false, nil
}

func (uc *MatchPoolUseCase) createPool(
	ctx context.Context,
	passenger domain.Identity,
	req domain.RideRequest,
	key string,
) (*domain.RidePool, error) {
	now := uc.now()
	poolID := uc.newID()
	member, pricing := uc.price(poolID, passenger, req, key, uc.cfg.NewPoolSurge, 1, now)

	pool, err := domain.NewPool(poolID, member, uc.cfg.TotalSeats, uc.cfg.LuggageCapacity, now)
	if errors.Is(err, domain.ErrInsufficientCapacity) {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open pool: %w", err)
	}
	if err := uc.poolRepo.Create(ctx, pool, pricing); err != nil {
		return nil, fmt.Errorf("failed to save pool: %w", err)
	}
	return pool, nil
}

// price builds the membership and its pricing log. The trip runs from the
// pickup to the terminal.
func (uc *MatchPoolUseCase) price(
	poolID string,
	passenger domain.Identity,
	req domain.RideRequest,
	key string,
	surge float64,
	passengerCount int,
	now time.Time,
) (domain.Membership, domain.PricingLog) {
	dropoff := req.Pickup
	distance := uc.cfg.FallbackTripKm
	if terminal, ok := uc.terminals.Lookup(req.TerminalCode); ok {
		dropoff = terminal
		distance = uc.fareCalculator.Distance(req.Pickup, terminal)
	}
	fare := uc.fareCalculator.Fare(distance, surge, passengerCount)

	member := domain.Membership{
		PassengerID:    passenger.ID,
		PassengerName:  passenger.Name,
		PassengerPhone: passenger.Phone,
		Pickup:         req.Pickup,
		Dropoff:        dropoff,
		TerminalCode:   req.TerminalCode,
		LuggageCount:   req.LuggageCount,
		SeatsNeeded:    req.SeatsNeeded,
		Fare:           fare,
		RequestKey:     key,
		JoinedAt:       now,
	}
	pricing := domain.PricingLog{
		PoolID:          poolID,
		PassengerID:     passenger.ID,
		BaseFare:        uc.fareCalculator.BaseFare(),
		DistanceKm:      distance,
		SurgeMultiplier: surge,
		PassengerCount:  passengerCount,
		TotalFare:       fare,
		CalculatedAt:    now,
	}
	return member, pricing
}

// candidateSkipReason classifies errors that mean "try the next pool".
func candidateSkipReason(err error) (string, bool) {
	switch {
	case errors.Is(err, domain.ErrLockContention):
		return "lock_contention", true
	case errors.Is(err, domain.ErrStaleState):
		return "stale", true
	case errors.Is(err, domain.ErrInsufficientCapacity):
		return "capacity", true
	case errors.Is(err, domain.ErrDetourExceeded):
		return "detour", true
	case errors.Is(err, domain.ErrAlreadyMember):
		return "already_member", true
	}
	return "", false
}
