package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"ride-pool/internal/pool-service/domain"
	"ride-pool/internal/pool-service/infrastructure/consumer"
	"ride-pool/internal/pool-service/infrastructure/jobs"
	"ride-pool/internal/pool-service/infrastructure/lock"
	"ride-pool/internal/pool-service/infrastructure/messaging"
	"ride-pool/internal/pool-service/infrastructure/metrics"
	"ride-pool/internal/pool-service/infrastructure/notification"
	"ride-pool/internal/pool-service/infrastructure/repository"
	"ride-pool/internal/pool-service/infrastructure/sweeper"
	httpapi "ride-pool/internal/pool-service/interface/http"
	"ride-pool/internal/pool-service/service"
	"ride-pool/pkg/auth"
	"ride-pool/pkg/config"
	"ride-pool/pkg/db"
	"ride-pool/pkg/logger"
	"ride-pool/pkg/rabbitmq"
	"ride-pool/pkg/ratelimit"
	"ride-pool/pkg/redis"
	"ride-pool/pkg/websocket"
)

const (
	matchJobTimeout = 10 * time.Second
	shutdownTimeout = 5 * time.Second

	limiterSweepInterval = 5 * time.Minute
)

func main() {
	// Load config
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log := logger.NewLoggerWithLevel("pool-service", cfg.LogLevel)
	if err := run(cfg, log); err != nil {
		log.Error("service_failed", err)
		os.Exit(1)
	}
	log.Info("service_stopped", "Pool Service stopped gracefully")
}

func run(cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	terminals, err := terminalMap(cfg.Terminals)
	if err != nil {
		return err
	}

	// Infrastructure
	dbPool, err := db.NewConnection(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbPool.Close()
	if err := db.Migrate(ctx, dbPool, log); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	redisClient, err := redis.NewClient(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	rabbit, err := rabbitmq.NewConnection(cfg, log)
	if err != nil {
		return fmt.Errorf("connect rabbitmq: %w", err)
	}
	defer rabbit.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	poolMetrics := metrics.New(registry)

	poolRepo := repository.NewPostgresPoolRepository(dbPool)
	locker := lock.NewRedisLocker(redisClient)
	jobStore := jobs.NewRedisJobStore(redisClient)
	notifier := notification.NewRedisNotifier(redisClient)
	jobQueue := messaging.NewRabbitMQJobQueue(rabbit, log)
	fareCalculator := domain.NewFareCalculator()

	lockPolicy := service.LockPolicy{
		TTL:     cfg.Matching.LockTTL,
		Retries: cfg.Matching.LockRetries,
		Backoff: cfg.Matching.LockRetryBackoff,
	}

	// Use cases
	matchConfig := service.MatchConfig{
		SearchRadiusKm:  cfg.Matching.SearchRadiusKm,
		MaxDetourKm:     cfg.Matching.MaxDetourKm,
		LockTTL:         cfg.Matching.LockTTL,
		TotalSeats:      cfg.Matching.TotalSeats,
		LuggageCapacity: cfg.Matching.LuggageCapacity,
		JoinSurge:       cfg.Matching.JoinSurge,
		NewPoolSurge:    cfg.Matching.NewPoolSurge,
		FallbackTripKm:  cfg.Matching.FallbackTripKm,
	}
	matchPool := service.NewMatchPoolUseCase(poolRepo, locker, terminals, fareCalculator, poolMetrics, matchConfig, log)
	requestRide := service.NewRequestRideUseCase(jobQueue, jobStore, terminals, matchConfig.Capacity(), log)
	acceptPool := service.NewAcceptPoolUseCase(poolRepo, locker, notifier, lockPolicy, log)
	cancelMembership := service.NewCancelMembershipUseCase(poolRepo, locker, notifier, lockPolicy, log)
	completePool := service.NewCompletePoolUseCase(poolRepo, locker, lockPolicy, log)
	queries := service.NewPoolQueries(poolRepo, jobStore, fareCalculator)

	// Delivery
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Duration)
	wsManager := websocket.NewManager(log)
	requestLimiter := ratelimit.NewMemoryLimiter(cfg.RateLimit.Interval, cfg.RateLimit.Burst)
	handler := httpapi.NewPoolHandler(requestRide, acceptPool, cancelMembership, completePool, queries, requestLimiter, log)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           httpapi.NewRouter(handler, jwtManager, wsManager, registry, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	worker := consumer.NewMatchWorker(rabbit, matchPool, jobStore, notifier, poolMetrics,
		cfg.Matching.WorkerPrefetch, matchJobTimeout, log)
	relay := notification.NewRelay(redisClient, wsManager, log)
	expiry := sweeper.New(poolRepo, cfg.Sweeper.Interval, log)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithFields(logger.LogFields{"addr": srv.Addr}).Info("server_running", "Pool Service HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("server_shutdown", "Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return relay.Run(ctx)
	})
	g.Go(func() error {
		expiry.Start(ctx)
		return nil
	})
	g.Go(func() error {
		requestLimiter.Run(ctx, limiterSweepInterval)
		return nil
	})
	if err := worker.Start(ctx); err != nil {
		stop()
		_ = g.Wait()
		return fmt.Errorf("start match worker: %w", err)
	}

	return g.Wait()
}

func terminalMap(in map[string]config.TerminalLocation) (service.TerminalMap, error) {
	out := make(service.TerminalMap, len(in))
	for code, loc := range in {
		c, err := domain.NewCoordinate(loc.Latitude, loc.Longitude)
		if err != nil {
			return nil, fmt.Errorf("terminal %s: %w", code, err)
		}
		out[code] = c
	}
	return out, nil
}
