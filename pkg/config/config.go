package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DB struct {
		Host     string
		Port     int
		User     string
		Password string
		Database string
	}
	RabbitMQ struct {
		Host     string
		Port     int
		User     string
		Password string
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	HTTP struct {
		Port int
	}
	JWT struct {
		Secret   string
		Duration time.Duration
	}
	Matching struct {
		SearchRadiusKm   float64
		MaxDetourKm      float64
		LockTTL          time.Duration
		TotalSeats       int
		LuggageCapacity  int
		JoinSurge        float64
		NewPoolSurge     float64
		FallbackTripKm   float64
		WorkerPrefetch   int
		LockRetries      int
		LockRetryBackoff time.Duration
	}
	Sweeper struct {
		Interval time.Duration
	}
	// RateLimit throttles ride requests per passenger.
	RateLimit struct {
		Interval time.Duration
		Burst    int
	}
	// Terminals maps a terminal code to its coordinates.
	Terminals map[string]TerminalLocation
	LogLevel  string
}

type TerminalLocation struct {
	Latitude  float64
	Longitude float64
}

// LoadConfig reads an optional dotenv file and overlays the process
// environment. A missing file is not an error.
func LoadConfig(filename string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if filename != "" {
		v.SetConfigFile(filename)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("could not read env file: %w", err)
			}
		}
	}
	v.AutomaticEnv()

	cfg := &Config{}
	cfg.DB.Host = v.GetString("DB_HOST")
	cfg.DB.Port = v.GetInt("DB_PORT")
	cfg.DB.User = v.GetString("DB_USER")
	cfg.DB.Password = v.GetString("DB_PASS")
	cfg.DB.Database = v.GetString("DB_NAME")
	cfg.RabbitMQ.Host = v.GetString("RABBITMQ_HOST")
	cfg.RabbitMQ.Port = v.GetInt("RABBITMQ_PORT")
	cfg.RabbitMQ.User = v.GetString("RABBITMQ_USER")
	cfg.RabbitMQ.Password = v.GetString("RABBITMQ_PASS")
	cfg.Redis.Addr = v.GetString("REDIS_ADDR")
	cfg.Redis.Password = v.GetString("REDIS_PASS")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.HTTP.Port = v.GetInt("HTTP_PORT")
	cfg.JWT.Secret = v.GetString("JWT_SECRET")
	cfg.JWT.Duration = v.GetDuration("JWT_DURATION")
	cfg.Matching.SearchRadiusKm = v.GetFloat64("MATCH_SEARCH_RADIUS_KM")
	cfg.Matching.MaxDetourKm = v.GetFloat64("MATCH_MAX_DETOUR_KM")
	cfg.Matching.LockTTL = v.GetDuration("MATCH_LOCK_TTL")
	cfg.Matching.TotalSeats = v.GetInt("POOL_TOTAL_SEATS")
	cfg.Matching.LuggageCapacity = v.GetInt("POOL_LUGGAGE_CAPACITY")
	cfg.Matching.JoinSurge = v.GetFloat64("MATCH_JOIN_SURGE")
	cfg.Matching.NewPoolSurge = v.GetFloat64("MATCH_NEW_POOL_SURGE")
	cfg.Matching.FallbackTripKm = v.GetFloat64("MATCH_FALLBACK_TRIP_KM")
	cfg.Matching.WorkerPrefetch = v.GetInt("MATCH_WORKER_PREFETCH")
	cfg.Matching.LockRetries = v.GetInt("POOL_LOCK_RETRIES")
	cfg.Matching.LockRetryBackoff = v.GetDuration("POOL_LOCK_RETRY_BACKOFF")
	cfg.Sweeper.Interval = v.GetDuration("SWEEP_INTERVAL")
	cfg.RateLimit.Interval = v.GetDuration("RIDE_REQUEST_RATE_INTERVAL")
	cfg.RateLimit.Burst = v.GetInt("RIDE_REQUEST_RATE_BURST")
	cfg.LogLevel = v.GetString("LOG_LEVEL")

	terminals, err := parseTerminals(v.GetString("TERMINALS"))
	if err != nil {
		return nil, err
	}
	cfg.Terminals = terminals

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "ridepool_user")
	v.SetDefault("DB_PASS", "ridepool_pass")
	v.SetDefault("DB_NAME", "ridepool_db")
	v.SetDefault("RABBITMQ_HOST", "localhost")
	v.SetDefault("RABBITMQ_PORT", 5672)
	v.SetDefault("RABBITMQ_USER", "guest")
	v.SetDefault("RABBITMQ_PASS", "guest")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASS", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("HTTP_PORT", 5000)
	v.SetDefault("JWT_SECRET", "change-me")
	v.SetDefault("JWT_DURATION", "1h")
	v.SetDefault("MATCH_SEARCH_RADIUS_KM", 5.0)
	v.SetDefault("MATCH_MAX_DETOUR_KM", 5.0)
	v.SetDefault("MATCH_LOCK_TTL", "2s")
	v.SetDefault("POOL_TOTAL_SEATS", 4)
	v.SetDefault("POOL_LUGGAGE_CAPACITY", 4)
	v.SetDefault("MATCH_JOIN_SURGE", 1.2)
	v.SetDefault("MATCH_NEW_POOL_SURGE", 1.0)
	v.SetDefault("MATCH_FALLBACK_TRIP_KM", 10.0)
	v.SetDefault("MATCH_WORKER_PREFETCH", 10)
	v.SetDefault("POOL_LOCK_RETRIES", 5)
	v.SetDefault("POOL_LOCK_RETRY_BACKOFF", "50ms")
	v.SetDefault("SWEEP_INTERVAL", "1m")
	v.SetDefault("RIDE_REQUEST_RATE_INTERVAL", "6s")
	v.SetDefault("RIDE_REQUEST_RATE_BURST", 5)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("TERMINALS", "T1:13.1989:77.7068,T2:13.2007:77.7101")
}

// parseTerminals parses "CODE:lat:lng,CODE:lat:lng".
func parseTerminals(raw string) (map[string]TerminalLocation, error) {
	out := make(map[string]TerminalLocation)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid terminal entry %q: want CODE:lat:lng", entry)
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude for terminal %s: %w", parts[0], err)
		}
		lng, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude for terminal %s: %w", parts[0], err)
		}
		out[strings.TrimSpace(parts[0])] = TerminalLocation{Latitude: lat, Longitude: lng}
	}
	return out, nil
}
