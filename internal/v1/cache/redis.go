// Package cache wraps the Redis client used for cross-instance caching and
// the rate limiter's shared store. Unlike the teacher's bus package, this
// service never fans room events across instances — rooms are server-local
// (see spec Non-goals) — it only caches read-mostly lookups such as beatmap
// checksums and backs the rate limiter.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hexwave/roomplay/internal/v1/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// Service wraps a Redis client behind a circuit breaker so a flaky cache
// degrades gracefully instead of taking the room server down with it.
type Service struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

// Client returns the underlying Redis client, e.g. for the rate limiter's
// store adapter.
func (s *Service) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// NewService dials Redis and verifies connectivity immediately.
func NewService(addr, password string) (*Service, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "redis-cache",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(stateVal)
		},
	}

	slog.Info("Connected to Redis cache", "addr", addr)
	return &Service{
		client: rdb,
		cb:     gobreaker.NewCircuitBreaker(st),
	}, nil
}

// Ping verifies Redis connectivity, used by the readiness health check.
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Ping(ctx).Err()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
		}
		return err
	}
	return nil
}

// Close gracefully shuts down the Redis connection.
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// GetChecksum fetches a cached beatmap checksum. The bool is false on a
// cache miss (including when Redis is unavailable) so callers always fall
// through to persistence.
func (s *Service) GetChecksum(ctx context.Context, beatmapID int64) (string, bool) {
	if s == nil || s.client == nil {
		return "", false
	}

	key := fmt.Sprintf("beatmap:%d:checksum", beatmapID)
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.client.Get(ctx, key).Result()
	})
	if err != nil {
		if err != redis.Nil && err != gobreaker.ErrOpenState {
			slog.Warn("Redis GetChecksum failed", "beatmapId", beatmapID, "error", err)
		}
		return "", false
	}
	return res.(string), true
}

// SetChecksum populates the checksum cache with a generous TTL — beatmap
// checksums are immutable once published.
func (s *Service) SetChecksum(ctx context.Context, beatmapID int64, checksum string) {
	if s == nil || s.client == nil {
		return
	}

	key := fmt.Sprintf("beatmap:%d:checksum", beatmapID)
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Set(ctx, key, checksum, 24*time.Hour).Err()
	})
	if err != nil && err != gobreaker.ErrOpenState {
		slog.Warn("Redis SetChecksum failed", "beatmapId", beatmapID, "error", err)
	}
}

// CacheRestriction remembers a user-restriction lookup briefly, so a burst
// of joins from the same user doesn't hammer persistence.
func (s *Service) CacheRestriction(ctx context.Context, userID int64, restricted bool) {
	if s == nil || s.client == nil {
		return
	}

	key := fmt.Sprintf("user:%d:restricted", userID)
	data, _ := json.Marshal(restricted)
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Set(ctx, key, data, 30*time.Second).Err()
	})
	if err != nil && err != gobreaker.ErrOpenState {
		slog.Warn("Redis CacheRestriction failed", "userId", userID, "error", err)
	}
}

// GetRestriction returns a cached restriction flag, ok=false on a miss.
func (s *Service) GetRestriction(ctx context.Context, userID int64) (restricted bool, ok bool) {
	if s == nil || s.client == nil {
		return false, false
	}

	key := fmt.Sprintf("user:%d:restricted", userID)
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.client.Get(ctx, key).Result()
	})
	if err != nil {
		if err != redis.Nil && err != gobreaker.ErrOpenState {
			slog.Warn("Redis GetRestriction failed", "userId", userID, "error", err)
		}
		return false, false
	}
	if err := json.Unmarshal([]byte(res.(string)), &restricted); err != nil {
		return false, false
	}
	return restricted, true
}
