package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"

	"chat-realtime/internal/apperr"
	"chat-realtime/internal/logging"
	"chat-realtime/internal/observability"
)

const (
	DefaultTTL        = 60 * time.Second
	DefaultHeartbeat  = 30 * time.Second
	keyPrefix         = "user:online:"
	breakerThreshold  = 5
	breakerOpenPeriod = 10 * time.Second
)

// Key returns the cache key marking userID online.
func Key(userID string) string {
	return keyPrefix + userID
}

// Store is a TTL-based online registry. A key's existence means online.
// Presence is advisory: callers log and continue on error.
type Store struct {
	client  redis.Cmdable
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker[bool]
}

// NewStore wraps client. ttl <= 0 uses DefaultTTL.
func NewStore(client redis.Cmdable, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	breaker := gobreaker.NewCircuitBreaker[bool](gobreaker.Settings{
		Name:    "presence-cache",
		Timeout: breakerOpenPeriod,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("presence circuit breaker state change")
		},
	})
	return &Store{client: client, ttl: ttl, breaker: breaker}
}

// TTL reports the configured key lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

func (s *Store) MarkOnline(ctx context.Context, userID string) error {
	_, err := s.do("mark_online", func() (bool, error) {
		return true, s.client.Set(ctx, Key(userID), "1", s.ttl).Err()
	})
	return err
}

// RefreshOnline extends the TTL. A key that already lapsed is recreated so a
// late heartbeat restores presence.
func (s *Store) RefreshOnline(ctx context.Context, userID string) error {
	_, err := s.do("refresh_online", func() (bool, error) {
		ok, err := s.client.Expire(ctx, Key(userID), s.ttl).Result()
		if err != nil || ok {
			return ok, err
		}
		return true, s.client.Set(ctx, Key(userID), "1", s.ttl).Err()
	})
	return err
}

// MarkOffline removes the key. Recording lastSeenAt is the caller's job.
func (s *Store) MarkOffline(ctx context.Context, userID string) error {
	_, err := s.do("mark_offline", func() (bool, error) {
		return true, s.client.Del(ctx, Key(userID)).Err()
	})
	return err
}

func (s *Store) IsOnline(ctx context.Context, userID string) (bool, error) {
	return s.do("is_online", func() (bool, error) {
		n, err := s.client.Exists(ctx, Key(userID)).Result()
		return n == 1, err
	})
}

func (s *Store) do(op string, fn func() (bool, error)) (bool, error) {
	v, err := s.breaker.Execute(fn)
	if err == nil {
		return v, nil
	}
	observability.IncPresenceError(op)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false, apperr.Wrap(apperr.CodePresenceUnavailable, fmt.Sprintf("presence %s: circuit open", op), err)
	}
	return false, apperr.Wrap(apperr.CodePresenceUnavailable, "presence "+op, err)
}
