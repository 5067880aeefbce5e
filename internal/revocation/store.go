// Package revocation is the Redis adapter for token blacklisting and the
// per-user password-change cutoff watermark.
package revocation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every Redis failure so callers can fail closed
// instead of treating an unreachable cache as "not revoked".
var ErrRedisUnavailable = errors.New("revocation redis unavailable")

// Store partitions its keyspace by purpose: BLACKLIST_{uid}_{jti} for revoked
// token ids and TOKEN_IAT_AVAILABLE_{uid} for the password-change cutoff.
type Store struct {
	redis redis.UniversalClient
}

func NewStore(redisClient redis.UniversalClient) *Store {
	return &Store{redis: redisClient}
}

// Blacklist marks a token id revoked for ttl. A non-positive ttl means the
// token is already expired and nothing is written.
func (s *Store) Blacklist(ctx context.Context, userID int64, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, blacklistKey(userID, jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IsBlacklisted reports whether the token id is revoked.
func (s *Store) IsBlacklisted(ctx context.Context, userID int64, jti string) (bool, error) {
	n, err := s.redis.Exists(ctx, blacklistKey(userID, jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

// SetPasswordCutoff records the moment of a password change. Access tokens
// issued strictly before it are rejected. The ttl should be the access token
// lifetime: older tokens all expire on their own within that window.
func (s *Store) SetPasswordCutoff(ctx context.Context, userID int64, at time.Time, ttl time.Duration) error {
	value := strconv.FormatInt(at.Unix(), 10)
	if err := s.redis.Set(ctx, cutoffKey(userID), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// PasswordCutoff returns the cutoff as unix seconds, with ok=false when no
// cutoff is active.
func (s *Store) PasswordCutoff(ctx context.Context, userID int64) (int64, bool, error) {
	raw, err := s.redis.Get(ctx, cutoffKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: malformed cutoff value", ErrRedisUnavailable)
	}
	return sec, true, nil
}

func blacklistKey(userID int64, jti string) string {
	return fmt.Sprintf("BLACKLIST_%d_%s", userID, jti)
}

func cutoffKey(userID int64) string {
	return fmt.Sprintf("TOKEN_IAT_AVAILABLE_%d", userID)
}
