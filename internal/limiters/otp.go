// Package limiters implements Redis-backed attempt counters for OTP
// verification.
package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrAttemptsExceeded is returned once the wrong-guess ceiling is reached.
	ErrAttemptsExceeded = errors.New("otp attempts exceeded")
	// ErrLimiterUnavailable wraps Redis failures. Checks fail closed on it.
	ErrLimiterUnavailable = errors.New("otp limiter unavailable")
)

// OTPAttempts counts wrong OTP guesses per user and purpose. Counters live in
// Redis so the ceiling holds across engine instances. The counter's TTL is
// bound to the challenge lifetime on first increment, so a stale counter can
// never outlive the code it guards.
type OTPAttempts struct {
	redis       redis.UniversalClient
	maxAttempts int
}

func NewOTPAttempts(redisClient redis.UniversalClient, maxAttempts int) *OTPAttempts {
	return &OTPAttempts{
		redis:       redisClient,
		maxAttempts: maxAttempts,
	}
}

// Check returns ErrAttemptsExceeded when the counter has already reached the
// ceiling. A missing counter reads as zero.
func (l *OTPAttempts) Check(ctx context.Context, userID int64, otpType string) error {
	n, err := l.redis.Get(ctx, attemptsKey(userID, otpType)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}

	if n >= int64(l.maxAttempts) {
		return ErrAttemptsExceeded
	}
	return nil
}

// Increment atomically bumps the counter and returns the new count. The ttl
// is applied only on the first increment.
func (l *OTPAttempts) Increment(ctx context.Context, userID int64, otpType string, ttl time.Duration) (int64, error) {
	key := attemptsKey(userID, otpType)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}

	if count == 1 && ttl > 0 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return count, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
		}
	}

	return count, nil
}

// Clear removes the counter. Called on successful verification and whenever a
// fresh code is issued.
func (l *OTPAttempts) Clear(ctx context.Context, userID int64, otpType string) error {
	if err := l.redis.Del(ctx, attemptsKey(userID, otpType)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	return nil
}

// Max returns the configured ceiling.
func (l *OTPAttempts) Max() int {
	return l.maxAttempts
}

func attemptsKey(userID int64, otpType string) string {
	return fmt.Sprintf("otp_attempts:%d:%s", userID, otpType)
}
