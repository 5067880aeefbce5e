package authflow

import (
	"context"
	"strings"
	"time"

	"github.com/MrEthical07/authflow/internal"
	internalaudit "github.com/MrEthical07/authflow/internal/audit"
	"github.com/MrEthical07/authflow/internal/limiters"
	"github.com/MrEthical07/authflow/jwt"
)

// Engine is the authentication facade. Construct it with the Builder; the
// zero value is not usable. All methods are safe for concurrent use.
type Engine struct {
	config   Config
	users    UserStore
	mailer   Mailer
	hasher   PasswordHasher
	otp      *otpManager
	attempts *limiters.OTPAttempts
	tokens   *tokenEngine
	audit    *internalaudit.Dispatcher
	metrics  *Metrics
}

// Close flushes and stops the audit dispatcher. The injected Redis client and
// credential store are not closed; their lifecycle belongs to the caller.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped returns the number of audit events dropped under buffer
// pressure since construction.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// ValidateAccess checks an access token for the caller-asserted user id. The
// id selects the key pair; a token minted for another user fails signature
// validation against it. Returns the verified claims.
func (e *Engine) ValidateAccess(ctx context.Context, userID int64, token string) (*jwt.Claims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()

	pair, err := e.keyPair(ctx, userID)
	if err != nil {
		return nil, err
	}

	claims, err := e.tokens.ValidateAccess(ctx, userID, token, pair)
	if err != nil {
		return nil, err
	}
	if claims.UID != userID {
		return nil, ErrTokenInvalid
	}

	e.metrics.Observe(MetricValidateLatency, time.Since(start))
	return claims, nil
}

// ValidateRefresh checks a refresh token for the caller-asserted user id
// against the key pair's private half.
func (e *Engine) ValidateRefresh(ctx context.Context, userID int64, token string) (*jwt.Claims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	pair, err := e.keyPair(ctx, userID)
	if err != nil {
		return nil, err
	}

	claims, err := e.tokens.ValidateRefresh(ctx, userID, token, pair)
	if err != nil {
		return nil, err
	}
	if claims.UID != userID {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

func (e *Engine) userByEmail(ctx context.Context, email string) (*User, error) {
	user, err := e.users.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, storeErr(err)
	}
	return user, nil
}

func (e *Engine) userByID(ctx context.Context, userID int64) (*User, error) {
	user, err := e.users.FindUserByID(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	return user, nil
}

// advanceState is the single place lifecycle transitions happen. Invalid
// transitions never reach the store.
func (e *Engine) advanceState(ctx context.Context, user *User, to UserState) error {
	if !user.State.CanTransition(to) {
		return &stateError{from: user.State, to: to}
	}
	if err := e.users.UpdateUserState(ctx, user.ID, to); err != nil {
		return storeErr(err)
	}
	user.State = to
	return nil
}

func (e *Engine) keyPair(ctx context.Context, userID int64) (*KeyPair, error) {
	pair, err := e.users.UserKeyPair(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	return pair, nil
}

// ensureKeyPair creates the user's signing key pair on first need. An
// existing pair is never replaced here.
func (e *Engine) ensureKeyPair(ctx context.Context, userID int64) (*KeyPair, error) {
	pair, err := e.keyPair(ctx, userID)
	if err == nil {
		return pair, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	fresh, err := newKeyPair()
	if err != nil {
		return nil, err
	}
	if err := e.users.UpsertUserKeyPair(ctx, userID, *fresh); err != nil {
		return nil, storeErr(err)
	}
	return fresh, nil
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func newKeyPair() (*KeyPair, error) {
	public, err := internal.NewKeySecret()
	if err != nil {
		return nil, err
	}
	private, err := internal.NewKeySecret()
	if err != nil {
		return nil, err
	}
	return &KeyPair{PublicKey: public, PrivateKey: private}, nil
}
