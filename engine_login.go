package authflow

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authflow/jwt"
)

// Login authenticates an active account and mints a fresh token pair. A
// missing account and a wrong password both surface ErrInvalidCredentials so
// login never leaks which emails are registered.
func (e *Engine) Login(ctx context.Context, email, plainPassword string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	email = normalizeEmail(email)
	if email == "" || plainPassword == "" {
		return nil, ErrInvalidInput
	}

	user, err := e.userByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricLoginFailure)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user.State != StateActive {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditLoginFailure, false, user.ID, ErrInvalidState, nil)
		return nil, &stateError{from: user.State, to: StateActive}
	}

	ok, err := e.hasher.Verify(plainPassword, user.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditLoginFailure, false, user.ID, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	pair, err := e.ensureKeyPair(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	minted, err := e.tokens.IssuePair(user.ID, user.Email, pair)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditLoginSuccess, true, user.ID, nil, nil)
	return &TokenPair{
		AccessToken:  minted.AccessToken,
		RefreshToken: minted.RefreshToken,
	}, nil
}

// Logout blacklists the presented access token for its remaining lifetime.
// Other sessions of the same user stay valid.
func (e *Engine) Logout(ctx context.Context, claims *jwt.Claims) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return ErrInvalidInput
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if err := e.tokens.Revoke(ctx, claims.UID, claims.ID, remaining); err != nil {
		return err
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricTokenRevoked)
	e.emitAudit(ctx, auditLogout, true, claims.UID, nil, nil)
	return nil
}

// Refresh rotates a refresh token: the presented token is revoked before the
// replacement pair is minted, so a replayed token is dead the moment its
// successor exists.
func (e *Engine) Refresh(ctx context.Context, userID int64, refreshToken string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if refreshToken == "" {
		return nil, ErrInvalidInput
	}

	pair, err := e.keyPair(ctx, userID)
	if err != nil {
		return nil, err
	}

	claims, err := e.tokens.ValidateRefresh(ctx, userID, refreshToken, pair)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		if errors.Is(err, ErrTokenRevoked) {
			e.metricInc(MetricRefreshReplayDetected)
		}
		e.emitAudit(ctx, auditRefreshFailure, false, userID, err, nil)
		return nil, err
	}
	if claims.UID != userID {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrTokenInvalid
	}

	user, err := e.userByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.State != StateActive {
		e.metricInc(MetricRefreshFailure)
		return nil, &stateError{from: user.State, to: StateActive}
	}

	minted, err := e.tokens.Rotate(ctx, claims, user.Email, pair)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.metricInc(MetricTokenRevoked)
	e.emitAudit(ctx, auditRefreshSuccess, true, userID, nil, nil)
	return &TokenPair{
		AccessToken:  minted.AccessToken,
		RefreshToken: minted.RefreshToken,
	}, nil
}
