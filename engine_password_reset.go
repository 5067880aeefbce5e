package authflow

import (
	"context"
	"fmt"
	"time"
)

// ForgotPassword starts a password reset for an active account by issuing a
// RESET code, subject to the same cooldown as registration codes.
func (e *Engine) ForgotPassword(ctx context.Context, email string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	email = normalizeEmail(email)
	if email == "" {
		return 0, ErrInvalidInput
	}

	user, err := e.userByEmail(ctx, email)
	if err != nil {
		return 0, err
	}
	if user.State != StateActive {
		return 0, &stateError{from: user.State, to: StateActive}
	}

	cooldown, err := e.issueOTP(ctx, user, OTPReset)
	if err != nil {
		e.emitAudit(ctx, auditPasswordResetRequest, false, user.ID, err, nil)
		return 0, err
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditPasswordResetRequest, true, user.ID, nil, nil)
	return cooldown, nil
}

// ResetPassword verifies the RESET code, stores the new password, and writes
// the password-change cutoff so access tokens minted before this moment stop
// validating. Refresh tokens are untouched; their next rotation mints tokens
// after the cutoff.
func (e *Engine) ResetPassword(ctx context.Context, email, otp, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	email = normalizeEmail(email)
	if email == "" || otp == "" || newPassword == "" {
		return ErrInvalidInput
	}

	user, err := e.userByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.State != StateActive {
		return &stateError{from: user.State, to: StateActive}
	}

	verification, err := e.checkOTP(ctx, user, OTPReset, otp)
	if err != nil {
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, auditPasswordResetFailure, false, user.ID, err, nil)
		return err
	}

	if err := e.users.MarkVerificationVerified(ctx, verification.ID); err != nil {
		return storeErr(err)
	}
	if err := e.attempts.Clear(ctx, user.ID, string(OTPReset)); err != nil {
		logf("attempt counter clear failed for user %d: %v", user.ID, err)
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := e.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return storeErr(err)
	}

	if err := e.tokens.revocation.SetPasswordCutoff(ctx, user.ID, time.Now(), e.config.JWT.AccessTTL); err != nil {
		return mapCacheErr(err)
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditPasswordResetSuccess, true, user.ID, nil, nil)
	return nil
}
