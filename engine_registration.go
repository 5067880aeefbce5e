package authflow

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// placeholderPasswordHash seeds freshly registered accounts. It can never
// match any password under a PHC-style hasher, so an account that skipped
// password setup cannot log in.
const placeholderPasswordHash = "!"

// RegisterEmail starts onboarding for an email address. If an active account
// already holds it the call fails with ErrEmailTaken; an abandoned earlier
// registration is resumed instead of duplicated. On success a verification
// code is dispatched and the cooldown hint in seconds is returned.
func (e *Engine) RegisterEmail(ctx context.Context, email string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	email = normalizeEmail(email)
	if email == "" {
		return 0, ErrInvalidInput
	}

	user, err := e.userByEmail(ctx, email)
	switch {
	case err == nil:
		if user.State == StateActive {
			e.emitAudit(ctx, auditRegisterRequest, false, user.ID, ErrEmailTaken, nil)
			return 0, ErrEmailTaken
		}
	case errors.Is(err, ErrUserNotFound):
		user, err = e.users.CreateInactiveUser(ctx, email, placeholderPasswordHash)
		if err != nil {
			return 0, storeErr(err)
		}
	default:
		return 0, err
	}

	cooldown, err := e.issueOTP(ctx, user, OTPEmail)
	if err != nil {
		e.emitAudit(ctx, auditRegisterRequest, false, user.ID, err, nil)
		return 0, err
	}

	e.metricInc(MetricRegisterRequest)
	e.emitAudit(ctx, auditRegisterRequest, true, user.ID, nil, nil)
	return cooldown, nil
}

// VerifyEmail checks the submitted code against the active registration
// challenge and advances the account to the password-setup stage.
func (e *Engine) VerifyEmail(ctx context.Context, email, otp string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	email = normalizeEmail(email)
	if email == "" || otp == "" {
		return ErrInvalidInput
	}

	user, err := e.userByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.State != StateInactive {
		return &stateError{from: user.State, to: StateVerifiedPendingPassword}
	}

	verification, err := e.checkOTP(ctx, user, OTPEmail, otp)
	if err != nil {
		if errors.Is(err, ErrOTPInvalid) {
			e.metricInc(MetricOTPInvalid)
		}
		e.emitAudit(ctx, auditRegisterVerify, false, user.ID, err, nil)
		return err
	}

	if err := e.users.MarkVerificationVerified(ctx, verification.ID); err != nil {
		return storeErr(err)
	}
	if err := e.attempts.Clear(ctx, user.ID, string(OTPEmail)); err != nil {
		logf("attempt counter clear failed for user %d: %v", user.ID, err)
	}
	if err := e.advanceState(ctx, user, StateVerifiedPendingPassword); err != nil {
		return err
	}

	e.metricInc(MetricOTPVerified)
	e.emitAudit(ctx, auditRegisterVerify, true, user.ID, nil, nil)
	return nil
}

// SetupPassword completes onboarding: it stores the first real password,
// activates the account, creates the profile, assigns the default role, and
// provisions the signing key pair.
func (e *Engine) SetupPassword(ctx context.Context, email, plainPassword, username string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	email = normalizeEmail(email)
	if email == "" || plainPassword == "" {
		return ErrInvalidInput
	}

	user, err := e.userByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.State != StateVerifiedPendingPassword {
		return &stateError{from: user.State, to: StateActive}
	}

	hash, err := e.hasher.Hash(plainPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := e.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return storeErr(err)
	}
	if err := e.advanceState(ctx, user, StateActive); err != nil {
		return err
	}
	if err := e.users.CreateProfile(ctx, user.ID, username); err != nil {
		return storeErr(err)
	}
	if err := e.users.AssignDefaultRole(ctx, user.ID, e.config.Account.DefaultRole); err != nil {
		return storeErr(err)
	}
	if _, err := e.ensureKeyPair(ctx, user.ID); err != nil {
		return err
	}

	e.metricInc(MetricPasswordSetup)
	e.emitAudit(ctx, auditPasswordSetup, true, user.ID, nil, nil)
	return nil
}

// ResendOTP reissues the registration code for an account still in
// onboarding, subject to the cooldown.
func (e *Engine) ResendOTP(ctx context.Context, email string) (int, error) {
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
	if user.State == StateActive {
		return 0, &stateError{from: user.State, to: StateVerifiedPendingPassword}
	}

	cooldown, err := e.issueOTP(ctx, user, OTPEmail)
	if err != nil {
		e.emitAudit(ctx, auditOTPResend, false, user.ID, err, nil)
		return 0, err
	}

	e.emitAudit(ctx, auditOTPResend, true, user.ID, nil, nil)
	return cooldown, nil
}

// issueOTP is the shared issuance sequence: cooldown gate, supersede old
// challenges, persist the new hash, dispatch mail, reset the attempt counter.
func (e *Engine) issueOTP(ctx context.Context, user *User, otpType OTPType) (int, error) {
	remaining, err := e.users.RemainingCooldown(ctx, user.ID, otpType, e.config.OTP.Cooldown)
	if err != nil {
		return 0, storeErr(err)
	}
	if remaining > 0 {
		return 0, &CooldownError{Remaining: remaining}
	}

	code, hash, err := e.otp.Generate()
	if err != nil {
		return 0, err
	}

	if err := e.users.InvalidateActiveVerifications(ctx, user.ID, otpType); err != nil {
		return 0, storeErr(err)
	}

	now := time.Now()
	verification := &Verification{
		UserID:    user.ID,
		Type:      otpType,
		OTPHash:   hash,
		ExpiresAt: now.Add(e.config.OTP.TTL),
		CreatedAt: now,
	}
	if err := e.users.CreateVerification(ctx, verification); err != nil {
		return 0, storeErr(err)
	}

	if err := e.sendOTP(ctx, user.Email, code, otpType); err != nil {
		return 0, err
	}

	if err := e.attempts.Clear(ctx, user.ID, string(otpType)); err != nil {
		logf("attempt counter clear failed for user %d: %v", user.ID, err)
	}

	e.metricInc(MetricOTPIssued)
	return int(e.config.OTP.Cooldown.Seconds()), nil
}

func (e *Engine) sendOTP(ctx context.Context, email, code string, otpType OTPType) error {
	var err error
	switch otpType {
	case OTPReset:
		err = e.mailer.SendPasswordResetOTP(ctx, email, code)
	default:
		err = e.mailer.SendRegistrationOTP(ctx, email, code)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMailerUnavailable, err)
	}
	return nil
}

// checkOTP runs the verification protocol: attempt ceiling first, then the
// active challenge, then the hash compare. The ceiling check precedes the
// challenge lookup so a locked-out challenge keeps reporting the lockout, not
// a misleading not-found, while the counter is still alive.
func (e *Engine) checkOTP(ctx context.Context, user *User, otpType OTPType, code string) (*Verification, error) {
	if err := e.attempts.Check(ctx, user.ID, string(otpType)); err != nil {
		return nil, mapLimiterErr(err)
	}

	verification, err := e.users.ActiveVerification(ctx, user.ID, otpType)
	if err != nil {
		return nil, storeErr(err)
	}

	if e.otp.Matches(code, verification.OTPHash) {
		return verification, nil
	}

	count, err := e.attempts.Increment(ctx, user.ID, string(otpType), time.Until(verification.ExpiresAt))
	if err != nil {
		return nil, mapLimiterErr(err)
	}

	if count >= int64(e.config.OTP.MaxAttempts) {
		if err := e.users.InvalidateActiveVerifications(ctx, user.ID, otpType); err != nil {
			return nil, storeErr(err)
		}
		e.metricInc(MetricOTPAttemptsExceeded)
		return nil, ErrOTPAttemptsExceeded
	}

	return nil, &InvalidOTPError{Remaining: e.config.OTP.MaxAttempts - int(count)}
}
