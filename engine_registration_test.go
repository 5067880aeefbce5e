package authflow

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRegisterEmailCreatesInactiveUserAndSendsCode(t *testing.T) {
	env := newTestEngine(t, testConfig())
	ctx := context.Background()

	cooldown, err := env.engine.RegisterEmail(ctx, "Alice@Example.com")
	if err != nil {
		t.Fatalf("RegisterEmail failed: %v", err)
	}
	if cooldown != 60 {
		t.Fatalf("expected cooldown hint 60, got %d", cooldown)
	}

	user, err := env.store.FindUserByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("expected normalized user, got %v", err)
	}
	if user.State != StateInactive {
		t.Fatalf("expected INACTIVE, got %s", user.State)
	}
	if user.PasswordHash != placeholderPasswordHash {
		t.Fatalf("expected placeholder hash, got %q", user.PasswordHash)
	}

	code := env.mailer.lastCode(t)
	if len(code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", code)
	}
}

func TestRegisterEmailRejectsActiveAccount(t *testing.T) {
	env := newTestEngine(t, testConfig())
	env.onboard(t, "alice@example.com", "password-123")

	_, err := env.engine.RegisterEmail(context.Background(), "alice@example.com")
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRegisterEmailResumesAbandonedRegistration(t *testing.T) {
	env := newTestEngine(t, testConfig())
	ctx := context.Background()

	if _, err := env.engine.RegisterEmail(ctx, "alice@example.com"); err != nil {
		t.Fatalf("first RegisterEmail failed: %v", err)
	}
	first, _ := env.store.FindUserByEmail(ctx, "alice@example.com")

	env.store.ageIssue(first.ID, OTPEmail, 2*time.Minute)
	if _, err := env.engine.RegisterEmail(ctx, "alice@example.com"); err != nil {
		t.Fatalf("second RegisterEmail failed: %v", err)
	}

	second, _ := env.store.FindUserByEmail(ctx, "alice@example.com")
	if second.ID != first.ID {
		t.Fatalf("expected resumed user %d, got duplicate %d", first.ID, second.ID)
	}
	if len(env.mailer.sent) != 2 {
		t.Fatalf("expected 2 codes sent, got %d", len(env.mailer.sent))
	}
}

func TestRegisterEmailCooldownBlocksImmediateReissue(t *testing.T) {
	env := newTestEngine(t, testConfig())
	ctx := context.Background()

	if _, err := env.engine.RegisterEmail(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RegisterEmail failed: %v", err)
	}

	_, err := env.engine.RegisterEmail(ctx, "alice@example.com")
	if !errors.Is(err, ErrCooldownActive) {
		t.Fatalf("expected ErrCooldownActive, got %v", err)
	}

	var cooldownErr *CooldownError
	if !errors.As(err, &cooldownErr) {
		t.Fatalf("expected *CooldownError, got %T", err)
	}
	if cooldownErr.Remaining <= 0 || cooldownErr.Remaining > time.Minute {
		t.Fatalf("unexpected remaining cooldown %v", cooldownErr.Remaining)
	}
}

func TestVerifyEmailAdvancesStateAndConsumesCode(t *testing.T) {
	env := newTestEngine(t, testConfig())
	ctx := context.Background()

	if _, err := env.engine.RegisterEmail(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RegisterEmail failed: %v", err)
	}
	code := env.mailer.lastCode(t)

	if err := env.engine.VerifyEmail(ctx, "alice@example.com", code); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	user, _ := env.store.FindUserByEmail(ctx, "alice@example.com")
	if user.State != StateVerifiedPendingPassword {
		t.Fatalf("expected VERIFIED_PENDING_PASSWORD, got %s", user.State)
	}

	// single use: the consumed code must not verify again
	err := env.engine.VerifyEmail(ctx, "alice@example.com", code)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState after advancing, got %v", err)
	}
}

func TestVerifyEmailWrongCodeReportsRemainingAttempts(t *testing.T) {
	env := newTestEngine(t, testConfig())
	ctx := context.Background()

	if _, err := env.engine.RegisterEmail(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RegisterEmail failed: %v", err)
	}

	err := env.engine.VerifyEmail(ctx, "alice@example.com", "000000")
	if !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("expected ErrOTPInvalid, got %v", err)
	}

	var invalid *InvalidOTPError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected *InvalidOTPError, got %T", err)
	}
	if invalid.Remaining != 2 {
		t.Fatalf("expected 2 attempts remaining, got %d", invalid.Remaining)
	}
}

func TestVerifyEmailAttemptCeilingIsTerminal(t *testing.T) {
	env := newTestEngine(t, testConfig())
	ctx := context.Background()

	if _, err := env.engine.RegisterEmail(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RegisterEmail failed: %v", err)
	}
	code := env.mailer.lastCode(t)

	for i := 0; i < 2; i++ {
		if err := env.engine.VerifyEmail(ctx, "alice@example.com", "000000"); !errors.Is(err, ErrOTPInvalid) {
			t.Fatalf("attempt %d: expected ErrOTPInvalid, got %v", i+1, err)
		}
	}

	// third wrong guess hits the ceiling
	if err := env.engine.VerifyEmail(ctx, "alice@example.com", "000000"); !errors.Is(err, ErrOTPAttemptsExceeded) {
		t.Fatalf("expected ErrOTPAttemptsExceeded at ceiling, got %v", err)
	}

	// the correct code is dead too: the counter outlives the challenge
	if err := env.engine.VerifyEmail(ctx, "alice@example.com", code); !errors.Is(err, ErrOTPAttemptsExceeded) {
		t.Fatalf("expected ErrOTPAttemptsExceeded after lockout, got %v", err)
	}
}

func TestVerifyEmailExpiredCode(t *testing.T) {
	env := newTestEngine(t, testConfig())
	ctx := context.Background()

	if _, err := env.engine.RegisterEmail(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RegisterEmail failed: %v", err)
	}
	code := env.mailer.lastCode(t)

	user, _ := env.store.FindUserByEmail(ctx, "alice@example.com")
	env.store.expireRows(user.ID, OTPEmail)

	if err := env.engine.VerifyEmail(ctx, "alice@example.com", code); !errors.Is(err, ErrNoActiveOTP) {
		t.Fatalf("expected ErrNoActiveOTP, got %v", err)
	}
}

func TestResendOTPSupersedesOldCode(t *testing.T) {
	env := newTestEngine(t, testConfig())
	ctx := context.Background()

	if _, err := env.engine.RegisterEmail(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RegisterEmail failed: %v", err)
	}
	oldCode := env.mailer.lastCode(t)

	user, _ := env.store.FindUserByEmail(ctx, "alice@example.com")
	env.store.ageIssue(user.ID, OTPEmail, 2*time.Minute)

	if _, err := env.engine.ResendOTP(ctx, "alice@example.com"); err != nil {
		t.Fatalf("ResendOTP failed: %v", err)
	}
	newCode := env.mailer.lastCode(t)

	if err := env.engine.VerifyEmail(ctx, "alice@example.com", oldCode); err == nil {
		t.Fatal("expected superseded code to fail")
	}

	// old-code guess above may have burned an attempt; the fresh issue
	// cleared the counter, so the new code still verifies
	if err := env.engine.VerifyEmail(ctx, "alice@example.com", newCode); err != nil {
		t.Fatalf("fresh code failed: %v", err)
	}
}

func TestResendOTPRejectsActiveAccount(t *testing.T) {
	env := newTestEngine(t, testConfig())
	env.onboard(t, "alice@example.com", "password-123")

	_, err := env.engine.ResendOTP(context.Background(), "alice@example.com")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestSetupPasswordActivatesAccount(t *testing.T) {
	env := newTestEngine(t, testConfig())
	ctx := context.Background()

	if _, err := env.engine.RegisterEmail(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RegisterEmail failed: %v", err)
	}
	if err := env.engine.VerifyEmail(ctx, "alice@example.com", env.mailer.lastCode(t)); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	if err := env.engine.SetupPassword(ctx, "alice@example.com", "password-123", "alice"); err != nil {
		t.Fatalf("SetupPassword failed: %v", err)
	}

	user, _ := env.store.FindUserByEmail(ctx, "alice@example.com")
	if user.State != StateActive {
		t.Fatalf("expected ACTIVE, got %s", user.State)
	}
	if env.store.profiles[user.ID] != "alice" {
		t.Fatalf("expected profile username alice, got %q", env.store.profiles[user.ID])
	}
	if env.store.roles[user.ID] != "READER" {
		t.Fatalf("expected default role READER, got %q", env.store.roles[user.ID])
	}
	if _, err := env.store.UserKeyPair(ctx, user.ID); err != nil {
		t.Fatalf("expected key pair after activation, got %v", err)
	}
}

func TestSetupPasswordRequiresVerifiedState(t *testing.T) {
	env := newTestEngine(t, testConfig())
	ctx := context.Background()

	if _, err := env.engine.RegisterEmail(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RegisterEmail failed: %v", err)
	}

	err := env.engine.SetupPassword(ctx, "alice@example.com", "password-123", "alice")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestRegisterEmailRejectsEmptyInput(t *testing.T) {
	env := newTestEngine(t, testConfig())

	if _, err := env.engine.RegisterEmail(context.Background(), "   "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
