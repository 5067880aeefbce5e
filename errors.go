package authflow

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUserNotFound is returned when no account exists for the given email
	// or id. Credential stores must return it (possibly wrapped) from their
	// lookup methods.
	ErrUserNotFound = errors.New("user not found")
	// ErrKeyPairNotFound is returned by [UserStore.UserKeyPair] when the user
	// has no signing key pair yet.
	ErrKeyPairNotFound = errors.New("user key pair not found")
	// ErrEmailTaken is returned when registration targets an email already
	// held by an active account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidState is returned when an operation is attempted against an
	// account in the wrong lifecycle state.
	ErrInvalidState = errors.New("invalid account state")
	// ErrInvalidInput is returned for malformed or missing caller input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoActiveOTP is returned when no unexpired, unverified OTP challenge
	// exists for the user and purpose.
	ErrNoActiveOTP = errors.New("no active otp challenge")
	// ErrOTPInvalid is returned when a submitted code does not match the
	// active challenge. See [InvalidOTPError] for the remaining-attempts count.
	ErrOTPInvalid = errors.New("invalid otp")
	// ErrOTPAttemptsExceeded is terminal for the active challenge: the
	// verification rows are invalidated and a fresh OTP must be requested.
	ErrOTPAttemptsExceeded = errors.New("otp attempts exceeded")
	// ErrCooldownActive is returned when an OTP is requested before the
	// per-user cooldown window has elapsed. See [CooldownError].
	ErrCooldownActive = errors.New("otp cooldown active")
	// ErrInvalidCredentials is returned on a bad email/password combination.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenInvalid is returned when a token fails signature or claim
	// validation for any reason other than expiry.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is surfaced distinctly from ErrTokenInvalid so the HTTP
	// layer can route an expired access token to the refresh flow instead of
	// forcing re-login.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned for blacklisted tokens and for access
	// tokens issued before the user's password-change cutoff.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrStoreUnavailable wraps credential-store failures that are not one of
	// the not-found sentinels. Callers may retry.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrCacheUnavailable wraps revocation-cache failures. Token validation
	// fails closed on it: an unreachable cache never reads as "not revoked".
	ErrCacheUnavailable = errors.New("revocation cache unavailable")
	// ErrMailerUnavailable wraps outbound email dispatch failures.
	ErrMailerUnavailable = errors.New("mailer unavailable")
	// ErrEngineNotReady is returned when the engine is used before Build
	// completed or after a nil receiver.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Kind classifies engine errors for transport-layer status mapping. The
// engine itself never speaks HTTP; the collaborator that does maps each kind
// to a status code.
type Kind int

const (
	// KindUnknown covers errors outside the engine's taxonomy.
	KindUnknown Kind = iota
	// KindNotFound: user or key pair missing.
	KindNotFound
	// KindConflict: duplicate active account.
	KindConflict
	// KindBadRequest: precondition or state mismatch, malformed input.
	KindBadRequest
	// KindAuthFailure: bad credentials, invalid/expired/revoked token,
	// invalid OTP.
	KindAuthFailure
	// KindTooManyAttempts: the OTP brute-force ceiling was reached.
	KindTooManyAttempts
	// KindUnavailable: a backing store or the mailer is unreachable. Retryable.
	KindUnavailable
)

// KindOf maps an engine error to its [Kind]. Wrapped errors are unwrapped via
// errors.Is, so callers can classify without enumerating sentinels.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrKeyPairNotFound):
		return KindNotFound
	case errors.Is(err, ErrEmailTaken):
		return KindConflict
	case errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrNoActiveOTP),
		errors.Is(err, ErrCooldownActive):
		return KindBadRequest
	case errors.Is(err, ErrOTPAttemptsExceeded):
		return KindTooManyAttempts
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrOTPInvalid),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenRevoked):
		return KindAuthFailure
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrCacheUnavailable),
		errors.Is(err, ErrMailerUnavailable),
		errors.Is(err, ErrEngineNotReady):
		return KindUnavailable
	default:
		return KindUnknown
	}
}

// CooldownError reports an active OTP cooldown along with the time remaining,
// so the caller can surface a "wait N seconds" hint. It matches
// [ErrCooldownActive] under errors.Is.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("otp cooldown active: retry in %d seconds", int(e.Remaining.Seconds()+0.5))
}

// Is reports whether target is [ErrCooldownActive].
func (e *CooldownError) Is(target error) bool {
	return target == ErrCooldownActive
}

// InvalidOTPError reports a mismatched code along with the number of attempts
// left before the challenge is invalidated. It matches [ErrOTPInvalid] under
// errors.Is.
type InvalidOTPError struct {
	Remaining int
}

func (e *InvalidOTPError) Error() string {
	return fmt.Sprintf("invalid otp: %d attempts remaining", e.Remaining)
}

// Is reports whether target is [ErrOTPInvalid].
func (e *InvalidOTPError) Is(target error) bool {
	return target == ErrOTPInvalid
}

// stateError reports an operation attempted against the wrong lifecycle
// state. It matches [ErrInvalidState] under errors.Is.
type stateError struct {
	from UserState
	to   UserState
}

func (e *stateError) Error() string {
	return fmt.Sprintf("invalid account state: cannot move %s to %s", e.from, e.to)
}

func (e *stateError) Is(target error) bool {
	return target == ErrInvalidState
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrKeyPairNotFound)
}

// storeErr normalizes credential-store failures: the not-found sentinels pass
// through untouched, anything else becomes a retryable ErrStoreUnavailable.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrKeyPairNotFound),
		errors.Is(err, ErrNoActiveOTP):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}
