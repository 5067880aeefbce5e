package authflow

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/authflow/internal/audit"
)

// UserState is the closed lifecycle enumeration of an account. States only
// advance Inactive → VerifiedPendingPassword → Active; an active account may
// be blocked back to Inactive and later unblocked. Transition validity is
// enforced centrally by the engine, never at call sites.
type UserState uint8

const (
	// StateInactive is the state of a freshly registered (or blocked) account.
	StateInactive UserState = iota
	// StateVerifiedPendingPassword means the email was verified but no
	// password has been set yet.
	StateVerifiedPendingPassword
	// StateActive is a fully onboarded account that may log in.
	StateActive
)

func (s UserState) String() string {
	switch s {
	case StateInactive:
		return "INACTIVE"
	case StateVerifiedPendingPassword:
		return "VERIFIED_PENDING_PASSWORD"
	case StateActive:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// CanTransition reports whether moving from s to the given state is a valid
// lifecycle transition.
func (s UserState) CanTransition(to UserState) bool {
	switch s {
	case StateInactive:
		return to == StateVerifiedPendingPassword || to == StateActive
	case StateVerifiedPendingPassword:
		return to == StateActive
	case StateActive:
		return to == StateInactive
	default:
		return false
	}
}

// OTPType names the purpose a one-time code is bound to.
type OTPType string

const (
	// OTPEmail gates email-address verification during onboarding.
	OTPEmail OTPType = "EMAIL_OTP"
	// OTPReset gates the forgot-password flow on active accounts.
	OTPReset OTPType = "RESET"
)

// User is the account record consumed from the credential store.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	State        UserState
}

// Verification is one issued OTP challenge. Multiple rows may exist per
// user/type over time; only the most recent unexpired, unverified row is
// consulted. Rows are superseded on resend, never physically deleted by the
// engine.
type Verification struct {
	ID        int64
	UserID    int64
	Type      OTPType
	OTPHash   string
	Verified  bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// KeyPair is a user's pair of independent opaque signing secrets. The public
// half signs access tokens, the private half signs refresh tokens, so leaking
// one class of token never yields the other's signature. Replaced only as a
// whole, never partially.
type KeyPair struct {
	PublicKey  string
	PrivateKey string
}

// TokenPair is the result of login and refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// UserStore is the credential-store contract the engine consumes. Lookup
// methods must return [ErrUserNotFound], [ErrKeyPairNotFound], or
// [ErrNoActiveOTP] (possibly wrapped) when rows are missing; every other
// error is treated as retryable store unavailability.
//
// RemainingCooldown must be computed against the store's own clock, not the
// caller's, so clock skew cannot bypass the OTP cooldown window.
type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByID(ctx context.Context, userID int64) (*User, error)
	CreateInactiveUser(ctx context.Context, email, passwordHash string) (*User, error)
	UpdateUserState(ctx context.Context, userID int64, state UserState) error
	UpdatePasswordHash(ctx context.Context, userID int64, passwordHash string) error

	CreateVerification(ctx context.Context, v *Verification) error
	ActiveVerification(ctx context.Context, userID int64, otpType OTPType) (*Verification, error)
	MarkVerificationVerified(ctx context.Context, verificationID int64) error
	InvalidateActiveVerifications(ctx context.Context, userID int64, otpType OTPType) error
	RemainingCooldown(ctx context.Context, userID int64, otpType OTPType, window time.Duration) (time.Duration, error)

	UserKeyPair(ctx context.Context, userID int64) (*KeyPair, error)
	UpsertUserKeyPair(ctx context.Context, userID int64, pair KeyPair) error
	CreateProfile(ctx context.Context, userID int64, username string) error
	AssignDefaultRole(ctx context.Context, userID int64, role string) error
}

// Mailer dispatches OTP codes. Delivery is an external collaborator; the
// engine only hands over the plaintext code transiently and never stores it.
type Mailer interface {
	SendRegistrationOTP(ctx context.Context, email, code string) error
	SendPasswordResetOTP(ctx context.Context, email, code string) error
}

// PasswordHasher is the opaque one-way hash capability used for account
// passwords. The engine ships an argon2id implementation in the password
// subpackage, used by default when none is injected.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) (bool, error)
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON-encoded event per line to an [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
