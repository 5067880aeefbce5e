package authflow

import (
	"errors"
	"time"
)

// Config is the full engine configuration tree. Zero value is not usable;
// start from the defaults applied by the Builder and override fields as
// needed. Validate runs at Build time and rejects inconsistent trees.
type Config struct {
	JWT     JWTConfig
	OTP     OTPConfig
	Account AccountConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

// JWTConfig controls token lifetimes and registered claims.
type JWTConfig struct {
	// AccessTTL is the access token lifetime.
	AccessTTL time.Duration
	// RefreshTTL is the refresh token lifetime. Must exceed AccessTTL.
	RefreshTTL time.Duration
	// Issuer is stamped into and required from every token. Optional.
	Issuer string
	// Leeway tolerates clock skew during validation. At most two minutes.
	Leeway time.Duration
}

// OTPConfig controls one-time-code issuance and verification.
type OTPConfig struct {
	// TTL is how long an issued code stays verifiable.
	TTL time.Duration
	// Cooldown is the minimum gap between issuances per user and purpose,
	// measured by the credential store's clock.
	Cooldown time.Duration
	// MaxAttempts is the wrong-guess ceiling per challenge. Reaching it
	// invalidates the challenge.
	MaxAttempts int
}

// AccountConfig controls onboarding side effects.
type AccountConfig struct {
	// DefaultRole is assigned to every account on activation.
	DefaultRole string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled bool
	// BufferSize is the dispatcher channel capacity.
	BufferSize int
	// DropIfFull drops events instead of blocking when the buffer is full.
	// The drop count is observable via Engine.AuditDropped.
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics system.
type MetricsConfig struct {
	Enabled bool
	// EnableLatencyHistograms additionally records validation latency.
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Leeway:     30 * time.Second,
		},
		OTP: OTPConfig{
			TTL:         5 * time.Minute,
			Cooldown:    time.Minute,
			MaxAttempts: 10,
		},
		Account: AccountConfig{
			DefaultRole: "READER",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks the configuration tree for internal consistency.
func (c Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("config: jwt access ttl must be positive")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("config: jwt refresh ttl must be positive")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("config: jwt access ttl must be shorter than refresh ttl")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("config: jwt leeway must be between 0 and 2m")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("config: otp ttl must be positive")
	}
	if c.OTP.Cooldown <= 0 || c.OTP.Cooldown > c.OTP.TTL {
		return errors.New("config: otp cooldown must be positive and not exceed the otp ttl")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("config: otp max attempts must be positive")
	}
	if c.Account.DefaultRole == "" {
		return errors.New("config: account default role must be set")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("config: audit buffer size must be positive when audit is enabled")
	}
	return nil
}
