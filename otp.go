package authflow

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/MrEthical07/authflow/internal"
	"github.com/MrEthical07/authflow/internal/limiters"
)

// otpManager generates and checks one-time codes. Codes are bcrypt hashed
// before they reach the credential store; the plaintext exists only in memory
// between generation and mail dispatch.
type otpManager struct {
	hashCost int
}

func newOTPManager() *otpManager {
	return &otpManager{hashCost: bcrypt.DefaultCost}
}

// Generate returns the plaintext six-digit code and its bcrypt hash.
func (o *otpManager) Generate() (code, hash string, err error) {
	code, err = internal.NewOTP()
	if err != nil {
		return "", "", fmt.Errorf("otp generation: %w", err)
	}

	raw, err := bcrypt.GenerateFromPassword([]byte(code), o.hashCost)
	if err != nil {
		return "", "", fmt.Errorf("otp hashing: %w", err)
	}

	return code, string(raw), nil
}

// Matches reports whether the submitted code matches the stored hash.
func (o *otpManager) Matches(code, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}

func mapLimiterErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, limiters.ErrAttemptsExceeded):
		return ErrOTPAttemptsExceeded
	default:
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
}
