// Package internal holds shared randomness helpers used by the root engine.
package internal

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
)

const (
	otpSpan   = 900000
	otpFloor  = 100000
	keySecret = 64
)

// NewOTP returns a uniformly distributed six-digit code in [100000, 999999].
// The leading digit is never zero so the code survives numeric round-trips.
func NewOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpSpan))
	if err != nil {
		return "", err
	}
	return (&big.Int{}).Add(n, big.NewInt(otpFloor)).String(), nil
}

// NewKeySecret returns a fresh 64-byte random secret, hex encoded. Used for
// both halves of a user signing key pair.
func NewKeySecret() (string, error) {
	buf := make([]byte, keySecret)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
