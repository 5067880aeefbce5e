package authflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authflow/internal/revocation"
	"github.com/MrEthical07/authflow/jwt"
)

// tokenEngine composes minting with the revocation cache. Validation fails
// closed: an unreachable cache surfaces ErrCacheUnavailable, never a valid
// token.
type tokenEngine struct {
	jwt        *jwt.Manager
	revocation *revocation.Store
}

// IssuePair mints a fresh token pair for the user against their key pair.
func (t *tokenEngine) IssuePair(uid int64, email string, pair *KeyPair) (*jwt.Pair, error) {
	minted, err := t.jwt.CreatePair(uid, email, []byte(pair.PublicKey), []byte(pair.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return minted, nil
}

// ValidateAccess verifies signature and expiry against the pair's public
// half, then checks the blacklist and the password-change cutoff.
func (t *tokenEngine) ValidateAccess(ctx context.Context, uid int64, token string, pair *KeyPair) (*jwt.Claims, error) {
	claims, err := t.jwt.Parse(token, []byte(pair.PublicKey))
	if err != nil {
		return nil, mapJWTError(err)
	}

	if err := t.checkBlacklist(ctx, uid, claims.ID); err != nil {
		return nil, err
	}

	cutoff, ok, err := t.revocation.PasswordCutoff(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	if ok && claims.IssuedAt != nil && claims.IssuedAt.Unix() < cutoff {
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

// ValidateRefresh verifies against the pair's private half and the blacklist.
// The password cutoff does not apply to refresh tokens; a reset rotates the
// key pair's signing duties through explicit revocation instead.
func (t *tokenEngine) ValidateRefresh(ctx context.Context, uid int64, token string, pair *KeyPair) (*jwt.Claims, error) {
	claims, err := t.jwt.Parse(token, []byte(pair.PrivateKey))
	if err != nil {
		return nil, mapJWTError(err)
	}

	if err := t.checkBlacklist(ctx, uid, claims.ID); err != nil {
		return nil, err
	}

	return claims, nil
}

// Revoke blacklists a token id for its remaining lifetime. Already-expired
// tokens are a no-op.
func (t *tokenEngine) Revoke(ctx context.Context, uid int64, jti string, remaining time.Duration) error {
	if err := t.revocation.Blacklist(ctx, uid, jti, remaining); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Rotate revokes the presented refresh token before minting the replacement.
// The order is the rotation guarantee: if the mint fails the old token is
// already dead, never the reverse.
func (t *tokenEngine) Rotate(ctx context.Context, claims *jwt.Claims, email string, pair *KeyPair) (*jwt.Pair, error) {
	remaining := time.Until(claims.ExpiresAt.Time)
	if err := t.Revoke(ctx, claims.UID, claims.ID, remaining); err != nil {
		return nil, err
	}

	return t.IssuePair(claims.UID, email, pair)
}

func (t *tokenEngine) checkBlacklist(ctx context.Context, uid int64, jti string) error {
	revoked, err := t.revocation.IsBlacklisted(ctx, uid, jti)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	if revoked {
		return ErrTokenRevoked
	}
	return nil
}

func mapCacheErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
}

func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrExpired) {
		return ErrTokenExpired
	}
	return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
}
