// Package jwt mints and validates the HS256 access/refresh token pair. Keys
// are supplied per call because every user signs with their own key pair:
// the public half covers access tokens, the private half covers refresh
// tokens.
package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrExpired is returned when a token's signature is valid but its exp
	// claim has passed.
	ErrExpired = errors.New("token expired")
	// ErrInvalid covers every other parse or validation failure.
	ErrInvalid = errors.New("token invalid")
)

// Config holds token lifetimes and registered-claim settings.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Leeway     time.Duration
}

// Claims is the claim set carried by both token classes.
type Claims struct {
	UID   int64  `json:"uid"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Pair is a freshly minted access/refresh token pair.
type Pair struct {
	AccessToken  string
	RefreshToken string
	AccessJTI    string
	RefreshJTI   string
}

// Manager signs and parses tokens. Safe for concurrent use.
type Manager struct {
	config Config
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.AccessTTL >= cfg.RefreshTTL {
		return nil, errors.New("access TTL must be shorter than refresh TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Manager{config: cfg}, nil
}

// CreatePair mints both tokens with distinct jtis. accessKey signs the access
// token, refreshKey the refresh token.
func (j *Manager) CreatePair(uid int64, email string, accessKey, refreshKey []byte) (*Pair, error) {
	if len(accessKey) == 0 || len(refreshKey) == 0 {
		return nil, errors.New("signing keys must not be empty")
	}

	now := time.Now()
	accessJTI := uuid.NewString()
	refreshJTI := uuid.NewString()

	access, err := j.sign(uid, email, accessJTI, now, j.config.AccessTTL, accessKey)
	if err != nil {
		return nil, err
	}
	refresh, err := j.sign(uid, email, refreshJTI, now, j.config.RefreshTTL, refreshKey)
	if err != nil {
		return nil, err
	}

	return &Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		AccessJTI:    accessJTI,
		RefreshJTI:   refreshJTI,
	}, nil
}

func (j *Manager) sign(uid int64, email, jti string, now time.Time, ttl time.Duration, key []byte) (string, error) {
	claims := Claims{
		UID:   uid,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(uid, 10),
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    j.config.Issuer,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// Parse validates signature and registered claims against the given key.
// Expiry is surfaced as ErrExpired, every other failure as ErrInvalid.
func (j *Manager) Parse(tokenStr string, key []byte) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalid
	}
	if claims.ID == "" || claims.UID == 0 {
		return nil, ErrInvalid
	}

	return claims, nil
}
