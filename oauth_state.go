package goCred

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// StateSigner mints and verifies the stateless CSRF envelope round-tripped
// through an OAuth provider's state parameter. The envelope is an HS256
// compact JWT carrying provider, redirect target, and validity window; no
// server-side storage or cleanup is involved. Security rests on signature
// unforgeability and the short expiry.
type StateSigner struct {
	secretKey []byte
	ttl       time.Duration
}

type stateClaims struct {
	Provider    string `json:"provider"`
	RedirectURL string `json:"redirect_url"`
	jwt.RegisteredClaims
}

// NewStateSigner returns a signer using secretKey for HMAC-SHA256 and ttl as
// the envelope validity window.
func NewStateSigner(secretKey []byte, ttl time.Duration) (*StateSigner, error) {
	if len(secretKey) < 16 {
		return nil, errors.New("state secret key must be at least 16 bytes")
	}
	if ttl <= 0 {
		return nil, errors.New("state ttl must be positive")
	}
	return &StateSigner{
		secretKey: cloneBytes(secretKey),
		ttl:       ttl,
	}, nil
}

// Issue signs an envelope binding provider and redirectURL to the validity
// window starting now.
func (s *StateSigner) Issue(provider, redirectURL string) (string, error) {
	if s == nil {
		return "", ErrEngineNotReady
	}
	if provider == "" {
		return "", errors.New("provider required")
	}

	now := time.Now()
	claims := stateClaims{
		Provider:    provider,
		RedirectURL: redirectURL,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// Verify checks the envelope in order: signature integrity, expiry, then
// provider binding. On success it returns the embedded redirect URL.
func (s *StateSigner) Verify(signedState, expectedProvider string) (string, error) {
	if s == nil {
		return "", ErrEngineNotReady
	}

	claims := &stateClaims{}
	_, err := jwt.ParseWithClaims(signedState, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrStateExpired
		}
		return "", ErrStateInvalid
	}

	if claims.Provider != expectedProvider {
		return "", ErrStateProviderMismatch
	}

	return claims.RedirectURL, nil
}
