package authority

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenClaims is the payload of an issued access token. sub carries the
// client id; scope is reserved and empty in this system.
type TokenClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// IssueToken validates the client credentials and returns a signed RS256
// access token with the configured TTL.
func (a *Authority) IssueToken(clientID, clientSecret string) (string, error) {
	return a.IssueTokenTTL(clientID, clientSecret, a.ttl)
}

// IssueTokenTTL issues a token with an explicit lifetime. Used by the
// operator CLI for short-lived test tokens.
func (a *Authority) IssueTokenTTL(clientID, clientSecret string, ttl time.Duration) (string, error) {
	if err := a.registry.Verify(clientID, clientSecret); err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = a.ttl
	}

	now := time.Now()
	claims := &TokenClaims{
		Scope: "",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := tok.SignedString(a.keys.private)
	if err != nil {
		return "", fmt.Errorf("authority: sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken checks signature and expiry and returns the client id.
// A valid token for a since-disabled client is rejected with
// ErrDisabledClient.
func (a *Authority) VerifyToken(tokenString string) (clientID string, err error) {
	tok, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.keys.public, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		// Malformed and bad-signature collapse into one error.
		return "", ErrInvalidToken
	}
	claims, ok := tok.Claims.(*TokenClaims)
	if !ok || !tok.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}

	c := a.registry.Get(claims.Subject)
	if c == nil {
		return "", ErrInvalidToken
	}
	if !c.Enabled {
		return "", ErrDisabledClient
	}
	return claims.Subject, nil
}
