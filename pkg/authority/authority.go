// Package authority is the local OAuth 2.1 client-credentials authority.
//
// It owns a 2048-bit RSA keypair (generated on first start and persisted
// with restrictive permissions), a JSON client registry with Argon2id
// secret hashes, and RS256 access-token issue/verify. Everything is local;
// no network calls are involved in verification.
package authority

import (
	"errors"
	"time"
)

// DefaultTokenTTL is the access-token lifetime when the caller does not
// configure one.
const DefaultTokenTTL = 60 * time.Minute

// Sentinel errors.
var (
	// ErrInvalidClient covers unknown client ids and wrong secrets.
	// The two cases are deliberately indistinguishable.
	ErrInvalidClient = errors.New("authority: invalid client credentials")

	// ErrDisabledClient is returned when credentials are correct but the
	// client has been disabled.
	ErrDisabledClient = errors.New("authority: client disabled")

	// ErrInvalidToken covers malformed tokens, bad signatures, and
	// unexpected algorithms. One error for all of them: a verifier that
	// distinguishes signature failures from parse failures is an oracle.
	ErrInvalidToken = errors.New("authority: invalid token")

	// ErrExpiredToken is returned for structurally valid, correctly
	// signed tokens past their expiry.
	ErrExpiredToken = errors.New("authority: token expired")
)

// Authority bundles the keystore, the client registry, and token logic.
type Authority struct {
	keys     *Keystore
	registry *ClientRegistry
	ttl      time.Duration
	issuer   string
}

// Config for New.
type Config struct {
	// KeysDir is where private.pem/public.pem live. Required.
	KeysDir string

	// ClientsPath is the JSON client registry file. Required.
	ClientsPath string

	// TokenTTL defaults to DefaultTokenTTL.
	TokenTTL time.Duration

	// Issuer is the iss claim. Defaults to "facegate".
	Issuer string
}

// New loads (or creates) the keypair and client registry.
func New(cfg Config) (*Authority, error) {
	keys, err := LoadOrCreateKeystore(cfg.KeysDir)
	if err != nil {
		return nil, err
	}
	registry, err := OpenClientRegistry(cfg.ClientsPath)
	if err != nil {
		return nil, err
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "facegate"
	}
	return &Authority{keys: keys, registry: registry, ttl: ttl, issuer: issuer}, nil
}

// Clients exposes the registry for admin tooling.
func (a *Authority) Clients() *ClientRegistry { return a.registry }

// TokenTTL returns the configured token lifetime.
func (a *Authority) TokenTTL() time.Duration { return a.ttl }
