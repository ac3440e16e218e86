package authority

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. Interactive-login grade: issuing a token is rare
// compared to verifying one, so the hash can afford to be slow.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// secretBytes is the entropy of generated client ids and secrets
// (URL-safe base64 of 24 bytes = 192 bits).
const secretBytes = 24

// Client is one registered OAuth client. The secret itself is never
// stored; only its salted Argon2id hash.
type Client struct {
	ClientID   string    `json:"client_id"`
	Name       string    `json:"name"`
	SecretHash string    `json:"client_secret_hash"`
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"created_at"`
}

// ClientRegistry is the JSON-file-backed client store.
type ClientRegistry struct {
	mu      sync.RWMutex
	path    string
	clients map[string]*Client
}

// OpenClientRegistry loads the registry from path, starting empty if the
// file does not exist yet.
func OpenClientRegistry(path string) (*ClientRegistry, error) {
	r := &ClientRegistry{path: path, clients: make(map[string]*Client)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("authority: read clients: %w", err)
	}
	var list []*Client
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("authority: parse clients: %w", err)
	}
	for _, c := range list {
		r.clients[c.ClientID] = c
	}
	return r, nil
}

// Create registers a new client and returns its id and the secret. The
// secret is returned exactly once; only the hash is persisted.
func (r *ClientRegistry) Create(name string) (clientID, clientSecret string, err error) {
	clientID, err = randomToken()
	if err != nil {
		return "", "", err
	}
	clientSecret, err = randomToken()
	if err != nil {
		return "", "", err
	}

	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", "", fmt.Errorf("authority: salt: %w", err)
	}

	c := &Client{
		ClientID:   clientID,
		Name:       name,
		SecretHash: encodeHash(salt, hashSecret(clientSecret, salt)),
		Enabled:    true,
		CreatedAt:  time.Now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[clientID] = c
	if err := r.saveLocked(); err != nil {
		delete(r.clients, clientID)
		return "", "", err
	}
	return clientID, clientSecret, nil
}

// Verify checks a client id/secret pair. Unknown ids and wrong secrets
// both yield ErrInvalidClient; a matching but disabled client yields
// ErrDisabledClient. The hash comparison is constant-time.
func (r *ClientRegistry) Verify(clientID, clientSecret string) error {
	r.mu.RLock()
	c := r.clients[clientID]
	r.mu.RUnlock()

	if c == nil {
		// Burn a hash anyway so unknown ids cost the same as bad secrets.
		hashSecret(clientSecret, make([]byte, argonSaltLen))
		return ErrInvalidClient
	}

	salt, want, err := decodeHash(c.SecretHash)
	if err != nil {
		return fmt.Errorf("authority: corrupt hash for %s: %w", clientID, err)
	}
	got := hashSecret(clientSecret, salt)
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrInvalidClient
	}
	if !c.Enabled {
		return ErrDisabledClient
	}
	return nil
}

// Disable flips a client's enabled flag off.
func (r *ClientRegistry) Disable(clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.clients[clientID]
	if c == nil {
		return ErrInvalidClient
	}
	if !c.Enabled {
		return nil
	}
	c.Enabled = false
	return r.saveLocked()
}

// Get returns a copy of the client record, or nil.
func (r *ClientRegistry) Get(clientID string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.clients[clientID]
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// List returns copies of all clients, unordered.
func (r *ClientRegistry) List() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		cp := *c
		out = append(out, &cp)
	}
	return out
}

// saveLocked writes the registry atomically. Caller holds r.mu.
func (r *ClientRegistry) saveLocked() error {
	list := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		list = append(list, c)
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".clients-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), r.path)
}

func randomToken() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("authority: rng: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashSecret(secret string, salt []byte) []byte {
	return argon2.IDKey([]byte(secret), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// encodeHash packs salt and hash as "argon2id$<salt b64>$<hash b64>".
func encodeHash(salt, hash []byte) string {
	return "argon2id$" +
		base64.RawStdEncoding.EncodeToString(salt) + "$" +
		base64.RawStdEncoding.EncodeToString(hash)
}

func decodeHash(s string) (salt, hash []byte, err error) {
	parts := strings.Split(s, "$")
	if len(parts) != 3 || parts[0] != "argon2id" {
		return nil, nil, fmt.Errorf("bad hash format")
	}
	salt, err = base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, nil, err
	}
	hash, err = base64.RawStdEncoding.DecodeString(parts[2])
	return salt, hash, err
}
