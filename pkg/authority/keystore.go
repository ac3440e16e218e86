package authority

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const rsaBits = 2048

// Keystore holds the signing keypair.
type Keystore struct {
	private *rsa.PrivateKey
	public  *rsa.PublicKey
}

// LoadOrCreateKeystore loads keys/private.pem and keys/public.pem from
// dir, generating and persisting a fresh RSA-2048 pair on first start.
// The private key file is written with mode 0600 and the directory with
// mode 0700.
func LoadOrCreateKeystore(dir string) (*Keystore, error) {
	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")

	if _, err := os.Stat(privPath); err == nil {
		return loadKeystore(privPath, pubPath)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("authority: stat %s: %w", privPath, err)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("authority: create key dir: %w", err)
	}

	key, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return nil, fmt.Errorf("authority: generate keypair: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("authority: encode private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		return nil, fmt.Errorf("authority: write private key: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("authority: encode public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		return nil, fmt.Errorf("authority: write public key: %w", err)
	}

	return &Keystore{private: key, public: &key.PublicKey}, nil
}

func loadKeystore(privPath, pubPath string) (*Keystore, error) {
	privPEM, err := os.ReadFile(privPath)
	if err != nil {
		return nil, fmt.Errorf("authority: read private key: %w", err)
	}
	block, _ := pem.Decode(privPEM)
	if block == nil {
		return nil, errors.New("authority: private.pem is not PEM")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("authority: parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("authority: private.pem is not an RSA key")
	}

	// public.pem is advisory; the public half always derives from the
	// private key. Rewrite it if missing so external verifiers can use it.
	if _, err := os.Stat(pubPath); os.IsNotExist(err) {
		pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
		if err == nil {
			pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
			_ = os.WriteFile(pubPath, pubPEM, 0o644)
		}
	}

	return &Keystore{private: key, public: &key.PublicKey}, nil
}
