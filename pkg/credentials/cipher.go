// Package credentials encrypts provider credentials at rest.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	version  = "v1"
	hkdfInfo = "gluco-guardian credentials v1"
)

var (
	// ErrNoSecret is returned when the cipher is built without a process secret.
	ErrNoSecret = errors.New("credentials secret is not configured")

	// ErrMalformed is returned for ciphertexts that were not produced by Seal.
	ErrMalformed = errors.New("malformed credential ciphertext")
)

// Credential is a username/password pair for a session-based provider.
type Credential struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Cipher seals credentials with AES-256-GCM under a key derived from the
// process secret. Each ciphertext carries its own random nonce and is bound
// to the owner it belongs to.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the encryption key from secret with HKDF-SHA256.
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new block cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts cred for ownerID. The result has the form
// "v1:" + base64(nonce || ciphertext).
func (c *Cipher) Seal(ownerID string, cred Credential) (string, error) {
	plaintext, err := json.Marshal(cred)
	if err != nil {
		return "", fmt.Errorf("encode credential: %w", err)
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, plaintext, []byte(ownerID))
	return version + ":" + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal for the same owner.
func (c *Cipher) Open(ownerID, sealed string) (Credential, error) {
	var cred Credential

	prefix, payload, ok := strings.Cut(sealed, ":")
	if !ok || prefix != version {
		return cred, ErrMalformed
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return cred, ErrMalformed
	}
	if len(raw) < c.aead.NonceSize()+c.aead.Overhead() {
		return cred, ErrMalformed
	}

	nonce, ciphertext := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, []byte(ownerID))
	if err != nil {
		return cred, fmt.Errorf("decrypt credential: %w", err)
	}
	if err := json.Unmarshal(plaintext, &cred); err != nil {
		return cred, fmt.Errorf("decode credential: %w", err)
	}
	return cred, nil
}
