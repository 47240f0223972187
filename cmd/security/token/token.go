package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
)

// HMACEnvKey names the env var holding the refresh-token HMAC secret.
// #nosec G101 -- variable name, not a credential.
const HMACEnvKey = "AXIONX_TOKEN_HMAC_KEY"

// MinHMACKeyBytes is the smallest key accepted when HMAC is required.
const MinHMACKeyBytes = 32

var (
	ErrHMACKeyMissing  = errors.New(HMACEnvKey + " is not set")
	ErrHMACKeyTooShort = fmt.Errorf("%s must be at least %d bytes", HMACEnvKey, MinHMACKeyBytes)
)

// Hasher digests refresh tokens. The zero value hashes with SHA-256.
type Hasher struct {
	key []byte
}

// NewHasher returns a Hasher keyed with key; an empty key selects SHA-256.
func NewHasher(key []byte) Hasher {
	return Hasher{key: append([]byte(nil), key...)}
}

// HasherFromEnv reads HMACEnvKey. When require is set the key must be present and at
// least MinHMACKeyBytes long.
func HasherFromEnv(require bool) (Hasher, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	switch {
	case raw == "" && require:
		return Hasher{}, ErrHMACKeyMissing
	case raw != "" && require && len(raw) < MinHMACKeyBytes:
		return Hasher{}, ErrHMACKeyTooShort
	}
	return NewHasher([]byte(raw)), nil
}

// Keyed reports whether digests use HMAC.
func (h Hasher) Keyed() bool { return len(h.key) > 0 }

// Hash returns the hex digest of s.
func (h Hasher) Hash(s string) string {
	if !h.Keyed() {
		sum := sha256.Sum256([]byte(s))
		return hex.EncodeToString(sum[:])
	}
	m := hmac.New(sha256.New, h.key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// Equal compares a presented token against a stored digest in constant time.
func (h Hasher) Equal(presented, digest string) bool {
	return hmac.Equal([]byte(h.Hash(presented)), []byte(digest))
}

// NewOpaque returns a random URL-safe token built from n bytes of entropy.
func NewOpaque(n int) (string, error) {
	if n < 16 {
		return "", fmt.Errorf("token: %d bytes of entropy is too few", n)
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
