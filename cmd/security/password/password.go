package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const phcVersion = argon2.Version

var b64 = base64.RawStdEncoding

// ErrInvalidHash means a stored hash is not an argon2id PHC string this package accepts.
var ErrInvalidHash = errors.New("invalid password hash")

// phc is a decoded $argon2id$ hash string.
type phc struct {
	params Argon2idParams
	salt   []byte
	key    []byte
}

func (p phc) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcVersion,
		p.params.MemoryKiB, p.params.Iterations, p.params.Parallelism,
		b64.EncodeToString(p.salt), b64.EncodeToString(p.key),
	)
}

func parsePHC(s string) (phc, error) {
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return phc{}, ErrInvalidHash
	}
	if parts[2] != fmt.Sprintf("v=%d", phcVersion) {
		return phc{}, ErrInvalidHash
	}

	var mem, iter, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iter, &par); err != nil {
		return phc{}, ErrInvalidHash
	}
	if mem == 0 || iter == 0 || par == 0 || par > 255 {
		return phc{}, ErrInvalidHash
	}

	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return phc{}, ErrInvalidHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil {
		return phc{}, ErrInvalidHash
	}

	return phc{
		params: Argon2idParams{
			MemoryKiB:   mem,
			Iterations:  iter,
			Parallelism: uint8(par),        // #nosec G115 -- checked above.
			SaltLength:  uint32(len(salt)), // #nosec G115 -- bounded by input length.
			KeyLength:   uint32(len(key)),  // #nosec G115 -- bounded by input length.
		},
		salt: salt,
		key:  key,
	}, nil
}

func derive(pw string, salt []byte, p Argon2idParams) []byte {
	return argon2.IDKey([]byte(pw), salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLength)
}

// Hash validates pw against the policy and returns its PHC-encoded Argon2id hash.
func (c Config) Hash(pw string) (string, error) {
	if err := c.Validate(pw); err != nil {
		return "", err
	}

	salt := make([]byte, c.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	return phc{params: c.Params, salt: salt, key: derive(pw, salt, c.Params)}.String(), nil
}

// Verify reports whether pw matches encoded. A mismatch is (false, nil); a malformed
// hash, or one whose cost exceeds twice the configured cost, is ErrInvalidHash.
func (c Config) Verify(encoded, pw string) (bool, error) {
	h, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	if !c.acceptable(h.params) {
		return false, ErrInvalidHash
	}

	got := derive(pw, h.salt, h.params)
	return subtle.ConstantTimeCompare(got, h.key) == 1, nil
}

func (c Config) acceptable(p Argon2idParams) bool {
	lim := c.Params
	return p.MemoryKiB <= lim.MemoryKiB*2 &&
		p.Iterations <= lim.Iterations*2 &&
		uint32(p.Parallelism) <= uint32(lim.Parallelism)*2 &&
		p.SaltLength >= 8 && p.SaltLength <= 64 &&
		p.KeyLength >= 16 && p.KeyLength <= 128
}
