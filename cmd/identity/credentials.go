package identity

import (
	"errors"

	"axionx/cmd/security/password"
)

// Credentials hashes and verifies passwords under one password.Config.
type Credentials struct {
	cfg   password.Config
	dummy string
}

// NewCredentials precomputes a dummy hash so unknown-account logins cost the same
// as wrong-password logins.
func NewCredentials(cfg password.Config) (*Credentials, error) {
	dummyCfg := cfg
	dummyCfg.Policy.RejectVeryWeak = false
	dummy, err := dummyCfg.Hash("axionx-timing-equalizer-0000")
	if err != nil {
		return nil, err
	}
	return &Credentials{cfg: cfg, dummy: dummy}, nil
}

// Hash applies the password policy and returns a PHC hash. Policy failures are
// ErrInvalidInput with a human message.
func (c *Credentials) Hash(pw string) (string, error) {
	const op = "identity.HashPassword"

	h, err := c.cfg.Hash(pw)
	switch {
	case err == nil:
		return h, nil
	case errors.Is(err, password.ErrPasswordTooShort):
		return "", invalid(op, "password too short")
	case errors.Is(err, password.ErrPasswordTooLong):
		return "", invalid(op, "password too long")
	case errors.Is(err, password.ErrWeakPassword):
		return "", invalid(op, "password too weak")
	default:
		return "", err
	}
}

// Verify reports whether pw matches hash. An empty hash (unknown account) burns the
// same work against the dummy hash and returns false.
func (c *Credentials) Verify(hash, pw string) bool {
	if hash == "" {
		_, _ = c.cfg.Verify(c.dummy, pw)
		return false
	}
	ok, err := c.cfg.Verify(hash, pw)
	return err == nil && ok
}
