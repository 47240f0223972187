package session

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

// Config defines token lifetimes and the signing key.
type Config struct {
	Issuer string
	// Audience is the surface access tokens are minted for; tokens for another
	// audience are rejected.
	Audience string

	AccessTokenTTL time.Duration

	// RefreshTTL applies to ordinary sign-ins; RefreshTTLRemember when the client
	// asked to be remembered.
	RefreshTTL         time.Duration
	RefreshTTLRemember time.Duration

	ClockSkew         time.Duration
	RefreshTokenBytes int

	// PasetoV4SecretKeyHex is the hex Ed25519 secret used to sign access tokens.
	PasetoV4SecretKeyHex string
}

func DefaultConfig() Config {
	return Config{
		Issuer:             "axionx",
		Audience:           "axionx.site",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTTL:         7 * 24 * time.Hour,
		RefreshTTLRemember: 30 * 24 * time.Hour,
		ClockSkew:          30 * time.Second,
		RefreshTokenBytes:  32,
	}
}

// LoadConfigFromEnv reads AXIONX_AUTH_* and AXIONX_PASETO_V4_SECRET_KEY_HEX.
//
// With allowEphemeralKey set (development), a missing signing key is replaced by a
// freshly generated one; tokens then do not survive a restart.
func LoadConfigFromEnv(allowEphemeralKey bool) (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("AXIONX_AUTH_ISSUER")); v != "" {
		cfg.Issuer = v
	}
	if v := strings.TrimSpace(os.Getenv("AXIONX_AUTH_AUDIENCE")); v != "" {
		cfg.Audience = v
	}

	durations := []struct {
		key      string
		dst      *time.Duration
		allowNil bool
	}{
		{"AXIONX_AUTH_ACCESS_TTL", &cfg.AccessTokenTTL, false},
		{"AXIONX_AUTH_REFRESH_TTL", &cfg.RefreshTTL, false},
		{"AXIONX_AUTH_REFRESH_TTL_REMEMBER", &cfg.RefreshTTLRemember, false},
		{"AXIONX_AUTH_CLOCK_SKEW", &cfg.ClockSkew, true},
	}
	for _, d := range durations {
		v := strings.TrimSpace(os.Getenv(d.key))
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed < 0 || (parsed == 0 && !d.allowNil) {
			return Config{}, fmt.Errorf("%w: %s", ErrConfig, d.key)
		}
		*d.dst = parsed
	}

	if v := strings.TrimSpace(os.Getenv("AXIONX_AUTH_REFRESH_TOKEN_BYTES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 32 || n > 64 {
			return Config{}, fmt.Errorf("%w: AXIONX_AUTH_REFRESH_TOKEN_BYTES", ErrConfig)
		}
		cfg.RefreshTokenBytes = n
	}

	cfg.PasetoV4SecretKeyHex = strings.TrimSpace(os.Getenv("AXIONX_PASETO_V4_SECRET_KEY_HEX"))
	if cfg.PasetoV4SecretKeyHex == "" {
		if !allowEphemeralKey {
			return Config{}, fmt.Errorf("%w: AXIONX_PASETO_V4_SECRET_KEY_HEX is required", ErrConfig)
		}
		cfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	}

	if cfg.RefreshTTLRemember < cfg.RefreshTTL {
		return Config{}, fmt.Errorf("%w: remember ttl shorter than default refresh ttl", ErrConfig)
	}
	return cfg, nil
}
