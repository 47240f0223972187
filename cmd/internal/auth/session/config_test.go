package session

import (
	"errors"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

func TestLoadConfigFromEnv_SecretKey(t *testing.T) {
	t.Setenv("AXIONX_PASETO_V4_SECRET_KEY_HEX", "")

	if _, err := LoadConfigFromEnv(false); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig on missing secret, got %v", err)
	}

	cfg, err := LoadConfigFromEnv(true)
	if err != nil {
		t.Fatalf("ephemeral key: %v", err)
	}
	if _, err := NewPasetoV4PublicManager(cfg); err != nil {
		t.Fatalf("generated key unusable: %v", err)
	}
}

func TestLoadConfigFromEnv_Invalid(t *testing.T) {
	cases := []struct {
		key, val string
	}{
		{"AXIONX_AUTH_ACCESS_TTL", "-5m"},
		{"AXIONX_AUTH_ACCESS_TTL", "0s"},
		{"AXIONX_AUTH_REFRESH_TTL", "soon"},
		{"AXIONX_AUTH_REFRESH_TOKEN_BYTES", "16"},
		{"AXIONX_AUTH_REFRESH_TTL_REMEMBER", "1h"},
	}
	for _, tc := range cases {
		t.Run(tc.key+"="+tc.val, func(t *testing.T) {
			t.Setenv("AXIONX_PASETO_V4_SECRET_KEY_HEX", paseto.NewV4AsymmetricSecretKey().ExportHex())
			t.Setenv(tc.key, tc.val)
			if _, err := LoadConfigFromEnv(false); !errors.Is(err, ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
		})
	}
}

func TestLoadConfigFromEnv_Valid(t *testing.T) {
	t.Setenv("AXIONX_PASETO_V4_SECRET_KEY_HEX", paseto.NewV4AsymmetricSecretKey().ExportHex())
	t.Setenv("AXIONX_AUTH_ISSUER", "axionx-test")
	t.Setenv("AXIONX_AUTH_ACCESS_TTL", "10m")
	t.Setenv("AXIONX_AUTH_REFRESH_TTL", "48h")
	t.Setenv("AXIONX_AUTH_REFRESH_TTL_REMEMBER", "720h")
	t.Setenv("AXIONX_AUTH_CLOCK_SKEW", "0s")
	t.Setenv("AXIONX_AUTH_REFRESH_TOKEN_BYTES", "48")

	cfg, err := LoadConfigFromEnv(false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Issuer != "axionx-test" || cfg.AccessTokenTTL != 10*time.Minute {
		t.Fatalf("issuer/access mismatch: %+v", cfg)
	}
	if cfg.RefreshTTL != 48*time.Hour || cfg.RefreshTTLRemember != 720*time.Hour {
		t.Fatalf("refresh ttl mismatch: %+v", cfg)
	}
	if cfg.ClockSkew != 0 || cfg.RefreshTokenBytes != 48 {
		t.Fatalf("skew/bytes mismatch: %+v", cfg)
	}
}
