package authapi

import (
	"net/http"
	"testing"
	"time"
)

func TestLoadConfigFromEnv_CookieGuardrails(t *testing.T) {
	t.Setenv("AXIONX_AUTH_REFRESH_COOKIE_NAME", "axionx_token")
	t.Setenv("AXIONX_AUTH_CSRF_COOKIE_NAME", "axionx_token")
	t.Setenv("AXIONX_AUTH_COOKIE_SAMESITE", "none")
	t.Setenv("AXIONX_AUTH_COOKIE_SECURE", "false")

	cfg := LoadConfigFromEnv()

	if cfg.CSRFCookieName == cfg.RefreshCookieName {
		t.Fatalf("csrf cookie name must differ from refresh cookie name")
	}
	if cfg.CookieSameSite != http.SameSiteNoneMode {
		t.Fatalf("expected SameSite=None, got %v", cfg.CookieSameSite)
	}
	if !cfg.CookieSecure {
		t.Fatalf("SameSite=None requires Secure=true")
	}
}

func TestLoadConfigFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("AXIONX_AUTH_LOGIN_IP_MAX", "-3")
	t.Setenv("AXIONX_AUTH_LOGIN_IP_WINDOW", "soon")

	cfg := LoadConfigFromEnv()
	if cfg.LoginIPMax != 20 || cfg.LoginIPWindow != 5*time.Minute {
		t.Fatalf("expected defaults, got %d %v", cfg.LoginIPMax, cfg.LoginIPWindow)
	}
}

func TestParseSameSite(t *testing.T) {
	tests := []struct {
		in   string
		want http.SameSite
	}{
		{in: "strict", want: http.SameSiteStrictMode},
		{in: "lax", want: http.SameSiteLaxMode},
		{in: "none", want: http.SameSiteNoneMode},
		{in: "default", want: http.SameSiteDefaultMode},
		{in: "unknown", want: http.SameSiteLaxMode},
	}

	for _, tc := range tests {
		if got := parseSameSite(tc.in); got != tc.want {
			t.Fatalf("parseSameSite(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
