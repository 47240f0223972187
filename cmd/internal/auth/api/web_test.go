package authapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"axionx/cmd/internal/auth/session"
)

func TestUsesCookiesOnlyForWeb(t *testing.T) {
	h := &Handler{cfg: Config{WebRefreshCookieEnabled: true}}
	if !h.usesCookies(session.PlatformWeb) || h.usesCookies(session.PlatformNative) {
		t.Fatalf("cookie transport must be web-only")
	}
	h.cfg.WebRefreshCookieEnabled = false
	if h.usesCookies(session.PlatformWeb) {
		t.Fatalf("disabled cookie transport still used")
	}
}

func TestIssueAndDropWebCookies(t *testing.T) {
	h := &Handler{cfg: DefaultConfig()}

	rr := httptest.NewRecorder()
	csrf, err := h.issueWebCookies(rr, "refresh-token-123", time.Now().UTC().Add(30*time.Minute))
	if err != nil {
		t.Fatalf("issueWebCookies: %v", err)
	}
	if csrf == "" {
		t.Fatalf("expected csrf token")
	}

	byName := map[string]*http.Cookie{}
	for _, c := range rr.Result().Cookies() {
		byName[c.Name] = c
	}
	if c := byName["axionx_refresh"]; c == nil || !c.HttpOnly || !c.Secure || c.Value != "refresh-token-123" {
		t.Fatalf("refresh cookie = %+v", c)
	}
	if c := byName["axionx_csrf"]; c == nil || c.HttpOnly || c.Value != csrf {
		t.Fatalf("csrf cookie = %+v", c)
	}

	rr = httptest.NewRecorder()
	h.dropWebCookies(rr)
	cleared := rr.Result().Cookies()
	if len(cleared) != 2 {
		t.Fatalf("expected 2 cleared cookies, got %d", len(cleared))
	}
	for _, c := range cleared {
		if c.Value != "" || c.MaxAge >= 0 {
			t.Fatalf("cookie %q not expired: %+v", c.Name, c)
		}
	}
}

func TestCSRFMatches(t *testing.T) {
	h := &Handler{cfg: DefaultConfig()}

	cases := []struct {
		name   string
		cookie string
		header string
		want   bool
	}{
		{"match", "csrf-abc", "csrf-abc", true},
		{"mismatch", "csrf-abc", "csrf-def", false},
		{"no header", "csrf-abc", "", false},
		{"no cookie", "", "csrf-abc", false},
		{"both empty", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "axionx_csrf", Value: tc.cookie})
			}
			if tc.header != "" {
				req.Header.Set("X-CSRF-Token", tc.header)
			}
			if got := h.csrfMatches(req); got != tc.want {
				t.Fatalf("csrfMatches = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRefreshCookie(t *testing.T) {
	h := &Handler{cfg: DefaultConfig()}

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "axionx_refresh", Value: " tok-123 "})
	if tok, ok := h.refreshCookie(req); !ok || tok != "tok-123" {
		t.Fatalf("refreshCookie = %q, %v", tok, ok)
	}

	if _, ok := h.refreshCookie(httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)); ok {
		t.Fatalf("refreshCookie found a token without a cookie")
	}
}
