package authapi

import (
	"crypto/hmac"
	"net/http"
	"strings"
	"time"

	"axionx/cmd/internal/auth/session"
	"axionx/cmd/security/token"
)

// The chat page never sees the refresh token. It lives in an HttpOnly cookie,
// next to a readable CSRF cookie that the page echoes in CSRFHeaderName.

func (h *Handler) usesCookies(platform session.Platform) bool {
	return h.cfg.WebRefreshCookieEnabled && platform == session.PlatformWeb
}

// issueWebCookies stores the refresh token and returns the fresh CSRF value.
func (h *Handler) issueWebCookies(w http.ResponseWriter, refresh string, until time.Time) (string, error) {
	csrf, err := token.NewOpaque(32)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, h.cookie(h.cfg.RefreshCookieName, refresh, until, true))
	http.SetCookie(w, h.cookie(h.cfg.CSRFCookieName, csrf, until, false))
	return csrf, nil
}

// sessionBody shapes an issued session for the response. With cookies the
// refresh token goes into the jar and the body carries the CSRF value instead.
func (h *Handler) sessionBody(w http.ResponseWriter, issued session.Issued, cookies bool) (sessionResponse, error) {
	resp := sessionResponse{
		SessionID:        issued.SessionID,
		AccessToken:      issued.AccessToken,
		AccessExpiresAt:  issued.AccessExp,
		RefreshToken:     issued.RefreshToken,
		RefreshExpiresAt: issued.RefreshExp,
	}
	if !cookies {
		return resp, nil
	}
	csrf, err := h.issueWebCookies(w, issued.RefreshToken, issued.RefreshExp)
	if err != nil {
		return sessionResponse{}, err
	}
	resp.RefreshToken = ""
	resp.CSRFToken = csrf
	return resp, nil
}

func (h *Handler) dropWebCookies(w http.ResponseWriter) {
	if !h.cfg.WebRefreshCookieEnabled {
		return
	}
	for name, httpOnly := range map[string]bool{h.cfg.RefreshCookieName: true, h.cfg.CSRFCookieName: false} {
		if strings.TrimSpace(name) == "" {
			continue
		}
		c := h.cookie(name, "", time.Unix(0, 0).UTC(), httpOnly)
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

func (h *Handler) refreshCookie(r *http.Request) (string, bool) {
	v := h.cookieValue(r, h.cfg.RefreshCookieName)
	return v, v != ""
}

// csrfMatches compares the CSRF cookie with the header in constant time.
func (h *Handler) csrfMatches(r *http.Request) bool {
	want := h.cookieValue(r, h.cfg.CSRFCookieName)
	got := strings.TrimSpace(r.Header.Get(h.cfg.CSRFHeaderName))
	return want != "" && hmac.Equal([]byte(want), []byte(got))
}

func (h *Handler) cookieValue(r *http.Request, name string) string {
	if !h.cfg.WebRefreshCookieEnabled {
		return ""
	}
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

func (h *Handler) cookie(name, value string, expires time.Time, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  expires,
		HttpOnly: httpOnly,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	}
}
