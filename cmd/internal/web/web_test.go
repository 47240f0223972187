package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"axionx/cmd/internal/auth/session"
	"axionx/cmd/internal/leads"
)

type fakeSessions struct{ valid string }

func (f fakeSessions) LookupRefresh(_ context.Context, tok string, _ time.Time) (session.Row, error) {
	if tok != f.valid {
		return session.Row{}, session.ErrInvalidToken
	}
	return session.Row{ID: "sess-1", UserID: "user-1"}, nil
}

type denyAfter struct{ n int }

func (d *denyAfter) Allow(*http.Request) (bool, time.Duration) {
	if d.n <= 0 {
		return false, 90 * time.Second
	}
	d.n--
	return true, 0
}

func newTestSite(t *testing.T, limiter Limiter) (*http.ServeMux, *leads.MemoryStore) {
	t.Helper()
	store := leads.NewMemoryStore()
	svc, err := leads.NewService(nil, leads.Config{}, store, nil)
	if err != nil {
		t.Fatalf("leads.NewService: %v", err)
	}
	site, err := New(nil, DefaultConfig(), Deps{Leads: svc, Limiter: limiter, Sessions: fakeSessions{valid: "refresh-ok"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mux := http.NewServeMux()
	site.Register(mux)
	return mux, store
}

func get(mux http.Handler, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func postForm(mux http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestPagesRender(t *testing.T) {
	mux, _ := newTestSite(t, nil)

	cases := []struct {
		path string
		want []string
	}{
		{"/", []string{"AI READINESS REPORT", "AI-Powered Data Quality", `id="service-1"`, `action="/contact#contact"`, `action="/demo/quick"`, "/static/widget.js"}},
		{"/demo", []string{"Request a demo", `value="Head of FP&amp;A"`, `value="United Kingdom"`, "OneStream Integration"}},
		{"/auth", []string{"Sign in", `data-csrf-header="X-CSRF-Token"`, "/static/auth.js"}},
	}
	for _, tc := range cases {
		rec := get(mux, tc.path)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", tc.path, rec.Code)
		}
		body := rec.Body.String()
		for _, w := range tc.want {
			if !strings.Contains(body, w) {
				t.Fatalf("%s: body missing %q", tc.path, w)
			}
		}
	}

	if rec := get(mux, "/nope"); rec.Code != http.StatusNotFound {
		t.Fatalf("/nope: status = %d", rec.Code)
	}
	if rec := get(mux, "/static/site.css"); rec.Code != http.StatusOK {
		t.Fatalf("static: status = %d", rec.Code)
	}
}

func TestChatRequiresSession(t *testing.T) {
	mux, _ := newTestSite(t, nil)

	rec := get(mux, "/chat")
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/auth" {
		t.Fatalf("no cookie: status=%d location=%q", rec.Code, rec.Header().Get("Location"))
	}
	rec = get(mux, "/chat", &http.Cookie{Name: "axionx_refresh", Value: "stale"})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("stale cookie: status = %d", rec.Code)
	}

	rec = get(mux, "/chat", &http.Cookie{Name: "axionx_refresh", Value: "refresh-ok"})
	if rec.Code != http.StatusOK {
		t.Fatalf("live cookie: status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, w := range []string{`data-subprotocol="axionx.chat.v1"`, `data-ws-path="/ws"`, "EPM expert"} {
		if !strings.Contains(body, w) {
			t.Fatalf("chat page missing %q", w)
		}
	}
}

func TestContactForm(t *testing.T) {
	mux, store := newTestSite(t, nil)

	rec := postForm(mux, "/contact", url.Values{"name": {"Grace"}, "email": {"not-an-email"}, "message": {"<b>hi</b>"}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid: status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Invalid email address") {
		t.Fatalf("missing inline error")
	}
	if !strings.Contains(body, `value="Grace"`) || !strings.Contains(body, "&lt;b&gt;hi&lt;/b&gt;") {
		t.Fatalf("values not re-rendered escaped")
	}

	rec = postForm(mux, "/contact", url.Values{"name": {"Grace"}, "email": {"grace@example.com"}, "message": {"hello"}})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), leads.ContactSuccessText) {
		t.Fatalf("valid: status = %d", rec.Code)
	}
	if n := len(store.ContactMessages()); n != 1 {
		t.Fatalf("stored %d messages", n)
	}
}

func TestDemoForm(t *testing.T) {
	mux, store := newTestSite(t, nil)

	rec := postForm(mux, "/demo", url.Values{
		"full_name":        {"Ada"},
		"company_name":     {"Engines"},
		"email":            {"ada@example.com"},
		"role":             {"Wizard"},
		"interested_areas": {"Real-time Governance"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid: status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Please select a valid role") {
		t.Fatalf("missing role error")
	}
	if !strings.Contains(body, `value="Real-time Governance" checked`) {
		t.Fatalf("interest selection not kept")
	}

	rec = postForm(mux, "/demo", url.Values{
		"full_name":    {"Ada"},
		"company_name": {"Engines"},
		"email":        {"ada@example.com"},
		"role":         {"CFO"},
	})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("valid: status = %d body=%s", rec.Code, rec.Body.String())
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil || loc.Query().Get("welcome") != "true" {
		t.Fatalf("location = %q", rec.Header().Get("Location"))
	}
	stored := store.DemoRequests()
	if len(stored) != 1 || loc.Query().Get("token") != stored[0].Token.String() {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestQuickAccessForm(t *testing.T) {
	mux, store := newTestSite(t, nil)

	rec := postForm(mux, "/demo/quick", url.Values{})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("location: %v", err)
	}
	stored := store.DemoRequests()
	if len(stored) != 1 || stored[0].Source != leads.SourceQuickAccess || loc.Query().Get("token") != stored[0].Token.String() {
		t.Fatalf("stored = %+v location = %s", stored, loc)
	}

	if rec := get(mux, "/demo/quick"); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET: status = %d", rec.Code)
	}
}

func TestFormsThrottled(t *testing.T) {
	mux, store := newTestSite(t, &denyAfter{n: 0})

	rec := postForm(mux, "/contact", url.Values{"name": {"Grace"}, "email": {"grace@example.com"}, "message": {"hello"}})
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") != "90" {
		t.Fatalf("status = %d retry-after=%q", rec.Code, rec.Header().Get("Retry-After"))
	}
	if len(store.ContactMessages()) != 0 {
		t.Fatalf("throttled submission stored")
	}
}

func TestNewRequiresDeps(t *testing.T) {
	if _, err := New(nil, Config{}, Deps{}); err == nil {
		t.Fatalf("expected error without deps")
	}
}
