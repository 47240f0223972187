package leads

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"axionx/cmd/internal/pgstore/pgtest"
	"axionx/cmd/internal/validation"

	"github.com/google/uuid"
)

func validDemo() validation.DemoRequest {
	return validation.DemoRequest{
		FullName:        " Ada Lovelace ",
		CompanyName:     "Analytical Engines",
		Email:           "ada@example.com",
		Role:            "CFO",
		InterestedAreas: []string{"OneStream Integration", "OneStream Integration"},
	}
}

type failingStore struct{}

func (failingStore) CreateDemoRequest(context.Context, DemoLead) error {
	return errors.New("db down")
}

func (failingStore) CreateContactMessage(context.Context, ContactMessage) error {
	return errors.New("db down")
}

func TestRequestDemo_StoresAndRedirects(t *testing.T) {
	store := NewMemoryStore()
	svc, err := NewService(nil, Config{}, store, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	res, err := svc.RequestDemo(context.Background(), validDemo())
	if err != nil {
		t.Fatalf("RequestDemo: %v", err)
	}

	got := store.DemoRequests()
	if len(got) != 1 {
		t.Fatalf("stored %d demo requests, want 1", len(got))
	}
	lead := got[0]
	if lead.Source != SourceLandingPage || lead.Status != StatusNew {
		t.Fatalf("source/status = %q/%q", lead.Source, lead.Status)
	}
	if lead.Request.FullName != "Ada Lovelace" {
		t.Fatalf("full name not trimmed: %q", lead.Request.FullName)
	}
	if lead.Request.Country != validation.DefaultCountry {
		t.Fatalf("country = %q, want default", lead.Request.Country)
	}
	if len(lead.Request.InterestedAreas) != 1 {
		t.Fatalf("interested areas = %v", lead.Request.InterestedAreas)
	}

	u, err := url.Parse(res.RedirectURL)
	if err != nil {
		t.Fatalf("redirect url: %v", err)
	}
	if u.Host != "axionx-demo-showcase.lovable.app" {
		t.Fatalf("redirect host = %q", u.Host)
	}
	if u.Query().Get("token") != lead.Token.String() || u.Query().Get("welcome") != "true" {
		t.Fatalf("redirect query = %q", u.RawQuery)
	}
}

func TestRequestDemo_CustomDemoURL(t *testing.T) {
	svc, err := NewService(nil, Config{DemoURL: "https://demo.example.com/start?ref=site"}, NewMemoryStore(), nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	res, err := svc.RequestDemo(context.Background(), validDemo())
	if err != nil {
		t.Fatalf("RequestDemo: %v", err)
	}
	u, _ := url.Parse(res.RedirectURL)
	if u.Path != "/start" || u.Query().Get("ref") != "site" || u.Query().Get("token") == "" {
		t.Fatalf("redirect = %q", res.RedirectURL)
	}
}

func TestNewService_RejectsBadConfig(t *testing.T) {
	if _, err := NewService(nil, Config{}, nil, nil); err == nil {
		t.Fatalf("expected error for nil store")
	}
	if _, err := NewService(nil, Config{DemoURL: "not a url"}, NewMemoryStore(), nil); err == nil {
		t.Fatalf("expected error for relative demo url")
	}
}

func TestRequestDemo_Errors(t *testing.T) {
	svc, _ := NewService(nil, Config{}, NewMemoryStore(), nil)

	bad := validDemo()
	bad.Role = "Wizard"
	bad.Email = "nope"
	_, err := svc.RequestDemo(context.Background(), bad)
	var verr *validation.Error
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want validation error", err)
	}
	fields := verr.Fields()
	if fields["role"] == "" || fields["email"] == "" {
		t.Fatalf("fields = %v", fields)
	}

	broken, _ := NewService(nil, Config{}, failingStore{}, nil)
	if _, err := broken.RequestDemo(context.Background(), validDemo()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestSubmitContact_RelayAndFallback(t *testing.T) {
	var hits atomic.Int32
	var status atomic.Int32
	status.Store(http.StatusOK)
	var last relayBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_ = json.NewDecoder(r.Body).Decode(&last)
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	store := NewMemoryStore()
	svc, _ := NewService(nil, Config{}, store, NewHTTPRelay(srv.URL, 2*time.Second))

	form := validation.ContactForm{Name: "Grace", Email: "grace@example.com", Message: "Tell me about OneStream."}
	if _, err := svc.SubmitContact(context.Background(), form); err != nil {
		t.Fatalf("SubmitContact: %v", err)
	}
	if hits.Load() != 1 || last.Email != "grace@example.com" || last.ReplyTo != "grace@example.com" {
		t.Fatalf("relay hits=%d body=%+v", hits.Load(), last)
	}
	if n := len(store.ContactMessages()); n != 0 {
		t.Fatalf("relayed message also stored (%d)", n)
	}

	status.Store(http.StatusBadGateway)
	msg, err := svc.SubmitContact(context.Background(), form)
	if err != nil {
		t.Fatalf("SubmitContact fallback: %v", err)
	}
	stored := store.ContactMessages()
	if len(stored) != 1 || stored[0].ID != msg.ID {
		t.Fatalf("fallback stored = %+v", stored)
	}
}

func TestSubmitContact_Invalid(t *testing.T) {
	svc, _ := NewService(nil, Config{}, NewMemoryStore(), nil)
	_, err := svc.SubmitContact(context.Background(), validation.ContactForm{Email: "x@example.com"})
	if !errors.Is(err, validation.ErrInvalid) {
		t.Fatalf("err = %v, want validation.ErrInvalid", err)
	}
}

func TestPostgresStore(t *testing.T) {
	pool := pgtest.Open(t)
	schema := pgtest.Schema(t, pool)

	store, err := NewPostgresStore(pool, schema)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	svc, _ := NewService(nil, Config{}, store, nil)
	ctx := context.Background()

	res, err := svc.RequestDemo(ctx, validDemo())
	if err != nil {
		t.Fatalf("RequestDemo: %v", err)
	}

	var (
		tok    uuid.UUID
		areas  []string
		source string
		size   *string
	)
	err = pool.QueryRow(ctx,
		`SELECT demo_token, interested_areas, source, company_size FROM `+schema+`.demo_requests WHERE id = $1`,
		res.Lead.ID,
	).Scan(&tok, &areas, &source, &size)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if tok != res.Lead.Token || source != SourceLandingPage || size != nil {
		t.Fatalf("row = %v %q %v", tok, source, size)
	}
	if len(areas) != 1 || areas[0] != "OneStream Integration" {
		t.Fatalf("areas = %v", areas)
	}

	if _, err := svc.SubmitContact(ctx, validation.ContactForm{Name: "Grace", Email: "grace@example.com", Message: "hi"}); err != nil {
		t.Fatalf("SubmitContact: %v", err)
	}

	if _, err := NewPostgresStore(pool, "bad-schema;"); err == nil {
		t.Fatalf("expected schema error")
	}
}

func TestQuickAccess_StoresInvestorPreview(t *testing.T) {
	store := NewMemoryStore()
	svc, err := NewService(nil, Config{}, store, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	svc.now = func() time.Time { return time.UnixMilli(1760000000000).UTC() }

	res, err := svc.QuickAccess(context.Background())
	if err != nil {
		t.Fatalf("QuickAccess: %v", err)
	}
	got := store.DemoRequests()
	if len(got) != 1 {
		t.Fatalf("stored %d demo requests, want 1", len(got))
	}
	lead := got[0]
	if lead.Source != SourceQuickAccess || lead.Status != StatusInvestorPreview {
		t.Fatalf("source/status = %q/%q", lead.Source, lead.Status)
	}
	r := lead.Request
	if r.Role != "Investor" || r.Country != "United Kingdom" || r.Email != "investor-1760000000000@axionx-demo.uk" {
		t.Fatalf("request = %+v", r)
	}
	if len(r.InterestedAreas) != 1 || r.InterestedAreas[0] != "Investment Opportunity" {
		t.Fatalf("interested areas = %v", r.InterestedAreas)
	}
	u, err := url.Parse(res.RedirectURL)
	if err != nil {
		t.Fatalf("redirect: %v", err)
	}
	if u.Query().Get("token") != lead.Token.String() || lead.Token == uuid.Nil {
		t.Fatalf("redirect %q does not carry token %s", res.RedirectURL, lead.Token)
	}

	svc, _ = NewService(nil, Config{}, failingStore{}, nil)
	if _, err := svc.QuickAccess(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("failing store: %v", err)
	}
}
