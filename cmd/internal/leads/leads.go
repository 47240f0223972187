// Package leads captures the landing page's demo requests and contact messages.
package leads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"axionx/cmd/identity/ids"
	"axionx/cmd/internal/metrics"
	"axionx/cmd/internal/validation"

	"github.com/google/uuid"
)

const (
	DefaultDemoURL = "https://axionx-demo-showcase.lovable.app"

	SourceLandingPage = "landing_page"
	StatusNew         = "new"

	SourceQuickAccess     = "quick_access"
	StatusInvestorPreview = "investor_preview"

	quickAccessDomain = "axionx-demo.uk"

	// FailureText is shown when a submission cannot be recorded.
	FailureText = "Something went wrong. Please try again or contact hello@axionx.uk"
)

var ErrUnavailable = errors.New("leads: unavailable")

// DemoLead is a stored demo request.
type DemoLead struct {
	ID        string
	Token     uuid.UUID
	Request   validation.DemoRequest
	Source    string
	Status    string
	CreatedAt time.Time
}

type ContactMessage struct {
	ID        string
	Form      validation.ContactForm
	CreatedAt time.Time
}

type Store interface {
	CreateDemoRequest(ctx context.Context, lead DemoLead) error
	CreateContactMessage(ctx context.Context, msg ContactMessage) error
}

// Relay forwards a contact message to an external inbox.
type Relay interface {
	Relay(ctx context.Context, msg ContactMessage) error
}

type Config struct {
	DemoURL string
}

// Service validates and records lead submissions.
type Service struct {
	log   *slog.Logger
	store Store
	relay Relay
	demo  *url.URL
	now   func() time.Time
}

// NewService records demo requests in store. Contact messages go to relay when it
// is non-nil and fall back to store when relaying fails.
func NewService(log *slog.Logger, cfg Config, store Store, relay Relay) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	if store == nil {
		return nil, errors.New("leads: store is required")
	}
	raw := cfg.DemoURL
	if raw == "" {
		raw = DefaultDemoURL
	}
	demo, err := url.Parse(raw)
	if err != nil || demo.Scheme == "" || demo.Host == "" {
		return nil, fmt.Errorf("leads: invalid demo url %q", raw)
	}
	return &Service{
		log:   log.With("component", "leads"),
		store: store,
		relay: relay,
		demo:  demo,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// DemoResult is a recorded demo request and where to send the visitor.
type DemoResult struct {
	Lead        DemoLead
	RedirectURL string
}

// RequestDemo validates in, stores it with a fresh demo token and returns the
// showcase URL carrying that token. Validation failures are *validation.Error;
// storage failures are ErrUnavailable.
func (s *Service) RequestDemo(ctx context.Context, in validation.DemoRequest) (DemoResult, error) {
	req, err := validation.Demo(in)
	if err != nil {
		metrics.LeadsTotal.WithLabelValues("demo", "invalid").Inc()
		return DemoResult{}, err
	}

	return s.recordDemo(ctx, "demo", req, SourceLandingPage, StatusNew, s.now())
}

// QuickAccess records a one-click investor preview without a form. The lead
// gets placeholder contact details and a unique synthetic email.
func (s *Service) QuickAccess(ctx context.Context) (DemoResult, error) {
	now := s.now()
	req := validation.DemoRequest{
		FullName:        "Investor Quick Access",
		CompanyName:     "Investment Firm",
		Email:           fmt.Sprintf("investor-%d@%s", now.UnixMilli(), quickAccessDomain),
		Role:            "Investor",
		Country:         validation.DefaultCountry,
		InterestedAreas: []string{"Investment Opportunity"},
	}
	return s.recordDemo(ctx, SourceQuickAccess, req, SourceQuickAccess, StatusInvestorPreview, now)
}

func (s *Service) recordDemo(ctx context.Context, kind string, req validation.DemoRequest, source, status string, now time.Time) (DemoResult, error) {
	id, err := ids.New(now)
	if err != nil {
		return DemoResult{}, err
	}
	lead := DemoLead{
		ID:        id,
		Token:     uuid.New(),
		Request:   req,
		Source:    source,
		Status:    status,
		CreatedAt: now,
	}
	if err := s.store.CreateDemoRequest(ctx, lead); err != nil {
		metrics.LeadsTotal.WithLabelValues(kind, "error").Inc()
		s.log.Error("leads.demo.store.fail", "source", source, "err", err)
		return DemoResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	metrics.LeadsTotal.WithLabelValues(kind, "ok").Inc()
	s.log.Info("leads.demo.ok", "lead_id", lead.ID, "source", source, "role", req.Role)
	return DemoResult{Lead: lead, RedirectURL: s.redirect(lead.Token)}, nil
}

func (s *Service) redirect(tok uuid.UUID) string {
	u := *s.demo
	q := u.Query()
	q.Set("token", tok.String())
	q.Set("welcome", "true")
	u.RawQuery = q.Encode()
	return u.String()
}

// SubmitContact validates in and delivers it.
func (s *Service) SubmitContact(ctx context.Context, in validation.ContactForm) (ContactMessage, error) {
	form, err := validation.Contact(in)
	if err != nil {
		metrics.LeadsTotal.WithLabelValues("contact", "invalid").Inc()
		return ContactMessage{}, err
	}

	now := s.now()
	id, err := ids.New(now)
	if err != nil {
		return ContactMessage{}, err
	}
	msg := ContactMessage{ID: id, Form: form, CreatedAt: now}

	if s.relay != nil {
		err := s.relay.Relay(ctx, msg)
		if err == nil {
			metrics.LeadsTotal.WithLabelValues("contact", "relayed").Inc()
			return msg, nil
		}
		s.log.Warn("leads.contact.relay.fail", "err", err)
	}

	if err := s.store.CreateContactMessage(ctx, msg); err != nil {
		metrics.LeadsTotal.WithLabelValues("contact", "error").Inc()
		s.log.Error("leads.contact.store.fail", "err", err)
		return ContactMessage{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	metrics.LeadsTotal.WithLabelValues("contact", "stored").Inc()
	return msg, nil
}
