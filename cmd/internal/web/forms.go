package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"axionx/cmd/internal/leads"
	"axionx/cmd/internal/validation"
)

// LeadService is what the forms submit to. *leads.Service implements it.
type LeadService interface {
	RequestDemo(ctx context.Context, in validation.DemoRequest) (leads.DemoResult, error)
	SubmitContact(ctx context.Context, in validation.ContactForm) (leads.ContactMessage, error)
	QuickAccess(ctx context.Context) (leads.DemoResult, error)
}

const maxFormBytes = 32 << 10

type contactState struct {
	Values  map[string]string
	Errors  map[string]string
	Error   string
	Success string
}

type demoState struct {
	Values   map[string]string
	Selected map[string]bool
	Errors   map[string]string
	Error    string
	Options  options
}

func (s *Site) handleContact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	data := s.landing()

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		data.Contact.Error = "Could not read the form. Please try again."
		s.render(w, http.StatusBadRequest, "index", data)
		return
	}
	in := validation.ContactForm{
		Name:    r.PostFormValue("name"),
		Email:   r.PostFormValue("email"),
		Company: r.PostFormValue("company"),
		Message: r.PostFormValue("message"),
	}
	data.Contact.Values = map[string]string{
		"name": in.Name, "email": in.Email, "company": in.Company, "message": in.Message,
	}

	if status, ok := s.throttled(w, r); ok {
		data.Contact.Error = "Too many submissions. Please try again in a few minutes."
		s.render(w, status, "index", data)
		return
	}

	_, err := s.deps.Leads.SubmitContact(r.Context(), in)
	if status, handled := formError(err, &data.Contact.Errors, &data.Contact.Error); handled {
		s.render(w, status, "index", data)
		return
	}

	data.Contact.Values = map[string]string{}
	data.Contact.Success = leads.ContactSuccessText
	s.render(w, http.StatusOK, "index", data)
}

func (s *Site) demoPage() pageData {
	return pageData{
		Title:  "Request a demo | AxionX",
		Active: "demo",
		Demo: demoState{
			Values:   map[string]string{"country": validation.DefaultCountry},
			Selected: map[string]bool{},
			Options:  demoOptions,
		},
	}
}

func (s *Site) handleDemo(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.render(w, http.StatusOK, "demo", s.demoPage())
		return
	case http.MethodPost:
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	data := s.demoPage()
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		data.Demo.Error = "Could not read the form. Please try again."
		s.render(w, http.StatusBadRequest, "demo", data)
		return
	}
	in := validation.DemoRequest{
		FullName:        r.PostFormValue("full_name"),
		CompanyName:     r.PostFormValue("company_name"),
		Email:           r.PostFormValue("email"),
		Role:            r.PostFormValue("role"),
		CompanySize:     r.PostFormValue("company_size"),
		Phone:           r.PostFormValue("phone"),
		Country:         r.PostFormValue("country"),
		InterestedAreas: r.PostForm["interested_areas"],
	}
	data.Demo.Values = map[string]string{
		"full_name":    in.FullName,
		"company_name": in.CompanyName,
		"email":        in.Email,
		"role":         in.Role,
		"company_size": in.CompanySize,
		"phone":        in.Phone,
		"country":      in.Country,
	}
	for _, a := range in.InterestedAreas {
		data.Demo.Selected[strings.TrimSpace(a)] = true
	}

	if status, ok := s.throttled(w, r); ok {
		data.Demo.Error = "Too many submissions. Please try again in a few minutes."
		s.render(w, status, "demo", data)
		return
	}

	res, err := s.deps.Leads.RequestDemo(r.Context(), in)
	if status, handled := formError(err, &data.Demo.Errors, &data.Demo.Error); handled {
		s.render(w, status, "demo", data)
		return
	}
	http.Redirect(w, r, res.RedirectURL, http.StatusSeeOther)
}

// handleQuickAccess is the landing page's one-click investor preview.
func (s *Site) handleQuickAccess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	data := s.demoPage()
	if status, ok := s.throttled(w, r); ok {
		data.Demo.Error = "Too many submissions. Please try again in a few minutes."
		s.render(w, status, "demo", data)
		return
	}
	res, err := s.deps.Leads.QuickAccess(r.Context())
	if err != nil {
		data.Demo.Error = leads.QuickAccessFailureText
		s.render(w, http.StatusServiceUnavailable, "demo", data)
		return
	}
	http.Redirect(w, r, res.RedirectURL, http.StatusSeeOther)
}

// throttled reports whether the submission must be refused and with which status.
func (s *Site) throttled(w http.ResponseWriter, r *http.Request) (int, bool) {
	if s.deps.Limiter == nil {
		return 0, false
	}
	ok, retry := s.deps.Limiter.Allow(r)
	if ok {
		return 0, false
	}
	secs := max(int(retry.Round(time.Second)/time.Second), 1)
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	return http.StatusTooManyRequests, true
}

// formError fills the per-field or form-level message for err.
func formError(err error, fields *map[string]string, msg *string) (int, bool) {
	if err == nil {
		return 0, false
	}
	var verr *validation.Error
	if errors.As(err, &verr) {
		*fields = verr.Fields()
		*msg = verr.First()
		return http.StatusBadRequest, true
	}
	*msg = leads.FailureText
	if errors.Is(err, leads.ErrUnavailable) {
		return http.StatusServiceUnavailable, true
	}
	return http.StatusInternalServerError, true
}
