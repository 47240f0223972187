package leads

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"axionx/cmd/internal/httpx"
	"axionx/cmd/internal/ratelimit"
	"axionx/cmd/internal/validation"
)

// Handler exposes the JSON form endpoints used by the landing page scripts.
type Handler struct {
	log     *slog.Logger
	cfg     HandlerConfig
	svc     *Service
	limiter *ratelimit.Keyed
}

func NewHandler(log *slog.Logger, cfg HandlerConfig, svc *Service) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = httpx.DefaultMaxBodyBytes
	}
	return &Handler{
		log:     log.With("component", "leads.http"),
		cfg:     cfg,
		svc:     svc,
		limiter: ratelimit.NewKeyed(cfg.SubmitIPMax, cfg.SubmitIPWindow),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/demo-requests", h.handleDemo)
	mux.HandleFunc("/api/contact", h.handleContact)
	mux.HandleFunc("/api/quick-access", h.handleQuickAccess)
}

// Allow applies the per-IP submission limit. The HTML form handlers share it.
func (h *Handler) Allow(r *http.Request) (bool, time.Duration) {
	return h.limiter.Allow(httpx.ClientKey(r, h.cfg.TrustProxy), time.Now().UTC())
}

func (h *Handler) Service() *Service { return h.svc }

type demoResponse struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirect_url"`
	Title       string `json:"title"`
	Message     string `json:"message"`
}

type contactResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

const (
	DemoSuccessTitle   = "Demo Request Submitted!"
	DemoSuccessText    = "Thank you for your interest. We will be in touch shortly."
	ContactSuccessText = "Thanks for reaching out. We will get back to you within one business day."

	QuickAccessTitle       = "Quick Access Granted"
	QuickAccessText        = "Redirecting to investor preview..."
	QuickAccessFailureText = "Please use the main demo request form"
)

func (h *Handler) handleDemo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.allowOrReject(w, r) {
		return
	}

	var req validation.DemoRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	res, err := h.svc.RequestDemo(r.Context(), req)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, demoResponse{
		ID:          res.Lead.ID,
		RedirectURL: res.RedirectURL,
		Title:       DemoSuccessTitle,
		Message:     DemoSuccessText,
	})
}

func (h *Handler) handleQuickAccess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.allowOrReject(w, r) {
		return
	}
	res, err := h.svc.QuickAccess(r.Context())
	if err != nil {
		h.log.Warn("leads.quick_access.fail", "err", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, "unavailable", QuickAccessFailureText)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, demoResponse{
		ID:          res.Lead.ID,
		RedirectURL: res.RedirectURL,
		Title:       QuickAccessTitle,
		Message:     QuickAccessText,
	})
}

func (h *Handler) handleContact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.allowOrReject(w, r) {
		return
	}

	var req validation.ContactForm
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	msg, err := h.svc.SubmitContact(r.Context(), req)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, contactResponse{ID: msg.ID, Message: ContactSuccessText})
}

func (h *Handler) allowOrReject(w http.ResponseWriter, r *http.Request) bool {
	ok, retry := h.Allow(r)
	if ok {
		return true
	}
	secs := max(int(retry.Round(time.Second)/time.Second), 1)
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	httpx.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many submissions, try again later")
	return false
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		httpx.WriteFieldErrors(w, verr.First(), verr.Fields())
	case errors.Is(err, ErrUnavailable):
		httpx.WriteError(w, http.StatusServiceUnavailable, "unavailable", FailureText)
	default:
		h.log.Error("leads.http.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", FailureText)
	}
}
