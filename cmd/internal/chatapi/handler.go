// Package chatapi serves the anonymous landing-page widget (/api/ask) and the
// bearer-authenticated conversation endpoints.
package chatapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"axionx/cmd/internal/auth/session"
	"axionx/cmd/internal/chat"
	"axionx/cmd/internal/conversation"
	"axionx/cmd/internal/httpx"
	"axionx/cmd/internal/ratelimit"
	"axionx/cmd/internal/validation"
)

// CTASuffix follows every widget answer.
const CTASuffix = "\n\n→ [Discuss your specific needs](/#contact)"

type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, tok string, now time.Time) (session.AccessClaims, error)
}

// Store is the read/delete side of conversation.Store.
type Store interface {
	ListConversations(ctx context.Context, ownerID string) ([]conversation.Conversation, error)
	DeleteConversation(ctx context.Context, ownerID, id string) error
	LoadMessages(ctx context.Context, ownerID, conversationID string) ([]conversation.Message, error)
}

type Deps struct {
	Asker  chat.Asker
	Store  Store
	Tokens TokenValidator
}

type Handler struct {
	log *slog.Logger
	cfg Config

	asker  chat.Asker
	store  Store
	tokens TokenValidator

	askLimiter *ratelimit.Keyed
}

func NewHandler(log *slog.Logger, cfg Config, deps Deps) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if deps.Asker == nil {
		return nil, errors.New("chatapi: asker is required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = httpx.DefaultMaxBodyBytes
	}
	return &Handler{
		log:        log.With("component", "chatapi"),
		cfg:        cfg,
		asker:      deps.Asker,
		store:      deps.Store,
		tokens:     deps.Tokens,
		askLimiter: ratelimit.NewKeyed(cfg.AskIPMax, cfg.AskIPWindow),
	}, nil
}

// Register wires the routes. Conversation routes are only mounted when a store
// and token validator are configured.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/ask", h.handleAsk)
	if h.store != nil && h.tokens != nil {
		mux.HandleFunc("/api/conversations", h.handleList)
		mux.HandleFunc("/api/conversations/{id}", h.handleDelete)
		mux.HandleFunc("/api/conversations/{id}/messages", h.handleMessages)
	}
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

type conversationResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type messageResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ---- widget ----

func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	if !h.cors(w, r) {
		httpx.WriteError(w, http.StatusForbidden, "origin_not_allowed", "origin not allowed")
		return
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if ok, retry := h.askLimiter.Allow(httpx.ClientKey(r, h.cfg.TrustProxy), time.Now().UTC()); !ok {
		secs := max(int(retry.Round(time.Second)/time.Second), 1)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		httpx.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
		return
	}

	var req askRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	q, err := validation.Chat(req.Question)
	if err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			httpx.WriteFieldErrors(w, verr.First(), map[string]string{"question": verr.First()})
			return
		}
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid input")
		return
	}

	answer, err := h.asker.Ask(r.Context(), q)
	if err != nil {
		h.log.Warn("chatapi.ask.fail", "err", err)
		httpx.WriteError(w, http.StatusBadGateway, "gateway_error", chat.ApologyText)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, askResponse{Answer: answer + CTASuffix})
}

// cors applies the widget origin policy. It reports false for a disallowed
// cross-origin request; same-origin and origin-less requests always pass.
func (h *Handler) cors(w http.ResponseWriter, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || sameOrigin(r, origin) {
		return true
	}
	if !slices.Contains(h.cfg.WidgetOrigins, "*") && !slices.Contains(h.cfg.WidgetOrigins, origin) {
		return false
	}
	hdr := w.Header()
	hdr.Set("Access-Control-Allow-Origin", origin)
	hdr.Add("Vary", "Origin")
	hdr.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	hdr.Set("Access-Control-Allow-Headers", "Content-Type")
	hdr.Set("Access-Control-Max-Age", "600")
	return true
}

func sameOrigin(r *http.Request, origin string) bool {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return origin == scheme+"://"+r.Host
}

// ---- conversations ----

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	list, err := h.store.ListConversations(r.Context(), claims.UserID)
	if err != nil {
		h.log.Error("chatapi.list.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", chat.NoticeListFailed)
		return
	}
	out := make([]conversationResponse, 0, len(list))
	for _, c := range list {
		out = append(out, conversationResponse{ID: c.ID, Title: c.Title, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"conversations": out})
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	msgs, err := h.store.LoadMessages(r.Context(), claims.UserID, r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, "chatapi.messages.fail", err, chat.NoticeLoadFailed)
		return
	}
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageResponse{ID: m.ID, Role: string(m.Role), Content: m.Content, CreatedAt: m.CreatedAt})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"messages": out})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteConversation(r.Context(), claims.UserID, r.PathValue("id")); err != nil {
		h.writeStoreError(w, "chatapi.delete.fail", err, chat.NoticeDeleteFailed)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, event string, err error, msg string) {
	switch {
	case errors.Is(err, conversation.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "conversation not found")
	case errors.Is(err, conversation.ErrInvalidInput):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid conversation id")
	default:
		h.log.Error(event, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", msg)
	}
}

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (session.AccessClaims, bool) {
	tok := httpx.BearerToken(r)
	if tok == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return session.AccessClaims{}, false
	}
	claims, err := h.tokens.ValidateAccessToken(r.Context(), tok, time.Now().UTC())
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return session.AccessClaims{}, false
	}
	return claims, true
}
