// Package authapi serves the account endpoints used by the auth page and the chat
// surface: signup, login, refresh, logout and session lookup.
package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"axionx/cmd/identity"
	"axionx/cmd/internal/auth/gate"
	"axionx/cmd/internal/auth/session"
	"axionx/cmd/internal/httpx"
	"axionx/cmd/internal/ratelimit"
	"axionx/cmd/internal/validation"
)

const (
	MessageSignedUp = "Account created! Redirecting..."
	MessageLoggedIn = "Welcome back!"

	chatPath = "/chat"
)

// Deps are the services behind the handlers. Changes may be nil in single-surface
// setups; logout then only affects the caller.
type Deps struct {
	Users       identity.Store
	Credentials *identity.Credentials
	Sessions    *session.Service
	Changes     gate.Publisher
}

// Handler wires HTTP auth endpoints to identity/session services.
type Handler struct {
	log *slog.Logger
	cfg Config

	users    identity.Store
	creds    *identity.Credentials
	sessions *session.Service
	changes  gate.Publisher

	ipFailures    *ratelimit.Failures
	userFailures  *ratelimit.Failures
	signupLimiter *ratelimit.Keyed
}

func NewHandler(log *slog.Logger, cfg Config, deps Deps) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if deps.Users == nil || deps.Credentials == nil || deps.Sessions == nil {
		return nil, errors.New("authapi: users, credentials and sessions are required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = httpx.DefaultMaxBodyBytes
	}

	horizon := max(cfg.LoginIPWindow, cfg.LoginUserWindow, cfg.LockoutSevereDuration)
	return &Handler{
		log:           log.With("component", "authapi"),
		cfg:           cfg,
		users:         deps.Users,
		creds:         deps.Credentials,
		sessions:      deps.Sessions,
		changes:       deps.Changes,
		ipFailures:    ratelimit.NewFailures(horizon, max(cfg.LoginIPMax, 64)),
		userFailures:  ratelimit.NewFailures(horizon, max(cfg.LockoutSevereThreshold, cfg.LoginUserMax, 32)),
		signupLimiter: ratelimit.NewKeyed(cfg.SignupIPMax, cfg.SignupIPWindow),
	}, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/auth/signup", h.handleSignup)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/refresh", h.handleRefresh)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.HandleFunc("/auth/session", h.handleSession)
}

// ---- handlers ----

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req credentialsRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	in, err := validation.Login(validation.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		writeValidation(w, err)
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := httpx.ClientIP(r, h.cfg.TrustProxy)

	if ok, retry := h.signupLimiter.Allow(ipKey(ip), now); !ok {
		writeRateLimited(w, retry)
		return
	}

	hash, err := h.creds.Hash(in.Password)
	if err != nil {
		if msg, ok := identity.InputDetail(err); ok {
			httpx.WriteFieldErrors(w, capitalize(msg), map[string]string{"password": capitalize(msg)})
			return
		}
		h.log.Error("auth.signup.hash.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	u, err := h.users.CreateUser(ctx, identity.CreateUserInput{Email: in.Email, PasswordHash: hash, Now: now})
	if err != nil {
		switch {
		case identity.IsConflict(err):
			httpx.WriteError(w, http.StatusConflict, "conflict", "An account with this email already exists")
		case identity.IsInvalidInput(err):
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid email address")
		default:
			h.log.Error("auth.signup.create.fail", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	platform := session.ParsePlatform(strings.ToLower(strings.TrimSpace(req.Platform)))
	issued, err := h.sessions.Issue(ctx, now, u.ID, h.device(r, ip, platform, req.RememberMe))
	if err != nil {
		h.log.Error("auth.signup.issue_session.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.auditSignup(ctx, u.ID, issued.SessionID, ip)
	h.respondAuth(w, http.StatusCreated, u, issued, platform, MessageSignedUp)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req credentialsRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	in, err := validation.Login(validation.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		writeValidation(w, err)
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := httpx.ClientIP(r, h.cfg.TrustProxy)
	identifier := identity.NormalizeEmail(in.Email)

	// Throttle before touching the store or the password hash.
	if blocked, retry := h.checkLoginIPThrottle(ip, now); blocked {
		h.auditLoginRateLimited(ctx, ip, identifier, retry)
		writeRateLimited(w, retry)
		return
	}
	if blocked, retry := h.checkLoginUserThrottle(identifier, now); blocked {
		h.auditLoginRateLimited(ctx, ip, identifier, retry)
		writeRateLimited(w, retry)
		return
	}

	userAuth, err := h.users.GetUserAuthByEmail(ctx, in.Email)
	if err != nil {
		if !identity.IsNotFound(err) {
			h.log.Error("auth.login.lookup.fail", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
		h.creds.Verify("", in.Password)
		h.loginFailed(ctx, w, "", ip, identifier, "not_found", now)
		return
	}
	if !h.creds.Verify(userAuth.PasswordHash, in.Password) {
		h.loginFailed(ctx, w, userAuth.User.ID, ip, identifier, "bad_password", now)
		return
	}
	h.userFailures.Reset(identifier)

	platform := session.ParsePlatform(strings.ToLower(strings.TrimSpace(req.Platform)))
	issued, err := h.sessions.Issue(ctx, now, userAuth.User.ID, h.device(r, ip, platform, req.RememberMe))
	if err != nil {
		h.log.Error("auth.login.issue_session.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.auditLoginSuccess(ctx, userAuth.User.ID, issued.SessionID, ip)
	h.respondAuth(w, http.StatusOK, userAuth.User, issued, platform, MessageLoggedIn)
}

func (h *Handler) loginFailed(ctx context.Context, w http.ResponseWriter, userID string, ip net.IP, identifier, reason string, now time.Time) {
	h.recordLoginFailure(ip, identifier, now)
	h.auditLoginFailed(ctx, userID, ip, identifier, reason)
	httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
	}
	refreshToken := strings.TrimSpace(req.RefreshToken)
	fromCookie := false
	if refreshToken == "" {
		if cookieToken, ok := h.refreshCookie(r); ok {
			fromCookie = true
			refreshToken = cookieToken
		}
	}
	if refreshToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}
	if fromCookie && !h.csrfMatches(r) {
		httpx.WriteError(w, http.StatusForbidden, "csrf_invalid", "missing or invalid csrf token")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := httpx.ClientIP(r, h.cfg.TrustProxy)
	platform := session.ParsePlatform(strings.ToLower(strings.TrimSpace(req.Platform)))
	if fromCookie {
		platform = session.PlatformWeb
	}

	issued, err := h.sessions.Rotate(ctx, now, refreshToken, h.device(r, ip, platform, req.RememberMe))
	if err != nil {
		switch {
		case errors.Is(err, session.ErrRefreshReuseDetected):
			h.auditRefreshReuse(ctx, issued.UserID, ip)
			if err := gate.Announce(ctx, h.changes, issued.UserID, ""); err != nil {
				h.log.Warn("auth.refresh.announce.fail", "err", err)
			}
			h.dropWebCookies(w)
			httpx.WriteError(w, http.StatusUnauthorized, "refresh_reuse_detected", "refresh token reuse detected")
		case session.Inactive(err):
			h.dropWebCookies(w)
			httpx.WriteError(w, http.StatusUnauthorized, "session_not_active", "session not active")
		default:
			h.log.Error("auth.refresh.fail", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	resp, err := h.sessionBody(w, issued, fromCookie || h.usesCookies(platform))
	if err != nil {
		h.log.Error("auth.refresh.web_cookie.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, refreshResponse{Session: resp})
}

// handleLogout ends the caller's session, identified by bearer token or, for web
// clients, by the refresh cookie plus CSRF header.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	userID, sessionID, ok := h.sessionFromBearer(r, now)
	if !ok {
		if tok, found := h.refreshCookie(r); found && h.csrfMatches(r) {
			if row, err := h.sessions.LookupRefresh(ctx, tok, now); err == nil {
				userID, sessionID, ok = row.UserID, row.ID, true
			}
		}
	}
	if !ok {
		h.dropWebCookies(w)
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "not signed in")
		return
	}

	if err := h.sessions.Revoke(ctx, now, sessionID); err != nil && !session.Inactive(err) {
		h.log.Error("auth.logout.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	if err := gate.Announce(ctx, h.changes, userID, sessionID); err != nil {
		h.log.Warn("auth.logout.announce.fail", "err", err)
	}

	h.auditLogout(ctx, userID, sessionID, httpx.ClientIP(r, h.cfg.TrustProxy))
	h.dropWebCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	u, err := h.users.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			httpx.WriteError(w, http.StatusUnauthorized, "not_found", "user not found")
			return
		}
		h.log.Error("auth.session.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sessionInfoResponse{
		User:      newUserResponse(u),
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt,
	})
}

func (h *Handler) respondAuth(w http.ResponseWriter, status int, u identity.User, issued session.Issued, platform session.Platform, msg string) {
	resp, err := h.sessionBody(w, issued, h.usesCookies(platform))
	if err != nil {
		h.log.Error("auth.web_cookie.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	httpx.WriteJSON(w, status, authResponse{
		User:     newUserResponse(u),
		Session:  resp,
		Message:  msg,
		Redirect: chatPath,
	})
}

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (session.AccessClaims, bool) {
	tok := httpx.BearerToken(r)
	if tok == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return session.AccessClaims{}, false
	}
	claims, err := h.sessions.ValidateAccessToken(r.Context(), tok, time.Now().UTC())
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return session.AccessClaims{}, false
	}
	return claims, true
}

func (h *Handler) sessionFromBearer(r *http.Request, now time.Time) (string, string, bool) {
	tok := httpx.BearerToken(r)
	if tok == "" {
		return "", "", false
	}
	claims, err := h.sessions.ValidateAccessToken(r.Context(), tok, now)
	if err != nil {
		return "", "", false
	}
	return claims.UserID, claims.SessionID, true
}

func (h *Handler) device(r *http.Request, ip net.IP, platform session.Platform, remember bool) session.DeviceContext {
	return session.DeviceContext{
		Platform:   platform,
		RememberMe: remember,
		UserAgent:  strings.TrimSpace(r.UserAgent()),
		IP:         ip,
	}
}

func writeValidation(w http.ResponseWriter, err error) {
	var verr *validation.Error
	if errors.As(err, &verr) {
		httpx.WriteFieldErrors(w, verr.First(), verr.Fields())
		return
	}
	httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid input")
}

func ipKey(ip net.IP) string {
	if ip == nil {
		return "unknown"
	}
	return ip.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
