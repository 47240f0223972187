package authapi

import (
	"context"
	"log/slog"
	"net"
	"time"
)

// Audit events go to the structured log under "auth.audit"; identifiers are the
// normalized email, never the password.

func (h *Handler) auditLoginFailed(ctx context.Context, userID string, ip net.IP, identifier, reason string) {
	h.audit(ctx, slog.LevelWarn, "auth.login.failed", userID, "", ip,
		slog.String("identifier", identifier), slog.String("reason", reason))
}

func (h *Handler) auditLoginSuccess(ctx context.Context, userID, sessionID string, ip net.IP) {
	h.audit(ctx, slog.LevelInfo, "auth.login.success", userID, sessionID, ip)
}

func (h *Handler) auditLoginRateLimited(ctx context.Context, ip net.IP, identifier string, retryAfter time.Duration) {
	h.audit(ctx, slog.LevelWarn, "auth.login.rate_limited", "", "", ip,
		slog.String("identifier", identifier), slog.Int64("retry_after_s", int64(retryAfter.Seconds())))
}

func (h *Handler) auditSignup(ctx context.Context, userID, sessionID string, ip net.IP) {
	h.audit(ctx, slog.LevelInfo, "auth.signup", userID, sessionID, ip)
}

func (h *Handler) auditRefreshReuse(ctx context.Context, userID string, ip net.IP) {
	h.audit(ctx, slog.LevelWarn, "auth.refresh.reuse_detected", userID, "", ip)
}

func (h *Handler) auditLogout(ctx context.Context, userID, sessionID string, ip net.IP) {
	h.audit(ctx, slog.LevelInfo, "auth.logout", userID, sessionID, ip)
}

func (h *Handler) audit(ctx context.Context, level slog.Level, action, userID, sessionID string, ip net.IP, extra ...slog.Attr) {
	attrs := make([]slog.Attr, 0, 4+len(extra))
	attrs = append(attrs, slog.String("action", action))
	if userID != "" {
		attrs = append(attrs, slog.String("user_id", userID))
	}
	if sessionID != "" {
		attrs = append(attrs, slog.String("session_id", sessionID))
	}
	if ip != nil {
		attrs = append(attrs, slog.String("ip", ip.String()))
	}
	attrs = append(attrs, extra...)
	h.log.LogAttrs(ctx, level, "auth.audit", attrs...)
}
