package authapi

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"axionx/cmd/internal/httpx"
	"axionx/cmd/internal/ratelimit"
)

func (h *Handler) checkLoginIPThrottle(ip net.IP, now time.Time) (bool, time.Duration) {
	if ip == nil || h.cfg.LoginIPMax <= 0 {
		return false, 0
	}
	return ratelimit.EvaluateWindow(now, h.ipFailures.Recent(ip.String(), now), h.cfg.LoginIPMax, h.cfg.LoginIPWindow)
}

// checkLoginUserThrottle applies the per-account window, then progressive lockout.
func (h *Handler) checkLoginUserThrottle(identifier string, now time.Time) (bool, time.Duration) {
	if identifier == "" {
		return false, 0
	}
	failures := h.userFailures.Recent(identifier, now)
	if blocked, retry := ratelimit.EvaluateLockout(now, failures, h.cfg.lockoutTiers()); blocked {
		return true, retry
	}
	return ratelimit.EvaluateWindow(now, failures, h.cfg.LoginUserMax, h.cfg.LoginUserWindow)
}

func (h *Handler) recordLoginFailure(ip net.IP, identifier string, now time.Time) {
	if ip != nil {
		h.ipFailures.Record(ip.String(), now)
	}
	h.userFailures.Record(identifier, now)
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
	}
	httpx.WriteError(w, http.StatusTooManyRequests, "rate_limited", "Too many attempts. Please try again later.")
}
