package realtime

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

var errMissingOrigin = errors.New("missing origin")

// enforceOrigin admits the chat page served from the same host, any origin
// whose host is on the allowlist, and (unless OriginRequired) non-browser
// clients that send no Origin at all.
func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errMissingOrigin
		}
		return nil
	}

	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return fmt.Errorf("malformed origin: %q", origin)
	}
	if strings.EqualFold(u.Host, r.Host) {
		return nil
	}

	if allowsOrigin(g.cfg.AllowedOrigins, origin) {
		return nil
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func allowsOrigin(allowed []string, origin string) bool {
	host := originHostOnly(origin)
	return slices.ContainsFunc(allowed, func(a string) bool {
		switch {
		case a == "*", a == origin:
			return true
		default:
			// scheme and port are ignored for host entries
			return host != "" && host == originHostOnly(a)
		}
	})
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// deriveOriginPatterns maps the allowlist onto websocket.Accept host patterns.
func deriveOriginPatterns(allowed []string) []string {
	out := make([]string, 0, len(allowed))
	for _, a := range allowed {
		if h := originHostOnly(a); h != "" {
			out = append(out, h)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
