package app

import (
	"net"
	"net/http"
	"strings"
	"time"

	"axionx/cmd/internal/metrics"
	"axionx/cmd/internal/pgstore"
)

// routes builds the full handler tree.
func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/readyz", a.handleReady)
	mux.Handle("/metrics", metrics.Handler())

	// The account API is the one surface other origins may call.
	authMux := http.NewServeMux()
	a.auth.Register(authMux)
	mux.Handle("/auth/", WithCORS(authMux, a.cfg, a.log))

	a.chat.Register(mux)
	a.leads.Register(mux)
	a.site.Register(mux)
	mux.Handle("/ws", a.ws)

	return WithRequestID(WithRequestLogging(WithSecurityHeaders(mux), a.log))
}

func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.cfg.ReadinessRequireDB && a.pool == nil {
		http.Error(w, "db not configured", http.StatusServiceUnavailable)
		return
	}
	if a.pool != nil {
		if err := pgstore.Ping(r.Context(), a.pool, 2*time.Second); err != nil {
			a.log.Info("readyz.db.not_ready", "err", err)
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready\n"))
}

// runtimeBaseURL turns a listen address into a URL a local browser can open.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// wsBaseURL maps an http(s) base URL onto its ws(s) counterpart.
func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "ws://" + base
	}
}
