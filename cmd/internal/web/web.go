// Package web renders the public site and the chat shell from embedded templates.
package web

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"axionx/cmd/internal/auth/gate"
	"axionx/cmd/internal/chat"
	"axionx/cmd/internal/validation"
	v1 "axionx/shared/contracts/chat/v1"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

type Config struct {
	WSPath string

	// Cookie and header names shared with the auth API.
	RefreshCookieName string
	CSRFCookieName    string
	CSRFHeaderName    string
}

func DefaultConfig() Config {
	return Config{
		WSPath:            "/ws",
		RefreshCookieName: "axionx_refresh",
		CSRFCookieName:    "axionx_csrf",
		CSRFHeaderName:    "X-CSRF-Token",
	}
}

// Limiter throttles form submissions per client.
type Limiter interface {
	Allow(r *http.Request) (bool, time.Duration)
}

type Deps struct {
	Leads    LeadService
	Limiter  Limiter
	Sessions gate.SessionLookup
}

type Site struct {
	log   *slog.Logger
	cfg   Config
	deps  Deps
	pages map[string]*template.Template
}

var pageNames = []string{"index", "demo", "auth", "chat"}

func New(log *slog.Logger, cfg Config, deps Deps) (*Site, error) {
	if log == nil {
		log = slog.Default()
	}
	if deps.Leads == nil {
		return nil, errors.New("web: lead service is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("web: session lookup is required")
	}
	d := DefaultConfig()
	if cfg.WSPath == "" {
		cfg.WSPath = d.WSPath
	}
	if cfg.RefreshCookieName == "" {
		cfg.RefreshCookieName = d.RefreshCookieName
	}
	if cfg.CSRFCookieName == "" {
		cfg.CSRFCookieName = d.CSRFCookieName
	}
	if cfg.CSRFHeaderName == "" {
		cfg.CSRFHeaderName = d.CSRFHeaderName
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New("layout.html").
			Option("missingkey=zero").
			Funcs(funcs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("web: parse %s: %w", name, err)
		}
		pages[name] = t
	}

	return &Site{
		log:   log.With("component", "web"),
		cfg:   cfg,
		deps:  deps,
		pages: pages,
	}, nil
}

var funcs = template.FuncMap{
	"year": func() int { return time.Now().Year() },
	"inc":  func(i int) int { return i + 1 },
}

func (s *Site) Register(mux *http.ServeMux) {
	static, _ := fs.Sub(staticFS, "static")
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServerFS(static)))

	mux.HandleFunc("/{$}", s.handleIndex)
	mux.HandleFunc("/contact", s.handleContact)
	mux.HandleFunc("/demo", s.handleDemo)
	mux.HandleFunc("/demo/quick", s.handleQuickAccess)
	mux.HandleFunc("/auth", s.handleAuth)
	mux.Handle("/chat", gate.RequireSession(s.deps.Sessions, s.cfg.RefreshCookieName, "/auth")(http.HandlerFunc(s.handleChat)))
}

// pageData is the root object every template sees.
type pageData struct {
	Title  string
	Active string

	Services []Service
	Contact  contactState
	Demo     demoState

	Chat chatState
}

type chatState struct {
	WSPath         string
	Subprotocol    string
	CSRFCookieName string
	CSRFHeaderName string
	WelcomeText    string
	SignedOutPath  string
}

func (s *Site) render(w http.ResponseWriter, status int, name string, data pageData) {
	t, ok := s.pages[name]
	if !ok {
		s.log.Error("web.render.unknown", "page", name)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		s.log.Error("web.render.fail", "page", name, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Site) landing() pageData {
	return pageData{
		Title:    "AxionX | AI for Finance and Planning",
		Active:   "home",
		Services: catalogue,
		Contact:  contactState{Values: map[string]string{}},
	}
}

func (s *Site) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.render(w, http.StatusOK, "index", s.landing())
}

func (s *Site) handleAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.render(w, http.StatusOK, "auth", pageData{
		Title:  "Sign in | AxionX",
		Active: "auth",
		Chat: chatState{
			CSRFCookieName: s.cfg.CSRFCookieName,
			CSRFHeaderName: s.cfg.CSRFHeaderName,
		},
	})
}

func (s *Site) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, _ := gate.FromContext(r.Context())
	s.log.Debug("web.chat.open", "user_id", id.UserID)
	s.render(w, http.StatusOK, "chat", pageData{
		Title:  "Chat | AxionX",
		Active: "chat",
		Chat: chatState{
			WSPath:         s.cfg.WSPath,
			Subprotocol:    v1.Subprotocol,
			CSRFCookieName: s.cfg.CSRFCookieName,
			CSRFHeaderName: s.cfg.CSRFHeaderName,
			WelcomeText:    chat.WelcomeText,
			SignedOutPath:  "/auth",
		},
	})
}

// options lists the choices for the demo form selects.
type options struct {
	Roles         []string
	CompanySizes  []string
	InterestAreas []string
}

var demoOptions = options{
	Roles:         validation.DemoRoles,
	CompanySizes:  validation.CompanySizes,
	InterestAreas: validation.InterestAreas,
}
