// Package app wires the AxionX server runtime: config, logging, stores, the change
// bus, the HTTP surfaces and the chat gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"axionx/cmd/identity"
	authapi "axionx/cmd/internal/auth/api"
	"axionx/cmd/internal/auth/session"
	"axionx/cmd/internal/changes"
	"axionx/cmd/internal/chat"
	"axionx/cmd/internal/chatapi"
	"axionx/cmd/internal/conversation"
	"axionx/cmd/internal/gateway"
	"axionx/cmd/internal/leads"
	"axionx/cmd/internal/pgstore"
	"axionx/cmd/internal/realtime"
	"axionx/cmd/internal/web"
	"axionx/cmd/security/password"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// App owns the process resources and the HTTP handlers built on them.
type App struct {
	cfg Config
	log Logger

	pool *pgxpool.Pool
	bus  changes.Bus
	hub  *realtime.Hub

	auth  *authapi.Handler
	chat  *chatapi.Handler
	leads *leads.Handler
	site  *web.Site
	ws    *realtime.WSGateway
}

// stores groups the persistence backends picked at startup.
type stores struct {
	users         identity.Store
	sessions      session.Store
	conversations chat.ConversationStore
	leads         leads.Store
}

// New constructs a fully wired App. Without AXIONX_DATABASE_URL every store is
// in-memory and the change bus is local.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogFormat, cfg.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	hasher, err := ValidateSecurityConfig(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close(context.Background())
		}
	}()

	if cfg.DatabaseURL != "" {
		a.pool, err = pgstore.Open(ctx, pgstore.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
		if cfg.DBMigrate {
			if err := pgstore.Migrate(ctx, a.pool, cfg.DBSchema); err != nil {
				return nil, fmt.Errorf("db migrate: %w", err)
			}
		}
		log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)
	} else {
		log.Info("db.disabled.inmemory_store")
	}

	a.bus, err = changes.Open(ctx, changes.Config{
		Driver:  cfg.ChangesDriver,
		Channel: cfg.ChangesChannel,
		Redis:   changes.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
	}, a.pool, log)
	if err != nil {
		return nil, fmt.Errorf("change bus: %w", err)
	}

	st, err := a.openStores()
	if err != nil {
		return nil, err
	}

	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	creds, err := identity.NewCredentials(pwCfg)
	if err != nil {
		return nil, err
	}
	sessCfg, err := session.LoadConfigFromEnv(cfg.Dev)
	if err != nil {
		return nil, err
	}
	tokens, err := session.NewPasetoV4PublicManager(sessCfg)
	if err != nil {
		return nil, err
	}
	sessions := session.NewService(sessCfg, st.sessions, tokens, hasher)

	authCfg := authapi.LoadConfigFromEnv()
	a.auth, err = authapi.NewHandler(log, authCfg, authapi.Deps{
		Users:       st.users,
		Credentials: creds,
		Sessions:    sessions,
		Changes:     a.bus,
	})
	if err != nil {
		return nil, err
	}

	asker := gateway.New(gateway.Config{BaseURL: cfg.GatewayURL, Timeout: cfg.GatewayTimeout}, log)

	a.hub = realtime.NewHub(log)
	a.ws, err = realtime.NewWSGateway(log, realtime.LoadGatewayConfigFromEnv(), realtime.Deps{
		Tokens:  sessions,
		Revoker: sessions,
		Changes: a.bus,
		Users:   st.users,
		Store:   st.conversations,
		Asker:   asker,
		Hub:     a.hub,
	})
	if err != nil {
		return nil, err
	}

	a.chat, err = chatapi.NewHandler(log, chatapi.LoadConfigFromEnv(), chatapi.Deps{
		Asker:  asker,
		Store:  st.conversations,
		Tokens: sessions,
	})
	if err != nil {
		return nil, err
	}

	leadsEnv := leads.LoadConfigFromEnv()
	var relay leads.Relay
	if leadsEnv.RelayURL != "" {
		relay = leads.NewHTTPRelay(leadsEnv.RelayURL, leadsEnv.RelayTimeout)
	}
	leadSvc, err := leads.NewService(log, leadsEnv.Service, st.leads, relay)
	if err != nil {
		return nil, err
	}
	a.leads = leads.NewHandler(log, leadsEnv.Handler, leadSvc)

	a.site, err = web.New(log, web.Config{
		WSPath:            "/ws",
		RefreshCookieName: authCfg.RefreshCookieName,
		CSRFCookieName:    authCfg.CSRFCookieName,
		CSRFHeaderName:    authCfg.CSRFHeaderName,
	}, web.Deps{
		Leads:    leadSvc,
		Limiter:  a.leads,
		Sessions: sessions,
	})
	if err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

func (a *App) openStores() (stores, error) {
	if a.pool == nil {
		return stores{
			users:         identity.NewMemoryStore(),
			sessions:      session.NewMemoryStore(),
			conversations: conversation.NewMemoryStore(a.bus),
			leads:         leads.NewMemoryStore(),
		}, nil
	}

	schema := a.cfg.DBSchema
	users, err := identity.NewPostgresStore(a.pool, identity.WithSchema(schema))
	if err != nil {
		return stores{}, err
	}
	sess, err := session.NewPostgresStore(a.pool, schema)
	if err != nil {
		return stores{}, err
	}
	convs, err := conversation.NewPostgresStore(a.pool, a.bus,
		conversation.WithSchema(schema),
		conversation.WithLogger(a.log),
	)
	if err != nil {
		return stores{}, err
	}
	ls, err := leads.NewPostgresStore(a.pool, schema)
	if err != nil {
		return stores{}, err
	}
	return stores{users: users, sessions: sess, conversations: convs, leads: ls}, nil
}

// Run serves HTTP and runs the change-bus listener and the hub until ctx ends or
// one of them fails.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.routes(),
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout,
		ReadTimeout:       a.cfg.ReadTimeout,
		WriteTimeout:      a.cfg.WriteTimeout,
		IdleTimeout:       a.cfg.IdleTimeout,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	base := strings.TrimRight(a.cfg.PublicURL, "/")
	if base == "" {
		base = runtimeBaseURL(a.cfg.HTTPAddr)
	}
	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"url", base,
		"ws_url", wsBaseURL(base)+"/ws",
		"db_enabled", a.pool != nil,
		"changes", fmt.Sprintf("%T", a.bus),
	)

	g, gctx := errgroup.WithContext(ctx)

	if r, ok := a.bus.(changes.Runner); ok {
		g.Go(func() error {
			if err := r.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("change bus: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		if err := a.hub.Run(gctx, a.bus); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("hub: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", context.Cause(gctx))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(a.cfg.ShutdownTimeout))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		return nil
	})

	err := g.Wait()
	if cerr := a.Close(context.Background()); cerr != nil {
		a.log.Error("app.close.fail", "err", cerr)
	}
	if err != nil {
		a.log.Error("server.fail", "err", err)
		return err
	}
	a.log.Info("server.stopped")
	return nil
}

// Close releases the bus and the pool. It is safe to call on a partly built App.
func (a *App) Close(_ context.Context) error {
	var errs []error
	if a.bus != nil {
		errs = append(errs, a.bus.Close())
		a.bus = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return errors.Join(errs...)
}

func shutdownTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}
