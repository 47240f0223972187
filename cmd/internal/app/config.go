package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"axionx/cmd/internal/changes"
	"axionx/cmd/internal/pgstore"
)

// Config contains the process-level settings loaded from AXIONX_* variables.
// Feature packages (authapi, realtime, chatapi, leads) read their own.
type Config struct {
	HTTPAddr  string
	PublicURL string
	LogLevel  string
	LogFormat string

	// Dev relaxes startup checks: an ephemeral PASETO key is generated when none
	// is configured and the pretty log handler becomes the default.
	Dev bool

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	// WriteTimeout covers /api/ask, which waits on the answer service. /ws hijacks
	// the connection and is not bound by it.
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	ShutdownTimeout   time.Duration

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32
	DBMigrate   bool

	// ReadinessRequireDB makes /readyz fail unless Postgres is configured and reachable.
	ReadinessRequireDB bool

	ChangesDriver  string
	ChangesChannel string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	GatewayURL     string
	GatewayTimeout time.Duration

	// CORS policy for the account API when called from other origins (native shells,
	// local tooling). Same-origin requests are always allowed.
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// RequireTokenHMAC refuses to start unless refresh tokens are hashed with a
	// configured HMAC key.
	RequireTokenHMAC bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	dev := EnvBool("AXIONX_DEV", false)
	format := "json"
	if dev {
		format = "pretty"
	}
	return Config{
		HTTPAddr:  EnvString("AXIONX_HTTP_ADDR", "0.0.0.0:8080"),
		PublicURL: EnvString("AXIONX_PUBLIC_URL", ""),
		LogLevel:  EnvString("AXIONX_LOG_LEVEL", "info"),
		LogFormat: EnvString("AXIONX_LOG_FORMAT", format),
		Dev:       dev,

		ReadHeaderTimeout: EnvDuration("AXIONX_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("AXIONX_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("AXIONX_HTTP_WRITE_TIMEOUT", 45*time.Second),
		IdleTimeout:       EnvDuration("AXIONX_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("AXIONX_HTTP_MAX_HEADER_BYTES", 1<<20),
		ShutdownTimeout:   EnvDuration("AXIONX_SHUTDOWN_TIMEOUT", 10*time.Second),

		DatabaseURL: EnvString("AXIONX_DATABASE_URL", ""),
		DBSchema:    EnvString("AXIONX_DB_SCHEMA", pgstore.DefaultSchema),
		DBMaxConns:  EnvInt32("AXIONX_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("AXIONX_DB_MIN_CONNS", 0),
		DBMigrate:   EnvBool("AXIONX_DB_MIGRATE", true),

		ReadinessRequireDB: EnvBool("AXIONX_READINESS_REQUIRE_DB", false),

		ChangesDriver:  EnvString("AXIONX_CHANGES_DRIVER", ""),
		ChangesChannel: EnvString("AXIONX_CHANGES_CHANNEL", "axionx_changes"),
		RedisAddr:      EnvString("AXIONX_REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:  EnvString("AXIONX_REDIS_PASSWORD", ""),
		RedisDB:        EnvIntAllowZero("AXIONX_REDIS_DB", 0),

		GatewayURL:     EnvString("AXIONX_GATEWAY_URL", ""),
		GatewayTimeout: EnvDuration("AXIONX_GATEWAY_TIMEOUT", 30*time.Second),

		CORSAllowedOrigins:   EnvCSV("AXIONX_CORS_ALLOWED_ORIGINS"),
		CORSAllowCredentials: EnvBool("AXIONX_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("AXIONX_CORS_MAX_AGE_SECONDS", 600),

		RequireTokenHMAC: EnvBool("AXIONX_REQUIRE_TOKEN_HMAC", false),
	}
}

// Validate rejects combinations that cannot start.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("AXIONX_HTTP_ADDR is empty"))
	}
	if !pgstore.ValidIdent(c.DBSchema) {
		errs = append(errs, fmt.Errorf("AXIONX_DB_SCHEMA %q is not a plain identifier", c.DBSchema))
	}
	if c.DBMinConns > c.DBMaxConns && c.DBMaxConns > 0 {
		errs = append(errs, errors.New("AXIONX_DB_MIN_CONNS exceeds AXIONX_DB_MAX_CONNS"))
	}
	switch strings.ToLower(c.ChangesDriver) {
	case "", changes.DriverLocal, changes.DriverRedis:
	case changes.DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("AXIONX_CHANGES_DRIVER=postgres needs AXIONX_DATABASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("AXIONX_CHANGES_DRIVER %q is unknown", c.ChangesDriver))
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "pretty", "text":
	default:
		errs = append(errs, fmt.Errorf("AXIONX_LOG_FORMAT %q is unknown", c.LogFormat))
	}
	if c.PublicURL != "" && !strings.HasPrefix(c.PublicURL, "http://") && !strings.HasPrefix(c.PublicURL, "https://") {
		errs = append(errs, errors.New("AXIONX_PUBLIC_URL must start with http:// or https://"))
	}
	return errors.Join(errs...)
}
