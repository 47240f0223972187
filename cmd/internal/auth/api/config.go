package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"axionx/cmd/internal/ratelimit"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	LoginIPMax    int
	LoginIPWindow time.Duration

	LoginUserMax    int
	LoginUserWindow time.Duration

	LockoutShortThreshold  int
	LockoutShortDuration   time.Duration
	LockoutLongThreshold   int
	LockoutLongDuration    time.Duration
	LockoutSevereThreshold int
	LockoutSevereDuration  time.Duration

	SignupIPMax    int
	SignupIPWindow time.Duration

	WebRefreshCookieEnabled bool
	RefreshCookieName       string
	CSRFCookieName          string
	CSRFHeaderName          string
	CookiePath              string
	CookieDomain            string
	CookieSecure            bool
	CookieSameSite          http.SameSite
}

// LoadConfigFromEnv loads auth config from AXIONX_AUTH_* with safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		TrustProxy:             envBool("AXIONX_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:           envInt64("AXIONX_AUTH_MAX_BODY_BYTES", 1<<20),
		LoginIPMax:             envInt("AXIONX_AUTH_LOGIN_IP_MAX", 20),
		LoginIPWindow:          envDuration("AXIONX_AUTH_LOGIN_IP_WINDOW", 5*time.Minute),
		LoginUserMax:           envInt("AXIONX_AUTH_LOGIN_USER_MAX", 5),
		LoginUserWindow:        envDuration("AXIONX_AUTH_LOGIN_USER_WINDOW", 15*time.Minute),
		LockoutShortThreshold:  envInt("AXIONX_AUTH_LOGIN_LOCKOUT_SHORT_THRESHOLD", 5),
		LockoutShortDuration:   envDuration("AXIONX_AUTH_LOGIN_LOCKOUT_SHORT_DURATION", 5*time.Minute),
		LockoutLongThreshold:   envInt("AXIONX_AUTH_LOGIN_LOCKOUT_LONG_THRESHOLD", 10),
		LockoutLongDuration:    envDuration("AXIONX_AUTH_LOGIN_LOCKOUT_LONG_DURATION", 30*time.Minute),
		LockoutSevereThreshold: envInt("AXIONX_AUTH_LOGIN_LOCKOUT_SEVERE_THRESHOLD", 20),
		LockoutSevereDuration:  envDuration("AXIONX_AUTH_LOGIN_LOCKOUT_SEVERE_DURATION", 2*time.Hour),
		SignupIPMax:            envInt("AXIONX_AUTH_SIGNUP_IP_MAX", 10),
		SignupIPWindow:         envDuration("AXIONX_AUTH_SIGNUP_IP_WINDOW", time.Hour),

		WebRefreshCookieEnabled: envBool("AXIONX_AUTH_WEB_REFRESH_COOKIE", true),
		RefreshCookieName:       envString("AXIONX_AUTH_REFRESH_COOKIE_NAME", "axionx_refresh"),
		CSRFCookieName:          envString("AXIONX_AUTH_CSRF_COOKIE_NAME", "axionx_csrf"),
		CSRFHeaderName:          envString("AXIONX_AUTH_CSRF_HEADER", "X-CSRF-Token"),
		CookiePath:              envString("AXIONX_AUTH_COOKIE_PATH", "/"),
		CookieDomain:            envString("AXIONX_AUTH_COOKIE_DOMAIN", ""),
		CookieSecure:            envBool("AXIONX_AUTH_COOKIE_SECURE", true),
		CookieSameSite:          parseSameSite(envString("AXIONX_AUTH_COOKIE_SAMESITE", "lax")),
	}

	if cfg.CSRFCookieName == cfg.RefreshCookieName {
		cfg.CSRFCookieName = cfg.RefreshCookieName + "_csrf"
	}
	// Browsers drop SameSite=None cookies without Secure.
	if cfg.CookieSameSite == http.SameSiteNoneMode {
		cfg.CookieSecure = true
	}
	return cfg
}

// DefaultConfig is LoadConfigFromEnv with an empty environment.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:            1 << 20,
		LoginIPMax:              20,
		LoginIPWindow:           5 * time.Minute,
		LoginUserMax:            5,
		LoginUserWindow:         15 * time.Minute,
		LockoutShortThreshold:   5,
		LockoutShortDuration:    5 * time.Minute,
		LockoutLongThreshold:    10,
		LockoutLongDuration:     30 * time.Minute,
		LockoutSevereThreshold:  20,
		LockoutSevereDuration:   2 * time.Hour,
		SignupIPMax:             10,
		SignupIPWindow:          time.Hour,
		WebRefreshCookieEnabled: true,
		RefreshCookieName:       "axionx_refresh",
		CSRFCookieName:          "axionx_csrf",
		CSRFHeaderName:          "X-CSRF-Token",
		CookiePath:              "/",
		CookieSecure:            true,
		CookieSameSite:          http.SameSiteLaxMode,
	}
}

func (c Config) lockoutTiers() []ratelimit.Tier {
	return []ratelimit.Tier{
		{Threshold: c.LockoutSevereThreshold, Duration: c.LockoutSevereDuration},
		{Threshold: c.LockoutLongThreshold, Duration: c.LockoutLongDuration},
		{Threshold: c.LockoutShortThreshold, Duration: c.LockoutShortDuration},
	}
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
