package chatapi

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls the widget and conversation endpoints.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	// WidgetOrigins may call /api/ask cross-origin. "*" allows any origin.
	WidgetOrigins []string

	AskIPMax    int
	AskIPWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxBodyBytes: 64 << 10,
		AskIPMax:     20,
		AskIPWindow:  time.Minute,
	}
}

// LoadConfigFromEnv reads AXIONX_WIDGET_ORIGINS and AXIONX_ASK_* over the defaults.
func LoadConfigFromEnv() Config {
	d := DefaultConfig()
	return Config{
		TrustProxy:    envBool("AXIONX_TRUST_PROXY", false),
		MaxBodyBytes:  d.MaxBodyBytes,
		WidgetOrigins: splitCSV(os.Getenv("AXIONX_WIDGET_ORIGINS")),
		AskIPMax:      envInt("AXIONX_ASK_IP_MAX", d.AskIPMax),
		AskIPWindow:   envDuration("AXIONX_ASK_IP_WINDOW", d.AskIPWindow),
	}
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
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
