package leads

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// HandlerConfig bounds the public form endpoints.
type HandlerConfig struct {
	TrustProxy   bool
	MaxBodyBytes int64

	SubmitIPMax    int
	SubmitIPWindow time.Duration
}

func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		MaxBodyBytes:   32 << 10,
		SubmitIPMax:    5,
		SubmitIPWindow: 10 * time.Minute,
	}
}

// EnvConfig is everything the leads package reads from the environment.
type EnvConfig struct {
	Service      Config
	Handler      HandlerConfig
	RelayURL     string
	RelayTimeout time.Duration
}

// LoadConfigFromEnv reads AXIONX_DEMO_URL, AXIONX_FORM_RELAY_* and AXIONX_LEADS_*.
func LoadConfigFromEnv() EnvConfig {
	d := DefaultHandlerConfig()
	return EnvConfig{
		Service: Config{DemoURL: strings.TrimSpace(os.Getenv("AXIONX_DEMO_URL"))},
		Handler: HandlerConfig{
			TrustProxy:     envBool("AXIONX_TRUST_PROXY", false),
			MaxBodyBytes:   d.MaxBodyBytes,
			SubmitIPMax:    envInt("AXIONX_LEADS_IP_MAX", d.SubmitIPMax),
			SubmitIPWindow: envDuration("AXIONX_LEADS_IP_WINDOW", d.SubmitIPWindow),
		},
		RelayURL:     strings.TrimSpace(os.Getenv("AXIONX_FORM_RELAY_URL")),
		RelayTimeout: envDuration("AXIONX_FORM_RELAY_TIMEOUT", 10*time.Second),
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
