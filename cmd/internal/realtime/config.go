package realtime

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GatewayConfig controls the /ws endpoint.
type GatewayConfig struct {
	// DevInsecure disables websocket.Accept's own origin verification. Dev only.
	DevInsecure    bool
	OriginRequired bool
	AllowedOrigins []string

	WriteTimeout    time.Duration
	ReadIdleTimeout time.Duration
	SendQueueSize   int

	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration

	RateEvents int
	RateWindow time.Duration

	// SignedOutRedirect is where a signed-out surface is sent.
	SignedOutRedirect string
}

const (
	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 30 * time.Minute

	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		OriginRequired:    wsDefaultOriginRequired,
		AllowedOrigins:    splitCSV(wsDefaultAllowedOrigins),
		WriteTimeout:      wsDefaultWriteTimeout,
		ReadIdleTimeout:   wsDefaultReadIdle,
		SendQueueSize:     wsDefaultSendQueueSize,
		HeartbeatEvery:    heartbeatInterval,
		HeartbeatTimeout:  heartbeatTimeout,
		RateEvents:        rateLimitEvents,
		RateWindow:        rateLimitWindow,
		SignedOutRedirect: "/auth",
	}
}

// LoadGatewayConfigFromEnv reads AXIONX_WS_* over the defaults.
func LoadGatewayConfigFromEnv() GatewayConfig {
	d := DefaultGatewayConfig()
	cfg := GatewayConfig{
		DevInsecure:       envBoolWS("AXIONX_WS_DEV_INSECURE", false),
		OriginRequired:    envBoolWS("AXIONX_WS_ORIGIN_REQUIRED", d.OriginRequired),
		AllowedOrigins:    splitCSV(envStringWS("AXIONX_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)),
		WriteTimeout:      envDurationWS("AXIONX_WS_WRITE_TIMEOUT", d.WriteTimeout),
		ReadIdleTimeout:   envDurationWS("AXIONX_WS_READ_IDLE_TIMEOUT", d.ReadIdleTimeout),
		SendQueueSize:     envIntWS("AXIONX_WS_SEND_QUEUE", d.SendQueueSize),
		HeartbeatEvery:    envDurationWS("AXIONX_WS_HEARTBEAT_INTERVAL", d.HeartbeatEvery),
		HeartbeatTimeout:  envDurationWS("AXIONX_WS_HEARTBEAT_TIMEOUT", d.HeartbeatTimeout),
		RateEvents:        envIntWS("AXIONX_WS_RATE_EVENTS", d.RateEvents),
		RateWindow:        envDurationWS("AXIONX_WS_RATE_WINDOW", d.RateWindow),
		SignedOutRedirect: d.SignedOutRedirect,
	}
	return cfg.normalized()
}

func (c GatewayConfig) normalized() GatewayConfig {
	d := DefaultGatewayConfig()
	if c.SendQueueSize < wsMinSendQueueSize {
		c.SendQueueSize = wsMinSendQueueSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.ReadIdleTimeout <= 0 {
		c.ReadIdleTimeout = d.ReadIdleTimeout
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = d.HeartbeatEvery
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = d.HeartbeatTimeout
	}
	if c.RateEvents <= 0 {
		c.RateEvents = d.RateEvents
	}
	if c.RateWindow <= 0 {
		c.RateWindow = d.RateWindow
	}
	if strings.TrimSpace(c.SignedOutRedirect) == "" {
		c.SignedOutRedirect = d.SignedOutRedirect
	}
	return c
}

// ---- env helpers ----

func envStringWS(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBoolWS(key string, def bool) bool {
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

func envIntWS(key string, def int) int {
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

func envDurationWS(key string, def time.Duration) time.Duration {
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

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
