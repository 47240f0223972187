package realtime

import "time"

// Per-connection limits.
const (
	// Max bytes per websocket frame read (hard limit). A chat message is at most
	// 2000 runes, so 16 KiB leaves room for the envelope.
	maxFrameBytes = 16 << 10

	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limits (events per window).
	rateLimitEvents = 60
	rateLimitWindow = 10 * time.Second
)
