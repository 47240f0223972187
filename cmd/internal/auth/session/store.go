package session

import (
	"context"
	"net"
	"time"
)

// Platform is the client kind that owns a session. Web sessions keep the refresh
// token in an HttpOnly cookie; native clients receive it in the response body.
type Platform string

const (
	PlatformWeb     Platform = "web"
	PlatformNative  Platform = "native"
	PlatformUnknown Platform = "unknown"
)

// ParsePlatform maps client input onto a known platform.
func ParsePlatform(s string) Platform {
	switch Platform(s) {
	case PlatformWeb, PlatformNative:
		return Platform(s)
	default:
		return PlatformUnknown
	}
}

// DeviceContext describes the client that owns a session.
type DeviceContext struct {
	Platform   Platform
	RememberMe bool
	UserAgent  string
	IP         net.IP
}

// Row mirrors a sessions row.
type Row struct {
	ID                  string
	UserID              string
	RefreshTokenHash    string
	CreatedAt           time.Time
	LastUsedAt          *time.Time
	ExpiresAt           time.Time
	RevokedAt           *time.Time
	ReplacedBySessionID *string
	Platform            Platform
	UserAgent           string
	IP                  net.IP
}

// Store persists sessions. Rotate must be atomic: no window in which both the old and
// the new refresh token are accepted.
type Store interface {
	Create(ctx context.Context, row Row) error
	GetByID(ctx context.Context, id string) (Row, error)
	GetByRefreshHash(ctx context.Context, refreshHash string) (Row, error)

	// Rotate locks the row for oldHash, checks it with checkRotatable, inserts next
	// (inheriting the old row's UserID) and marks the old row replaced. On reuse it
	// revokes every session of the user and returns ErrRefreshReuseDetected. The old
	// row is returned in every case where it was found.
	Rotate(ctx context.Context, now time.Time, oldHash string, next Row) (old Row, err error)

	Revoke(ctx context.Context, now time.Time, id, reason string) error
	RevokeAll(ctx context.Context, now time.Time, userID, reason string) error
}

// checkRotatable is the rotation policy shared by every Store implementation.
func checkRotatable(row Row, now time.Time) error {
	switch {
	case row.RevokedAt != nil && row.ReplacedBySessionID != nil:
		return ErrRefreshReuseDetected
	case row.RevokedAt != nil:
		return ErrSessionRevoked
	case !row.ExpiresAt.After(now):
		return ErrSessionExpired
	}
	return nil
}

// checkActive is the validity rule for access and cookie lookups.
func checkActive(row Row, now time.Time) error {
	switch {
	case row.RevokedAt != nil || row.ReplacedBySessionID != nil:
		return ErrSessionRevoked
	case !row.ExpiresAt.After(now):
		return ErrSessionExpired
	}
	return nil
}
