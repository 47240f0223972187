package session

import "errors"

var (
	ErrInvalidToken         = errors.New("invalid token")
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionExpired       = errors.New("session expired")
	ErrSessionRevoked       = errors.New("session revoked")
	ErrRefreshReuseDetected = errors.New("refresh token reuse detected")
	ErrConfig               = errors.New("invalid session config")
)

// Inactive reports whether err means the presented credential no longer maps to a
// live session. Callers treat all of these as "signed out".
func Inactive(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, ErrSessionRevoked) ||
		errors.Is(err, ErrRefreshReuseDetected)
}
