package authapi

import (
	"time"

	"axionx/cmd/identity"
	"axionx/cmd/internal/auth/session"
)

type credentialsRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
	Platform   string `json:"platform"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	RememberMe   bool   `json:"remember_me"`
	Platform     string `json:"platform"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResponse struct {
	SessionID        string    `json:"session_id"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	CSRFToken        string    `json:"csrf_token,omitempty"`
}

// authResponse answers signup and login. Message is the line the auth page shows.
type authResponse struct {
	User     userResponse    `json:"user"`
	Session  sessionResponse `json:"session"`
	Message  string          `json:"message"`
	Redirect string          `json:"redirect"`
}

type refreshResponse struct {
	Session sessionResponse `json:"session"`
}

type sessionInfoResponse struct {
	User      userResponse `json:"user"`
	SessionID string       `json:"session_id"`
	ExpiresAt time.Time    `json:"expires_at"`
}

func newUserResponse(u identity.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt}
}
