package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"axionx/cmd/identity/ids"
	"axionx/cmd/security/token"
)

// Service is the session API used by the auth handlers, the chat gate and the
// WebSocket hello handshake.
type Service struct {
	cfg    Config
	tokens AccessTokenManager
	store  Store
	hasher token.Hasher
}

// Issued is the result of issuing or rotating a session.
type Issued struct {
	SessionID    string
	UserID       string
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

func NewService(cfg Config, store Store, tokens AccessTokenManager, hasher token.Hasher) *Service {
	return &Service{cfg: cfg, store: store, tokens: tokens, hasher: hasher}
}

func (s *Service) refreshTTL(dev DeviceContext) time.Duration {
	if dev.RememberMe {
		return s.cfg.RefreshTTLRemember
	}
	return s.cfg.RefreshTTL
}

func (s *Service) newRow(now time.Time, userID string, dev DeviceContext) (Row, string, error) {
	plain, err := token.NewOpaque(s.cfg.RefreshTokenBytes)
	if err != nil {
		return Row{}, "", err
	}
	id, err := ids.New(now)
	if err != nil {
		return Row{}, "", err
	}
	return Row{
		ID:               id,
		UserID:           userID,
		RefreshTokenHash: s.hasher.Hash(plain),
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.refreshTTL(dev)),
		Platform:         dev.Platform,
		UserAgent:        dev.UserAgent,
		IP:               dev.IP,
	}, plain, nil
}

func (s *Service) issued(row Row, refreshPlain string, now time.Time) (Issued, error) {
	access, accessExp, err := s.tokens.Issue(row.UserID, row.ID, now)
	if err != nil {
		return Issued{}, err
	}
	return Issued{
		SessionID:    row.ID,
		UserID:       row.UserID,
		AccessToken:  access,
		AccessExp:    accessExp,
		RefreshToken: refreshPlain,
		RefreshExp:   row.ExpiresAt,
	}, nil
}

// Issue starts a new session for userID.
func (s *Service) Issue(ctx context.Context, now time.Time, userID string, dev DeviceContext) (Issued, error) {
	row, plain, err := s.newRow(now, userID, dev)
	if err != nil {
		return Issued{}, err
	}
	if err := s.store.Create(ctx, row); err != nil {
		return Issued{}, err
	}
	return s.issued(row, plain, now)
}

// ValidateAccessToken verifies the token signature and that the backing session is
// still live, so revocation takes effect before the token expires.
func (s *Service) ValidateAccessToken(ctx context.Context, tok string, now time.Time) (AccessClaims, error) {
	claims, err := s.tokens.Verify(strings.TrimSpace(tok), now)
	if err != nil {
		return AccessClaims{}, err
	}

	row, err := s.store.GetByID(ctx, claims.SessionID)
	if err != nil {
		return AccessClaims{}, err
	}
	if row.UserID != claims.UserID {
		return AccessClaims{}, ErrInvalidToken
	}
	if err := checkActive(row, now); err != nil {
		return AccessClaims{}, err
	}
	return claims, nil
}

// LookupRefresh resolves a refresh token to its live session without rotating it.
// Page gating uses this to decide between /chat and /auth.
func (s *Service) LookupRefresh(ctx context.Context, refreshPlain string, now time.Time) (Row, error) {
	refreshPlain = strings.TrimSpace(refreshPlain)
	if refreshPlain == "" || len(refreshPlain) > 4096 {
		return Row{}, ErrSessionNotFound
	}
	row, err := s.store.GetByRefreshHash(ctx, s.hasher.Hash(refreshPlain))
	if err != nil {
		return Row{}, err
	}
	if err := checkActive(row, now); err != nil {
		return Row{}, err
	}
	return row, nil
}

// Rotate exchanges a refresh token for a new session. The returned error is
// ErrRefreshReuseDetected when an already-rotated token is replayed; by then every
// session of that user has been revoked, and the returned Issued carries only the
// UserID so the caller can announce it.
func (s *Service) Rotate(ctx context.Context, now time.Time, refreshPlain string, dev DeviceContext) (Issued, error) {
	refreshPlain = strings.TrimSpace(refreshPlain)
	if refreshPlain == "" || len(refreshPlain) > 4096 {
		return Issued{}, ErrSessionNotFound
	}

	next, plain, err := s.newRow(now, "", dev)
	if err != nil {
		return Issued{}, err
	}
	old, err := s.store.Rotate(ctx, now, s.hasher.Hash(refreshPlain), next)
	if errors.Is(err, ErrRefreshReuseDetected) {
		return Issued{UserID: old.UserID}, err
	}
	if err != nil {
		return Issued{}, err
	}
	next.UserID = old.UserID
	return s.issued(next, plain, now)
}

// Revoke ends one session (logout on this device).
func (s *Service) Revoke(ctx context.Context, now time.Time, sessionID string) error {
	return s.store.Revoke(ctx, now, sessionID, "logout")
}

// RevokeAll ends every session of userID.
func (s *Service) RevokeAll(ctx context.Context, now time.Time, userID string) error {
	return s.store.RevokeAll(ctx, now, userID, "logout_all")
}
