package session

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"axionx/cmd/identity"
	"axionx/cmd/internal/pgstore/pgtest"
	"axionx/cmd/security/token"

	paseto "aidanwoods.dev/go-paseto"
)

func newTestService(t *testing.T, st Store) *Service {
	t.Helper()
	cfg := DefaultConfig()
	cfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	mgr, err := NewPasetoV4PublicManager(cfg)
	if err != nil {
		t.Fatalf("NewPasetoV4PublicManager: %v", err)
	}
	return NewService(cfg, st, mgr, token.NewHasher([]byte("0123456789abcdef0123456789abcdef")))
}

type storeCase struct {
	store  Store
	userID string
}

func sessionStores(t *testing.T) map[string]storeCase {
	t.Helper()
	out := map[string]storeCase{"memory": {store: NewMemoryStore(), userID: "01J0USER000000000000000000"}}

	if pool := pgtest.Maybe(t); pool != nil {
		schema := pgtest.Schema(t, pool)
		users, err := identity.NewPostgresStore(pool, identity.WithSchema(schema))
		if err != nil {
			t.Fatalf("identity store: %v", err)
		}
		u, err := users.CreateUser(context.Background(), identity.CreateUserInput{Email: "it@axionx.io", PasswordHash: "h"})
		if err != nil {
			t.Fatalf("seed user: %v", err)
		}
		st, err := NewPostgresStore(pool, schema)
		if err != nil {
			t.Fatalf("session store: %v", err)
		}
		out["postgres"] = storeCase{store: st, userID: u.ID}
	}
	return out
}

func TestPasetoV4_IssueAndVerify(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	mgr, err := NewPasetoV4PublicManager(cfg)
	if err != nil {
		t.Fatalf("NewPasetoV4PublicManager: %v", err)
	}

	now := time.Now().UTC()
	tok, exp, err := mgr.Issue("01HZZZZZZZZZZZZZZZZZZZZZZZ", "01HYYYYYYYYYYYYYYYYYYYYYYY", now)
	if err != nil || !exp.After(now) {
		t.Fatalf("Issue: exp=%v err=%v", exp, err)
	}

	claims, err := mgr.Verify(tok, now.Add(time.Second))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "01HZZZZZZZZZZZZZZZZZZZZZZZ" || claims.SessionID != "01HYYYYYYYYYYYYYYYYYYYYYYY" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err := mgr.Verify(tok+"x", now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for tampered token, got %v", err)
	}
	if _, err := mgr.Verify(tok, exp.Add(time.Minute)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestService_Lifecycle(t *testing.T) {
	for name, tc := range sessionStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc := newTestService(t, tc.store)
			now := time.Now().UTC().Truncate(time.Microsecond)
			dev := DeviceContext{Platform: PlatformWeb, UserAgent: "test", IP: net.ParseIP("10.0.0.1")}

			iss, err := svc.Issue(ctx, now, tc.userID, dev)
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}

			claims, err := svc.ValidateAccessToken(ctx, iss.AccessToken, now)
			if err != nil || claims.SessionID != iss.SessionID || claims.UserID != tc.userID {
				t.Fatalf("ValidateAccessToken: %+v %v", claims, err)
			}

			row, err := svc.LookupRefresh(ctx, iss.RefreshToken, now)
			if err != nil || row.ID != iss.SessionID {
				t.Fatalf("LookupRefresh: %+v %v", row, err)
			}

			rotated, err := svc.Rotate(ctx, now.Add(time.Second), iss.RefreshToken, dev)
			if err != nil {
				t.Fatalf("Rotate: %v", err)
			}
			if rotated.SessionID == iss.SessionID || rotated.UserID != tc.userID {
				t.Fatalf("unexpected rotation result %+v", rotated)
			}

			// The old access token dies with the rotated session.
			if _, err := svc.ValidateAccessToken(ctx, iss.AccessToken, now.Add(2*time.Second)); !errors.Is(err, ErrSessionRevoked) {
				t.Fatalf("expected ErrSessionRevoked, got %v", err)
			}

			// Replaying the rotated token revokes the whole family.
			if _, err := svc.Rotate(ctx, now.Add(3*time.Second), iss.RefreshToken, dev); !errors.Is(err, ErrRefreshReuseDetected) {
				t.Fatalf("expected reuse detection, got %v", err)
			}
			if _, err := svc.ValidateAccessToken(ctx, rotated.AccessToken, now.Add(4*time.Second)); !Inactive(err) {
				t.Fatalf("expected rotated session revoked after reuse, got %v", err)
			}
		})
	}
}

func TestService_RevokeAndExpiry(t *testing.T) {
	for name, tc := range sessionStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc := newTestService(t, tc.store)
			now := time.Now().UTC()

			iss, err := svc.Issue(ctx, now, tc.userID, DeviceContext{Platform: PlatformNative})
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}
			if err := svc.Revoke(ctx, now, iss.SessionID); err != nil {
				t.Fatalf("Revoke: %v", err)
			}
			if _, err := svc.LookupRefresh(ctx, iss.RefreshToken, now); !errors.Is(err, ErrSessionRevoked) {
				t.Fatalf("expected ErrSessionRevoked, got %v", err)
			}
			if _, err := svc.Rotate(ctx, now, iss.RefreshToken, DeviceContext{}); !errors.Is(err, ErrSessionRevoked) {
				t.Fatalf("expected ErrSessionRevoked on rotate, got %v", err)
			}

			iss2, err := svc.Issue(ctx, now, tc.userID, DeviceContext{})
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}
			later := iss2.RefreshExp.Add(time.Second)
			if _, err := svc.Rotate(ctx, later, iss2.RefreshToken, DeviceContext{}); !errors.Is(err, ErrSessionExpired) {
				t.Fatalf("expected ErrSessionExpired, got %v", err)
			}
			if _, err := svc.LookupRefresh(ctx, "unknown", now); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("expected ErrSessionNotFound, got %v", err)
			}
		})
	}
}

func TestService_RememberMeTTL(t *testing.T) {
	svc := newTestService(t, NewMemoryStore())
	now := time.Now().UTC()

	short, _ := svc.Issue(context.Background(), now, "u", DeviceContext{})
	long, _ := svc.Issue(context.Background(), now, "u", DeviceContext{RememberMe: true})
	if !long.RefreshExp.After(short.RefreshExp) {
		t.Fatalf("remember-me session should outlive default: %v vs %v", long.RefreshExp, short.RefreshExp)
	}
}
