package gate

import (
	"context"
	"net/http"
	"time"

	"axionx/cmd/internal/auth/session"
)

// SessionLookup resolves a refresh token to its live session.
type SessionLookup interface {
	LookupRefresh(ctx context.Context, refreshPlain string, now time.Time) (session.Row, error)
}

type ctxKey struct{}

// FromContext returns the identity RequireSession attached to the request.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// RequireSession sends requests without a live refresh cookie to redirectTo.
func RequireSession(lookup SessionLookup, cookieName, redirectTo string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(cookieName)
			if err != nil || c.Value == "" {
				http.Redirect(w, r, redirectTo, http.StatusSeeOther)
				return
			}
			row, err := lookup.LookupRefresh(r.Context(), c.Value, time.Now().UTC())
			if err != nil {
				http.Redirect(w, r, redirectTo, http.StatusSeeOther)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKey{}, Identity{UserID: row.UserID, SessionID: row.ID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
