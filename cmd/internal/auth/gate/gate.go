// Package gate holds the signed-in identity of one chat surface and reacts to it
// going away, whether by explicit sign-out or by the session ending elsewhere.
package gate

import (
	"context"
	"errors"
	"sync"
	"time"

	"axionx/cmd/internal/changes"
)

var ErrSignedOut = errors.New("gate: signed out")

// Identity is the signed-in user of a surface.
type Identity struct {
	UserID    string
	SessionID string
}

// Revoker ends a session server-side.
type Revoker interface {
	Revoke(ctx context.Context, now time.Time, sessionID string) error
}

// Publisher is the write side of a changes.Bus.
type Publisher interface {
	Publish(ctx context.Context, c changes.Change) error
}

// Listener is called with the new identity; ok is false once signed out.
type Listener func(id Identity, ok bool)

// Gate is safe for concurrent use. Listeners run outside the lock, in the goroutine
// that caused the change.
type Gate struct {
	revoker Revoker
	pub     Publisher

	mu        sync.Mutex
	id        Identity
	ok        bool
	listeners map[uint64]Listener
	next      uint64
}

// New returns a signed-out gate. revoker and pub may be nil for surfaces that can
// only observe sign-out.
func New(revoker Revoker, pub Publisher) *Gate {
	return &Gate{revoker: revoker, pub: pub, listeners: make(map[uint64]Listener)}
}

func (g *Gate) Identity() (Identity, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.id, g.ok
}

func (g *Gate) SignIn(id Identity) {
	g.set(id, true)
}

// Expire clears the identity without touching the server. It is the reaction to a
// session ended somewhere else. Expiring a signed-out gate does nothing.
func (g *Gate) Expire() {
	g.set(Identity{}, false)
}

// SignOut revokes the session, announces it, then clears the identity. The gate is
// cleared even when revocation fails.
func (g *Gate) SignOut(ctx context.Context) error {
	id, ok := g.Identity()
	if !ok {
		return nil
	}

	var err error
	if g.revoker != nil {
		err = g.revoker.Revoke(ctx, time.Now().UTC(), id.SessionID)
	}
	if err == nil {
		err = Announce(ctx, g.pub, id.UserID, id.SessionID)
	}
	g.Expire()
	return err
}

// OnChange registers fn and returns its removal.
func (g *Gate) OnChange(fn Listener) func() {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := g.next
	g.next++
	g.listeners[key] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.listeners, key)
			g.mu.Unlock()
		})
	}
}

func (g *Gate) set(id Identity, ok bool) {
	g.mu.Lock()
	if g.ok == ok && g.id == id {
		g.mu.Unlock()
		return
	}
	g.id, g.ok = id, ok
	fns := make([]Listener, 0, len(g.listeners))
	for _, fn := range g.listeners {
		fns = append(fns, fn)
	}
	g.mu.Unlock()

	for _, fn := range fns {
		fn(id, ok)
	}
}

// Announce publishes a session-ended change. An empty sessionID means every session
// of userID. A nil pub is a no-op.
func Announce(ctx context.Context, pub Publisher, userID, sessionID string) error {
	if pub == nil {
		return nil
	}
	return pub.Publish(ctx, changes.Change{
		Table:     changes.TableSessions,
		Op:        changes.OpDelete,
		ID:        sessionID,
		OwnerID:   userID,
		SessionID: sessionID,
	})
}
