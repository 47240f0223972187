package realtime

import (
	"context"
	"testing"
	"time"

	"axionx/cmd/internal/auth/gate"
	"axionx/cmd/internal/changes"
)

func signedInClient(id, userID, sessionID string) *Client {
	g := gate.New(nil, nil)
	g.SignIn(gate.Identity{UserID: userID, SessionID: sessionID})
	return NewClient(id, g, 8)
}

func kicked(c *Client) bool {
	select {
	case <-c.Kicks():
		return true
	default:
		return false
	}
}

func TestHub_ConversationChangesKickOwnerOnly(t *testing.T) {
	h := NewHub(nil)
	a1 := signedInClient("a1", "user-a", "sess-a1")
	a2 := signedInClient("a2", "user-a", "sess-a2")
	b := signedInClient("b", "user-b", "sess-b")
	h.Register("user-a", a1)
	h.Register("user-a", a2)
	h.Register("user-b", b)

	h.Dispatch(changes.Change{Table: changes.TableConversations, Op: changes.OpInsert, ID: "c1", OwnerID: "user-a"})
	h.Dispatch(changes.Change{Table: changes.TableMessages, Op: changes.OpInsert, ID: "m1", OwnerID: "user-a"})

	if !kicked(a1) || !kicked(a2) {
		t.Fatalf("expected both of user-a's clients to be kicked")
	}
	// Two changes coalesce into one kick.
	if kicked(a1) {
		t.Fatalf("expected kicks to coalesce")
	}
	if kicked(b) {
		t.Fatalf("user-b must not be kicked")
	}
}

func TestHub_SessionChangesExpireMatchingGates(t *testing.T) {
	h := NewHub(nil)
	a1 := signedInClient("a1", "user-a", "sess-a1")
	a2 := signedInClient("a2", "user-a", "sess-a2")
	h.Register("user-a", a1)
	h.Register("user-a", a2)

	h.Dispatch(changes.Change{Table: changes.TableSessions, Op: changes.OpDelete, OwnerID: "user-a", SessionID: "sess-a1"})
	if _, ok := a1.Gate.Identity(); ok {
		t.Fatalf("expected a1 to be signed out")
	}
	if _, ok := a2.Gate.Identity(); !ok {
		t.Fatalf("a2 belongs to another session and must stay signed in")
	}

	h.Dispatch(changes.Change{Table: changes.TableSessions, Op: changes.OpDelete, OwnerID: "user-a"})
	if _, ok := a2.Gate.Identity(); ok {
		t.Fatalf("an all-sessions change must sign every client out")
	}
}

func TestHub_UnregisterAndRun(t *testing.T) {
	h := NewHub(nil)
	bus := changes.NewLocalBus()
	c := signedInClient("c", "user-c", "sess-c")
	h.Register("user-c", c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, bus) }()

	deadline := time.Now().Add(2 * time.Second)
	for bus.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("hub never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := bus.Publish(ctx, changes.Change{Table: changes.TableConversations, OwnerID: "user-c"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case <-c.Kicks():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a kick from the bus")
	}

	h.Unregister("user-c", c)
	if n := h.Clients("user-c"); n != 0 {
		t.Fatalf("Clients = %d", n)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return")
	}
}

func TestHub_BurstForOneOwnerKeepsAnotherOwnersLogout(t *testing.T) {
	h := NewHub(nil)
	bus := changes.NewLocalBus()
	defer bus.Close()

	a := signedInClient("a", "user-a", "sess-a")
	b := signedInClient("b", "user-b", "sess-b")
	h.Register("user-a", a)
	h.Register("user-b", b)

	// Subscribe before anything runs so the burst queues up behind a stalled hub.
	ch, unsub := bus.Subscribe(changes.TableConversations, changes.TableMessages, changes.TableSessions)
	defer unsub()

	ctx := context.Background()
	for i := 0; i < 256; i++ {
		_ = bus.Publish(ctx, changes.Change{Table: changes.TableMessages, Op: changes.OpInsert, OwnerID: "user-a"})
	}
	_ = bus.Publish(ctx, changes.Change{Table: changes.TableSessions, Op: changes.OpDelete, OwnerID: "user-b", SessionID: "sess-b"})

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := b.Gate.Identity(); !ok {
			break
		}
		select {
		case c := <-ch:
			h.Dispatch(c)
		case <-deadline:
			t.Fatalf("user-b's logout never reached the hub")
		}
	}
	if !kicked(a) {
		t.Fatalf("user-a's list refresh was lost")
	}
	if _, ok := a.Gate.Identity(); !ok {
		t.Fatalf("user-a must stay signed in")
	}
}
