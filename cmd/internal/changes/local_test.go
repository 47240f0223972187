package changes

import (
	"context"
	"errors"
	"testing"
	"time"
)

func recv(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed")
		}
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for change")
	}
	return Change{}
}

func TestLocalBus_FanOutAndFilter(t *testing.T) {
	b := NewLocalBus()
	defer b.Close()

	all, unsubAll := b.Subscribe()
	defer unsubAll()
	convs, unsubConvs := b.Subscribe(TableConversations)
	defer unsubConvs()

	ctx := context.Background()
	_ = b.Publish(ctx, Change{Table: TableSessions, Op: OpDelete, SessionID: "s1"})
	_ = b.Publish(ctx, Change{Table: TableConversations, Op: OpInsert, ID: "c1", OwnerID: "u1"})

	if got := recv(t, all); got.Table != TableSessions {
		t.Fatalf("first change for catch-all = %+v", got)
	}
	if got := recv(t, all); got.ID != "c1" {
		t.Fatalf("second change for catch-all = %+v", got)
	}
	if got := recv(t, convs); got.ID != "c1" || got.OwnerID != "u1" {
		t.Fatalf("filtered subscriber got %+v", got)
	}
	select {
	case c := <-convs:
		t.Fatalf("filtered subscriber got extra change %+v", c)
	default:
	}
}

func TestLocalBus_SlowSubscriberKeepsSessionChanges(t *testing.T) {
	b := NewLocalBus()
	defer b.Close()

	ch, unsub := b.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		ctx := context.Background()
		for i := 0; i < 200; i++ {
			_ = b.Publish(ctx, Change{Table: TableMessages, Op: OpInsert, OwnerID: "user-a"})
		}
		_ = b.Publish(ctx, Change{Table: TableSessions, Op: OpDelete, OwnerID: "user-b", SessionID: "sess-b"})
		_ = b.Publish(ctx, Change{Table: TableConversations, Op: OpInsert, OwnerID: "user-c"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a slow subscriber")
	}

	var messages int
	var sawSession, sawConversation bool
	for !sawSession || !sawConversation {
		c := recv(t, ch)
		switch {
		case c.Table == TableMessages && c.OwnerID == "user-a":
			messages++
		case c.Table == TableSessions && c.SessionID == "sess-b":
			sawSession = true
		case c.Table == TableConversations && c.OwnerID == "user-c":
			sawConversation = true
		default:
			t.Fatalf("unexpected change %+v", c)
		}
	}
	// At most one change can be in flight when the burst starts; the rest merge.
	if messages < 1 || messages > 2 {
		t.Fatalf("user-a message changes = %d, want them merged", messages)
	}
}

func TestLocalBus_SessionChangesNeverMerge(t *testing.T) {
	b := NewLocalBus()
	defer b.Close()

	ch, unsub := b.Subscribe(TableSessions)
	defer unsub()

	ctx := context.Background()
	for _, sid := range []string{"s1", "s2", "s3"} {
		_ = b.Publish(ctx, Change{Table: TableSessions, Op: OpDelete, OwnerID: "user-a", SessionID: sid})
	}
	for _, want := range []string{"s1", "s2", "s3"} {
		if got := recv(t, ch); got.SessionID != want {
			t.Fatalf("session change = %+v, want %s", got, want)
		}
	}
}

func TestLocalBus_UnsubscribeAndClose(t *testing.T) {
	b := NewLocalBus()

	ch, unsub := b.Subscribe()
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel after unsubscribe")
	}
	if b.Subscribers() != 0 {
		t.Fatalf("subscribers = %d", b.Subscribers())
	}

	other, unsubOther := b.Subscribe()
	_ = b.Close()
	if _, ok := <-other; ok {
		t.Fatalf("expected closed channel after Close")
	}
	unsubOther()

	if err := b.Publish(context.Background(), Change{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("publish after close: %v", err)
	}
	late, _ := b.Subscribe()
	if _, ok := <-late; ok {
		t.Fatalf("subscribe after close should return a closed channel")
	}
}

func TestOpen_DefaultsToLocalWithoutPool(t *testing.T) {
	bus, err := Open(context.Background(), Config{}, nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := bus.(*LocalBus); !ok {
		t.Fatalf("expected *LocalBus, got %T", bus)
	}
	if _, err := Open(context.Background(), Config{Driver: "kafka"}, nil, nil); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
	if _, err := Open(context.Background(), Config{Driver: DriverPostgres}, nil, nil); err == nil {
		t.Fatalf("expected error for postgres without pool")
	}
}
