package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"axionx/cmd/identity/ids"
	"axionx/cmd/internal/changes"
	"axionx/cmd/internal/pgstore"
	"axionx/cmd/internal/pgstore/pgtest"
)

type fixture struct {
	store Store
	// newOwner returns a user id the store accepts as an owner.
	newOwner func(t *testing.T) string
}

func storesUnderTest(t *testing.T) map[string]fixture {
	t.Helper()

	out := map[string]fixture{
		"memory": {
			store:    NewMemoryStore(nil),
			newOwner: func(*testing.T) string { return ids.Must(time.Now()) },
		},
	}
	if pool := pgtest.Maybe(t); pool != nil {
		schema := pgtest.Schema(t, pool)
		st, err := NewPostgresStore(pool, nil, WithSchema(schema))
		if err != nil {
			t.Fatalf("new store: %v", err)
		}
		out["postgres"] = fixture{
			store: st,
			newOwner: func(t *testing.T) string {
				id := ids.Must(time.Now())
				email := strings.ToLower(id) + "@axionx.test"
				_, err := pool.Exec(context.Background(),
					`INSERT INTO `+pgstore.Ident(schema, "users")+` (id, email, email_norm) VALUES ($1, $2, $2)`,
					id, email,
				)
				if err != nil {
					t.Fatalf("seed user: %v", err)
				}
				return id
			},
		}
	}
	return out
}

func TestTitleFrom(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"What is Anaplan?", "What is Anaplan?"},
		{"   padded question   ", "padded question"},
		{strings.Repeat("a", 60), strings.Repeat("a", 50)},
		{strings.Repeat("é", 51), strings.Repeat("é", 50)},
	}
	for _, tc := range cases {
		if got := TitleFrom(tc.in); got != tc.want {
			t.Fatalf("TitleFrom(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStore_ConversationLifecycle(t *testing.T) {
	for name, fx := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			st := fx.store
			owner := fx.newOwner(t)

			first, err := st.CreateConversation(ctx, owner, "What is Anaplan?")
			if err != nil {
				t.Fatalf("CreateConversation: %v", err)
			}
			second, err := st.CreateConversation(ctx, owner, "OneStream vs Anaplan")
			if err != nil {
				t.Fatalf("CreateConversation: %v", err)
			}

			time.Sleep(5 * time.Millisecond)
			if _, err := st.AppendMessage(ctx, owner, first.ID, RoleUser, "What is Anaplan?"); err != nil {
				t.Fatalf("AppendMessage user: %v", err)
			}
			if _, err := st.AppendMessage(ctx, owner, first.ID, RoleAssistant, "A CPM platform."); err != nil {
				t.Fatalf("AppendMessage assistant: %v", err)
			}

			list, err := st.ListConversations(ctx, owner)
			if err != nil {
				t.Fatalf("ListConversations: %v", err)
			}
			if len(list) != 2 || list[0].ID != first.ID || list[1].ID != second.ID {
				t.Fatalf("expected first conversation bumped to top, got %+v", list)
			}

			msgs, err := st.LoadMessages(ctx, owner, first.ID)
			if err != nil {
				t.Fatalf("LoadMessages: %v", err)
			}
			if len(msgs) != 2 || msgs[0].Role != RoleUser || msgs[1].Role != RoleAssistant {
				t.Fatalf("unexpected messages %+v", msgs)
			}
			if msgs[1].CreatedAt.Before(msgs[0].CreatedAt) {
				t.Fatalf("messages not ascending")
			}

			if err := st.DeleteConversation(ctx, owner, first.ID); err != nil {
				t.Fatalf("DeleteConversation: %v", err)
			}
			if _, err := st.LoadMessages(ctx, owner, first.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected not found after delete, got %v", err)
			}
			if err := st.DeleteConversation(ctx, owner, first.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected not found on second delete, got %v", err)
			}
		})
	}
}

func TestStore_OwnershipIsolation(t *testing.T) {
	for name, fx := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := fx.store
			alice, bob := fx.newOwner(t), fx.newOwner(t)

			c, err := st.CreateConversation(ctx, alice, "private")
			if err != nil {
				t.Fatalf("CreateConversation: %v", err)
			}

			if list, _ := st.ListConversations(ctx, bob); len(list) != 0 {
				t.Fatalf("bob sees alice's conversations: %+v", list)
			}
			if _, err := st.LoadMessages(ctx, bob, c.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("LoadMessages as bob: %v", err)
			}
			if _, err := st.AppendMessage(ctx, bob, c.ID, RoleUser, "hi"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("AppendMessage as bob: %v", err)
			}
			if err := st.DeleteConversation(ctx, bob, c.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("DeleteConversation as bob: %v", err)
			}
		})
	}
}

func TestStore_InvalidInput(t *testing.T) {
	for name, fx := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := fx.store
			owner := fx.newOwner(t)

			if _, err := st.CreateConversation(ctx, "", "t"); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("empty owner: %v", err)
			}
			if _, err := st.CreateConversation(ctx, owner, "   "); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("blank title: %v", err)
			}
			c, err := st.CreateConversation(ctx, owner, strings.Repeat("x", 80))
			if err != nil {
				t.Fatalf("long title: %v", err)
			}
			if len([]rune(c.Title)) != MaxTitleRunes {
				t.Fatalf("title not clipped: %q", c.Title)
			}
			if _, err := st.AppendMessage(ctx, owner, c.ID, Role("system"), "x"); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("bad role: %v", err)
			}
		})
	}
}

func TestMemoryStore_PublishesChanges(t *testing.T) {
	bus := changes.NewLocalBus()
	defer bus.Close()
	st := NewMemoryStore(bus)

	ch, unsub := st.Subscribe()
	defer unsub()

	ctx := context.Background()
	c, err := st.CreateConversation(ctx, "u1", "hello")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if _, err := st.AppendMessage(ctx, "u1", c.ID, RoleUser, "hello"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := st.DeleteConversation(ctx, "u1", c.ID); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}

	want := []changes.Change{
		{Table: changes.TableConversations, Op: changes.OpInsert, ID: c.ID, OwnerID: "u1"},
		{Table: changes.TableMessages, Op: changes.OpInsert, OwnerID: "u1"},
		{Table: changes.TableConversations, Op: changes.OpDelete, ID: c.ID, OwnerID: "u1"},
	}
	for i, w := range want {
		select {
		case got := <-ch:
			if w.ID == "" {
				got.ID = ""
			}
			if got != w {
				t.Fatalf("change %d = %+v, want %+v", i, got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("change %d not delivered", i)
		}
	}

	// Session changes are not conversation changes.
	_ = bus.Publish(ctx, changes.Change{Table: changes.TableSessions, Op: changes.OpDelete})
	select {
	case got := <-ch:
		t.Fatalf("unexpected change %+v", got)
	case <-time.After(20 * time.Millisecond):
	}
}
