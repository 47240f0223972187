package conversation

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"axionx/cmd/identity/ids"
	"axionx/cmd/internal/changes"
)

// MemoryStore keeps conversations in process. It backs development runs without a
// database and the chat tests.
type MemoryStore struct {
	mu       sync.RWMutex
	convs    map[string]Conversation
	messages map[string][]Message
	bus      changes.Bus
	now      func() time.Time
}

// NewMemoryStore publishes on bus, or on a private LocalBus when bus is nil.
func NewMemoryStore(bus changes.Bus) *MemoryStore {
	if bus == nil {
		bus = changes.NewLocalBus()
	}
	return &MemoryStore{
		convs:    make(map[string]Conversation),
		messages: make(map[string][]Message),
		bus:      bus,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) ListConversations(_ context.Context, ownerID string) ([]Conversation, error) {
	ownerID, err := checkOwner("conversation.List", ownerID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]Conversation, 0, 8)
	for _, c := range s.convs {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Conversation) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (s *MemoryStore) CreateConversation(ctx context.Context, ownerID, title string) (Conversation, error) {
	const op = "conversation.Create"

	ownerID, err := checkOwner(op, ownerID)
	if err != nil {
		return Conversation{}, err
	}
	title, err = checkTitle(op, title)
	if err != nil {
		return Conversation{}, err
	}

	now := s.now()
	id, err := ids.New(now)
	if err != nil {
		return Conversation{}, err
	}
	c := Conversation{ID: id, OwnerID: ownerID, Title: title, CreatedAt: now, UpdatedAt: now}

	s.mu.Lock()
	s.convs[id] = c
	s.mu.Unlock()

	s.publish(ctx, changes.Change{Table: changes.TableConversations, Op: changes.OpInsert, ID: id, OwnerID: ownerID})
	return c, nil
}

func (s *MemoryStore) DeleteConversation(ctx context.Context, ownerID, id string) error {
	const op = "conversation.Delete"

	ownerID, err := checkOwner(op, ownerID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	c, ok := s.convs[id]
	if !ok || c.OwnerID != ownerID {
		s.mu.Unlock()
		return notFound(op, "conversation")
	}
	delete(s.convs, id)
	delete(s.messages, id)
	s.mu.Unlock()

	s.publish(ctx, changes.Change{Table: changes.TableConversations, Op: changes.OpDelete, ID: id, OwnerID: ownerID})
	return nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, ownerID, conversationID string, role Role, content string) (Message, error) {
	const op = "conversation.AppendMessage"

	ownerID, err := checkOwner(op, ownerID)
	if err != nil {
		return Message{}, err
	}
	if !role.Valid() {
		return Message{}, invalid(op, "role must be user or assistant")
	}

	now := s.now()
	id, err := ids.New(now)
	if err != nil {
		return Message{}, err
	}
	m := Message{ID: id, ConversationID: conversationID, Role: role, Content: content, CreatedAt: now}

	s.mu.Lock()
	c, ok := s.convs[conversationID]
	if !ok || c.OwnerID != ownerID {
		s.mu.Unlock()
		return Message{}, notFound(op, "conversation")
	}
	s.messages[conversationID] = append(s.messages[conversationID], m)
	if now.After(c.UpdatedAt) {
		c.UpdatedAt = now
		s.convs[conversationID] = c
	}
	s.mu.Unlock()

	s.publish(ctx, changes.Change{Table: changes.TableMessages, Op: changes.OpInsert, ID: id, OwnerID: ownerID})
	return m, nil
}

func (s *MemoryStore) LoadMessages(_ context.Context, ownerID, conversationID string) ([]Message, error) {
	const op = "conversation.LoadMessages"

	ownerID, err := checkOwner(op, ownerID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.convs[conversationID]
	if !ok || c.OwnerID != ownerID {
		return nil, notFound(op, "conversation")
	}
	return slices.Clone(s.messages[conversationID]), nil
}

func (s *MemoryStore) Subscribe() (<-chan changes.Change, func()) { return subscribe(s.bus) }

func (s *MemoryStore) publish(ctx context.Context, c changes.Change) {
	_ = s.bus.Publish(ctx, c)
}
