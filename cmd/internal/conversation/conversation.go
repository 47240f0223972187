// Package conversation persists a signed-in user's chat threads and their messages.
//
// Every call takes the owner's user id and only touches rows that user owns; a row
// owned by someone else is reported as not found. Writes publish a changes.Change
// so open chat surfaces can refresh their sidebars.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"axionx/cmd/internal/changes"
)

// MaxTitleRunes bounds titles derived from the first question.
const MaxTitleRunes = 50

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

func invalid(op, msg string) error  { return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg} }
func notFound(op, msg string) error { return OpError{Op: op, Kind: ErrNotFound, Msg: msg} }

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool { return r == RoleUser || r == RoleAssistant }

type Conversation struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store is the conversation persistence port.
type Store interface {
	// ListConversations returns the owner's conversations, most recently updated first.
	ListConversations(ctx context.Context, ownerID string) ([]Conversation, error)
	CreateConversation(ctx context.Context, ownerID, title string) (Conversation, error)
	// DeleteConversation removes the conversation and its messages.
	DeleteConversation(ctx context.Context, ownerID, id string) error
	// AppendMessage stores a message and bumps the conversation's UpdatedAt.
	AppendMessage(ctx context.Context, ownerID, conversationID string, role Role, content string) (Message, error)
	// LoadMessages returns the conversation's messages oldest first.
	LoadMessages(ctx context.Context, ownerID, conversationID string) ([]Message, error)
	// Subscribe delivers conversation and message changes until the returned func is
	// called. Changes carry OwnerID; subscribers filter.
	Subscribe() (<-chan changes.Change, func())
}

// TitleFrom derives a conversation title from the question that opened it.
func TitleFrom(question string) string {
	q := strings.TrimSpace(question)
	if utf8.RuneCountInString(q) <= MaxTitleRunes {
		return q
	}
	r := []rune(q)
	return strings.TrimSpace(string(r[:MaxTitleRunes]))
}

func checkOwner(op, ownerID string) (string, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return "", invalid(op, "owner id is required")
	}
	return ownerID, nil
}

func checkTitle(op, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", invalid(op, "title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleRunes {
		title = TitleFrom(title)
	}
	return title, nil
}

func subscribe(bus changes.Bus) (<-chan changes.Change, func()) {
	return bus.Subscribe(changes.TableConversations, changes.TableMessages)
}
