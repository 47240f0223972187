// Package chat is the per-surface chat session: the visible message thread, the
// active conversation and the single in-flight question.
//
// A Controller seeds a welcome message, appends the user's question optimistically,
// asks the answer service and persists both sides to the owner's conversation.
// Storage and gateway failures never leave the controller unusable; they become an
// apology message or a Notice.
package chat

import (
	"context"
	"errors"
	"time"

	"axionx/cmd/internal/auth/gate"
	"axionx/cmd/internal/conversation"
)

const WelcomeText = "👋 Hi! I'm your EPM expert with 10+ years of experience.\n\n" +
	"Ask me about:\n" +
	"• CPM tool selection (Anaplan, OneStream, etc.)\n" +
	"• Implementation best practices\n" +
	"• Common challenges & solutions"

// ApologyText replaces the answer when the answer service fails. It is shown, never
// stored.
const ApologyText = "❌ Sorry, something went wrong. Please try again or contact us directly."

const (
	NoticeCreateFailed = "Failed to start a new conversation"
	NoticeSaveFailed   = "Failed to save message"
	NoticeLoadFailed   = "Failed to load conversation"
	NoticeListFailed   = "Failed to load conversations"
	NoticeDeleteFailed = "Failed to delete conversation"
	NoticeDeleted      = "Conversation deleted"
)

var (
	ErrBusy      = errors.New("chat: a question is already in flight")
	ErrSignedOut = errors.New("chat: signed out")
)

// ConversationStore is the part of conversation.Store a controller uses.
type ConversationStore interface {
	ListConversations(ctx context.Context, ownerID string) ([]conversation.Conversation, error)
	CreateConversation(ctx context.Context, ownerID, title string) (conversation.Conversation, error)
	DeleteConversation(ctx context.Context, ownerID, id string) error
	AppendMessage(ctx context.Context, ownerID, conversationID string, role conversation.Role, content string) (conversation.Message, error)
	LoadMessages(ctx context.Context, ownerID, conversationID string) ([]conversation.Message, error)
}

// Asker answers one question.
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

// IdentitySource reports who is signed in to the surface.
type IdentitySource interface {
	Identity() (gate.Identity, bool)
}

// Message is one entry of the visible thread.
type Message struct {
	Role      conversation.Role `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
}

// Outcome is how a Send ended.
type Outcome int

const (
	OutcomeRejected Outcome = iota
	OutcomeAnswered
	OutcomeGatewayFailed
	OutcomeConversationFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAnswered:
		return "answered"
	case OutcomeGatewayFailed:
		return "gateway_failed"
	case OutcomeConversationFailed:
		return "conversation_failed"
	default:
		return "rejected"
	}
}

type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

type Notice struct {
	Level NoticeLevel `json:"level"`
	Text  string      `json:"text"`
}

type EventKind int

const (
	// EventMessage carries one appended Message.
	EventMessage EventKind = iota + 1
	// EventReset carries the whole thread after a selection or deletion.
	EventReset
	// EventState carries the active conversation and the sending flag.
	EventState
	EventNotice
)

type Event struct {
	Kind           EventKind
	Message        Message
	Messages       []Message
	ConversationID string
	Sending        bool
	Notice         Notice
}

// Snapshot is a copy of the controller's visible state.
type Snapshot struct {
	Messages       []Message
	ConversationID string
	Sending        bool
}
