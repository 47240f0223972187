package v1

import "time"

// ---- client payloads ----

type HelloPayload struct {
	Token string `json:"token"`
}

type ChatSendPayload struct {
	Text string `json:"text"`
}

// ConversationSelectPayload selects a stored conversation; an empty id starts a
// new thread.
type ConversationSelectPayload struct {
	ConversationID string `json:"conversation_id"`
}

type ConversationDeletePayload struct {
	ConversationID string `json:"conversation_id"`
}

// ---- server payloads ----

type HelloAckPayload struct {
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id"`
	Email        string `json:"email,omitempty"`
}

type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type ChatMessagePayload struct {
	Message Message `json:"message"`
}

type ChatResetPayload struct {
	ConversationID string    `json:"conversation_id"`
	Messages       []Message `json:"messages"`
}

type ChatStatePayload struct {
	ConversationID string `json:"conversation_id"`
	Sending        bool   `json:"sending"`
}

type NoticePayload struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationListPayload lists the owner's conversations, most recently updated
// first.
type ConversationListPayload struct {
	Conversations []Conversation `json:"conversations"`
}

type AuthSignedOutPayload struct {
	Redirect string `json:"redirect"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
