// Package v1 defines the AxionX chat protocol v1 spoken over /ws.
//
// It is shared between the server and the smoke client so the wire format has
// one source of truth.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Subprotocol is negotiated during the WebSocket handshake.
const Subprotocol = "axionx.chat.v1"

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Client -> server.
const (
	// TypeHello binds the connection to an access token. It may be repeated after
	// a token refresh; the user must stay the same.
	TypeHello              = "hello"
	TypeChatSend           = "chat.send"
	TypeConversationSelect = "conversation.select"
	TypeConversationDelete = "conversation.delete"
	TypeConversationList   = "conversation.list"
	TypeAuthSignOut        = "auth.sign_out"
)

// Server -> client.
const (
	TypeHelloAck = "hello.ack"
	// TypeChatMessage appends one message to the visible thread.
	TypeChatMessage = "chat.message"
	TypeChatState   = "chat.state"
	// TypeChatReset replaces the whole visible thread.
	TypeChatReset     = "chat.reset"
	TypeNotice        = "notice"
	TypeAuthSignedOut = "auth.signed_out"
	TypeError         = "error"
	// TypeConversationList is also the server's answer to a list request.
)

// Error codes carried by ErrorPayload.
const (
	CodeBadJSON        = "bad_json"
	CodeBadEnvelope    = "bad_envelope"
	CodeUnsupported    = "unsupported"
	CodeUnauthorized   = "unauthorized"
	CodeInvalidMessage = "invalid_message"
	CodeBusy           = "busy"
	CodeRateLimited    = "rate_limited"
	CodeNotFound       = "not_found"
	CodeServerError    = "server_error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs structural validation of a client envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeHello,
		TypeChatSend,
		TypeConversationSelect,
		TypeConversationDelete,
		TypeConversationList,
		TypeAuthSignOut:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// New builds an envelope around payload. A nil payload is sent as {}.
func New(typ, id string, ts time.Time, payload any) (Envelope, error) {
	var raw json.RawMessage
	if payload == nil {
		raw = json.RawMessage("{}")
	} else {
		b, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, err
		}
		raw = b
	}
	return Envelope{V: Version, Type: typ, ID: id, TS: ts, Payload: raw}, nil
}

// Decode unmarshals the payload into dst. An empty payload leaves dst untouched.
func (e Envelope) Decode(dst any) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	return json.Unmarshal(e.Payload, dst)
}
