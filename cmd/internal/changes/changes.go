// Package changes carries row-change notifications between writers (conversation
// store, session logout) and live chat connections.
//
// Notifications are advisory. A consumer re-fetches what it shows; it never applies
// the payload as state. Delivery to one subscriber may coalesce bursts.
package changes

import (
	"context"
	"errors"
)

const (
	TableConversations = "conversations"
	TableMessages      = "messages"
	TableSessions      = "sessions"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change names the row that changed. OwnerID is the user the row belongs to;
// SessionID is set for session changes only.
type Change struct {
	Table     string `json:"table"`
	Op        Op     `json:"op"`
	ID        string `json:"id,omitempty"`
	OwnerID   string `json:"owner_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Bus fans changes out to subscribers.
//
// Subscribe with no tables receives everything. The returned func unsubscribes and
// closes the channel; it is safe to call more than once.
type Bus interface {
	Publish(ctx context.Context, c Change) error
	Subscribe(tables ...string) (<-chan Change, func())
	Close() error
}

// Runner is implemented by buses that need a listener goroutine.
type Runner interface {
	Run(ctx context.Context) error
}

var ErrClosed = errors.New("changes: bus closed")
