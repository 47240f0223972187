package realtime

import (
	"context"
	"log/slog"
	"sync"

	"axionx/cmd/internal/changes"
	"axionx/cmd/internal/metrics"
)

// Hub indexes live clients by owner and turns bus changes into per-client
// reactions: conversation and message changes kick a list refresh, session
// changes expire the matching gates.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	byOwner map[string]map[*Client]struct{}
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log.With("component", "hub"),
		byOwner: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(ownerID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.byOwner[ownerID]
	if !ok {
		set = make(map[*Client]struct{})
		h.byOwner[ownerID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) Unregister(ownerID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.byOwner[ownerID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.byOwner, ownerID)
	}
}

// Clients reports how many clients ownerID has connected.
func (h *Hub) Clients(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byOwner[ownerID])
}

// Run consumes bus until ctx is done or the bus closes.
func (h *Hub) Run(ctx context.Context, bus changes.Bus) error {
	ch, unsubscribe := bus.Subscribe(changes.TableConversations, changes.TableMessages, changes.TableSessions)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-ch:
			if !ok {
				return nil
			}
			h.Dispatch(c)
		}
	}
}

// Dispatch applies one change to the owner's clients.
func (h *Hub) Dispatch(c changes.Change) {
	if c.OwnerID == "" {
		metrics.ChangeEventsTotal.WithLabelValues(c.Table, "ignored").Inc()
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.byOwner[c.OwnerID]))
	for cl := range h.byOwner[c.OwnerID] {
		targets = append(targets, cl)
	}
	h.mu.RUnlock()

	switch c.Table {
	case changes.TableConversations, changes.TableMessages:
		for _, cl := range targets {
			cl.Kick()
		}
	case changes.TableSessions:
		for _, cl := range targets {
			id, ok := cl.Gate.Identity()
			if !ok {
				continue
			}
			if c.SessionID == "" || c.SessionID == id.SessionID {
				h.log.Info("hub.session.expire", "user_id", c.OwnerID, "session_id", id.SessionID, "client_id", cl.ID)
				cl.Gate.Expire()
			}
		}
	default:
		metrics.ChangeEventsTotal.WithLabelValues(c.Table, "ignored").Inc()
		return
	}
	metrics.ChangeEventsTotal.WithLabelValues(c.Table, "dispatched").Inc()
}
