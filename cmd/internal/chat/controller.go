package chat

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"axionx/cmd/internal/conversation"
	"axionx/cmd/internal/metrics"
	"axionx/cmd/internal/validation"
)

const defaultPersistTimeout = 10 * time.Second

type Option func(*Controller)

func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// WithObserver sets the event sink. Events arrive in the order they happened,
// outside the state lock; the observer must not call back into the controller.
func WithObserver(fn func(Event)) Option {
	return func(c *Controller) { c.observe = fn }
}

// WithPersistTimeout bounds each store write made by Send.
func WithPersistTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.persistTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// Controller is safe for concurrent use. At most one Send runs at a time; selection
// and deletion may run while it does.
type Controller struct {
	store ConversationStore
	asker Asker
	ident IdentitySource
	log   *slog.Logger
	now   func() time.Time

	persistTimeout time.Duration

	observe func(Event)
	emitMu  sync.Mutex

	mu       sync.Mutex
	welcome  Message
	messages []Message
	activeID string
	sending  bool
	// epoch changes whenever the thread is replaced; a Send only renders into the
	// epoch it started in.
	epoch   uint64
	pending []Event
}

func New(store ConversationStore, asker Asker, ident IdentitySource, opts ...Option) *Controller {
	c := &Controller{
		store: store,
		asker: asker,
		ident: ident,
		log:   slog.Default(),
		now:   func() time.Time { return time.Now().UTC() },

		persistTimeout: defaultPersistTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.log = c.log.With("component", "chat")
	c.welcome = Message{Role: conversation.RoleAssistant, Content: WelcomeText, Timestamp: c.now()}
	c.messages = []Message{c.welcome}
	return c
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Messages:       slices.Clone(c.messages),
		ConversationID: c.activeID,
		Sending:        c.sending,
	}
}

func (c *Controller) owner() (string, bool) {
	if c.ident == nil {
		return "", false
	}
	id, ok := c.ident.Identity()
	if !ok || id.UserID == "" {
		return "", false
	}
	return id.UserID, true
}

// Send asks question on behalf of the signed-in user. The returned error is a
// *validation.Error, ErrBusy or ErrSignedOut when the question was not accepted;
// every later failure is reported through the Outcome and the thread.
func (c *Controller) Send(ctx context.Context, question string) (Outcome, error) {
	q, err := validation.Chat(question)
	if err != nil {
		metrics.ChatSendsTotal.WithLabelValues("invalid").Inc()
		return OutcomeRejected, err
	}
	owner, ok := c.owner()
	if !ok {
		metrics.ChatSendsTotal.WithLabelValues("signed_out").Inc()
		return OutcomeRejected, ErrSignedOut
	}

	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		metrics.ChatSendsTotal.WithLabelValues("busy").Inc()
		return OutcomeRejected, ErrBusy
	}
	c.sending = true
	epoch := c.epoch
	convID := c.activeID
	c.appendLocked(Message{Role: conversation.RoleUser, Content: q, Timestamp: c.now()})
	c.queueStateLocked()
	c.mu.Unlock()
	c.flush()

	outcome := c.send(ctx, owner, q, convID, epoch)

	c.mu.Lock()
	c.sending = false
	c.queueStateLocked()
	c.mu.Unlock()
	c.flush()

	metrics.ChatSendsTotal.WithLabelValues(outcome.String()).Inc()
	return outcome, nil
}

// writeCtx outlives the caller's cancellation; each store write gets its own deadline.
func (c *Controller) writeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.persistTimeout)
}

func (c *Controller) appendMessage(ctx context.Context, owner, convID string, role conversation.Role, content, op string) {
	wctx, cancel := c.writeCtx(ctx)
	defer cancel()
	if _, err := c.store.AppendMessage(wctx, owner, convID, role, content); err != nil {
		c.persistFailed(op, err)
		c.notice(NoticeError, NoticeSaveFailed)
	}
}

func (c *Controller) send(ctx context.Context, owner, q, convID string, epoch uint64) Outcome {
	if convID == "" {
		wctx, cancel := c.writeCtx(ctx)
		conv, err := c.store.CreateConversation(wctx, owner, conversation.TitleFrom(q))
		cancel()
		if err != nil {
			c.persistFailed("create", err)
			c.mu.Lock()
			if c.epoch == epoch {
				c.appendLocked(Message{Role: conversation.RoleAssistant, Content: ApologyText, Timestamp: c.now()})
			}
			c.queueNoticeLocked(NoticeError, NoticeCreateFailed)
			c.mu.Unlock()
			c.flush()
			return OutcomeConversationFailed
		}
		convID = conv.ID

		c.mu.Lock()
		if c.epoch == epoch {
			c.activeID = convID
			c.queueStateLocked()
		}
		c.mu.Unlock()
		c.flush()
	}

	saved := make(chan struct{})
	go func() {
		defer close(saved)
		c.appendMessage(ctx, owner, convID, conversation.RoleUser, q, "user_message")
	}()

	answer, err := c.asker.Ask(ctx, q)
	if err != nil {
		c.log.Warn("chat.send.gateway_fail", "conversation_id", convID, "err", err)
		c.mu.Lock()
		if c.epoch == epoch {
			c.appendLocked(Message{Role: conversation.RoleAssistant, Content: ApologyText, Timestamp: c.now()})
		}
		c.mu.Unlock()
		c.flush()
		<-saved
		return OutcomeGatewayFailed
	}

	c.mu.Lock()
	if c.epoch == epoch {
		c.appendLocked(Message{Role: conversation.RoleAssistant, Content: answer, Timestamp: c.now()})
	}
	c.mu.Unlock()
	c.flush()

	// The answer is stored after the question so reloads keep their order.
	<-saved
	c.appendMessage(ctx, owner, convID, conversation.RoleAssistant, answer, "assistant_message")
	return OutcomeAnswered
}

// SelectConversation replaces the thread with the welcome message followed by the
// stored messages of id, oldest first. An empty id starts a fresh thread. On a load
// failure the thread is left as it was.
func (c *Controller) SelectConversation(ctx context.Context, id string) error {
	if id == "" {
		c.mu.Lock()
		c.resetLocked("", nil)
		c.mu.Unlock()
		c.flush()
		return nil
	}

	owner, ok := c.owner()
	if !ok {
		return ErrSignedOut
	}
	stored, err := c.store.LoadMessages(ctx, owner, id)
	if err != nil {
		c.log.Warn("chat.select.fail", "conversation_id", id, "err", err)
		c.notice(NoticeError, NoticeLoadFailed)
		return err
	}

	slices.SortStableFunc(stored, func(a, b conversation.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	thread := make([]Message, 0, len(stored))
	for _, m := range stored {
		thread = append(thread, Message{Role: m.Role, Content: m.Content, Timestamp: m.CreatedAt})
	}

	c.mu.Lock()
	c.resetLocked(id, thread)
	c.mu.Unlock()
	c.flush()
	return nil
}

// DeleteConversation deletes id; when it is the active conversation the thread
// starts over.
func (c *Controller) DeleteConversation(ctx context.Context, id string) error {
	owner, ok := c.owner()
	if !ok {
		return ErrSignedOut
	}
	if err := c.store.DeleteConversation(ctx, owner, id); err != nil {
		c.log.Warn("chat.delete.fail", "conversation_id", id, "err", err)
		c.notice(NoticeError, NoticeDeleteFailed)
		return err
	}

	c.mu.Lock()
	if c.activeID == id {
		c.resetLocked("", nil)
	}
	c.queueNoticeLocked(NoticeInfo, NoticeDeleted)
	c.mu.Unlock()
	c.flush()
	return nil
}

func (c *Controller) ListConversations(ctx context.Context) ([]conversation.Conversation, error) {
	owner, ok := c.owner()
	if !ok {
		return nil, ErrSignedOut
	}
	list, err := c.store.ListConversations(ctx, owner)
	if err != nil {
		c.log.Warn("chat.list.fail", "err", err)
		c.notice(NoticeError, NoticeListFailed)
		return nil, err
	}
	return list, nil
}

func (c *Controller) persistFailed(op string, err error) {
	metrics.ChatPersistFailuresTotal.WithLabelValues(op).Inc()
	c.log.Error("chat.persist.fail", "op", op, "err", err)
}

func (c *Controller) notice(level NoticeLevel, text string) {
	c.mu.Lock()
	c.queueNoticeLocked(level, text)
	c.mu.Unlock()
	c.flush()
}

func (c *Controller) appendLocked(m Message) {
	c.messages = append(c.messages, m)
	c.queueLocked(Event{Kind: EventMessage, Message: m})
}

func (c *Controller) resetLocked(id string, thread []Message) {
	c.epoch++
	c.activeID = id
	c.messages = append([]Message{c.welcome}, thread...)
	c.queueLocked(Event{Kind: EventReset, Messages: slices.Clone(c.messages), ConversationID: id, Sending: c.sending})
}

func (c *Controller) queueStateLocked() {
	c.queueLocked(Event{Kind: EventState, ConversationID: c.activeID, Sending: c.sending})
}

func (c *Controller) queueNoticeLocked(level NoticeLevel, text string) {
	c.queueLocked(Event{Kind: EventNotice, Notice: Notice{Level: level, Text: text}})
}

func (c *Controller) queueLocked(ev Event) {
	if c.observe != nil {
		c.pending = append(c.pending, ev)
	}
}

// flush delivers queued events. Whoever holds emitMu drains everything queued so
// far, so events reach the observer in queue order.
func (c *Controller) flush() {
	if c.observe == nil {
		return
	}
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	evs := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, ev := range evs {
		c.observe(ev)
	}
}
