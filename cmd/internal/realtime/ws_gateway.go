// Package realtime hosts one chat.Controller per WebSocket connection and keeps
// each surface in step with changes made elsewhere (other tabs, logout).
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"axionx/cmd/identity"
	"axionx/cmd/identity/ids"
	"axionx/cmd/internal/auth/gate"
	"axionx/cmd/internal/auth/session"
	"axionx/cmd/internal/chat"
	"axionx/cmd/internal/conversation"
	"axionx/cmd/internal/httpx"
	"axionx/cmd/internal/metrics"
	"axionx/cmd/internal/ratelimit"
	"axionx/cmd/internal/validation"
	v1 "axionx/shared/contracts/chat/v1"

	"github.com/coder/websocket"
)

const (
	wsCloseGrace      = 1 * time.Second
	wsMaxPingFailures = 3
)

// TokenValidator checks access tokens; *session.Service satisfies it.
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, tok string, now time.Time) (session.AccessClaims, error)
}

// UserLookup resolves the signed-in user's profile for hello.ack.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (identity.User, error)
}

// Deps are the services a connection needs. Users and Changes may be nil.
type Deps struct {
	Tokens  TokenValidator
	Revoker gate.Revoker
	Changes gate.Publisher
	Users   UserLookup
	Store   chat.ConversationStore
	Asker   chat.Asker
	Hub     *Hub
}

// WSGateway is the /ws entrypoint. It enforces origin policy, subprotocol
// selection, rate limits and heartbeats, and routes validated envelopes to the
// connection's chat.Controller.
type WSGateway struct {
	log  *slog.Logger
	cfg  GatewayConfig
	deps Deps

	originPatterns []string
}

func NewWSGateway(log *slog.Logger, cfg GatewayConfig, deps Deps) (*WSGateway, error) {
	if log == nil {
		log = slog.Default()
	}
	if deps.Tokens == nil || deps.Store == nil || deps.Asker == nil {
		return nil, errors.New("realtime: tokens, store and asker are required")
	}
	if deps.Hub == nil {
		deps.Hub = NewHub(log)
	}
	cfg = cfg.normalized()
	return &WSGateway{
		log:            log.With("component", "ws"),
		cfg:            cfg,
		deps:           deps,
		originPatterns: deriveOriginPatterns(cfg.AllowedOrigins),
	}, nil
}

func (g *WSGateway) Hub() *Hub { return g.deps.Hub }

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades the request and runs the connection until either side leaves.
// A bearer token on the handshake binds the connection immediately; browsers send
// it in the first hello instead.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var pre *session.AccessClaims
	if tok := httpx.BearerToken(r); tok != "" {
		claims, err := g.deps.Tokens.ValidateAccessToken(r.Context(), tok, time.Now().UTC())
		if err != nil {
			g.log.Info("ws.reject.auth", "err", err, "remote", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		pre = &claims
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{v1.Subprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != v1.Subprotocol {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", v1.Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s := g.newSession(ctx, cancel, conn)
	s.run(pre)
}

// wsSession is the state of one connection.
type wsSession struct {
	g      *WSGateway
	log    *slog.Logger
	conn   *websocket.Conn
	client *Client
	ctrl   *chat.Controller

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	unlisten  func()

	mu    sync.Mutex
	owner string
}

func (g *WSGateway) newSession(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) *wsSession {
	clientID := ids.Must(time.Now().UTC())
	gt := gate.New(g.deps.Revoker, g.deps.Changes)

	s := &wsSession{
		g:      g,
		log:    g.log.With("client_id", clientID),
		conn:   conn,
		client: NewClient(clientID, gt, g.cfg.SendQueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	s.ctrl = chat.New(g.deps.Store, g.deps.Asker, gt,
		chat.WithLogger(s.log),
		chat.WithObserver(s.emit),
	)
	s.unlisten = gt.OnChange(func(_ gate.Identity, ok bool) {
		if !ok {
			s.log.Info("ws.signed_out")
			s.send(v1.TypeAuthSignedOut, v1.AuthSignedOutPayload{Redirect: g.cfg.SignedOutRedirect})
		}
	})
	return s
}

// shutdown is idempotent. It does not close client.Send.
func (s *wsSession) shutdown(code websocket.StatusCode, reason string) {
	s.closeOnce.Do(func() {
		s.unlisten()
		if owner := s.ownerID(); owner != "" {
			s.g.deps.Hub.Unregister(owner, s.client)
		}
		s.client.Close()
		_ = s.conn.Close(code, reason)
		s.cancel()
	})
}

func (s *wsSession) ownerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

func (s *wsSession) run(pre *session.AccessClaims) {
	ctx, client := s.ctx, s.client

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, s.conn, env, s.g.cfg.WriteTimeout); err != nil {
					s.log.Info("ws.write.fail", "close_status", websocket.CloseStatus(err), "err", err)
					s.shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		s.heartbeat()
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-client.Kicks():
				s.sendList()
			}
		}
	}()

	if pre != nil {
		if err := s.bind(*pre); err != nil {
			s.fail(v1.CodeUnauthorized, err.Error(), "hello failed")
		}
	}

	s.readLoop()

	s.shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

func (s *wsSession) heartbeat() {
	t := time.NewTicker(s.g.cfg.HeartbeatEvery)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.client.Done():
			return
		case <-t.C:
			hbCtx, hbCancel := context.WithTimeout(s.ctx, s.g.cfg.HeartbeatTimeout)
			err := s.conn.Ping(hbCtx)
			hbCancel()

			if err != nil {
				failures++
				s.log.Info("ws.ping.fail", "failures", failures, "err", err)
				if failures >= wsMaxPingFailures {
					s.shutdown(websocket.StatusGoingAway, "heartbeat failed")
					return
				}
				continue
			}
			failures = 0
		}
	}
}

func (s *wsSession) readLoop() {
	rl := ratelimit.NewWindow(s.g.cfg.RateEvents, s.g.cfg.RateWindow)

	for {
		readCtx, readCancel := context.WithTimeout(s.ctx, s.g.cfg.ReadIdleTimeout)
		env, err := readEnvelope(readCtx, s.conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrBadJSON:
				s.sendError(v1.CodeBadJSON, "invalid JSON")
				continue
			case readErrClose:
				s.shutdown(websocket.StatusNormalClosure, "peer closed")
			case readErrCtxDone:
				s.shutdown(websocket.StatusNormalClosure, "context done")
			case readErrConnClosed:
				s.shutdown(websocket.StatusAbnormalClosure, "conn closed")
			default:
				s.log.Info("ws.read.fail", "err", err)
				s.shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			return
		}

		if !rl.Allow(time.Now().UTC()) {
			s.fail(v1.CodeRateLimited, "too many events", "rate limited")
			return
		}
		if err := env.Validate(); err != nil {
			s.sendError(v1.CodeBadEnvelope, err.Error())
			continue
		}

		if env.Type == v1.TypeHello {
			if err := s.onHello(env); err != nil {
				if s.ownerID() == "" || errors.Is(err, errUserMismatch) {
					s.fail(v1.CodeUnauthorized, err.Error(), "hello failed")
					return
				}
				s.sendError(v1.CodeUnauthorized, err.Error())
			}
			continue
		}

		if _, ok := s.client.Gate.Identity(); !ok {
			s.sendError(v1.CodeUnauthorized, "sign in required")
			continue
		}

		var derr error
		switch env.Type {
		case v1.TypeChatSend:
			derr = s.onChatSend(env)
		case v1.TypeConversationSelect:
			derr = s.onSelect(env)
		case v1.TypeConversationDelete:
			derr = s.onDelete(env)
		case v1.TypeConversationList:
			s.sendList()
		case v1.TypeAuthSignOut:
			if err := s.client.Gate.SignOut(s.ctx); err != nil {
				s.log.Warn("ws.sign_out.fail", "err", err)
			}
		default:
			s.sendError(v1.CodeUnsupported, fmt.Sprintf("unsupported type: %s", env.Type))
		}
		if derr != nil {
			s.sendError(v1.CodeBadEnvelope, derr.Error())
		}
	}
}

// ---- handlers ----

var errUserMismatch = errors.New("token belongs to a different user")

func (s *wsSession) onHello(env v1.Envelope) error {
	var p v1.HelloPayload
	if err := env.Decode(&p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if p.Token == "" {
		return errors.New("missing token")
	}
	claims, err := s.g.deps.Tokens.ValidateAccessToken(s.ctx, p.Token, time.Now().UTC())
	if err != nil {
		s.log.Info("ws.hello.reject", "err", err)
		return errors.New("invalid token")
	}
	return s.bind(claims)
}

// bind signs the gate in. The first bind registers the connection with the hub and
// sends the initial thread and list; later binds only rotate the session id.
func (s *wsSession) bind(claims session.AccessClaims) error {
	s.mu.Lock()
	first := s.owner == ""
	if !first && s.owner != claims.UserID {
		s.mu.Unlock()
		return errUserMismatch
	}
	s.owner = claims.UserID
	s.mu.Unlock()

	s.client.Gate.SignIn(gate.Identity{UserID: claims.UserID, SessionID: claims.SessionID})
	if first {
		s.g.deps.Hub.Register(claims.UserID, s.client)
	}

	ack := v1.HelloAckPayload{ConnectionID: s.client.ID, UserID: claims.UserID}
	if s.g.deps.Users != nil {
		if u, err := s.g.deps.Users.GetUserByID(s.ctx, claims.UserID); err == nil {
			ack.Email = u.Email
		}
	}
	s.send(v1.TypeHelloAck, ack)
	s.log.Info("ws.hello.ok", "user_id", claims.UserID, "session_id", claims.SessionID, "first", first)

	if first {
		snap := s.ctrl.Snapshot()
		s.send(v1.TypeChatReset, v1.ChatResetPayload{ConversationID: snap.ConversationID, Messages: toWireMessages(snap.Messages)})
		s.send(v1.TypeChatState, v1.ChatStatePayload{ConversationID: snap.ConversationID, Sending: snap.Sending})
		s.sendList()
	}
	return nil
}

// onChatSend runs the question in its own goroutine so selection and deletion stay
// responsive while the answer is pending.
func (s *wsSession) onChatSend(env v1.Envelope) error {
	var p v1.ChatSendPayload
	if err := env.Decode(&p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	go func() {
		outcome, err := s.ctrl.Send(s.ctx, p.Text)
		var verr *validation.Error
		switch {
		case err == nil:
			s.log.Debug("ws.chat.send", "outcome", outcome.String())
		case errors.As(err, &verr):
			s.sendError(v1.CodeInvalidMessage, verr.First())
		case errors.Is(err, chat.ErrBusy):
			s.sendError(v1.CodeBusy, "a question is already in flight")
		case errors.Is(err, chat.ErrSignedOut):
			s.sendError(v1.CodeUnauthorized, "sign in required")
		default:
			s.sendError(v1.CodeServerError, "could not send message")
		}
	}()
	return nil
}

func (s *wsSession) onSelect(env v1.Envelope) error {
	var p v1.ConversationSelectPayload
	if err := env.Decode(&p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	err := s.ctrl.SelectConversation(s.ctx, p.ConversationID)
	switch {
	case err == nil:
	case errors.Is(err, chat.ErrSignedOut):
		s.sendError(v1.CodeUnauthorized, "sign in required")
	case errors.Is(err, conversation.ErrNotFound):
		s.sendError(v1.CodeNotFound, "conversation not found")
	}
	return nil
}

func (s *wsSession) onDelete(env v1.Envelope) error {
	var p v1.ConversationDeletePayload
	if err := env.Decode(&p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if p.ConversationID == "" {
		return errors.New("missing conversation_id")
	}
	if err := s.ctrl.DeleteConversation(s.ctx, p.ConversationID); errors.Is(err, chat.ErrSignedOut) {
		s.sendError(v1.CodeUnauthorized, "sign in required")
	}
	return nil
}

func (s *wsSession) sendList() {
	list, err := s.ctrl.ListConversations(s.ctx)
	if err != nil {
		return
	}
	out := make([]v1.Conversation, 0, len(list))
	for _, c := range list {
		out = append(out, v1.Conversation{ID: c.ID, Title: c.Title, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt})
	}
	s.send(v1.TypeConversationList, v1.ConversationListPayload{Conversations: out})
}

// ---- controller events ----

func (s *wsSession) emit(ev chat.Event) {
	switch ev.Kind {
	case chat.EventMessage:
		s.send(v1.TypeChatMessage, v1.ChatMessagePayload{Message: toWireMessage(ev.Message)})
	case chat.EventReset:
		s.send(v1.TypeChatReset, v1.ChatResetPayload{ConversationID: ev.ConversationID, Messages: toWireMessages(ev.Messages)})
	case chat.EventState:
		s.send(v1.TypeChatState, v1.ChatStatePayload{ConversationID: ev.ConversationID, Sending: ev.Sending})
	case chat.EventNotice:
		s.send(v1.TypeNotice, v1.NoticePayload{Level: string(ev.Notice.Level), Text: ev.Notice.Text})
	}
}

func toWireMessage(m chat.Message) v1.Message {
	return v1.Message{Role: string(m.Role), Content: m.Content, Timestamp: m.Timestamp}
}

func toWireMessages(ms []chat.Message) []v1.Message {
	out := make([]v1.Message, 0, len(ms))
	for _, m := range ms {
		out = append(out, toWireMessage(m))
	}
	return out
}

// ---- send helpers ----

func (s *wsSession) sendError(code, msg string) {
	s.send(v1.TypeError, v1.ErrorPayload{Code: code, Message: msg})
}

// fail writes the error directly, bypassing the queue so it is not lost to the
// close, then closes with a policy violation.
func (s *wsSession) fail(code, msg, reason string) {
	now := time.Now().UTC()
	if env, err := v1.New(v1.TypeError, ids.Must(now), now, v1.ErrorPayload{Code: code, Message: msg}); err == nil {
		_ = writeEnvelope(s.ctx, s.conn, env, s.g.cfg.WriteTimeout)
	}
	s.shutdown(websocket.StatusPolicyViolation, reason)
}

// send enqueues without blocking. A full queue means the peer is not reading; the
// connection is dropped rather than silently losing thread updates.
func (s *wsSession) send(typ string, payload any) {
	now := time.Now().UTC()
	env, err := v1.New(typ, ids.Must(now), now, payload)
	if err != nil {
		s.log.Error("ws.encode.fail", "type", typ, "err", err)
		return
	}

	select {
	case <-s.ctx.Done():
	case <-s.client.Done():
	case s.client.Send <- env:
	default:
		s.log.Warn("ws.backpressure", "type", typ)
		go s.shutdown(websocket.StatusPolicyViolation, "send queue full")
	}
}

// ---- envelope IO ----

var errBadJSON = errors.New("bad json")

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, fmt.Errorf("%w: %v", errBadJSON, err)
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	switch {
	case errors.Is(err, errBadJSON):
		return readErrBadJSON
	case websocket.CloseStatus(err) != -1:
		return readErrClose
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return readErrCtxDone
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
		return readErrConnClosed
	default:
		return readErrUnknown
	}
}
