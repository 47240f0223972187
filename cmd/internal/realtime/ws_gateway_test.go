package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"axionx/cmd/internal/auth/gate"
	"axionx/cmd/internal/auth/session"
	"axionx/cmd/internal/changes"
	"axionx/cmd/internal/conversation"
	"axionx/cmd/security/token"
	v1 "axionx/shared/contracts/chat/v1"

	paseto "aidanwoods.dev/go-paseto"
	"github.com/coder/websocket"
)

type stubAsker struct {
	mu      sync.Mutex
	answers map[string]string
}

func (a *stubAsker) Ask(_ context.Context, q string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ans, ok := a.answers[q]; ok {
		return ans, nil
	}
	return "", errors.New("no answer")
}

type wsEnv struct {
	srv      *httptest.Server
	bus      *changes.LocalBus
	sessions *session.Service
	store    *conversation.MemoryStore
}

func newWSEnv(t *testing.T, mutate func(*GatewayConfig)) *wsEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := session.DefaultConfig()
	cfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	tokens, err := session.NewPasetoV4PublicManager(cfg)
	if err != nil {
		t.Fatalf("NewPasetoV4PublicManager: %v", err)
	}
	sessions := session.NewService(cfg, session.NewMemoryStore(), tokens,
		token.NewHasher([]byte("0123456789abcdef0123456789abcdef")))

	bus := changes.NewLocalBus()
	store := conversation.NewMemoryStore(bus)
	hub := NewHub(log)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Run(ctx, bus) }()

	gwCfg := DefaultGatewayConfig()
	gwCfg.OriginRequired = false
	if mutate != nil {
		mutate(&gwCfg)
	}
	gw, err := NewWSGateway(log, gwCfg, Deps{
		Tokens:  sessions,
		Revoker: sessions,
		Changes: bus,
		Store:   store,
		Asker:   &stubAsker{answers: map[string]string{"What is Anaplan?": "Anaplan is a connected planning platform."}},
		Hub:     hub,
	})
	if err != nil {
		t.Fatalf("NewWSGateway: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		srv.Close()
		cancel()
		_ = bus.Close()
	})

	deadline := time.Now().Add(2 * time.Second)
	for bus.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	return &wsEnv{srv: srv, bus: bus, sessions: sessions, store: store}
}

func (e *wsEnv) issue(t *testing.T, userID string) session.Issued {
	t.Helper()
	issued, err := e.sessions.Issue(context.Background(), time.Now().UTC(), userID, session.DeviceContext{Platform: session.PlatformWeb})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return issued
}

func dialWS(t *testing.T, baseHTTPURL, origin, bearer string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	u, err := url.Parse(baseHTTPURL)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"

	h := http.Header{}
	if origin != "" {
		h.Set("Origin", origin)
	}
	if bearer != "" {
		h.Set("Authorization", "Bearer "+bearer)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
}

func mustDial(t *testing.T, e *wsEnv) *websocket.Conn {
	t.Helper()
	conn, resp, err := dialWS(t, e.srv.URL, "", "")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") })
	return conn
}

func writeWS(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	env, err := v1.New(typ, "c-"+typ, time.Now().UTC(), payload)
	if err != nil {
		t.Fatalf("v1.New: %v", err)
	}
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("conn.Write: %v", err)
	}
}

// readUntil reads envelopes until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, maxReads int, match func(v1.Envelope) bool) v1.Envelope {
	t.Helper()
	for i := 0; i < maxReads; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, b, err := conn.Read(ctx)
		cancel()
		if err != nil {
			t.Fatalf("conn.Read: %v", err)
		}
		var env v1.Envelope
		if err := json.Unmarshal(b, &env); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		if match(env) {
			return env
		}
	}
	t.Fatalf("no matching envelope within %d reads", maxReads)
	return v1.Envelope{}
}

func ofType(typ string) func(v1.Envelope) bool {
	return func(e v1.Envelope) bool { return e.Type == typ }
}

func decodeWS[T any](t *testing.T, env v1.Envelope) T {
	t.Helper()
	var v T
	if err := env.Decode(&v); err != nil {
		t.Fatalf("decode %s: %v", env.Type, err)
	}
	return v
}

func hello(t *testing.T, conn *websocket.Conn, tok string) v1.HelloAckPayload {
	t.Helper()
	writeWS(t, conn, v1.TypeHello, v1.HelloPayload{Token: tok})
	return decodeWS[v1.HelloAckPayload](t, readUntil(t, conn, 4, ofType(v1.TypeHelloAck)))
}

func TestWSGateway_AskAndListRefresh(t *testing.T) {
	e := newWSEnv(t, nil)
	issued := e.issue(t, "user-ws-1")
	conn := mustDial(t, e)

	ack := hello(t, conn, issued.AccessToken)
	if ack.UserID != "user-ws-1" || ack.ConnectionID == "" {
		t.Fatalf("hello.ack = %+v", ack)
	}

	reset := decodeWS[v1.ChatResetPayload](t, readUntil(t, conn, 4, ofType(v1.TypeChatReset)))
	if len(reset.Messages) != 1 || reset.Messages[0].Role != "assistant" || !strings.HasPrefix(reset.Messages[0].Content, "👋 Hi!") {
		t.Fatalf("initial thread = %+v", reset.Messages)
	}
	list := decodeWS[v1.ConversationListPayload](t, readUntil(t, conn, 4, ofType(v1.TypeConversationList)))
	if len(list.Conversations) != 0 {
		t.Fatalf("expected empty list, got %+v", list.Conversations)
	}

	writeWS(t, conn, v1.TypeChatSend, v1.ChatSendPayload{Text: "What is Anaplan?"})

	var sawUser, sawAnswer, sawList bool
	for i := 0; i < 12 && !(sawUser && sawAnswer && sawList); i++ {
		env := readUntil(t, conn, 1, func(v1.Envelope) bool { return true })
		switch env.Type {
		case v1.TypeChatMessage:
			m := decodeWS[v1.ChatMessagePayload](t, env).Message
			switch {
			case m.Role == "user" && m.Content == "What is Anaplan?":
				sawUser = true
			case m.Role == "assistant" && m.Content == "Anaplan is a connected planning platform.":
				sawAnswer = true
			}
		case v1.TypeConversationList:
			l := decodeWS[v1.ConversationListPayload](t, env)
			if len(l.Conversations) == 1 && l.Conversations[0].Title == "What is Anaplan?" {
				sawList = true
			}
		}
	}
	if !sawUser || !sawAnswer || !sawList {
		t.Fatalf("user=%v answer=%v list=%v", sawUser, sawAnswer, sawList)
	}
}

func TestWSGateway_InvalidMessageRejected(t *testing.T) {
	e := newWSEnv(t, nil)
	issued := e.issue(t, "user-ws-2")
	conn := mustDial(t, e)
	hello(t, conn, issued.AccessToken)

	writeWS(t, conn, v1.TypeChatSend, v1.ChatSendPayload{Text: strings.Repeat("x", 2001)})
	env := readUntil(t, conn, 8, ofType(v1.TypeError))
	if p := decodeWS[v1.ErrorPayload](t, env); p.Code != v1.CodeInvalidMessage {
		t.Fatalf("error = %+v", p)
	}
}

func TestWSGateway_RequiresHello(t *testing.T) {
	e := newWSEnv(t, nil)
	conn := mustDial(t, e)

	writeWS(t, conn, v1.TypeConversationList, nil)
	env := readUntil(t, conn, 2, ofType(v1.TypeError))
	if p := decodeWS[v1.ErrorPayload](t, env); p.Code != v1.CodeUnauthorized {
		t.Fatalf("error = %+v", p)
	}

	writeWS(t, conn, v1.TypeHello, v1.HelloPayload{Token: "not-a-token"})
	env = readUntil(t, conn, 2, ofType(v1.TypeError))
	if p := decodeWS[v1.ErrorPayload](t, env); p.Code != v1.CodeUnauthorized {
		t.Fatalf("error = %+v", p)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, _, err := conn.Read(ctx); websocket.CloseStatus(err) != websocket.StatusPolicyViolation {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestWSGateway_SessionEndedElsewhere(t *testing.T) {
	e := newWSEnv(t, nil)
	issued := e.issue(t, "user-ws-3")
	conn := mustDial(t, e)
	hello(t, conn, issued.AccessToken)
	readUntil(t, conn, 4, ofType(v1.TypeConversationList))

	if err := gate.Announce(context.Background(), e.bus, issued.UserID, issued.SessionID); err != nil {
		t.Fatalf("Announce: %v", err)
	}
	env := readUntil(t, conn, 4, ofType(v1.TypeAuthSignedOut))
	if p := decodeWS[v1.AuthSignedOutPayload](t, env); p.Redirect != "/auth" {
		t.Fatalf("redirect = %q", p.Redirect)
	}

	writeWS(t, conn, v1.TypeChatSend, v1.ChatSendPayload{Text: "hello"})
	env = readUntil(t, conn, 2, ofType(v1.TypeError))
	if p := decodeWS[v1.ErrorPayload](t, env); p.Code != v1.CodeUnauthorized {
		t.Fatalf("error = %+v", p)
	}
}

func TestWSGateway_SignOutRevokesSession(t *testing.T) {
	e := newWSEnv(t, nil)
	issued := e.issue(t, "user-ws-4")
	conn := mustDial(t, e)
	hello(t, conn, issued.AccessToken)

	writeWS(t, conn, v1.TypeAuthSignOut, nil)
	readUntil(t, conn, 6, ofType(v1.TypeAuthSignedOut))

	if _, err := e.sessions.ValidateAccessToken(context.Background(), issued.AccessToken, time.Now().UTC()); err == nil {
		t.Fatalf("expected the session to be revoked")
	}
}

func TestWSGateway_RehelloMustKeepUser(t *testing.T) {
	e := newWSEnv(t, nil)
	first := e.issue(t, "user-ws-5")
	other := e.issue(t, "user-ws-6")
	conn := mustDial(t, e)
	hello(t, conn, first.AccessToken)

	rotated := e.issue(t, "user-ws-5")
	if ack := hello(t, conn, rotated.AccessToken); ack.UserID != "user-ws-5" {
		t.Fatalf("re-hello ack = %+v", ack)
	}

	writeWS(t, conn, v1.TypeHello, v1.HelloPayload{Token: other.AccessToken})
	env := readUntil(t, conn, 4, ofType(v1.TypeError))
	if p := decodeWS[v1.ErrorPayload](t, env); p.Code != v1.CodeUnauthorized {
		t.Fatalf("error = %+v", p)
	}
}

func TestWSGateway_HandshakeRejections(t *testing.T) {
	t.Run("invalid bearer", func(t *testing.T) {
		e := newWSEnv(t, nil)
		_, resp, err := dialWS(t, e.srv.URL, "", "not-a-valid-token")
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got resp=%v err=%v", resp, err)
		}
	})

	t.Run("missing origin", func(t *testing.T) {
		e := newWSEnv(t, func(c *GatewayConfig) { c.OriginRequired = true })
		_, resp, err := dialWS(t, e.srv.URL, "", "")
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err == nil || resp == nil || resp.StatusCode != http.StatusForbidden {
			t.Fatalf("expected 403, got resp=%v err=%v", resp, err)
		}
	})

	t.Run("foreign origin", func(t *testing.T) {
		e := newWSEnv(t, func(c *GatewayConfig) { c.OriginRequired = true })
		_, resp, err := dialWS(t, e.srv.URL, "https://evil.example", "")
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err == nil || resp == nil || resp.StatusCode != http.StatusForbidden {
			t.Fatalf("expected 403, got resp=%v err=%v", resp, err)
		}
	})

	t.Run("same origin", func(t *testing.T) {
		e := newWSEnv(t, func(c *GatewayConfig) { c.OriginRequired = true })
		conn, resp, err := dialWS(t, e.srv.URL, e.srv.URL, "")
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	})

	t.Run("allowlisted origin", func(t *testing.T) {
		e := newWSEnv(t, func(c *GatewayConfig) {
			c.OriginRequired = true
			c.AllowedOrigins = []string{"https://axionx.uk"}
		})
		conn, resp, err := dialWS(t, e.srv.URL, "https://axionx.uk", "")
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	})

	t.Run("bearer binds immediately", func(t *testing.T) {
		e := newWSEnv(t, nil)
		issued := e.issue(t, "user-ws-7")
		conn, resp, err := dialWS(t, e.srv.URL, "", issued.AccessToken)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()
		ack := decodeWS[v1.HelloAckPayload](t, readUntil(t, conn, 2, ofType(v1.TypeHelloAck)))
		if ack.UserID != "user-ws-7" {
			t.Fatalf("ack = %+v", ack)
		}
	})
}

func TestOriginHelpers(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080": "localhost",
		"https://AxionX.uk":     "axionx.uk",
		"127.0.0.1:3000":        "127.0.0.1",
		"":                      "",
	}
	for in, want := range cases {
		if got := originHostOnly(in); got != want {
			t.Fatalf("originHostOnly(%q) = %q, want %q", in, got, want)
		}
	}

	got := deriveOriginPatterns([]string{"http://localhost", "http://localhost:3000", "*", "https://axionx.uk"})
	if strings.Join(got, ",") != "*,axionx.uk,localhost" {
		t.Fatalf("deriveOriginPatterns = %v", got)
	}
}
