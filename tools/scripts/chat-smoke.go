// Package main is a CI-friendly smoke test for the AxionX chat surface.
//
// It validates, against a running server:
//   - login (or signup) over HTTP
//   - handshake, subprotocol selection and hello/ack
//   - ask -> user message, answer (or apology)
//   - a second tab sees the new conversation in its list
//   - selecting the conversation in the second tab reloads the thread
//   - logout over HTTP signs both tabs out
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "axionx/shared/contracts/chat/v1"

	"github.com/coder/websocket"
	"github.com/go-resty/resty/v2"
)

const maxReadBytes = 1 << 20

type smokeClient struct {
	name   string
	conn   *websocket.Conn
	connID string

	inbox chan v1.Envelope
	errCh chan error
}

type authResult struct {
	User struct {
		ID string `json:"id"`
	} `json:"user"`
	Session struct {
		AccessToken string `json:"access_token"`
	} `json:"session"`
}

func main() {
	var (
		baseURL  = flag.String("base", "http://127.0.0.1:8080", "Server base URL")
		origin   = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		email    = flag.String("email", "smoke@axionx.uk", "Account email")
		password = flag.String("password", "smoke-test-2026", "Account password")
		signup   = flag.Bool("signup", false, "Create the account first")
		text     = flag.String("text", "What is Anaplan?", "Question to ask")
		timeout  = flag.Duration("timeout", 35*time.Second, "Per-step timeout (covers one answer)")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	wsURL, err := wsURLFrom(*baseURL)
	if err != nil {
		fatalf("invalid -base: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	api := resty.New().SetBaseURL(*baseURL).SetTimeout(*timeout)
	auth := mustAuthenticate(api, *email, *password, *signup)

	root := context.Background()

	a := mustConnect(root, "A", wsURL, *origin, auth.Session.AccessToken, *timeout)
	defer closeWS(a.conn)
	b := mustConnect(root, "B", wsURL, *origin, auth.Session.AccessToken, *timeout)
	defer closeWS(b.conn)

	if *verbose {
		fmt.Printf("connected: A=%s B=%s user=%s\n", a.connID, b.connID, auth.User.ID)
	}

	mustWrite(root, a.conn, v1.TypeChatSend, v1.ChatSendPayload{Text: *text}, *timeout)
	a.mustReadMessage(root, "user", *text, *timeout)
	answer := a.mustReadMessage(root, "assistant", "", *timeout)
	if *verbose {
		fmt.Printf("answer: %q\n", answer)
	}

	convID := b.mustReadListWith(root, *text, *timeout)

	mustWrite(root, b.conn, v1.TypeConversationSelect, v1.ConversationSelectPayload{ConversationID: convID}, *timeout)
	reset := b.mustReadUntilType(root, v1.TypeChatReset, *timeout)
	var rp v1.ChatResetPayload
	if err := reset.Decode(&rp); err != nil {
		fatalf("decode chat.reset: %v", err)
	}
	if rp.ConversationID != convID || len(rp.Messages) < 2 {
		fatalf("chat.reset mismatch: conv=%q messages=%d", rp.ConversationID, len(rp.Messages))
	}

	resp, err := api.R().SetAuthToken(auth.Session.AccessToken).Post("/auth/logout")
	if err != nil {
		fatalf("logout: %v", err)
	}
	if resp.StatusCode() != 204 {
		fatalf("logout: status %d", resp.StatusCode())
	}
	a.mustReadUntilType(root, v1.TypeAuthSignedOut, *timeout)
	b.mustReadUntilType(root, v1.TypeAuthSignedOut, *timeout)

	fmt.Printf("OK: user=%s conversation=%s A=%s B=%s\n", auth.User.ID, convID, a.connID, b.connID)
}

func mustAuthenticate(c *resty.Client, email, password string, signup bool) authResult {
	body := map[string]any{"email": email, "password": password, "platform": "native"}
	if signup {
		resp, err := c.R().SetBody(body).Post("/auth/signup")
		if err != nil {
			fatalf("signup: %v", err)
		}
		if resp.StatusCode() != 201 && resp.StatusCode() != 409 {
			fatalf("signup: status %d: %s", resp.StatusCode(), resp.String())
		}
	}

	var out authResult
	resp, err := c.R().SetBody(body).SetResult(&out).Post("/auth/login")
	if err != nil {
		fatalf("login: %v", err)
	}
	if resp.StatusCode() != 200 || out.Session.AccessToken == "" {
		fatalf("login: status %d: %s", resp.StatusCode(), resp.String())
	}
	return out
}

func wsURLFrom(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", errors.New("missing host")
	}
	u.Path = "/ws"
	return u.String(), nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, wsURL, origin, token string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", name, err)
	}
	if got := conn.Subprotocol(); got != v1.Subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, v1.Subprotocol)
	}
	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan v1.Envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()

	mustWrite(parent, conn, v1.TypeHello, v1.HelloPayload{Token: token}, stepTimeout)
	ack := c.mustReadUntilType(parent, v1.TypeHelloAck, stepTimeout)

	var p v1.HelloAckPayload
	if err := ack.Decode(&p); err != nil {
		fatalf("decode hello.ack (%s): %v", name, err)
	}
	if strings.TrimSpace(p.ConnectionID) == "" {
		fatalf("hello.ack missing connection_id (%s)", name)
	}
	c.connID = p.ConnectionID
	return c
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				c.fail(err)
				return
			}
			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				c.fail(fmt.Errorf("unsupported message type: %v", mt))
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				c.fail(fmt.Errorf("bad json: %w", err))
				return
			}
			select {
			case c.inbox <- env:
			default:
				c.fail(errors.New("inbox overflow: consumer too slow"))
				return
			}
		}
	}()
}

func (c *smokeClient) fail(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}

// next returns the next envelope, failing on server errors and closed connections.
func (c *smokeClient) next(ctx context.Context, waitingFor string) v1.Envelope {
	select {
	case <-ctx.Done():
		fatalf("timeout waiting for %s (%s): %v", waitingFor, c.name, ctx.Err())
	case err := <-c.errCh:
		fatalf("connection error while waiting for %s (%s): %v", waitingFor, c.name, err)
	case env, ok := <-c.inbox:
		if !ok {
			fatalf("connection closed while waiting for %s (%s)", waitingFor, c.name)
		}
		if env.Type == v1.TypeError {
			var ep v1.ErrorPayload
			_ = env.Decode(&ep)
			fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
		}
		return env
	}
	return v1.Envelope{}
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		if env := c.next(ctx, wantType); env.Type == wantType {
			return env
		}
	}
}

// mustReadMessage waits for a chat.message from role; an empty content matches any.
func (c *smokeClient) mustReadMessage(parent context.Context, role, content string, stepTimeout time.Duration) string {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		env := c.next(ctx, "chat.message from "+role)
		if env.Type != v1.TypeChatMessage {
			continue
		}
		var p v1.ChatMessagePayload
		if err := env.Decode(&p); err != nil {
			fatalf("decode chat.message (%s): %v", c.name, err)
		}
		if p.Message.Role == role && (content == "" || p.Message.Content == content) {
			return p.Message.Content
		}
	}
}

func (c *smokeClient) mustReadListWith(parent context.Context, title string, stepTimeout time.Duration) string {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	// Titles are the first 50 runes of the question.
	want := strings.TrimSpace(title)
	if r := []rune(want); len(r) > 50 {
		want = strings.TrimSpace(string(r[:50]))
	}
	for {
		env := c.next(ctx, "conversation.list")
		if env.Type != v1.TypeConversationList {
			continue
		}
		var p v1.ConversationListPayload
		if err := env.Decode(&p); err != nil {
			fatalf("decode conversation.list (%s): %v", c.name, err)
		}
		for _, conv := range p.Conversations {
			if conv.Title == want {
				return conv.ID
			}
		}
	}
}

func mustWrite(parent context.Context, conn *websocket.Conn, typ string, payload any, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	env, err := v1.New(typ, fmt.Sprintf("smoke-%d", time.Now().UnixNano()), time.Now().UTC(), payload)
	if err != nil {
		fatalf("build envelope: %v", err)
	}
	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
