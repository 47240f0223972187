// Package gateway is the client for the remote question-answering service:
// POST {base}/ask with {"question"} returning {"answer"}.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"axionx/cmd/internal/metrics"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultBaseURL = "https://kaitlyn-uncommendatory-valene.ngrok-free.dev"
	DefaultTimeout = 30 * time.Second

	maxAnswerBytes = 1 << 20
)

// ErrGateway matches every failed Ask, whatever the cause.
var ErrGateway = errors.New("chat gateway error")

// Kind says which step of the call failed. It is for logs and metrics only;
// callers handle every kind the same way.
type Kind string

const (
	KindStatus    Kind = "status"
	KindTransport Kind = "transport"
	KindDecode    Kind = "decode"
)

// Error is the single failure type returned by Ask.
type Error struct {
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindStatus:
		return fmt.Sprintf("chat gateway: unexpected status %d", e.Status)
	case e.Err != nil:
		return fmt.Sprintf("chat gateway: %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("chat gateway: %s", e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrGateway }

// Config locates the answer service.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client calls the answer service. It never retries.
type Client struct {
	http *resty.Client
	log  *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "axionx-chat/1.0"
	}

	return &Client{
		http: resty.New().
			SetBaseURL(base).
			SetTimeout(timeout).
			SetRetryCount(0).
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", ua),
		log: log,
	}
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer *string `json:"answer"`
}

// Ask sends one question and returns the answer text. Every failure is an *Error
// matching ErrGateway.
func (c *Client) Ask(ctx context.Context, question string) (string, error) {
	start := time.Now()
	answer, err := c.ask(ctx, question)

	outcome := "ok"
	var gerr *Error
	if errors.As(err, &gerr) {
		outcome = string(gerr.Kind)
		c.log.Warn("gateway.ask.fail",
			"kind", gerr.Kind,
			"status", gerr.Status,
			"duration_ms", time.Since(start).Milliseconds(),
			"err", err,
		)
	}
	metrics.GatewayRequestsTotal.WithLabelValues(outcome).Inc()
	metrics.GatewayRequestDuration.Observe(time.Since(start).Seconds())

	return answer, err
}

func (c *Client) ask(ctx context.Context, question string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(askRequest{Question: question}).
		SetDoNotParseResponse(true).
		Post("/ask")
	if err != nil {
		return "", &Error{Kind: KindTransport, Err: err}
	}
	raw := resp.RawBody()
	defer func() { _ = raw.Close() }()

	if code := resp.StatusCode(); code < 200 || code > 299 {
		return "", &Error{Kind: KindStatus, Status: code}
	}

	body, err := io.ReadAll(io.LimitReader(raw, maxAnswerBytes+1))
	if err != nil {
		return "", &Error{Kind: KindTransport, Status: resp.StatusCode(), Err: err}
	}
	if len(body) > maxAnswerBytes {
		return "", &Error{Kind: KindDecode, Status: resp.StatusCode(), Err: errors.New("answer too large")}
	}

	var out askResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &Error{Kind: KindDecode, Status: resp.StatusCode(), Err: err}
	}
	if out.Answer == nil {
		return "", &Error{Kind: KindDecode, Status: resp.StatusCode(), Err: errors.New("missing answer")}
	}
	return *out.Answer, nil
}
