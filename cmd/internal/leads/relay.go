package leads

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPRelay posts contact messages as JSON to a form-inbox endpoint.
type HTTPRelay struct {
	client *resty.Client
	url    string
}

func NewHTTPRelay(endpoint string, timeout time.Duration) *HTTPRelay {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPRelay{
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", "axionx-site/1"),
		url: endpoint,
	}
}

type relayBody struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Company  string `json:"company,omitempty"`
	Message  string `json:"message"`
	Subject  string `json:"_subject"`
	ReplyTo  string `json:"_replyto"`
	Received string `json:"received_at"`
}

func (r *HTTPRelay) Relay(ctx context.Context, msg ContactMessage) error {
	f := msg.Form
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(relayBody{
			Name:     f.Name,
			Email:    f.Email,
			Company:  f.Company,
			Message:  f.Message,
			Subject:  "AxionX contact: " + f.Name,
			ReplyTo:  f.Email,
			Received: msg.CreatedAt.Format(time.RFC3339),
		}).
		Post(r.url)
	if err != nil {
		return fmt.Errorf("leads: relay: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("leads: relay: unexpected status %d", resp.StatusCode())
	}
	return nil
}
