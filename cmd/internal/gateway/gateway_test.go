package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestAsk_Success(t *testing.T) {
	var gotQuestion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/ask" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Question string `json:"question"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotQuestion = body.Question
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"answer":"Anaplan is a CPM platform."}`)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/"}, quietLogger())
	answer, err := c.Ask(context.Background(), "What is Anaplan?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer != "Anaplan is a CPM platform." || gotQuestion != "What is Anaplan?" {
		t.Fatalf("answer=%q question=%q", answer, gotQuestion)
	}
}

func TestAsk_FailuresFoldIntoGatewayError(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		kind    Kind
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}, KindStatus},
		{"not found", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}, KindStatus},
		{"malformed json", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"answer":`)
		}, KindDecode},
		{"missing answer", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"text":"hi"}`)
		}, KindDecode},
		{"answer not a string", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"answer":42}`)
		}, KindDecode},
		{"oversized answer", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"answer":"`+strings.Repeat("x", maxAnswerBytes)+`"}`)
		}, KindDecode},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			_, err := New(Config{BaseURL: srv.URL}, quietLogger()).Ask(context.Background(), "q")
			if !errors.Is(err, ErrGateway) {
				t.Fatalf("expected ErrGateway, got %v", err)
			}
			var gerr *Error
			if !errors.As(err, &gerr) || gerr.Kind != tc.kind {
				t.Fatalf("expected kind %s, got %v", tc.kind, err)
			}
		})
	}
}

func TestAsk_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(Config{BaseURL: url}, quietLogger()).Ask(context.Background(), "q")
	var gerr *Error
	if !errors.As(err, &gerr) || gerr.Kind != KindTransport || !errors.Is(err, ErrGateway) {
		t.Fatalf("expected transport gateway error, got %v", err)
	}
}

func TestAsk_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, quietLogger())
	start := time.Now()
	_, err := c.Ask(context.Background(), "q")
	if !errors.Is(err, ErrGateway) {
		t.Fatalf("expected ErrGateway, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("timeout not enforced")
	}
}
