package mail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestSendFetchesCredentialsEveryCall(t *testing.T) {
	var received []map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emails" {
			http.NotFound(w, r)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		body["auth"] = r.Header.Get("Authorization")
		received = append(received, body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var fetches int32
	client, err := NewClient(srv.URL, func(context.Context) (Credentials, error) {
		n := atomic.AddInt32(&fetches, 1)
		return Credentials{APIKey: "key-" + string(rune('0'+n)), From: "coach@example.com"}, nil
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := client.Send(context.Background(), "user@example.com", "Plan ready", "<p>Done</p>"); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if atomic.LoadInt32(&fetches) != 2 {
		t.Fatalf("credentials must be fetched per send, got %d fetches", fetches)
	}
	if received[0]["auth"] == received[1]["auth"] {
		t.Fatalf("expected fresh credentials per send")
	}
	if received[0]["text"] != "Done" {
		t.Fatalf("expected plain-text alternative, got %q", received[0]["text"])
	}
}

func TestSendSurfacesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"sender domain not verified"}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, func(context.Context) (Credentials, error) {
		return Credentials{APIKey: "key", From: "coach@example.com"}, nil
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	err = client.Send(context.Background(), "user@example.com", "s", "<p>b</p>")
	if err == nil || !strings.Contains(err.Error(), "sender domain not verified") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestSendFailsWhenCredentialsUnavailable(t *testing.T) {
	client, err := NewClient("http://mail.invalid", func(context.Context) (Credentials, error) {
		return Credentials{}, errors.New("vault sealed")
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Send(context.Background(), "u@example.com", "s", "b"); err == nil {
		t.Fatalf("expected credential fetch error")
	}
}

func TestPlainTextStripsMarkupAndStyle(t *testing.T) {
	got := PlainText(`<html><head><style>body{color:red}</style></head><body><h1>Your plan</h1><p>is <b>ready</b>.</p></body></html>`)
	if strings.Contains(got, "color:red") {
		t.Fatalf("style content leaked into plain text: %q", got)
	}
	for _, want := range []string{"Your plan", "ready"} {
		if !strings.Contains(got, want) {
			t.Fatalf("plain text missing %q: %q", want, got)
		}
	}
}
