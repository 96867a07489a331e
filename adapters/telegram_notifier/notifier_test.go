package telegram_notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jdelaire/dirtylaunderer/core"
)

func newTestNotification() core.Notification {
	return core.Notification{
		ID:        "test-id",
		ChatID:    12345,
		Text:      "hello from test",
		Source:    "test",
		CreatedAt: time.Now(),
	}
}

func TestNotifier_SendSuccess(t *testing.T) {
	var got map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"ok":true,"result":{"message_id":77}}`))
	}))
	defer server.Close()

	n := New("test-token").WithBaseURL(server.URL)
	id, err := n.Send(context.Background(), newTestNotification())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 77 {
		t.Errorf("message id = %d, want 77", id)
	}
	if got["chat_id"] != float64(12345) {
		t.Errorf("chat_id = %v, want 12345", got["chat_id"])
	}
	if got["text"] != "hello from test" {
		t.Errorf("text = %v", got["text"])
	}
	if _, ok := got["parse_mode"]; ok {
		t.Error("parse_mode sent for plain notification")
	}
}

func TestNotifier_SendParseMode(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	defer server.Close()

	notif := newTestNotification()
	notif.ParseMode = core.ParseModeMarkdown

	n := New("test-token").WithBaseURL(server.URL)
	if _, err := n.Send(context.Background(), notif); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["parse_mode"] != "Markdown" {
		t.Errorf("parse_mode = %v, want Markdown", got["parse_mode"])
	}
}

func TestNotifier_SendAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer server.Close()

	n := New("test-token").WithBaseURL(server.URL)
	_, err := n.Send(context.Background(), newTestNotification())
	if err == nil {
		t.Fatal("expected error for API error response")
	}
	if !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNotifier_SendNetworkError(t *testing.T) {
	n := New("test-token").WithBaseURL("http://127.0.0.1:1")
	if _, err := n.Send(context.Background(), newTestNotification()); err == nil {
		t.Fatal("expected error for network failure")
	}
}

func TestNotifier_Delete(t *testing.T) {
	var path string
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	defer server.Close()

	n := New("tok").WithBaseURL(server.URL)
	if err := n.Delete(context.Background(), 5, 9); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "/bottok/deleteMessage" {
		t.Errorf("path = %s", path)
	}
	if got["chat_id"] != float64(5) || got["message_id"] != float64(9) {
		t.Errorf("payload = %v", got)
	}
}

func TestNotifier_Name(t *testing.T) {
	n := New("token")
	if n.Name() != "telegram" {
		t.Errorf("expected name 'telegram', got %s", n.Name())
	}
}

func TestNotifier_BotTokenInURL(t *testing.T) {
	var requestedPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.Path
		w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	defer server.Close()

	n := New("my-secret-token").WithBaseURL(server.URL)
	n.Send(context.Background(), newTestNotification())

	if requestedPath != "/botmy-secret-token/sendMessage" {
		t.Errorf("unexpected path: %s", requestedPath)
	}
}

func TestNotifier_WaitHonorsContext(t *testing.T) {
	n := New("tok").WithBaseURL("http://127.0.0.1:1").WithRate(0.001, 1)
	n.limiter.Allow() // drain the single token

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := n.Send(ctx, newTestNotification()); err == nil {
		t.Fatal("expected pacing error when context expires")
	}
}
