package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/uptime-monitor/internal/database"
)

func testEvent() Event {
	started := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	return Event{
		TargetID:       uuid.New(),
		TargetName:     "payments",
		URL:            "https://pay.example.com/health",
		Status:         database.StatusDown,
		PreviousStatus: database.StatusUp,
		IncidentID:     uuid.New(),
		CheckedAt:      started,
		StartedAt:      &started,
		ErrorKind:      "timeout",
	}
}

func TestTelegramSender_SingleChat(t *testing.T) {
	var calls int32
	var gotPath string
	var gotPayload map[string]any

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer api.Close()

	s, err := NewTelegramSender(nil, "token123", "chat-42", "Markdown")
	if err != nil {
		t.Fatalf("NewTelegramSender: %v", err)
	}
	s.baseURL = api.URL

	if err := s.Send(context.Background(), testEvent()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected 1 api call, got %d", calls)
	}
	if gotPath != "/bottoken123/sendMessage" {
		t.Fatalf("unexpected api path %q", gotPath)
	}
	if gotPayload["chat_id"] != "chat-42" {
		t.Fatalf("unexpected chat_id %v", gotPayload["chat_id"])
	}
	if gotPayload["parse_mode"] != "Markdown" {
		t.Fatalf("unexpected parse_mode %v", gotPayload["parse_mode"])
	}
	text, _ := gotPayload["text"].(string)
	for _, want := range []string{"payments", "https://pay.example.com/health", "Status: DOWN (previous: UP)", "Error: timeout"} {
		if !strings.Contains(text, want) {
			t.Fatalf("message missing %q:\n%s", want, text)
		}
	}
}

func TestTelegramSender_APIFailure(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer api.Close()

	s, err := NewTelegramSender(nil, "token123", "chat-42", "Markdown")
	if err != nil {
		t.Fatalf("NewTelegramSender: %v", err)
	}
	s.baseURL = api.URL

	if err := s.Send(context.Background(), testEvent()); err == nil {
		t.Fatal("expected error on non-200 api response")
	}
}

func TestNewTelegramSender_RequiresToken(t *testing.T) {
	if _, err := NewTelegramSender(nil, "", "chat", "Markdown"); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestChatIDFromConfig(t *testing.T) {
	cases := []struct {
		name   string
		config string
		want   string
	}{
		{"string id", `{"chat_id": "123"}`, "123"},
		{"numeric id", `{"chat_id": 456}`, "456"},
		{"missing", `{}`, ""},
		{"garbage", `not json`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := chatIDFromConfig(json.RawMessage(tc.config)); got != tc.want {
				t.Fatalf("chatIDFromConfig(%s) = %q, want %q", tc.config, got, tc.want)
			}
		})
	}
}

// Registry must call every sender and survive failures.
func TestRegistry_NotifySwallowsFailures(t *testing.T) {
	var order []string
	failing := senderFunc(func(context.Context, Event) error {
		order = append(order, "failing")
		return context.DeadlineExceeded
	})
	ok := senderFunc(func(context.Context, Event) error {
		order = append(order, "ok")
		return nil
	})

	r := NewRegistry(failing, ok)
	r.Notify(context.Background(), testEvent())

	if len(order) != 2 || order[0] != "failing" || order[1] != "ok" {
		t.Fatalf("expected both senders called in order, got %v", order)
	}
}

type senderFunc func(ctx context.Context, ev Event) error

func (f senderFunc) Send(ctx context.Context, ev Event) error { return f(ctx, ev) }
