package alert

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/uptime-monitor/internal/database"
)

const defaultTelegramBaseURL = "https://api.telegram.org"

// TelegramSender delivers alert events through the Telegram Bot API.
//
// When a chat id is configured it is the single destination. Otherwise the
// sender fans out to every active notification channel of type "telegram",
// recording a notification_events row per delivery attempt.
type TelegramSender struct {
	client    *http.Client
	q         *database.Queries
	baseURL   string
	token     string
	chatID    string
	parseMode string
}

// NewTelegramSender constructs a sender. token must be non-empty; chatID may
// be empty to enable store-resolved channels.
func NewTelegramSender(q *database.Queries, token, chatID, parseMode string) (*TelegramSender, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is not configured")
	}
	return &TelegramSender{
		client:    &http.Client{Timeout: 5 * time.Second},
		q:         q,
		baseURL:   defaultTelegramBaseURL,
		token:     token,
		chatID:    chatID,
		parseMode: parseMode,
	}, nil
}

// Send implements Sender.
func (t *TelegramSender) Send(ctx context.Context, ev Event) error {
	text := formatMessage(ev)

	if t.chatID != "" {
		return t.post(ctx, t.chatID, text)
	}

	channels, err := t.q.ListActiveChannelsByType(ctx, "telegram")
	if err != nil {
		return fmt.Errorf("resolve telegram channels: %w", err)
	}

	var firstErr error
	for _, ch := range channels {
		chat := chatIDFromConfig(ch.Config)
		if chat == "" {
			continue
		}

		event, evErr := t.q.InsertNotificationEvent(ctx, ev.IncidentID, ch.ID)
		sendErr := t.post(ctx, chat, text)

		if evErr == nil {
			status := database.NotificationSent
			var msg sql.NullString
			if sendErr != nil {
				status = database.NotificationFailed
				msg = sql.NullString{String: sendErr.Error(), Valid: true}
			}
			_ = t.q.MarkNotificationEvent(ctx, event.ID, status, msg, time.Now().UTC())
		}
		if sendErr != nil && firstErr == nil {
			firstErr = fmt.Errorf("telegram channel %s: %w", ch.ID, sendErr)
		}
	}
	return firstErr
}

// post calls sendMessage for one chat.
func (t *TelegramSender) post(ctx context.Context, chatID, text string) error {
	payload := map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"parse_mode":               t.parseMode,
		"disable_web_page_preview": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram api returned status %d", resp.StatusCode)
	}
	return nil
}

// chatIDFromConfig extracts the chat_id key from a channel's JSON config.
func chatIDFromConfig(config json.RawMessage) string {
	var cfg struct {
		ChatID any `json:"chat_id"`
	}
	if err := json.Unmarshal(config, &cfg); err != nil || cfg.ChatID == nil {
		return ""
	}
	switch v := cfg.ChatID.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

func formatMessage(ev Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Site: %s\n", ev.TargetName)
	fmt.Fprintf(&b, "URL: %s\n", ev.URL)
	fmt.Fprintf(&b, "Status: %s (previous: %s)", ev.Status, ev.PreviousStatus)
	if ev.IncidentID != uuid.Nil {
		fmt.Fprintf(&b, "\nIncident: %s", ev.IncidentID)
	}
	if ev.StartedAt != nil || ev.EndedAt != nil {
		start, end := "?", "?"
		if ev.StartedAt != nil {
			start = ev.StartedAt.Format(time.RFC3339)
		}
		if ev.EndedAt != nil {
			end = ev.EndedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "\nWindow: %s -> %s", start, end)
	}
	if ev.ErrorKind != "" {
		fmt.Fprintf(&b, "\nError: %s", ev.ErrorKind)
	}
	fmt.Fprintf(&b, "\nChecked at: %s", ev.CheckedAt.Format(time.RFC3339))
	return b.String()
}
