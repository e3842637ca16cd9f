// ABOUTME: Webhook notifier for the external automation system
// ABOUTME: Delivers message-sent and bot-status-changed events as JSON POSTs

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Event kinds on the wire.
const (
	EventMessageSent      = "new_message"
	EventBotStatusChanged = "bot_status_changed"
)

// MessageSentEvent describes an outbound agent message for the automation system.
type MessageSentEvent struct {
	ConversationID string
	Message        string
	PhoneNumber    string
	ManualMode     bool // true when the bot is inactive and a human is answering
}

// BotStatusEvent describes a bot-active transition for the automation system.
type BotStatusEvent struct {
	ConversationID string
	Active         bool
	PhoneNumber    string
}

// Notifier delivers side-effect notifications to the automation system.
// Fire-and-forget semantics: a single awaited call, no retry.
type Notifier interface {
	MessageSent(ctx context.Context, ev MessageSentEvent) error
	BotStatusChanged(ctx context.Context, ev BotStatusEvent) error
}

// Error reports a failed webhook delivery.
type Error struct {
	Event  string
	Status int // HTTP status, 0 when the request never completed
	Err    error
	Body   string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("webhook %s returned status %d: %s", e.Event, e.Status, e.Body)
	}
	return fmt.Sprintf("webhook %s failed: %v", e.Event, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ConfigError reports a webhook endpoint that is not configured. It is
// returned before any network I/O is attempted.
type ConfigError struct {
	Event string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("webhook endpoint for %s is not configured", e.Event)
}

// Webhook is an HTTP Notifier. The two event kinds may be routed to
// distinct endpoints; either URL may be empty, in which case the
// corresponding call fails with a ConfigError.
type Webhook struct {
	messageURL   string
	botStatusURL string
	client       *http.Client
	logger       *slog.Logger
}

// NewWebhook creates a Webhook notifier. Pass nil logger for default.
func NewWebhook(messageURL, botStatusURL string, logger *slog.Logger) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		messageURL:   messageURL,
		botStatusURL: botStatusURL,
		client:       &http.Client{Timeout: 10 * time.Second},
		logger:       logger.With("component", "notify"),
	}
}

// messagePayload is the wire body for EventMessageSent.
type messagePayload struct {
	Event          string `json:"event"`
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	PhoneNumber    string `json:"phone_number"`
	IsManualMode   bool   `json:"is_manual_mode"`
	Timestamp      string `json:"timestamp"`
}

// botStatusPayload is the wire body for EventBotStatusChanged.
type botStatusPayload struct {
	Event          string `json:"event"`
	ConversationID string `json:"conversation_id"`
	IsActive       bool   `json:"is_active"`
	PhoneNumber    string `json:"phone_number"`
	Timestamp      string `json:"timestamp"`
}

// MessageSent notifies the automation system of an agent-sent message.
func (w *Webhook) MessageSent(ctx context.Context, ev MessageSentEvent) error {
	if w.messageURL == "" {
		return &ConfigError{Event: EventMessageSent}
	}
	return w.post(ctx, EventMessageSent, w.messageURL, messagePayload{
		Event:          EventMessageSent,
		ConversationID: ev.ConversationID,
		Message:        ev.Message,
		PhoneNumber:    ev.PhoneNumber,
		IsManualMode:   ev.ManualMode,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	})
}

// BotStatusChanged notifies the automation system of a bot-active transition.
func (w *Webhook) BotStatusChanged(ctx context.Context, ev BotStatusEvent) error {
	if w.botStatusURL == "" {
		return &ConfigError{Event: EventBotStatusChanged}
	}
	return w.post(ctx, EventBotStatusChanged, w.botStatusURL, botStatusPayload{
		Event:          EventBotStatusChanged,
		ConversationID: ev.ConversationID,
		IsActive:       ev.Active,
		PhoneNumber:    ev.PhoneNumber,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	})
}

func (w *Webhook) post(ctx context.Context, event, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &Error{Event: event, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &Error{Event: event, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Error("webhook request failed", "event", event, "error", err)
		return &Error{Event: event, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		w.logger.Error("webhook rejected",
			"event", event,
			"status", resp.StatusCode,
			"body", string(respBody))
		return &Error{Event: event, Status: resp.StatusCode, Body: string(respBody)}
	}

	w.logger.Debug("webhook delivered", "event", event, "status", resp.StatusCode)
	return nil
}
