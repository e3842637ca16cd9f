// ABOUTME: Send coordinator ordering the webhook notification and the store insert
// ABOUTME: The local log is never appended directly; the subscription echo owns membership

package send

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qualiver/agent-console/internal/notify"
	"github.com/qualiver/agent-console/internal/store"
)

// Coordinator sends operator replies. Notify first, then act: the
// automation system is told about the outbound message before the row is
// written, and the message reaches the local log only through the message
// subscription echo, which is the single source of truth for log
// membership.
type Coordinator struct {
	mu       sync.Mutex
	client   store.Client
	notifier notify.Notifier
	logger   *slog.Logger
	inFlight bool
}

// New creates a Coordinator. Pass nil logger for default.
func New(client store.Client, notifier notify.Notifier, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		client:   client,
		notifier: notifier,
		logger:   logger.With("component", "send"),
	}
}

// Send delivers one operator message on the conversation. Empty content
// (after trimming) is a no-op, and a submission while another is still in
// flight is dropped, not queued. manualMode is the effective bot-mode
// complement at submission time and is forwarded to the automation system.
//
// Failure of the notification aborts before any store write. Failure of the
// insert is surfaced; the notification has already fired and is not
// compensated.
func (c *Coordinator) Send(ctx context.Context, conv store.Conversation, content string, manualMode bool) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	c.mu.Lock()
	if c.inFlight {
		c.logger.Debug("send dropped, submission already in flight", "conversation_id", conv.ID)
		c.mu.Unlock()
		return nil
	}
	c.inFlight = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	if err := c.notifier.MessageSent(ctx, notify.MessageSentEvent{
		ConversationID: conv.ID,
		Message:        content,
		PhoneNumber:    conv.PhoneNumber,
		ManualMode:     manualMode,
	}); err != nil {
		c.logger.Error("message notification failed, store untouched",
			"conversation_id", conv.ID,
			"error", err)
		return err
	}

	msg := &store.Message{
		ID:             uuid.New().String(),
		CreatedAt:      time.Now().UTC(),
		ConversationID: conv.ID,
		Sender:         store.SenderAgent,
		Content:        content,
		Status:         store.StatusSent,
		PhoneNumber:    conv.PhoneNumber,
		BotActive:      !manualMode,
	}
	if err := c.client.InsertMessage(ctx, msg); err != nil {
		c.logger.Error("message insert failed after notification",
			"conversation_id", conv.ID,
			"message_id", msg.ID,
			"error", err)
		return err
	}

	c.logger.Debug("message sent",
		"conversation_id", conv.ID,
		"message_id", msg.ID)
	return nil
}
