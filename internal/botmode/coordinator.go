// ABOUTME: Bot-mode coordinator serializing bot_active toggles per conversation
// ABOUTME: Tracks confirmed vs optimistic state and reconciles external updates

package botmode

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/qualiver/agent-console/internal/notify"
	"github.com/qualiver/agent-console/internal/store"
)

// state is the per-conversation bot-mode record.
//
// confirmed is the last value observed from the remote store. optimistic is
// the value shown while a toggle is in flight. deferred holds an external
// update observed while pending; it is folded into confirmed only once the
// pending operation resolves, so it never overwrites the in-flight display.
type state struct {
	confirmed  bool
	optimistic *bool
	pending    bool
	deferred   *bool
}

// Coordinator owns the authoritative-vs-optimistic bot_active flag for each
// conversation and serializes toggle operations: at most one toggle is in
// flight per conversation, and a second request while pending is dropped,
// not queued.
//
// A toggle notifies the automation system first and mutates the store only
// if the notification succeeded. The automation system must learn about the
// transition before the store reflects it; this ordering is a fixed policy
// of the console's external contract.
type Coordinator struct {
	mu       sync.Mutex
	client   store.Client
	notifier notify.Notifier
	logger   *slog.Logger
	states   map[string]*state
}

// New creates a Coordinator. Pass nil logger for default.
func New(client store.Client, notifier notify.Notifier, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		client:   client,
		notifier: notifier,
		logger:   logger.With("component", "botmode"),
		states:   make(map[string]*state),
	}
}

// Toggle requests a bot_active transition for the conversation. The
// effective value flips to target immediately (optimistic display); on any
// failure it reverts to the pre-toggle confirmed value and the error is
// returned. Invoking Toggle while a toggle is already pending for the same
// conversation is a no-op.
func (c *Coordinator) Toggle(ctx context.Context, conv store.Conversation, target bool) error {
	c.mu.Lock()
	st := c.stateLocked(conv)
	if st.pending {
		c.logger.Debug("toggle dropped, request already in flight", "conversation_id", conv.ID)
		c.mu.Unlock()
		return nil
	}
	st.pending = true
	t := target
	st.optimistic = &t
	c.mu.Unlock()

	c.logger.Debug("toggle started",
		"conversation_id", conv.ID,
		"target", target)

	if err := c.notifier.BotStatusChanged(ctx, notify.BotStatusEvent{
		ConversationID: conv.ID,
		Active:         target,
		PhoneNumber:    conv.PhoneNumber,
	}); err != nil {
		c.resolve(conv.ID, false, target)
		return fmt.Errorf("bot status notification failed: %w", err)
	}

	if err := c.client.UpdateConversationBotActive(ctx, conv.ID, target); err != nil {
		c.resolve(conv.ID, false, target)
		return err
	}

	c.resolve(conv.ID, true, target)
	return nil
}

// resolve is the single exit from Pending. On success the target becomes
// the confirmed value; on failure the pre-toggle confirmed value stands.
// Either way an external update deferred during the flight is then applied
// as the new confirmed baseline, last write wins.
func (c *Coordinator) resolve(conversationID string, ok, target bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, exists := c.states[conversationID]
	if !exists {
		return
	}
	if ok {
		st.confirmed = target
	}
	if st.deferred != nil {
		st.confirmed = *st.deferred
		st.deferred = nil
	}
	st.optimistic = nil
	st.pending = false
	c.logger.Debug("toggle resolved",
		"conversation_id", conversationID,
		"ok", ok,
		"confirmed", st.confirmed)
}

// ObserveRemote feeds a conversation change event into the coordinator.
// While a toggle is pending for that conversation, the remote value is
// stashed rather than applied, so it cannot overwrite the in-flight
// optimistic display; otherwise it becomes the confirmed value directly.
// The echo of our own successful mutation lands here too and is an
// idempotent confirmation.
func (c *Coordinator) ObserveRemote(conv store.Conversation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stateLocked(conv)
	if st.pending {
		v := conv.BotActive
		st.deferred = &v
		return
	}
	st.confirmed = conv.BotActive
}

// Effective returns the bot_active value the UI should display for the
// conversation: the optimistic value while a toggle is in flight, the
// confirmed value otherwise.
func (c *Coordinator) Effective(conv store.Conversation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stateLocked(conv)
	if st.optimistic != nil {
		return *st.optimistic
	}
	return st.confirmed
}

// Pending reports whether a toggle is in flight for the conversation.
func (c *Coordinator) Pending(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[conversationID]
	return ok && st.pending
}

// stateLocked returns the record for the conversation, seeding confirmed
// from the row's stored flag on first sight.
func (c *Coordinator) stateLocked(conv store.Conversation) *state {
	st, ok := c.states[conv.ID]
	if !ok {
		st = &state{confirmed: conv.BotActive}
		c.states[conv.ID] = st
	}
	return st
}
