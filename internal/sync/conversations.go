// ABOUTME: Conversation synchronizer reconciling initial load with live change events
// ABOUTME: Owns the in-memory conversation list, its ordering invariant and the selection

package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	gosync "sync"

	"github.com/qualiver/agent-console/internal/store"
)

// LoadError reports a failed initial fetch. The in-memory state kept from
// before the failed load remains valid.
type LoadError struct {
	Collection string
	Err        error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading %s failed: %v", e.Collection, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Conversations owns the in-memory conversation list. The list is kept
// sorted by last-message time descending with exactly one entry per id.
type Conversations struct {
	mu     gosync.Mutex
	client store.Client
	logger *slog.Logger

	list       []store.Conversation
	selectedID string
	sub        store.Subscription

	// onSelectedUpdate is called with a fresh snapshot when a change event
	// touches the currently selected conversation, so dependent components
	// observe the change.
	onSelectedUpdate func(store.Conversation)
}

// NewConversations creates a synchronizer. Pass nil logger for default.
func NewConversations(client store.Client, logger *slog.Logger) *Conversations {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conversations{
		client: client,
		logger: logger.With("component", "conversations"),
	}
}

// OnSelectedUpdate registers the observer notified when the selected
// conversation's row changes under a change event.
func (c *Conversations) OnSelectedUpdate(fn func(store.Conversation)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSelectedUpdate = fn
}

// Start subscribes to the change-event stream and then performs the
// initial load. Subscribing first closes the window in which an insert
// committed during the load would be missed; Apply deduplicates by id.
func (c *Conversations) Start(ctx context.Context) error {
	sub, err := c.client.SubscribeConversations(ctx, c.Apply)
	if err != nil {
		return fmt.Errorf("subscribing to conversations: %w", err)
	}
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()

	return c.Load(ctx)
}

// Load fetches the full conversation collection and replaces the list
// wholesale. On failure the previous list is left untouched.
func (c *Conversations) Load(ctx context.Context) error {
	rows, err := c.client.QueryConversations(ctx)
	if err != nil {
		c.logger.Error("conversation load failed", "error", err)
		return &LoadError{Collection: store.CollectionConversations, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = rows
	c.sortLocked()
	c.logger.Debug("conversations loaded", "count", len(rows))
	return nil
}

// Apply reconciles one change event into the list. Inserts prepend (the new
// conversation is by construction the most recent); updates replace the row
// with matching id in place, re-sorting only when the last-message time
// moved. Updates for unknown ids are ignored.
func (c *Conversations) Apply(ev store.ConversationEvent) {
	c.mu.Lock()

	var selectedSnapshot *store.Conversation

	switch ev.Op {
	case store.OpInsert:
		if i := c.indexLocked(ev.Row.ID); i >= 0 {
			// Duplicate delivery of a row we already hold. Treat as update.
			c.list[i] = ev.Row
			c.sortLocked()
		} else {
			c.list = append([]store.Conversation{ev.Row}, c.list...)
		}

	case store.OpUpdate:
		i := c.indexLocked(ev.Row.ID)
		if i < 0 {
			c.logger.Debug("update for unknown conversation ignored", "conversation_id", ev.Row.ID)
			c.mu.Unlock()
			return
		}
		moved := !c.list[i].LastMessageAt.Equal(ev.Row.LastMessageAt)
		c.list[i] = ev.Row
		if moved {
			c.sortLocked()
		}

	default:
		c.mu.Unlock()
		return
	}

	if ev.Row.ID == c.selectedID && c.onSelectedUpdate != nil {
		row := ev.Row
		selectedSnapshot = &row
	}
	notify := c.onSelectedUpdate
	c.mu.Unlock()

	if selectedSnapshot != nil {
		notify(*selectedSnapshot)
	}
}

// Select sets the active conversation. Selecting the already-active
// conversation is a no-op; the caller drives the message reload when the
// returned snapshot reports a change.
func (c *Conversations) Select(id string) (store.Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == c.selectedID {
		return store.Conversation{}, false
	}
	i := c.indexLocked(id)
	if i < 0 {
		return store.Conversation{}, false
	}
	c.selectedID = id
	return c.list[i], true
}

// Selected returns a snapshot of the active conversation, if any.
func (c *Conversations) Selected() (store.Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(c.selectedID)
	if i < 0 {
		return store.Conversation{}, false
	}
	return c.list[i], true
}

// Snapshot returns a copy of the list in display order.
func (c *Conversations) Snapshot() []store.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]store.Conversation, len(c.list))
	copy(out, c.list)
	return out
}

// Close releases the change-event subscription.
func (c *Conversations) Close() {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}

func (c *Conversations) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range c.list {
		if c.list[i].ID == id {
			return i
		}
	}
	return -1
}

// sortLocked restores the last-message-time-descending order. A zero time
// sorts oldest, matching the store's nulls-last ordering.
func (c *Conversations) sortLocked() {
	sort.SliceStable(c.list, func(i, j int) bool {
		return c.list[i].LastMessageAt.After(c.list[j].LastMessageAt)
	})
}
