// ABOUTME: Message synchronizer owning the ordered log of the selected conversation
// ABOUTME: Subscribes before loading and merges by id to close the load/subscribe race

package sync

import (
	"context"
	"log/slog"
	"sort"
	gosync "sync"

	"github.com/qualiver/agent-console/internal/store"
)

// Messages owns the in-memory message log for the currently selected
// conversation: the ordered sequence of that conversation's messages by
// creation time ascending, with no duplicate ids. The log is discarded and
// reloaded whenever the selection changes.
type Messages struct {
	mu     gosync.Mutex
	client store.Client
	logger *slog.Logger

	conversationID string
	generation     uint64
	log            []store.Message
	ids            map[string]struct{}
	sub            store.Subscription

	// During the initial load, live inserts are buffered and merged with
	// the query result afterwards, deduplicated by id.
	loading bool
	buffer  []store.Message

	// onAppend fires after a live insert lands in the log.
	onAppend func(store.Message)
}

// NewMessages creates a synchronizer. Pass nil logger for default.
func NewMessages(client store.Client, logger *slog.Logger) *Messages {
	if logger == nil {
		logger = slog.Default()
	}
	return &Messages{
		client: client,
		logger: logger.With("component", "messages"),
		ids:    make(map[string]struct{}),
	}
}

// OnAppend registers the observer notified when a live insert is appended.
func (m *Messages) OnAppend(fn func(store.Message)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAppend = fn
}

// SetConversation switches the log to a different conversation: the
// previous subscription is torn down, the log cleared, a new scoped
// subscription established, and only then the history fetched. Events that
// arrive while the fetch is in flight are buffered and merged by id, so an
// insert committed during the race is neither missed nor duplicated.
func (m *Messages) SetConversation(ctx context.Context, conversationID string) error {
	m.mu.Lock()
	if conversationID == m.conversationID {
		m.mu.Unlock()
		return nil
	}

	prev := m.sub
	m.sub = nil
	m.generation++
	gen := m.generation
	m.conversationID = conversationID
	m.log = nil
	m.ids = make(map[string]struct{})
	m.buffer = nil
	m.loading = true
	m.mu.Unlock()

	if prev != nil {
		prev.Unsubscribe()
	}
	if conversationID == "" {
		m.mu.Lock()
		m.loading = false
		m.mu.Unlock()
		return nil
	}

	sub, err := m.client.SubscribeMessages(ctx, conversationID, func(ev store.MessageEvent) {
		m.apply(gen, ev)
	})
	if err != nil {
		m.mu.Lock()
		m.loading = false
		m.mu.Unlock()
		m.logger.Error("message subscription failed", "conversation_id", conversationID, "error", err)
		return &LoadError{Collection: store.CollectionMessages, Err: err}
	}

	rows, err := m.client.QueryMessages(ctx, conversationID)

	m.mu.Lock()
	if m.generation != gen {
		// Selection moved on while we were loading. The new selection owns
		// the state now; just drop this subscription.
		m.mu.Unlock()
		sub.Unsubscribe()
		return nil
	}
	if err != nil {
		m.loading = false
		m.buffer = nil
		m.mu.Unlock()
		sub.Unsubscribe()
		m.logger.Error("message load failed", "conversation_id", conversationID, "error", err)
		return &LoadError{Collection: store.CollectionMessages, Err: err}
	}

	m.sub = sub
	merged := append(rows, m.buffer...)
	m.buffer = nil
	m.loading = false
	m.log = m.log[:0]
	m.ids = make(map[string]struct{})
	for _, msg := range merged {
		if _, dup := m.ids[msg.ID]; dup {
			continue
		}
		m.ids[msg.ID] = struct{}{}
		m.log = append(m.log, msg)
	}
	sort.SliceStable(m.log, func(i, j int) bool {
		return m.log[i].CreatedAt.Before(m.log[j].CreatedAt)
	})
	m.logger.Debug("messages loaded", "conversation_id", conversationID, "count", len(m.log))
	m.mu.Unlock()
	return nil
}

// apply reconciles one change event. The subscription is scoped server-side
// to the active conversation, but events whose conversation id does not match
// are still dropped, and stale generations are discarded outright.
func (m *Messages) apply(gen uint64, ev store.MessageEvent) {
	if ev.Op != store.OpInsert {
		// Messages are never mutated after creation; ignore anything else.
		return
	}

	m.mu.Lock()
	if gen != m.generation || ev.Row.ConversationID != m.conversationID {
		m.mu.Unlock()
		return
	}
	if m.loading {
		m.buffer = append(m.buffer, ev.Row)
		m.mu.Unlock()
		return
	}
	if _, dup := m.ids[ev.Row.ID]; dup {
		m.mu.Unlock()
		return
	}
	m.ids[ev.Row.ID] = struct{}{}
	m.log = append(m.log, ev.Row)
	notify := m.onAppend
	row := ev.Row
	m.mu.Unlock()

	if notify != nil {
		notify(row)
	}
}

// Snapshot returns a copy of the log in display order.
func (m *Messages) Snapshot() []store.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Message, len(m.log))
	copy(out, m.log)
	return out
}

// ConversationID returns the id the log is currently scoped to.
func (m *Messages) ConversationID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversationID
}

// Close releases the live subscription.
func (m *Messages) Close() {
	m.mu.Lock()
	sub := m.sub
	m.sub = nil
	m.generation++
	m.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}
