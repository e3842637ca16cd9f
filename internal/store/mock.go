// ABOUTME: In-memory Client implementation for tests and offline demo runs
// ABOUTME: Rows live in maps; change events are injected and fanned out to subscribers

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Mock is an in-memory Client. Tests seed it with rows, then inject change
// events with EmitConversation / EmitMessage to drive subscribers.
type Mock struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	messages      map[string][]*Message // keyed by conversation id

	convSubs map[string]func(ConversationEvent)
	msgSubs  map[string]*mockMsgSub

	// Error injection. When set, the corresponding call fails with it.
	QueryConversationsErr error
	QueryMessagesErr      error
	InsertErr             error
	UpdateErr             error

	// QueryMessagesHook runs at the start of QueryMessages, before any lock
	// is taken. Tests use it to emit events during a load window.
	QueryMessagesHook func()

	// Mutation log for assertions.
	Inserted []Message
	Updated  []string
}

type mockMsgSub struct {
	conversationID string
	handler        func(MessageEvent)
}

// NewMock creates an empty Mock.
func NewMock() *Mock {
	return &Mock{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
		convSubs:      make(map[string]func(ConversationEvent)),
		msgSubs:       make(map[string]*mockMsgSub),
	}
}

// SeedConversation stores a conversation row without emitting an event.
func (m *Mock) SeedConversation(c Conversation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := c
	m.conversations[c.ID] = &row
}

// SeedMessage stores a message row without emitting an event.
func (m *Mock) SeedMessage(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := msg
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], &row)
}

// QueryConversations returns seeded conversations newest first.
func (m *Mock) QueryConversations(ctx context.Context) ([]Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.QueryConversationsErr != nil {
		return nil, m.QueryConversationsErr
	}
	out := make([]Conversation, 0, len(m.conversations))
	for _, c := range m.conversations {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out, nil
}

// QueryMessages returns seeded messages for one conversation oldest first.
func (m *Mock) QueryMessages(ctx context.Context, conversationID string) ([]Message, error) {
	if m.QueryMessagesHook != nil {
		m.QueryMessagesHook()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.QueryMessagesErr != nil {
		return nil, m.QueryMessagesErr
	}
	rows := m.messages[conversationID]
	out := make([]Message, 0, len(rows))
	for _, msg := range rows {
		out = append(out, *msg)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// InsertMessage records the row and logs the mutation. No event is emitted:
// tests emit the subscription echo explicitly, like the real store does.
func (m *Mock) InsertMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertErr != nil {
		return &MutationError{Collection: CollectionMessages, Op: OpInsert, Err: m.InsertErr}
	}
	row := *msg
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	m.messages[row.ConversationID] = append(m.messages[row.ConversationID], &row)
	m.Inserted = append(m.Inserted, row)
	return nil
}

// UpdateConversationBotActive updates the stored row and logs the mutation.
func (m *Mock) UpdateConversationBotActive(ctx context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return &MutationError{Collection: CollectionConversations, Op: OpUpdate, Err: m.UpdateErr}
	}
	c, ok := m.conversations[id]
	if !ok {
		return &MutationError{Collection: CollectionConversations, Op: OpUpdate, Err: ErrNotFound}
	}
	c.BotActive = active
	m.Updated = append(m.Updated, id)
	return nil
}

// SubscribeConversations registers a handler for injected conversation events.
func (m *Mock) SubscribeConversations(ctx context.Context, handler func(ConversationEvent)) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.convSubs[id] = handler
	return &mockSub{unsub: func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.convSubs, id)
	}}, nil
}

// SubscribeMessages registers a handler scoped to one conversation id.
func (m *Mock) SubscribeMessages(ctx context.Context, conversationID string, handler func(MessageEvent)) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.msgSubs[id] = &mockMsgSub{conversationID: conversationID, handler: handler}
	return &mockSub{unsub: func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.msgSubs, id)
	}}, nil
}

// EmitConversation delivers an event to all conversation subscribers.
func (m *Mock) EmitConversation(ev ConversationEvent) {
	m.mu.RLock()
	handlers := make([]func(ConversationEvent), 0, len(m.convSubs))
	for _, h := range m.convSubs {
		handlers = append(handlers, h)
	}
	m.mu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}

// EmitMessage delivers an event to message subscribers whose scope matches
// the row's conversation id, mirroring the server-side filter.
func (m *Mock) EmitMessage(ev MessageEvent) {
	m.mu.RLock()
	handlers := make([]func(MessageEvent), 0, len(m.msgSubs))
	for _, s := range m.msgSubs {
		if s.conversationID == ev.Row.ConversationID {
			handlers = append(handlers, s.handler)
		}
	}
	m.mu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}

// MessageSubscriberCount reports live message subscriptions, for leak checks.
func (m *Mock) MessageSubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.msgSubs)
}

type mockSub struct {
	once  sync.Once
	unsub func()
}

func (s *mockSub) Unsubscribe() { s.once.Do(s.unsub) }
