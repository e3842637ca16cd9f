// ABOUTME: Data types and Client contract for the remote conversation store
// ABOUTME: Defines Conversation, Message, change events and the query/subscribe/mutate interface

package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Collection names in the remote store.
const (
	CollectionConversations = "conversations"
	CollectionMessages      = "messages"
)

// Sender classifications for messages. Closed set: a message is produced
// by the automated bot, a human agent, or the end user on the channel.
const (
	SenderBot   = "bot"
	SenderAgent = "agent"
	SenderUser  = "user"
)

// Delivery statuses for outbound messages.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// Conversation is a single contact thread. BotActive controls whether the
// automated responder is authorized to answer; false means a human handles it.
type Conversation struct {
	ID            string         `json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	ContactName   string         `json:"contact_name,omitempty"`
	PhoneNumber   string         `json:"phone_number"`
	LastMessageAt time.Time      `json:"last_message_at,omitempty"`
	BotActive     bool           `json:"bot_active"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Message is one entry in a conversation's log. BotActive is a snapshot of
// the conversation flag at the time the message was produced and is used
// for display annotation only.
type Message struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	ConversationID string    `json:"conversation_id"`
	Sender         string    `json:"sender_type"`
	Content        string    `json:"message"`
	MediaURL       string    `json:"media_url,omitempty"`
	Status         string    `json:"message_status,omitempty"`
	PhoneNumber    string    `json:"phone_number,omitempty"`
	BotActive      bool      `json:"bot_active"`
}

// Op is a change-event operation.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
)

// ConversationEvent is a change event on the conversations collection.
type ConversationEvent struct {
	Op  Op
	Row Conversation
}

// MessageEvent is a change event on the messages collection.
type MessageEvent struct {
	Op  Op
	Row Message
}

// Subscription is a handle to a live change-event feed.
type Subscription interface {
	// Unsubscribe stops event delivery. Safe to call more than once.
	Unsubscribe()
}

// Client is the remote store contract the synchronizers and coordinators
// consume: query current rows, subscribe to change events, mutate rows.
// Implementations own transport, auth and timeouts.
type Client interface {
	// QueryConversations returns all conversations ordered by last message
	// time descending, newest first.
	QueryConversations(ctx context.Context) ([]Conversation, error)

	// QueryMessages returns all messages for one conversation ordered by
	// creation time ascending.
	QueryMessages(ctx context.Context, conversationID string) ([]Message, error)

	// InsertMessage writes a new message row.
	InsertMessage(ctx context.Context, msg *Message) error

	// UpdateConversationBotActive sets the bot_active flag on a conversation.
	UpdateConversationBotActive(ctx context.Context, id string, active bool) error

	// SubscribeConversations delivers insert/update events for all
	// conversations, in arrival order, until unsubscribed.
	SubscribeConversations(ctx context.Context, handler func(ConversationEvent)) (Subscription, error)

	// SubscribeMessages delivers insert events scoped server-side to one
	// conversation id, in arrival order, until unsubscribed.
	SubscribeMessages(ctx context.Context, conversationID string, handler func(MessageEvent)) (Subscription, error)
}

// MutationError reports a failed remote store write.
type MutationError struct {
	Collection string
	Op         Op
	Err        error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("store %s on %s failed: %v", e.Op, e.Collection, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }
