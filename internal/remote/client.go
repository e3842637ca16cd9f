// ABOUTME: REST client for the remote conversation store (PostgREST dialect)
// ABOUTME: Implements query and mutate; subscriptions are delegated to the realtime session

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/qualiver/agent-console/internal/store"
)

// Client implements store.Client against a PostgREST-style REST API with a
// Phoenix-channel realtime endpoint for change events.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
	rt      *session
}

// New creates a Client for the store at baseURL. The API key is a JWT; it
// is parsed (without signature verification, the server does that) so a
// malformed credential is rejected here as a configuration problem instead
// of surfacing later as an opaque HTTP 401.
func New(baseURL, apiKey string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "remote")

	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("store url is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("store api key is required")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(apiKey, claims); err != nil {
		return nil, fmt.Errorf("store api key is not a valid JWT: %w", err)
	}
	if role, ok := claims["role"].(string); ok {
		logger.Debug("store credential parsed", "role", role)
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && exp.Before(time.Now()) {
		logger.Warn("store api key is expired", "expired_at", exp.Time)
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
		rt:      newSession(baseURL, apiKey, logger),
	}, nil
}

// QueryConversations fetches all conversations, newest last message first.
func (c *Client) QueryConversations(ctx context.Context) ([]store.Conversation, error) {
	var rows []store.Conversation
	query := "select=*&order=last_message_at.desc.nullslast"
	if err := c.get(ctx, store.CollectionConversations, query, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// QueryMessages fetches all messages for one conversation, oldest first.
func (c *Client) QueryMessages(ctx context.Context, conversationID string) ([]store.Message, error) {
	var rows []store.Message
	query := fmt.Sprintf("select=*&conversation_id=eq.%s&order=created_at.asc", conversationID)
	if err := c.get(ctx, store.CollectionMessages, query, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// InsertMessage writes a new message row.
func (c *Client) InsertMessage(ctx context.Context, msg *store.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return &store.MutationError{Collection: store.CollectionMessages, Op: store.OpInsert, Err: err}
	}
	if err := c.write(ctx, http.MethodPost, store.CollectionMessages, "", body); err != nil {
		return &store.MutationError{Collection: store.CollectionMessages, Op: store.OpInsert, Err: err}
	}
	return nil
}

// UpdateConversationBotActive sets bot_active on one conversation row.
func (c *Client) UpdateConversationBotActive(ctx context.Context, id string, active bool) error {
	body, err := json.Marshal(map[string]bool{"bot_active": active})
	if err != nil {
		return &store.MutationError{Collection: store.CollectionConversations, Op: store.OpUpdate, Err: err}
	}
	query := "id=eq." + id
	if err := c.write(ctx, http.MethodPatch, store.CollectionConversations, query, body); err != nil {
		return &store.MutationError{Collection: store.CollectionConversations, Op: store.OpUpdate, Err: err}
	}
	return nil
}

// SubscribeConversations registers for change events on all conversations.
func (c *Client) SubscribeConversations(ctx context.Context, handler func(store.ConversationEvent)) (store.Subscription, error) {
	topic := topicFor(store.CollectionConversations, "")
	return c.rt.subscribe(ctx, topic, func(op store.Op, record json.RawMessage) {
		var row store.Conversation
		if err := json.Unmarshal(record, &row); err != nil {
			c.logger.Error("decoding conversation event failed", "error", err)
			return
		}
		handler(store.ConversationEvent{Op: op, Row: row})
	})
}

// SubscribeMessages registers for change events filtered server-side to one
// conversation id.
func (c *Client) SubscribeMessages(ctx context.Context, conversationID string, handler func(store.MessageEvent)) (store.Subscription, error) {
	topic := topicFor(store.CollectionMessages, "conversation_id=eq."+conversationID)
	return c.rt.subscribe(ctx, topic, func(op store.Op, record json.RawMessage) {
		var row store.Message
		if err := json.Unmarshal(record, &row); err != nil {
			c.logger.Error("decoding message event failed", "error", err)
			return
		}
		handler(store.MessageEvent{Op: op, Row: row})
	})
}

// Close shuts down the realtime session.
func (c *Client) Close() {
	c.rt.close()
}

func (c *Client) get(ctx context.Context, collection, query string, out any) error {
	url := fmt.Sprintf("%s/rest/v1/%s?%s", c.baseURL, collection, query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("querying %s: %w", collection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("querying %s: %s", collection, readAPIError(resp))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", collection, err)
	}
	return nil
}

func (c *Client) write(ctx context.Context, method, collection, query string, body []byte) error {
	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, collection)
	if query != "" {
		url += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s", readAPIError(resp))
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

// readAPIError extracts a useful message from an error response body.
func readAPIError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return fmt.Sprintf("status %d: %s", resp.StatusCode, apiErr.Message)
	}
	return fmt.Sprintf("status %d", resp.StatusCode)
}
