// ABOUTME: Tests for the webhook notifier
// ABOUTME: Covers wire payloads, missing endpoints, HTTP failures

package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageSent_PayloadShape(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhook(srv.URL, "", nil)
	err := n.MessageSent(t.Context(), MessageSentEvent{
		ConversationID: "c1",
		Message:        "Hello",
		PhoneNumber:    "+34600000003",
		ManualMode:     true,
	})
	require.NoError(t, err)

	assert.Equal(t, "new_message", got["event"])
	assert.Equal(t, "c1", got["conversation_id"])
	assert.Equal(t, "Hello", got["message"])
	assert.Equal(t, "+34600000003", got["phone_number"])
	assert.Equal(t, true, got["is_manual_mode"])

	ts, ok := got["timestamp"].(string)
	require.True(t, ok)
	_, err = time.Parse(time.RFC3339, ts)
	assert.NoError(t, err, "timestamp must be RFC3339")
}

func TestBotStatusChanged_PayloadShape(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhook("", srv.URL, nil)
	err := n.BotStatusChanged(t.Context(), BotStatusEvent{
		ConversationID: "c1",
		Active:         false,
		PhoneNumber:    "+34600000003",
	})
	require.NoError(t, err)

	assert.Equal(t, "bot_status_changed", got["event"])
	assert.Equal(t, "c1", got["conversation_id"])
	assert.Equal(t, false, got["is_active"])
	assert.Equal(t, "+34600000003", got["phone_number"])
}

func TestMissingEndpointIsConfigErrorWithoutNetworkIO(t *testing.T) {
	n := NewWebhook("", "", nil)

	err := n.MessageSent(t.Context(), MessageSentEvent{ConversationID: "c1"})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, EventMessageSent, cfgErr.Event)

	err = n.BotStatusChanged(t.Context(), BotStatusEvent{ConversationID: "c1"})
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, EventBotStatusChanged, cfgErr.Event)
}

func TestDistinctEndpointsPerEventKind(t *testing.T) {
	var msgHits, botHits int
	msgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		msgHits++
	}))
	defer msgSrv.Close()
	botSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		botHits++
	}))
	defer botSrv.Close()

	n := NewWebhook(msgSrv.URL, botSrv.URL, nil)
	require.NoError(t, n.MessageSent(t.Context(), MessageSentEvent{ConversationID: "c1"}))
	require.NoError(t, n.BotStatusChanged(t.Context(), BotStatusEvent{ConversationID: "c1"}))

	assert.Equal(t, 1, msgHits)
	assert.Equal(t, 1, botHits)
}

func TestNon2xxResponseIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	n := NewWebhook(srv.URL, "", nil)
	err := n.MessageSent(t.Context(), MessageSentEvent{ConversationID: "c1"})

	var notifyErr *Error
	require.ErrorAs(t, err, &notifyErr)
	assert.Equal(t, http.StatusBadGateway, notifyErr.Status)
	assert.Contains(t, notifyErr.Body, "upstream down")
}

func TestUnreachableEndpointIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // shut down before use

	n := NewWebhook(srv.URL, "", nil)
	err := n.MessageSent(t.Context(), MessageSentEvent{ConversationID: "c1"})

	var notifyErr *Error
	require.ErrorAs(t, err, &notifyErr)
	assert.Zero(t, notifyErr.Status)
}
