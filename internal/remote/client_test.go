// ABOUTME: Tests for the REST store client
// ABOUTME: Covers auth headers, query strings, mutation bodies and error mapping

package remote

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qualiver/agent-console/internal/store"
)

// testKey is an unsigned JWT with {"role":"anon"} claims, accepted by the
// unverified parse in New.
const testKey = "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJyb2xlIjoiYW5vbiJ9."

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, testKey, nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, srv
}

func TestNew_RejectsMalformedAPIKey(t *testing.T) {
	_, err := New("https://example.test", "not-a-jwt", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT")
}

func TestNew_RejectsEmptyURL(t *testing.T) {
	_, err := New("", testKey, nil)
	require.Error(t, err)
}

func TestQueryConversations_RequestShape(t *testing.T) {
	rows := []store.Conversation{
		{ID: "c1", PhoneNumber: "+34600", BotActive: true, LastMessageAt: time.Now().UTC().Truncate(time.Second)},
	}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/conversations", r.URL.Path)
		assert.Equal(t, "*", r.URL.Query().Get("select"))
		assert.Equal(t, "last_message_at.desc.nullslast", r.URL.Query().Get("order"))
		assert.Equal(t, testKey, r.Header.Get("apikey"))
		assert.Equal(t, "Bearer "+testKey, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(rows)
	}))

	got, err := c.QueryConversations(t.Context())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].ID)
	assert.True(t, got[0].BotActive)
}

func TestQueryMessages_FilterAndOrder(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/messages", r.URL.Path)
		assert.Equal(t, "eq.c1", r.URL.Query().Get("conversation_id"))
		assert.Equal(t, "created_at.asc", r.URL.Query().Get("order"))
		json.NewEncoder(w).Encode([]store.Message{{ID: "m1", ConversationID: "c1"}})
	}))

	got, err := c.QueryMessages(t.Context(), "c1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)
}

func TestQuery_NullLastMessageAtDecodes(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"id":"c1","phone_number":"+34600","last_message_at":null,"bot_active":false}]`)
	}))

	got, err := c.QueryConversations(t.Context())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].LastMessageAt.IsZero())
}

func TestInsertMessage_BodyAndHeaders(t *testing.T) {
	var got store.Message
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/messages", r.URL.Path)
		assert.Equal(t, "return=minimal", r.Header.Get("Prefer"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))

	msg := &store.Message{
		ID:             "m1",
		ConversationID: "c1",
		Sender:         store.SenderAgent,
		Content:        "Hello",
		Status:         store.StatusSent,
	}
	require.NoError(t, c.InsertMessage(t.Context(), msg))
	assert.Equal(t, "m1", got.ID)
	assert.Equal(t, store.SenderAgent, got.Sender)
}

func TestInsertMessage_FailureIsMutationError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"message":"permission denied"}`)
	}))

	err := c.InsertMessage(t.Context(), &store.Message{ID: "m1", ConversationID: "c1"})

	var mutErr *store.MutationError
	require.ErrorAs(t, err, &mutErr)
	assert.Equal(t, store.CollectionMessages, mutErr.Collection)
	assert.Equal(t, store.OpInsert, mutErr.Op)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestUpdateConversationBotActive_PatchShape(t *testing.T) {
	var body map[string]bool
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/rest/v1/conversations", r.URL.Path)
		assert.Equal(t, "eq.c1", r.URL.Query().Get("id"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, c.UpdateConversationBotActive(t.Context(), "c1", false))
	v, ok := body["bot_active"]
	require.True(t, ok)
	assert.False(t, v)
}

func TestUpdateConversation_FailureIsMutationError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	err := c.UpdateConversationBotActive(t.Context(), "c1", true)

	var mutErr *store.MutationError
	require.ErrorAs(t, err, &mutErr)
	assert.Equal(t, store.OpUpdate, mutErr.Op)
}
