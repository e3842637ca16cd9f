// ABOUTME: Tests for the realtime session
// ABOUTME: Covers topic construction, join/leave traffic and change-event delivery

package remote

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qualiver/agent-console/internal/store"
)

func TestTopicFor(t *testing.T) {
	assert.Equal(t, "realtime:public:conversations", topicFor("conversations", ""))
	assert.Equal(t,
		"realtime:public:messages:conversation_id=eq.c1",
		topicFor("messages", "conversation_id=eq.c1"))
}

// realtimeServer is a minimal Phoenix-channel peer: it records join/leave
// frames and lets the test push change events to the client.
type realtimeServer struct {
	srv      *httptest.Server
	frames   chan phxMessage
	outbound chan phxMessage
}

func newRealtimeServer(t *testing.T) *realtimeServer {
	t.Helper()
	rs := &realtimeServer{
		frames:   make(chan phxMessage, 16),
		outbound: make(chan phxMessage, 16),
	}
	upgrader := websocket.Upgrader{}
	rs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		go func() {
			for msg := range rs.outbound {
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			}
		}()

		for {
			var msg phxMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			rs.frames <- msg
		}
	}))
	t.Cleanup(rs.srv.Close)
	return rs
}

func (rs *realtimeServer) waitFrame(t *testing.T) phxMessage {
	t.Helper()
	select {
	case msg := <-rs.frames:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame from client")
		return phxMessage{}
	}
}

func TestSession_JoinReceiveLeave(t *testing.T) {
	rs := newRealtimeServer(t)
	s := newSession(rs.srv.URL, testKey, slog.Default())
	defer s.close()

	received := make(chan json.RawMessage, 1)
	topic := topicFor(store.CollectionMessages, "conversation_id=eq.c1")
	sub, err := s.subscribe(t.Context(), topic, func(op store.Op, record json.RawMessage) {
		assert.Equal(t, store.OpInsert, op)
		received <- record
	})
	require.NoError(t, err)

	join := rs.waitFrame(t)
	assert.Equal(t, "phx_join", join.Event)
	assert.Equal(t, topic, join.Topic)
	assert.NotEmpty(t, join.Ref)

	rs.outbound <- phxMessage{
		Topic:   topic,
		Event:   "INSERT",
		Payload: json.RawMessage(`{"record":{"id":"m1","conversation_id":"c1","message":"hola"}}`),
	}

	select {
	case record := <-received:
		var row store.Message
		require.NoError(t, json.Unmarshal(record, &row))
		assert.Equal(t, "m1", row.ID)
		assert.Equal(t, "hola", row.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
	}

	sub.Unsubscribe()
	leave := rs.waitFrame(t)
	assert.Equal(t, "phx_leave", leave.Event)
	assert.Equal(t, topic, leave.Topic)
}

func TestSession_EventsForOtherTopicsNotDelivered(t *testing.T) {
	rs := newRealtimeServer(t)
	s := newSession(rs.srv.URL, testKey, slog.Default())
	defer s.close()

	received := make(chan json.RawMessage, 1)
	topic := topicFor(store.CollectionConversations, "")
	_, err := s.subscribe(t.Context(), topic, func(op store.Op, record json.RawMessage) {
		received <- record
	})
	require.NoError(t, err)
	rs.waitFrame(t) // join

	rs.outbound <- phxMessage{
		Topic:   topicFor(store.CollectionMessages, "conversation_id=eq.c9"),
		Event:   "INSERT",
		Payload: json.RawMessage(`{"record":{"id":"m1"}}`),
	}
	rs.outbound <- phxMessage{
		Topic:   topic,
		Event:   "UPDATE",
		Payload: json.RawMessage(`{"record":{"id":"c1","bot_active":true}}`),
	}

	select {
	case record := <-received:
		var row store.Conversation
		require.NoError(t, json.Unmarshal(record, &row))
		assert.Equal(t, "c1", row.ID, "only the subscribed topic's event may arrive")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
	}
	assert.Empty(t, received)
}

func TestSession_RepliesAndUnknownEventsIgnored(t *testing.T) {
	rs := newRealtimeServer(t)
	s := newSession(rs.srv.URL, testKey, slog.Default())
	defer s.close()

	received := make(chan json.RawMessage, 1)
	topic := topicFor(store.CollectionConversations, "")
	_, err := s.subscribe(t.Context(), topic, func(op store.Op, record json.RawMessage) {
		received <- record
	})
	require.NoError(t, err)
	rs.waitFrame(t) // join

	rs.outbound <- phxMessage{Topic: topic, Event: "phx_reply", Payload: json.RawMessage(`{"status":"ok"}`)}
	rs.outbound <- phxMessage{Topic: topic, Event: "DELETE", Payload: json.RawMessage(`{"record":{"id":"c1"}}`)}
	rs.outbound <- phxMessage{Topic: topic, Event: "INSERT", Payload: json.RawMessage(`{"record":{"id":"c2"}}`)}

	select {
	case record := <-received:
		var row store.Conversation
		require.NoError(t, json.Unmarshal(record, &row))
		assert.Equal(t, "c2", row.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
	}
}

func TestSession_SubscribeAfterCloseFails(t *testing.T) {
	rs := newRealtimeServer(t)
	s := newSession(rs.srv.URL, testKey, slog.Default())
	s.close()

	_, err := s.subscribe(t.Context(), topicFor(store.CollectionConversations, ""), func(store.Op, json.RawMessage) {})
	require.Error(t, err)
}
