// ABOUTME: Realtime change-event session speaking the Phoenix channel protocol
// ABOUTME: One websocket shared by all subscriptions, join/leave per topic, heartbeats

package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/qualiver/agent-console/internal/store"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	heartbeatInterval = 30 * time.Second

	// subscriberBufferSize is the per-subscription event buffer. Events for
	// a subscriber whose buffer is full are dropped, never reordered.
	subscriberBufferSize = 64
)

// phxMessage is the Phoenix channel wire frame.
type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

// changePayload is the body of an INSERT/UPDATE event.
type changePayload struct {
	Record json.RawMessage `json:"record"`
}

// topicFor builds a channel topic for a collection with an optional
// server-side filter, e.g. realtime:public:messages:conversation_id=eq.42.
func topicFor(collection, filter string) string {
	topic := "realtime:public:" + collection
	if filter != "" {
		topic += ":" + filter
	}
	return topic
}

// subscription is one registered handler on a topic. Events are delivered
// from a dedicated goroutine in arrival order.
type subscription struct {
	id      string
	topic   string
	ch      chan change
	done    chan struct{}
	closeMu sync.Once
	s       *session
}

type change struct {
	op     store.Op
	record json.RawMessage
}

// Unsubscribe leaves the topic (when this was its last subscriber) and
// stops event delivery. Safe to call more than once.
func (sub *subscription) Unsubscribe() {
	sub.s.unsubscribe(sub)
}

// session multiplexes all change-event subscriptions over one websocket.
// The connection is dialed lazily on the first subscribe and kept until
// close. Payload delivery order per topic matches arrival order.
type session struct {
	url    string
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	subs    map[string]map[string]*subscription // topic -> sub id -> sub
	refSeq  int
	closed  bool
	started bool
}

func newSession(baseURL, apiKey string, logger *slog.Logger) *session {
	wsURL := strings.Replace(baseURL, "http", "ws", 1)
	return &session{
		url:    fmt.Sprintf("%s/realtime/v1/websocket?apikey=%s&vsn=1.0.0", wsURL, apiKey),
		logger: logger.With("component", "realtime"),
		subs:   make(map[string]map[string]*subscription),
	}
}

// subscribe joins the topic (dialing the socket first if needed) and
// registers a handler for its change events.
func (s *session) subscribe(ctx context.Context, topic string, handler func(store.Op, json.RawMessage)) (store.Subscription, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("realtime session is closed")
	}
	if s.conn == nil {
		if err := s.dialLocked(ctx); err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("connecting realtime socket: %w", err)
		}
	}

	sub := &subscription{
		id:    uuid.New().String(),
		topic: topic,
		ch:    make(chan change, subscriberBufferSize),
		done:  make(chan struct{}),
		s:     s,
	}
	first := len(s.subs[topic]) == 0
	if first {
		s.subs[topic] = make(map[string]*subscription)
	}
	s.subs[topic][sub.id] = sub

	var joinErr error
	if first {
		joinErr = s.sendLocked(phxMessage{
			Topic:   topic,
			Event:   "phx_join",
			Payload: json.RawMessage(`{}`),
			Ref:     s.nextRefLocked(),
		})
		if joinErr != nil {
			delete(s.subs[topic], sub.id)
		}
	}
	s.mu.Unlock()

	if joinErr != nil {
		return nil, fmt.Errorf("joining %s: %w", topic, joinErr)
	}

	go sub.deliver(handler)

	s.logger.Debug("subscribed", "topic", topic, "sub_id", sub.id)
	return sub, nil
}

// deliver pumps buffered events to the handler in arrival order.
func (sub *subscription) deliver(handler func(store.Op, json.RawMessage)) {
	for {
		select {
		case ev, ok := <-sub.ch:
			if !ok {
				return
			}
			handler(ev.op, ev.record)
		case <-sub.done:
			// Drain what already arrived before the unsubscribe, then stop.
			for {
				select {
				case ev, ok := <-sub.ch:
					if !ok {
						return
					}
					handler(ev.op, ev.record)
				default:
					return
				}
			}
		}
	}
}

func (s *session) unsubscribe(sub *subscription) {
	sub.closeMu.Do(func() {
		close(sub.done)

		s.mu.Lock()
		defer s.mu.Unlock()
		subs, ok := s.subs[sub.topic]
		if !ok {
			return
		}
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(s.subs, sub.topic)
			if s.conn != nil {
				if err := s.sendLocked(phxMessage{
					Topic:   sub.topic,
					Event:   "phx_leave",
					Payload: json.RawMessage(`{}`),
					Ref:     s.nextRefLocked(),
				}); err != nil {
					s.logger.Debug("leave failed", "topic", sub.topic, "error", err)
				}
			}
		}
		s.logger.Debug("unsubscribed", "topic", sub.topic, "sub_id", sub.id)
	})
}

// dialLocked establishes the websocket and starts the read and heartbeat
// loops. Caller holds s.mu.
func (s *session) dialLocked(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	s.conn = conn
	if !s.started {
		s.started = true
		go s.readLoop(conn)
		go s.heartbeatLoop(conn)
	}
	return nil
}

// readLoop decodes frames and fans change events out to topic subscribers.
// TODO: reconnect with backoff and topic rejoin when the socket drops.
func (s *session) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.logger.Error("realtime socket closed", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg phxMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("dropping undecodable frame", "error", err)
			continue
		}

		var op store.Op
		switch msg.Event {
		case "INSERT":
			op = store.OpInsert
		case "UPDATE":
			op = store.OpUpdate
		case "phx_reply", "phx_close", "phx_error", "heartbeat":
			continue
		default:
			continue
		}

		var payload changePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			s.logger.Debug("dropping change event with bad payload", "topic", msg.Topic, "error", err)
			continue
		}

		s.mu.Lock()
		targets := make([]*subscription, 0, len(s.subs[msg.Topic]))
		for _, sub := range s.subs[msg.Topic] {
			targets = append(targets, sub)
		}
		s.mu.Unlock()

		for _, sub := range targets {
			select {
			case sub.ch <- change{op: op, record: payload.Record}:
			default:
				s.logger.Warn("dropped event for slow subscriber", "topic", msg.Topic, "sub_id", sub.id)
			}
		}
	}
}

func (s *session) heartbeatLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for range ticker.C {
		s.mu.Lock()
		if s.closed || s.conn != conn {
			s.mu.Unlock()
			return
		}
		err := s.sendLocked(phxMessage{
			Topic:   "phoenix",
			Event:   "heartbeat",
			Payload: json.RawMessage(`{}`),
			Ref:     s.nextRefLocked(),
		})
		s.mu.Unlock()
		if err != nil {
			s.logger.Debug("heartbeat failed", "error", err)
			return
		}
	}
}

// sendLocked writes one frame. Caller holds s.mu.
func (s *session) sendLocked(msg phxMessage) error {
	if s.conn == nil {
		return fmt.Errorf("not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}

func (s *session) nextRefLocked() string {
	s.refSeq++
	return fmt.Sprintf("%d", s.refSeq)
}

// close tears down the socket and all subscriptions.
func (s *session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	var all []*subscription
	for _, subs := range s.subs {
		for _, sub := range subs {
			all = append(all, sub)
		}
	}
	s.subs = make(map[string]map[string]*subscription)
	s.mu.Unlock()

	for _, sub := range all {
		sub.closeMu.Do(func() { close(sub.done) })
	}
	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		conn.Close()
	}
}
