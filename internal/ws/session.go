package ws

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stellarops/stellarops/internal/domain"
	"github.com/stellarops/stellarops/internal/infra/metrics"
)

// topicSub is one internal bus subscription a session holds open for a
// joined client-facing topic.
type topicSub struct {
	clientTopic string
	sub         domain.Subscription
	stop        chan struct{}
}

// Session is one authenticated WebSocket connection.
type Session struct {
	hub     *Hub
	conn    *websocket.Conn
	actorID string

	send chan []byte

	subsMu sync.Mutex
	subs   map[string][]*topicSub // client topic -> underlying bus subscriptions

	closed    atomic.Bool
	closeOnce sync.Once
}

func newSession(hub *Hub, conn *websocket.Conn, actorID string) *Session {
	return &Session{
		hub:     hub,
		conn:    conn,
		actorID: actorID,
		send:    make(chan []byte, sendBuffer),
		subs:    make(map[string][]*topicSub),
	}
}

// run drives the session's lifetime: write pump in this goroutine's
// background, read pump in the caller. Returns once the connection closes.
func (s *Session) run() {
	go s.writePump()
	s.readPump()
}

// close tears the session and every topic subscription down exactly once.
// Safe to call from both pumps concurrently.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.hub.unregister(s)
		s.subsMu.Lock()
		for _, list := range s.subs {
			for _, ts := range list {
				close(ts.stop)
				ts.sub.Unsubscribe()
			}
		}
		s.subs = nil
		s.subsMu.Unlock()
		close(s.send)
		s.conn.Close()
	})
}

// safeSend enqueues a frame for the write pump, recovering from a send on
// an already-closed channel rather than panicking the caller (a forwarder
// goroutine racing session close).
func (s *Session) safeSend(payload []byte) {
	if s.closed.Load() {
		return
	}
	defer func() { recover() }()
	select {
	case s.send <- payload:
	default:
		s.hub.logger.Printf("session send buffer full, dropping frame")
	}
}

func (s *Session) readPump() {
	defer s.close()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleFrame(raw)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// inboundFrame is the client-to-server message shape of spec.md §4.12.
type inboundFrame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func (s *Session) handleFrame(raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		s.reply(nil, newHandlerError("bad_request", err.Error()))
		return
	}

	handler, ok := handlers[frame.Event]
	if !ok {
		s.reply(nil, newHandlerError("unknown_event", frame.Event))
		return
	}
	metrics.WSMessagesIn.WithLabelValues(frame.Event).Inc()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	body, err := handler(ctx, s, frame.Payload)
	if err != nil {
		s.reply(nil, err)
		return
	}
	s.reply(body, nil)
}

// handlerError is the {reason, details} shape of an error reply.
type handlerError struct {
	Reason  string `json:"reason"`
	Details string `json:"details,omitempty"`
}

func (e *handlerError) Error() string { return e.Reason + ": " + e.Details }

func newHandlerError(reason, details string) *handlerError {
	return &handlerError{Reason: reason, Details: details}
}

func (s *Session) reply(body any, err error) {
	var frame map[string]any
	if err != nil {
		he, ok := err.(*handlerError)
		if !ok {
			he = newHandlerError("internal", err.Error())
		}
		frame = map[string]any{"err": he}
	} else {
		frame = map[string]any{"ok": true, "body": body}
	}
	out, marshalErr := json.Marshal(frame)
	if marshalErr != nil {
		return
	}
	s.safeSend(out)
}

// push is the envelope every pub/sub message is wrapped in before reaching
// the socket, so the client can route it without inspecting payload shape.
type push struct {
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}

// join subscribes the session to clientTopic's underlying bus topics (if
// any) and sends the topic's initial read-API snapshot. Joining a topic
// twice is a no-op.
func (s *Session) join(ctx context.Context, clientTopic string) (any, error) {
	resolved, ok := resolveTopic(clientTopic)
	if !ok {
		return nil, newHandlerError("unknown_topic", clientTopic)
	}

	s.subsMu.Lock()
	_, already := s.subs[clientTopic]
	s.subsMu.Unlock()
	if already {
		return resolved.snapshot(ctx, s.hub), nil
	}

	var subs []*topicSub
	for _, internalTopic := range resolved.internalTopics {
		sub := s.hub.bus.Subscribe(internalTopic)
		ts := &topicSub{clientTopic: clientTopic, sub: sub, stop: make(chan struct{})}
		subs = append(subs, ts)
		go s.forward(ts)
	}

	s.subsMu.Lock()
	s.subs[clientTopic] = subs
	s.subsMu.Unlock()

	return resolved.snapshot(ctx, s.hub), nil
}

// leave unsubscribes the session from clientTopic. Leaving a topic never
// joined is a no-op.
func (s *Session) leave(clientTopic string) {
	s.subsMu.Lock()
	list, ok := s.subs[clientTopic]
	if ok {
		delete(s.subs, clientTopic)
	}
	s.subsMu.Unlock()
	if !ok {
		return
	}
	for _, ts := range list {
		close(ts.stop)
		ts.sub.Unsubscribe()
	}
}

// forward relays every message delivered on one internal subscription onto
// the session's send channel, wrapped with the client-facing topic name,
// until the subscription is torn down.
func (s *Session) forward(ts *topicSub) {
	for {
		select {
		case msg, ok := <-ts.sub.C():
			if !ok {
				return
			}
			out, err := json.Marshal(push{Topic: ts.clientTopic, Data: msg})
			if err != nil {
				continue
			}
			metrics.WSMessagesOut.WithLabelValues(ts.clientTopic).Inc()
			s.safeSend(out)
		case <-ts.stop:
			return
		}
	}
}
