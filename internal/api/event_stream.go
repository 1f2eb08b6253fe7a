package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/phrazzld/solution-server/internal/events"
)

const (
	eventWriteTimeout = 10 * time.Second
	eventPingInterval = 30 * time.Second
	eventBufferSize   = 64
)

// EventStream forwards task lifecycle events to websocket clients. It is
// registered as an events.EventHandler and served at GET /events.
type EventStream struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*eventClient]struct{}
	closed  bool
}

type eventClient struct {
	conn *websocket.Conn
	send chan *events.TaskEvent
	once sync.Once
	done chan struct{}
}

func (c *eventClient) close() {
	c.once.Do(func() { close(c.done) })
}

// NewEventStream creates an EventStream with no clients.
func NewEventStream(logger *slog.Logger) *EventStream {
	return &EventStream{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger.With("component", "event_stream"),
		clients: make(map[*eventClient]struct{}),
	}
}

// HandleEvent queues event for every connected client. A client whose
// buffer is full is disconnected rather than slowing down the emitter.
func (s *EventStream) HandleEvent(_ context.Context, event *events.TaskEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.clients {
		select {
		case c.send <- event:
		default:
			s.logger.Warn("dropping slow event stream client", "remote_addr", c.conn.RemoteAddr().String())
			delete(s.clients, c)
			c.close()
		}
	}
	return nil
}

// ServeHTTP upgrades the request to a websocket and streams events until
// the client disconnects or the stream is closed.
func (s *EventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &eventClient{
		conn: conn,
		send: make(chan *events.TaskEvent, eventBufferSize),
		done: make(chan struct{}),
	}
	if !s.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	s.logger.Debug("event stream client connected", "remote_addr", conn.RemoteAddr().String())

	go s.readLoop(c)
	s.writeLoop(c)

	s.unregister(c)
	_ = conn.Close()
	s.logger.Debug("event stream client disconnected", "remote_addr", conn.RemoteAddr().String())
}

// ClientCount returns the number of connected clients.
func (s *EventStream) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close disconnects every client and rejects new ones.
func (s *EventStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for c := range s.clients {
		delete(s.clients, c)
		c.close()
	}
}

func (s *EventStream) register(c *eventClient) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[c] = struct{}{}
	return true
}

func (s *EventStream) unregister(c *eventClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c)
}

// readLoop discards client messages and ends the client on read errors,
// which is how a closed connection is noticed.
func (s *EventStream) readLoop(c *eventClient) {
	defer c.close()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *EventStream) writeLoop(c *eventClient) {
	ticker := time.NewTicker(eventPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case event := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := c.conn.WriteJSON(event); err != nil {
				s.logger.Debug("failed to write event", "error", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventWriteTimeout)); err != nil {
				return
			}
		}
	}
}
