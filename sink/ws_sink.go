package sink

import (
	"chat-core/domain/event"
	"chat-core/errors"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebsocketSink is one live websocket session of an actor.
// Consume only enqueues; WritePump is the single writer of the socket,
// gorilla connections do not support concurrent writers.
type WebsocketSink struct {
	id           string
	conn         *websocket.Conn
	log          *slog.Logger
	out          chan event.Event
	done         chan struct{}
	once         sync.Once
	writeTimeout time.Duration
	pingInterval time.Duration
}

func NewWebsocketSink(conn *websocket.Conn, log *slog.Logger, bufferSize int,
	writeTimeout, pingInterval time.Duration) *WebsocketSink {
	id := uuid.NewString()
	return &WebsocketSink{
		id:           id,
		conn:         conn,
		log:          log.With("connection_id", id),
		out:          make(chan event.Event, bufferSize),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
	}
}

func (s *WebsocketSink) ID() string { return s.id }

// Consume queues the event for the write pump. It waits for room in the
// buffer until ctx expires and fails once the session is closed.
func (s *WebsocketSink) Consume(ctx context.Context, e event.Event) error {
	select {
	case <-s.done:
		return errors.ErrConnectionClosed
	default:
	}
	select {
	case s.out <- e:
		return nil
	case <-s.done:
		return errors.ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the session ends.
func (s *WebsocketSink) Done() <-chan struct{} { return s.done }

// Close ends the session. Safe to call more than once and from any goroutine.
func (s *WebsocketSink) Close() {
	s.once.Do(func() {
		close(s.done)
		if err := s.conn.Close(); err != nil {
			s.log.Debug("Websocket already closed", "error", err)
		}
	})
}

// WritePump writes queued events and keep-alive pings until the session
// closes or ctx is cancelled.
func (s *WebsocketSink) WritePump(ctx context.Context) error {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	defer s.Close()

	for {
		select {
		case e := <-s.out:
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
				return err
			}
			if err := s.conn.WriteJSON(e); err != nil {
				s.log.Debug("Websocket write failed", "kind", e.Kind, "error", err)
				return err
			}
		case <-ticker.C:
			deadline := time.Now().Add(s.writeTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.log.Debug("Websocket ping failed", "error", err)
				return err
			}
		case <-s.done:
			return nil
		case <-ctx.Done():
			deadline := time.Now().Add(s.writeTimeout)
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			_ = s.conn.WriteControl(websocket.CloseMessage, msg, deadline)
			return nil
		}
	}
}
