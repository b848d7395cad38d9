package server

import (
	"chat-core/domain/event"
	"chat-core/sink"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const maxFrameSize = 4 << 10

// clientFrame is what a client may send over its websocket.
type clientFrame struct {
	Kind   event.Kind `json:"kind"`
	ChatID string     `json:"chatId"`
}

// connect upgrades an authenticated request into a live session. The
// session is registered for fan-out until the client goes away.
func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	actorID, err := s.guard.Authenticate(r)
	if err != nil {
		respondError(w, s.log, err)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already answered the client
		s.log.Debug("Websocket upgrade failed", "actor", actorID, "error", err)
		return
	}

	session := sink.NewWebsocketSink(conn, s.log, s.ws.BufferSize, s.ws.WriteTimeout, s.ws.PingInterval)
	log := s.log.With("actor", actorID, "connection_id", session.ID())
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s.registry.Register(actorID, session)
	defer func() {
		s.registry.Unregister(actorID, session)
		session.Close()
		log.Info("Client disconnected")
	}()
	log.Info("Client connected")

	go func() {
		if err := session.WritePump(ctx); err != nil {
			log.Debug("Write pump stopped", "error", err)
		}
	}()
	// only the new session learns it is connected
	connected := event.Event{Kind: event.Connected, Payload: map[string]string{"userId": actorID}, At: time.Now().UTC()}
	if err := session.Consume(ctx, connected); err != nil {
		log.Warn("Unable to confirm connection", "error", err)
		return
	}

	s.readLoop(ctx, conn, actorID)
}

// readLoop relays typing indicators until the socket fails or closes.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, actorID string) {
	conn.SetReadLimit(maxFrameSize)
	idle := 2 * s.ws.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(idle))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("Websocket read failed", "actor", actorID, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(idle))

		var frame clientFrame
		if err = json.Unmarshal(data, &frame); err != nil {
			s.log.Debug("Malformed client frame ignored", "actor", actorID, "error", err)
			continue
		}
		switch frame.Kind {
		case event.Typing, event.StopTyping:
			if err = s.chats.NotifyTyping(ctx, actorID, frame.ChatID, frame.Kind); err != nil {
				s.log.Debug("Typing indicator rejected", "actor", actorID, "chat_id", frame.ChatID, "error", err)
			}
		default:
			s.log.Debug("Unknown client frame ignored", "actor", actorID, "kind", frame.Kind)
		}
	}
}
