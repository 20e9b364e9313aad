package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/numera-ai/numera/internal/sessions"
	"github.com/numera-ai/numera/pkg/models"
)

const (
	wsMaxPayloadBytes = 1 << 20
	wsWriteWait       = 10 * time.Second
	wsPongWait        = 60 * time.Second
	wsPingInterval    = 25 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// wsFrame is one WebSocket message in either direction.
//
// Client → server: {"type":"chat","chat":{...}}.
// Server → client: {"type":"event","event":{...}} for each agent event,
// then {"type":"done"} after the run's stream closes; {"type":"error"} on
// request failures.
type wsFrame struct {
	Type  string             `json:"type"`
	Chat  *chatRequest       `json:"chat,omitempty"`
	Event *models.AgentEvent `json:"event,omitempty"`
	Error string             `json:"error,omitempty"`
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(wsMaxPayloadBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopPing:
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
			}
		}
	}()

	// One run at a time per connection; frames are processed sequentially.
	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		if frame.Type != "chat" || frame.Chat == nil {
			s.writeWSFrame(conn, wsFrame{Type: "error", Error: "expected a chat frame"})
			continue
		}

		if err := s.runChatOverWS(r, conn, frame.Chat); err != nil {
			return
		}
	}
}

func (s *Server) runChatOverWS(r *http.Request, conn *websocket.Conn, req *chatRequest) error {
	session, err := s.resolveSession(r.Context(), req)
	if err != nil {
		msg := "session lookup failed"
		if errors.Is(err, sessions.ErrNotFound) {
			msg = "unknown session"
		}
		return s.writeWSFrame(conn, wsFrame{Type: "error", Error: msg})
	}

	events, err := s.loop.Run(r.Context(), session, &models.Message{
		Role:    models.RoleUser,
		Content: req.Message,
	})
	if err != nil {
		return s.writeWSFrame(conn, wsFrame{Type: "error", Error: err.Error()})
	}

	for event := range events {
		ev := event
		if err := s.writeWSFrame(conn, wsFrame{Type: "event", Event: &ev}); err != nil {
			// Drain the run so it can finish persisting.
			for range events {
			}
			return err
		}
	}
	return s.writeWSFrame(conn, wsFrame{Type: "done"})
}

func (s *Server) writeWSFrame(conn *websocket.Conn, frame wsFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}
