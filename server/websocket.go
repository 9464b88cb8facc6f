package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"chat-relay/domain"

	"github.com/gorilla/websocket"
)

// wsConn adapts a gorilla connection to runtime.Conn. Gorilla allows a
// single concurrent writer, so writes are serialized by a mutex; the
// context deadline set by the router becomes the socket write deadline,
// which is what bounds a slow consumer.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) WriteFrame(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(10 * time.Second)
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error { return c.ws.Close() }

// inboundFrame is what a client may push on an open channel socket.
type inboundFrame struct {
	Type         string `json:"type"`
	Content      string `json:"content"`
	ClientTempID string `json:"client_temp_id,omitempty"`
}

// handleWebsocket upgrades GET /ws?channel=<key>&token=<jwt> into a
// live channel subscription. Identity and channel syntax are rejected
// before the upgrade; the membership rule is enforced by the registry
// at registration time.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	claims, err := s.identify(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ch, err := domain.ParseChannel(r.URL.Query().Get("channel"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	conn := &wsConn{ws: ws}
	connection, err := s.chat.Subscribe(conn, claims.UserID, ch)
	if err != nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
			time.Now().Add(time.Second))
		_ = ws.Close()
		return
	}
	defer s.chat.Unsubscribe(connection)
	defer ws.Close()

	s.readLoop(r.Context(), ws, claims.UserID, ch)
}

// readLoop consumes inbound frames until the socket dies. The only
// inbound type is "send": the confirmed message comes back to the
// sender through its own subscription, the single source of truth for
// sequence and timestamps.
func (s *Server) readLoop(ctx context.Context, ws *websocket.Conn, userID string, ch domain.Channel) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			s.log.Debug("client disconnected", "user_id", userID, "channel", ch.Key())
			return
		}

		var frame inboundFrame
		if err = json.Unmarshal(data, &frame); err != nil {
			s.log.Warn("malformed inbound frame", "user_id", userID, "error", err)
			continue
		}
		if frame.Type != "send" || frame.Content == "" {
			continue
		}

		if _, err = s.chat.Send(ctx, ch, userID, frame.Content); err != nil {
			s.log.Error("send failed", "user_id", userID, "channel", ch.Key(), "error", err)
		}
	}
}

var defaultUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}
