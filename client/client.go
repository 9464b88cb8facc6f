// Package client is the embeddable synchronization engine for one
// channel: it fetches the history snapshot, follows the live tail
// through a projection.Reconciler, and transparently survives
// connection loss via the ReconnectionSupervisor.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/projection"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// FrameHandler receives every frame applied to the local timeline:
// appended messages, membership deltas, and notifications. Duplicates
// absorbed by the reconciler are not surfaced.
type FrameHandler func(event.Frame)

// ChannelClient owns one channel subscription. The channel binding is
// immutable: subscribing to a different channel means a new client.
type ChannelClient struct {
	log        *slog.Logger
	baseURL    string
	token      string
	userID     string
	channel    domain.Channel
	reconciler *projection.Reconciler
	httpClient *http.Client
	dialer     *websocket.Dialer

	mu sync.Mutex
	ws *websocket.Conn
}

// NewChannelClient reads the caller's own identity out of the token:
// the optimistic echo has to carry the same sender id the server will
// stamp on the confirmed copy, or the two never reconcile.
func NewChannelClient(log *slog.Logger, baseURL, token string, ch domain.Channel, pendingWindow time.Duration) (*ChannelClient, error) {
	claims, err := auth.ReadClaims(token)
	if err != nil {
		return nil, fmt.Errorf("cannot read identity from token: %w", err)
	}

	return &ChannelClient{
		log:        log,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		userID:     claims.UserID,
		channel:    ch,
		reconciler: projection.NewReconciler(ch, pendingWindow),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		dialer:     websocket.DefaultDialer,
	}, nil
}

// Reconciler exposes the merged timeline for rendering.
func (c *ChannelClient) Reconciler() *projection.Reconciler { return c.reconciler }

// Session runs one connected episode: fresh snapshot, subscribe, then
// apply the live tail until the connection dies or ctx is canceled.
// Running the snapshot first and only then the tail is what guarantees
// no events are lost across a reconnect; anything re-delivered is
// absorbed by the reconciler's duplicate rule.
func (c *ChannelClient) Session(ctx context.Context, onFrame FrameHandler) error {
	if err := c.Snapshot(ctx); err != nil {
		return fmt.Errorf("snapshot fetch failed: %w", err)
	}

	ws, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}
	c.setConn(ws)
	defer c.closeConn()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Unblock the reader when the caller cancels.
	go func() {
		<-sessionCtx.Done()
		_ = ws.Close()
	}()

	// Periodically fail pending echoes whose confirmation never came.
	go c.expireLoop(sessionCtx)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("live tail interrupted: %w", err)
		}

		frame, err := event.Decode(data)
		if err != nil {
			c.log.Warn("discarding malformed frame", "error", err)
			continue
		}

		apply, err := c.applyFrame(ctx, frame)
		if err != nil {
			return err
		}
		if apply && onFrame != nil {
			onFrame(frame)
		}
	}
}

// Send renders the message locally right away (optimistic echo) and
// pushes the send intent on the live socket. The confirmed copy will
// come back through the tail and replace the echo in place.
func (c *ChannelClient) Send(content string) (domain.PendingMessage, error) {
	ws := c.conn()
	if ws == nil {
		return domain.PendingMessage{}, fmt.Errorf("no live subscription")
	}

	pm := domain.PendingMessage{
		ClientTempID: uuid.NewString(),
		Channel:      c.channel.Key(),
		SenderID:     c.userID,
		Content:      content,
		SubmittedAt:  time.Now().UTC(),
	}
	c.reconciler.SubmitPending(pm)

	payload, err := json.Marshal(map[string]string{
		"type":           "send",
		"content":        content,
		"client_temp_id": pm.ClientTempID,
	})
	if err != nil {
		return domain.PendingMessage{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err = ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return domain.PendingMessage{}, err
	}
	return pm, nil
}

// Snapshot fetches the durable history once and feeds it to the
// reconciler, establishing the highest known sequence.
func (c *ChannelClient) Snapshot(ctx context.Context) error {
	url := fmt.Sprintf("%s/history?channel=%s", c.baseURL, c.channel.Key())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("history fetch returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var messages []domain.Message
	if err = json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return err
	}
	c.reconciler.ApplySnapshot(messages)
	return nil
}

// applyFrame routes one live frame into the reconciler. A detected gap
// triggers an automatic resnapshot, never a user-facing error; the
// frame is re-applied afterwards, where it lands as duplicate or
// appended depending on what the fresh snapshot already covered.
func (c *ChannelClient) applyFrame(ctx context.Context, frame event.Frame) (bool, error) {
	if frame.Type != event.TypeMessage {
		return true, nil
	}

	evt, err := frame.DecodeEvent()
	if err != nil {
		c.log.Warn("discarding undecodable message frame", "error", err)
		return false, nil
	}
	msg := evt.(event.MessagePosted).Message

	switch c.reconciler.OnLiveEvent(msg) {
	case projection.Appended:
		return true, nil
	case projection.Duplicate:
		return false, nil
	default:
		c.log.Info("sequence gap detected, refreshing snapshot",
			"channel", c.channel.Key(), "seq", msg.Seq)
		if err = c.Snapshot(ctx); err != nil {
			return false, err
		}
		return c.reconciler.OnLiveEvent(msg) == projection.Appended, nil
	}
}

func (c *ChannelClient) expireLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, tempID := range c.reconciler.ExpirePending() {
				c.log.Warn("message not confirmed in time, marked failed", "client_temp_id", tempID)
			}
		}
	}
}

func (c *ChannelClient) dial(ctx context.Context) (*websocket.Conn, error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1)
	url := fmt.Sprintf("%s/ws?channel=%s&token=%s", wsURL, c.channel.Key(), c.token)
	ws, resp, err := c.dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	return ws, err
}

func (c *ChannelClient) conn() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws
}

func (c *ChannelClient) setConn(ws *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws = ws
}

func (c *ChannelClient) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws != nil {
		_ = c.ws.Close()
		c.ws = nil
	}
}
