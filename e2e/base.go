package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"chat-relay/auth"
	"chat-relay/domain/event"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/server"
	"chat-relay/services"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/suite"
)

// BaseSuite boots the whole stack in-process on temporary storage and
// exposes it through an httptest server, so scenarios exercise the real
// HTTP and websocket surface end to end.
type BaseSuite struct {
	suite.Suite
	Config Config
	Server *httptest.Server
}

// Account is a registered scenario participant.
type Account struct {
	UserID   string
	Username string
	Token    string
}

func (s *BaseSuite) SetupTest() {
	cfg, err := LoadConfig()
	s.Require().NoError(err)
	s.Config = cfg

	log := slog.Default()

	db, err := badger.Open(badger.DefaultOptions(s.T().TempDir()).
		WithLoggingLevel(badger.ERROR))
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = db.Close() })

	writer, err := bluge.OpenWriter(bluge.DefaultConfig(s.T().TempDir()))
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = writer.Close() })

	messages := repositories.NewMessageRepository(db, log, nil, nil)
	rooms := repositories.NewRoomRepository(db)
	friends := repositories.NewFriendRepository(db)
	users := repositories.NewUserRepository(db)
	index := repositories.NewUserIndex(writer)

	registry := runtime.NewRegistry(log, rooms)
	router := runtime.NewChannelRouter(log, registry, rooms, cfg.WriteTimeout)
	moderator, err := moderation.NewModerator([]string{"mushroom"}, '*', log)
	s.Require().NoError(err)
	broker := runtime.NewBroker(log, messages, router, &moderator)

	monitor, err := observability.NewMonitor(log, registry)
	s.Require().NoError(err)

	srv := server.New(log,
		services.NewAuthService(users, index, time.Hour),
		services.NewChatService(broker, registry, messages, rooms),
		services.NewRoomService(log, rooms, router),
		services.NewFriendService(log, friends, router),
		index,
		monitor)

	s.Server = httptest.NewServer(srv.Routes())
	s.T().Cleanup(s.Server.Close)
}

// Register creates an account through the real endpoint and resolves
// its user id from the returned token.
func (s *BaseSuite) Register(username string) Account {
	var resp struct {
		Token string `json:"token"`
	}
	s.PostJSON("/auth/register", "", map[string]string{
		"username": username,
		"password": "ComplexPass123!",
	}, &resp)

	claims, err := auth.ValidateToken(resp.Token)
	s.Require().NoError(err)
	return Account{UserID: claims.UserID, Username: username, Token: resp.Token}
}

// PostJSON posts a body to the suite server and decodes the reply,
// requiring a 2xx status.
func (s *BaseSuite) PostJSON(path, token string, body, dest any) {
	payload, err := json.Marshal(body)
	s.Require().NoError(err)

	req, err := http.NewRequest(http.MethodPost, s.Server.URL+path, bytes.NewReader(payload))
	s.Require().NoError(err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Less(resp.StatusCode, 300, "POST %s returned %d", path, resp.StatusCode)

	if dest != nil {
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(dest))
	}
}

// GetJSON fetches a path from the suite server and decodes the reply,
// requiring a 2xx status.
func (s *BaseSuite) GetJSON(path, token string, dest any) {
	req, err := http.NewRequest(http.MethodGet, s.Server.URL+path, nil)
	s.Require().NoError(err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Less(resp.StatusCode, 300, "GET %s returned %d", path, resp.StatusCode)

	s.Require().NoError(json.NewDecoder(resp.Body).Decode(dest))
}

// FrameLog collects frames a channel client applied, for assertions.
type FrameLog struct {
	mu     sync.Mutex
	frames []event.Frame
}

func (l *FrameLog) Record(frame event.Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, frame)
}

func (l *FrameLog) Frames() []event.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]event.Frame(nil), l.frames...)
}

// MessageContents returns the content of every message frame received.
func (l *FrameLog) MessageContents() []string {
	var contents []string
	for _, frame := range l.Frames() {
		if frame.Type != event.TypeMessage {
			continue
		}
		evt, err := frame.DecodeEvent()
		if err != nil {
			continue
		}
		contents = append(contents, evt.(event.MessagePosted).Message.Content)
	}
	return contents
}

// Notifications returns every notification frame received, decoded.
func (l *FrameLog) Notifications() []event.Notification {
	var notifications []event.Notification
	for _, frame := range l.Frames() {
		if frame.Type != event.TypeNotification {
			continue
		}
		evt, err := frame.DecodeEvent()
		if err != nil {
			continue
		}
		notifications = append(notifications, evt.(event.Notification))
	}
	return notifications
}

func (s *BaseSuite) waitMessage() string {
	return fmt.Sprintf("frame not received within %s", s.Config.WaitTimeout)
}
