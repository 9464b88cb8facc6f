package runtime

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// stuckConn never completes a write until the context expires.
type stuckConn struct {
	fakeConn
}

func (c *stuckConn) WriteFrame(ctx context.Context, _ []byte) error {
	<-ctx.Done()
	return ctx.Err()
}

// brokenConn fails every write immediately, like a peer that vanished.
type brokenConn struct {
	fakeConn
}

func (c *brokenConn) WriteFrame(context.Context, []byte) error {
	return fmt.Errorf("broken pipe")
}

func TestRouter_Fans_Out_To_Every_Subscriber(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), newFakeMembers())
	router := NewChannelRouter(slog.Default(), registry, newFakeMembers(), time.Second)

	// Given three users on the global channel
	conns := []*fakeConn{{}, {}, {}}
	for i, c := range conns {
		_, err := registry.Register(c, uuid.NewString(), domain.Global())
		req.NoError(err, "register %d", i)
	}

	// When a message is published
	msg := domain.Message{Seq: 1, Channel: "global", SenderID: "alice", Content: "hello", CreatedAt: time.Now()}
	delivered := router.Publish(context.Background(), domain.Global(), event.MessagePosted{Message: msg})

	// Then each subscriber received exactly one frame
	req.Equal(3, delivered)
	for _, c := range conns {
		frames := c.Frames()
		req.Len(frames, 1)
		frame, err := event.Decode(frames[0])
		req.NoError(err)
		req.Equal("global", frame.Channel)
		req.Equal(event.TypeMessage, frame.Type)
	}
}

func TestRouter_Rechecks_Room_Membership_At_Publish_Time(t *testing.T) {
	req := require.New(t)
	members := newFakeMembers()
	roomID := domain.RoomID(uuid.NewString())
	members.add(roomID, "alice")
	members.add(roomID, "bob")

	registry := NewRegistry(slog.Default(), members)
	router := NewChannelRouter(slog.Default(), registry, members, time.Second)

	aliceConn := &fakeConn{}
	bobConn := &fakeConn{}
	_, err := registry.Register(aliceConn, "alice", domain.RoomChannel(roomID))
	req.NoError(err)
	_, err = registry.Register(bobConn, "bob", domain.RoomChannel(roomID))
	req.NoError(err)

	// Given bob's membership is gone after he registered
	members.mu.Lock()
	delete(members.members[roomID], "bob")
	members.mu.Unlock()

	// When a message is published to the room
	msg := domain.Message{Seq: 1, Channel: domain.RoomChannel(roomID).Key(), SenderID: "alice", Content: "hi"}
	delivered := router.Publish(context.Background(), domain.RoomChannel(roomID), event.MessagePosted{Message: msg})

	// Then only the current member receives it
	req.Equal(1, delivered)
	req.Len(aliceConn.Frames(), 1)
	req.Empty(bobConn.Frames())
}

func TestRouter_Drops_Notification_When_Recipient_Offline(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), newFakeMembers())
	router := NewChannelRouter(slog.Default(), registry, newFakeMembers(), time.Second)

	notification := event.Notification{
		Kind:        event.KindFriendRequestReceived,
		RecipientID: "bob",
		Payload:     map[string]any{"from_user": "alice"},
	}
	delivered := router.Publish(context.Background(), domain.Notifications("bob"), notification)

	req.Zero(delivered)
}

func TestRouter_Tears_Down_Slow_Consumer(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), newFakeMembers())
	router := NewChannelRouter(slog.Default(), registry, newFakeMembers(), 20*time.Millisecond)

	healthy := &fakeConn{}
	stuck := &stuckConn{}
	_, err := registry.Register(healthy, "alice", domain.Global())
	req.NoError(err)
	_, err = registry.Register(stuck, "bob", domain.Global())
	req.NoError(err)

	// When publishing with one consumer that never drains
	msg := domain.Message{Seq: 1, Channel: "global", SenderID: "alice", Content: "hello"}
	delivered := router.Publish(context.Background(), domain.Global(), event.MessagePosted{Message: msg})

	// Then the healthy consumer got the frame and the stuck one was evicted
	req.Equal(1, delivered)
	req.Len(healthy.Frames(), 1)
	req.True(stuck.closed)
	req.Len(registry.ConnectionsFor(domain.Global()), 1)
}

func TestRouter_Names_The_Teardown_Reason(t *testing.T) {
	req := require.New(t)
	var logged bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logged, nil))

	registry := NewRegistry(log, newFakeMembers())
	router := NewChannelRouter(log, registry, newFakeMembers(), 20*time.Millisecond)

	// Given one consumer that never drains and one whose peer is gone
	stuck := &stuckConn{}
	broken := &brokenConn{}
	_, err := registry.Register(stuck, "alice", domain.Global())
	req.NoError(err)
	_, err = registry.Register(broken, "bob", domain.Global())
	req.NoError(err)

	msg := domain.Message{Seq: 1, Channel: "global", SenderID: "carol", Content: "hello"}
	delivered := router.Publish(context.Background(), domain.Global(), event.MessagePosted{Message: msg})

	// Then both are evicted and each teardown names its reason
	req.Zero(delivered)
	req.Empty(registry.ConnectionsFor(domain.Global()))
	req.Contains(logged.String(), errors.ErrSlowConsumer.Error())
	req.Contains(logged.String(), errors.ErrConnectionClosed.Error())
}
