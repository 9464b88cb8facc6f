package runtime

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// fakeConn records every frame written to it.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (c *fakeConn) WriteFrame(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

// fakeMembers is an in-memory membership source.
type fakeMembers struct {
	mu      sync.Mutex
	members map[domain.RoomID]map[string]bool
}

func newFakeMembers() *fakeMembers {
	return &fakeMembers{members: map[domain.RoomID]map[string]bool{}}
}

func (f *fakeMembers) add(roomID domain.RoomID, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.members[roomID]; !ok {
		f.members[roomID] = map[string]bool{}
	}
	f.members[roomID][userID] = true
}

func (f *fakeMembers) IsMember(roomID domain.RoomID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.members[roomID]
	if !ok {
		return false, errors.ErrRoomNotFound
	}
	return room[userID], nil
}

func TestRegistry_Register_Global_Channel(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), newFakeMembers())
	userID := uuid.NewString()

	// Given no connection is tracked
	req.Empty(registry.ConnectionsFor(domain.Global()))

	// When a user registers for the global channel
	connection, err := registry.Register(&fakeConn{}, userID, domain.Global())

	// Then
	req.NoError(err)
	req.Equal(userID, connection.UserID)
	req.Len(registry.ConnectionsFor(domain.Global()), 1)
}

func TestRegistry_Register_Without_Identity_Fails(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), newFakeMembers())

	_, err := registry.Register(&fakeConn{}, "", domain.Global())

	req.ErrorIs(err, errors.ErrUnauthorized)
}

func TestRegistry_Register_Room_Requires_Membership(t *testing.T) {
	req := require.New(t)
	members := newFakeMembers()
	registry := NewRegistry(slog.Default(), members)
	roomID := domain.RoomID(uuid.NewString())
	members.add(roomID, "alice")

	// When a member registers
	_, err := registry.Register(&fakeConn{}, "alice", domain.RoomChannel(roomID))
	req.NoError(err)

	// Then a non-member is rejected
	_, err = registry.Register(&fakeConn{}, "mallory", domain.RoomChannel(roomID))
	req.ErrorIs(err, errors.ErrNotAMember)

	// And an unknown room propagates its error
	_, err = registry.Register(&fakeConn{}, "alice", domain.RoomChannel("nope"))
	req.ErrorIs(err, errors.ErrRoomNotFound)
}

func TestRegistry_Notification_Channel_Is_Owner_Only(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), newFakeMembers())

	_, err := registry.Register(&fakeConn{}, "alice", domain.Notifications("alice"))
	req.NoError(err)

	_, err = registry.Register(&fakeConn{}, "mallory", domain.Notifications("alice"))
	req.ErrorIs(err, errors.ErrUnauthorized)
}

func TestRegistry_Unregister_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), newFakeMembers())

	connection, err := registry.Register(&fakeConn{}, "alice", domain.Global())
	req.NoError(err)

	// When unregistering twice, and once with nil
	registry.Unregister(connection)
	registry.Unregister(connection)
	registry.Unregister(nil)

	// Then no connection is left and no panic occurred
	req.Empty(registry.ConnectionsFor(domain.Global()))
}

func TestRegistry_Channels_Are_Isolated(t *testing.T) {
	req := require.New(t)
	members := newFakeMembers()
	registry := NewRegistry(slog.Default(), members)
	roomID := domain.RoomID(uuid.NewString())
	members.add(roomID, "alice")

	_, err := registry.Register(&fakeConn{}, "alice", domain.Global())
	req.NoError(err)
	_, err = registry.Register(&fakeConn{}, "alice", domain.RoomChannel(roomID))
	req.NoError(err)

	req.Len(registry.ConnectionsFor(domain.Global()), 1)
	req.Len(registry.ConnectionsFor(domain.RoomChannel(roomID)), 1)
	req.Empty(registry.ConnectionsFor(domain.Notifications("alice")))
}
