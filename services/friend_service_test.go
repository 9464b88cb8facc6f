package services

import (
	"context"
	"log/slog"
	"testing"

	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/repositories"

	"github.com/stretchr/testify/require"
)

func TestFriendService_Send_Notifies_The_Recipient(t *testing.T) {
	req := require.New(t)
	router := &recordingRouter{}
	service := NewFriendService(slog.Default(), repositories.NewFriendRepository(testDB(t)), router)

	request, err := service.Send(context.Background(), "alice", "bob")

	req.NoError(err)
	req.Equal(domain.StatePending, request.State)
	published := router.events()
	req.Len(published, 1)
	req.Equal(domain.Notifications("bob"), published[0].channel)
	notification := published[0].event.(event.Notification)
	req.Equal(event.KindFriendRequestReceived, notification.Kind)
	req.Equal("alice", notification.Payload["from_user"])
}

func TestFriendService_Send_To_Self_Fails(t *testing.T) {
	req := require.New(t)
	service := NewFriendService(slog.Default(), repositories.NewFriendRepository(testDB(t)), &recordingRouter{})

	_, err := service.Send(context.Background(), "alice", "alice")

	req.ErrorIs(err, errors.ErrSelfRequest)
}

func TestFriendService_Accept_Creates_The_Friendship(t *testing.T) {
	req := require.New(t)
	router := &recordingRouter{}
	friends := repositories.NewFriendRepository(testDB(t))
	service := NewFriendService(slog.Default(), friends, router)

	request, err := service.Send(context.Background(), "alice", "bob")
	req.NoError(err)

	// When bob accepts
	resolved, err := service.Respond(context.Background(), request.ID, "bob", domain.DecisionAccept)
	req.NoError(err)
	req.Equal(domain.StateAccepted, resolved.State)

	// Then the edge exists in both directions
	aliceFriends, err := service.Friends("alice")
	req.NoError(err)
	req.Equal([]string{"bob"}, aliceFriends)
	bobFriends, err := service.Friends("bob")
	req.NoError(err)
	req.Equal([]string{"alice"}, bobFriends)

	// And alice was told about the outcome
	published := router.events()
	req.Len(published, 2)
	req.Equal(domain.Notifications("alice"), published[1].channel)
	notification := published[1].event.(event.Notification)
	req.Equal(event.KindFriendRequestResolved, notification.Kind)
	req.Equal(string(domain.StateAccepted), notification.Payload["outcome"])
}

func TestFriendService_Decline_Leaves_No_Friendship(t *testing.T) {
	req := require.New(t)
	service := NewFriendService(slog.Default(), repositories.NewFriendRepository(testDB(t)), &recordingRouter{})

	request, err := service.Send(context.Background(), "alice", "bob")
	req.NoError(err)

	resolved, err := service.Respond(context.Background(), request.ID, "bob", domain.DecisionDecline)
	req.NoError(err)
	req.Equal(domain.StateDeclined, resolved.State)

	friends, err := service.Friends("alice")
	req.NoError(err)
	req.Empty(friends)
}

func TestFriendService_Only_The_Recipient_May_Respond(t *testing.T) {
	req := require.New(t)
	service := NewFriendService(slog.Default(), repositories.NewFriendRepository(testDB(t)), &recordingRouter{})

	request, err := service.Send(context.Background(), "alice", "bob")
	req.NoError(err)

	// Neither the sender nor a third party may respond
	_, err = service.Respond(context.Background(), request.ID, "alice", domain.DecisionAccept)
	req.ErrorIs(err, errors.ErrForbidden)
	_, err = service.Respond(context.Background(), request.ID, "mallory", domain.DecisionAccept)
	req.ErrorIs(err, errors.ErrForbidden)
}

func TestFriendService_Respond_Twice_Fails(t *testing.T) {
	req := require.New(t)
	service := NewFriendService(slog.Default(), repositories.NewFriendRepository(testDB(t)), &recordingRouter{})

	request, err := service.Send(context.Background(), "alice", "bob")
	req.NoError(err)
	_, err = service.Respond(context.Background(), request.ID, "bob", domain.DecisionDecline)
	req.NoError(err)

	_, err = service.Respond(context.Background(), request.ID, "bob", domain.DecisionAccept)

	req.ErrorIs(err, errors.ErrNotPending)
}

func TestFriendService_Declined_Pair_Can_Try_Again(t *testing.T) {
	req := require.New(t)
	service := NewFriendService(slog.Default(), repositories.NewFriendRepository(testDB(t)), &recordingRouter{})

	request, err := service.Send(context.Background(), "alice", "bob")
	req.NoError(err)

	// A duplicate in either direction is rejected while pending
	_, err = service.Send(context.Background(), "bob", "alice")
	req.ErrorIs(err, errors.ErrDuplicateRequest)

	// Once declined, a fresh request goes through
	_, err = service.Respond(context.Background(), request.ID, "bob", domain.DecisionDecline)
	req.NoError(err)
	_, err = service.Send(context.Background(), "bob", "alice")
	req.NoError(err)
}
