//go:generate go run go.uber.org/mock/mockgen -source=room_service.go -destination=../mocks/mock_room_service.go -package=mocks
package services

import (
	"context"
	"log/slog"
	"strings"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/repositories"
)

type IRoomService interface {
	CreateRoom(ctx context.Context, name, creatorID string) (domain.Room, error)
	Invite(ctx context.Context, roomID domain.RoomID, inviterID string, inviteeIDs []string) (domain.Room, error)
	RoomsFor(userID string) ([]domain.Room, error)
}

// RoomService owns the authoritative membership set for each private
// room. Membership only grows; the repository write is the single
// source of truth, the published events are best-effort propagation.
type RoomService struct {
	rooms  repositories.IRoomRepository
	router contract.Router
	log    *slog.Logger
}

func NewRoomService(log *slog.Logger, rooms repositories.IRoomRepository, router contract.Router) *RoomService {
	return &RoomService{rooms: rooms, router: router, log: log}
}

// CreateRoom creates a private room with the creator as sole member.
func (s *RoomService) CreateRoom(ctx context.Context, name, creatorID string) (domain.Room, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Room{}, errors.ErrInvalidName
	}
	room, err := s.rooms.Create(name, creatorID)
	if err != nil {
		return domain.Room{}, err
	}
	s.log.Info("room created", "room_id", room.ID, "creator", creatorID)
	return room, nil
}

// Invite adds users to a room. The inviter must currently be a member;
// invitees already in the room are silently skipped so a repeated
// invite stays a successful no-op.
//
// On success a membership delta goes to the room channel, and each
// newly added member gets a notification on their own channel: the
// invitee is not yet connected to the room channel, so that is the
// only live path that can reach them. The two publishes are
// independent; a missed notification is a non-fatal degradation.
func (s *RoomService) Invite(ctx context.Context, roomID domain.RoomID, inviterID string, inviteeIDs []string) (domain.Room, error) {
	member, err := s.rooms.IsMember(roomID, inviterID)
	if err != nil {
		return domain.Room{}, err
	}
	if !member {
		return domain.Room{}, errors.ErrNotAMember
	}

	room, added, err := s.rooms.AddMembers(roomID, inviteeIDs)
	if err != nil {
		return domain.Room{}, err
	}
	if len(added) == 0 {
		return room, nil
	}

	delta := event.MembershipDelta{
		RoomID:    room.ID,
		RoomName:  room.Name,
		AddedIDs:  added,
		MemberIDs: room.MemberIDs,
	}
	s.router.Publish(ctx, domain.RoomChannel(room.ID), delta)

	for _, userID := range added {
		s.router.Publish(ctx, domain.Notifications(userID), event.Notification{
			Kind:        event.KindRoomInvite,
			RecipientID: userID,
			Payload: map[string]any{
				"room_id":    string(room.ID),
				"room_name":  room.Name,
				"invited_by": inviterID,
			},
		})
	}

	s.log.Info("members invited", "room_id", room.ID, "added", len(added))
	return room, nil
}

func (s *RoomService) RoomsFor(userID string) ([]domain.Room, error) {
	return s.rooms.RoomsFor(userID)
}
