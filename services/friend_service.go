//go:generate go run go.uber.org/mock/mockgen -source=friend_service.go -destination=../mocks/mock_friend_service.go -package=mocks
package services

import (
	"context"
	"log/slog"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/repositories"
)

type IFriendService interface {
	Send(ctx context.Context, from, to string) (domain.FriendRequest, error)
	Respond(ctx context.Context, requestID, responderID string, decision domain.Decision) (domain.FriendRequest, error)
	Pending(userID string) ([]domain.FriendRequest, error)
	Friends(userID string) ([]string, error)
}

// FriendService governs the friend request state machine:
// Pending -> {Accepted, Declined}, both terminal. A declined or
// accepted request is never reopened; a fresh Send is required, which
// succeeds once no pending request remains between the pair.
type FriendService struct {
	friends repositories.IFriendRepository
	router  contract.Router
	log     *slog.Logger
}

func NewFriendService(log *slog.Logger, friends repositories.IFriendRepository, router contract.Router) *FriendService {
	return &FriendService{friends: friends, router: router, log: log}
}

// Send creates a pending request and notifies the recipient. At most
// one pending request may exist per unordered pair, in either
// direction.
func (s *FriendService) Send(ctx context.Context, from, to string) (domain.FriendRequest, error) {
	if from == to {
		return domain.FriendRequest{}, errors.ErrSelfRequest
	}

	request, err := s.friends.CreateRequest(from, to)
	if err != nil {
		return domain.FriendRequest{}, err
	}

	s.router.Publish(ctx, domain.Notifications(to), event.Notification{
		Kind:        event.KindFriendRequestReceived,
		RecipientID: to,
		Payload: map[string]any{
			"request_id": request.ID,
			"from_user":  from,
		},
	})

	s.log.Info("friend request sent", "request_id", request.ID)
	return request, nil
}

// Respond moves a pending request to its terminal state. Only the
// recipient may respond. Acceptance additionally writes the symmetric
// friendship edge; this service guarantees the notification fires, not
// the edge's durability.
func (s *FriendService) Respond(ctx context.Context, requestID, responderID string, decision domain.Decision) (domain.FriendRequest, error) {
	request, err := s.friends.GetRequest(requestID)
	if err != nil {
		return domain.FriendRequest{}, err
	}
	if request.State != domain.StatePending {
		return domain.FriendRequest{}, errors.ErrNotPending
	}
	if request.ToUser != responderID {
		return domain.FriendRequest{}, errors.ErrForbidden
	}

	state := domain.StateDeclined
	if decision == domain.DecisionAccept {
		state = domain.StateAccepted
	}

	request, err = s.friends.Resolve(requestID, state)
	if err != nil {
		return domain.FriendRequest{}, err
	}

	if state == domain.StateAccepted {
		if err = s.friends.CreateFriendship(request.FromUser, request.ToUser); err != nil {
			return domain.FriendRequest{}, err
		}
	}

	s.router.Publish(ctx, domain.Notifications(request.FromUser), event.Notification{
		Kind:        event.KindFriendRequestResolved,
		RecipientID: request.FromUser,
		Payload: map[string]any{
			"request_id": request.ID,
			"by_user":    responderID,
			"outcome":    string(state),
		},
	})

	s.log.Info("friend request resolved", "request_id", request.ID, "outcome", state)
	return request, nil
}

func (s *FriendService) Pending(userID string) ([]domain.FriendRequest, error) {
	return s.friends.PendingFor(userID)
}

func (s *FriendService) Friends(userID string) ([]string, error) {
	return s.friends.Friends(userID)
}
