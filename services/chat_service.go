//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/runtime"
)

type IChatService interface {
	Send(ctx context.Context, ch domain.Channel, senderID, content string) (domain.Message, error)
	History(ch domain.Channel, userID string) ([]domain.Message, error)
	Subscribe(conn runtime.Conn, userID string, ch domain.Channel) (*runtime.Connection, error)
	Unsubscribe(c *runtime.Connection)
}

// ChatService is the facade the transport layer talks to: one send
// path, one snapshot path, and the subscribe/unsubscribe pair that
// returns a disposal handle released on channel close.
type ChatService struct {
	broker   *runtime.Broker
	registry *runtime.Registry
	history  contract.HistoryStore
	members  contract.MembershipSource
}

func NewChatService(broker *runtime.Broker, registry *runtime.Registry, history contract.HistoryStore, members contract.MembershipSource) *ChatService {
	return &ChatService{broker: broker, registry: registry, history: history, members: members}
}

// Send appends a user message to a chat channel. Notification channels
// are system-written only: their events come from the room and friend
// services, never from a subscriber's inbound frames.
func (s *ChatService) Send(ctx context.Context, ch domain.Channel, senderID, content string) (domain.Message, error) {
	if ch.Kind == domain.KindNotifications {
		return domain.Message{}, errors.ErrForbidden
	}
	return s.broker.PostMessage(ctx, ch, senderID, content)
}

// History serves the snapshot under the same access rules as a live
// subscription: room history only for current members, a notification
// channel only for its owner.
func (s *ChatService) History(ch domain.Channel, userID string) ([]domain.Message, error) {
	switch ch.Kind {
	case domain.KindRoom:
		member, err := s.members.IsMember(ch.Room, userID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, errors.ErrNotAMember
		}
	case domain.KindNotifications:
		if ch.User != userID {
			return nil, errors.ErrForbidden
		}
	}
	return s.history.History(ch)
}

func (s *ChatService) Subscribe(conn runtime.Conn, userID string, ch domain.Channel) (*runtime.Connection, error) {
	return s.registry.Register(conn, userID, ch)
}

func (s *ChatService) Unsubscribe(c *runtime.Connection) {
	s.registry.Unregister(c)
}
