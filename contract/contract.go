//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-relay/domain"
	"chat-relay/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself.
// Can be silly, focused.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used for logging and supervision, avoiding manual naming in the
// Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Router fans an event out to every live connection bound to a channel.
// It returns how many connections actually received the frame.
type Router interface {
	Publish(ctx context.Context, ch domain.Channel, e event.DomainEvent) int
}

// MembershipSource answers room membership questions. Consulted by the
// registry at registration time and by the router at publish time.
type MembershipSource interface {
	IsMember(roomID domain.RoomID, userID string) (bool, error)
}

// HistoryStore is the durable message log. Append is the single
// serialization point for sequence assignment within a channel.
type HistoryStore interface {
	Append(ch domain.Channel, senderID, content string) (domain.Message, error)
	History(ch domain.Channel) ([]domain.Message, error)
}
