//go:generate go run go.uber.org/mock/mockgen -source=room.go -destination=../mocks/mock_room_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"strings"

	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IRoomRepository interface {
	Create(name, creatorID string) (domain.Room, error)
	Get(id domain.RoomID) (domain.Room, error)
	AddMembers(id domain.RoomID, userIDs []string) (domain.Room, []string, error)
	RoomsFor(userID string) ([]domain.Room, error)
	IsMember(id domain.RoomID, userID string) (bool, error)
}

// RoomRepository persists rooms and a per-user membership index.
//
// Keys: "room:{id}" holds the JSON room document, "roommember:{user}:{id}"
// is an empty marker so RoomsFor is a single prefix scan. Membership only
// grows, so both writes happen in the same transaction and never need
// deletion.
type RoomRepository struct {
	db *badger.DB
}

func NewRoomRepository(db *badger.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

func (r *RoomRepository) Create(name, creatorID string) (domain.Room, error) {
	room := domain.Room{
		ID:        domain.RoomID(uuid.NewString()),
		Name:      strings.TrimSpace(name),
		CreatedBy: creatorID,
		MemberIDs: []string{creatorID},
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		if err := writeRoom(txn, room); err != nil {
			return err
		}
		return txn.Set([]byte(memberKey(creatorID, room.ID)), nil)
	})
	if err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

func (r *RoomRepository) Get(id domain.RoomID) (domain.Room, error) {
	var room domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		found, err := readRoom(txn, id)
		room = found
		return err
	})
	return room, err
}

// AddMembers appends the given users to the room in one transaction and
// returns the updated room plus the users actually added. Users already
// in the room are silently skipped, which makes invites idempotent.
func (r *RoomRepository) AddMembers(id domain.RoomID, userIDs []string) (domain.Room, []string, error) {
	var room domain.Room
	var added []string

	err := r.db.Update(func(txn *badger.Txn) error {
		found, err := readRoom(txn, id)
		if err != nil {
			return err
		}
		room = found
		added = added[:0]

		for _, userID := range userIDs {
			if room.IsMember(userID) {
				continue
			}
			room.MemberIDs = append(room.MemberIDs, userID)
			added = append(added, userID)
			if err = txn.Set([]byte(memberKey(userID, room.ID)), nil); err != nil {
				return err
			}
		}

		if len(added) == 0 {
			return nil
		}
		return writeRoom(txn, room)
	})
	if err != nil {
		return domain.Room{}, nil, err
	}
	return room, added, nil
}

func (r *RoomRepository) RoomsFor(userID string) ([]domain.Room, error) {
	var rooms []domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("roommember:" + userID + ":")
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := domain.RoomID(it.Item().Key()[len(prefix):])
			room, err := readRoom(txn, id)
			if err != nil {
				return err
			}
			rooms = append(rooms, room)
		}
		return nil
	})
	return rooms, err
}

func (r *RoomRepository) IsMember(id domain.RoomID, userID string) (bool, error) {
	room, err := r.Get(id)
	if err != nil {
		return false, err
	}
	return room.IsMember(userID), nil
}

func readRoom(txn *badger.Txn, id domain.RoomID) (domain.Room, error) {
	item, err := txn.Get([]byte(roomKey(id)))
	if err == badger.ErrKeyNotFound {
		return domain.Room{}, errors.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, err
	}
	var room domain.Room
	err = item.Value(func(value []byte) error {
		return json.Unmarshal(value, &room)
	})
	return room, err
}

func writeRoom(txn *badger.Txn, room domain.Room) error {
	bytes, err := json.Marshal(room)
	if err != nil {
		return err
	}
	return txn.Set([]byte(roomKey(room.ID)), bytes)
}

func roomKey(id domain.RoomID) string {
	return fmt.Sprintf("room:%s", id)
}

func memberKey(userID string, id domain.RoomID) string {
	return fmt.Sprintf("roommember:%s:%s", userID, id)
}
