//go:generate go run go.uber.org/mock/mockgen -source=friend.go -destination=../mocks/mock_friend_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"

	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IFriendRepository interface {
	CreateRequest(from, to string) (domain.FriendRequest, error)
	GetRequest(id string) (domain.FriendRequest, error)
	Resolve(id string, state domain.RequestState) (domain.FriendRequest, error)
	PendingFor(userID string) ([]domain.FriendRequest, error)
	CreateFriendship(a, b string) error
	Friends(userID string) ([]string, error)
}

// FriendRepository persists friend requests and the friendship graph.
//
// Keys:
//
//	"freq:{id}"            request document
//	"freqpair:{min}|{max}" live pending marker for the unordered pair,
//	                       set on creation and deleted on resolution
//	"freqto:{user}:{id}"   recipient index for PendingFor
//	"friend:{a}:{b}"       one direction of a friendship edge (written
//	                       both ways so Friends is a prefix scan)
//
// The pair marker enforces the "one live pending request per unordered
// pair" invariant inside the creation transaction.
type FriendRepository struct {
	db *badger.DB
}

func NewFriendRepository(db *badger.DB) *FriendRepository {
	return &FriendRepository{db: db}
}

func (f *FriendRepository) CreateRequest(from, to string) (domain.FriendRequest, error) {
	request := domain.FriendRequest{
		ID:       uuid.NewString(),
		FromUser: from,
		ToUser:   to,
		State:    domain.StatePending,
	}

	err := f.db.Update(func(txn *badger.Txn) error {
		pair := []byte(pairKey(from, to))
		if _, err := txn.Get(pair); err == nil {
			return errors.ErrDuplicateRequest
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		bytes, err := json.Marshal(request)
		if err != nil {
			return err
		}
		if err = txn.Set([]byte(requestKey(request.ID)), bytes); err != nil {
			return err
		}
		if err = txn.Set([]byte(recipientKey(to, request.ID)), nil); err != nil {
			return err
		}
		return txn.Set(pair, []byte(request.ID))
	})
	if err != nil {
		return domain.FriendRequest{}, err
	}
	return request, nil
}

func (f *FriendRepository) GetRequest(id string) (domain.FriendRequest, error) {
	var request domain.FriendRequest
	err := f.db.View(func(txn *badger.Txn) error {
		found, err := readRequest(txn, id)
		request = found
		return err
	})
	return request, err
}

// Resolve moves a pending request to its terminal state and frees the
// pair marker so a fresh request between the two users may succeed later.
func (f *FriendRepository) Resolve(id string, state domain.RequestState) (domain.FriendRequest, error) {
	var request domain.FriendRequest

	err := f.db.Update(func(txn *badger.Txn) error {
		found, err := readRequest(txn, id)
		if err != nil {
			return err
		}
		if found.State != domain.StatePending {
			return errors.ErrNotPending
		}
		found.State = state
		request = found

		bytes, err := json.Marshal(found)
		if err != nil {
			return err
		}
		if err = txn.Set([]byte(requestKey(id)), bytes); err != nil {
			return err
		}
		if err = txn.Delete([]byte(recipientKey(found.ToUser, id))); err != nil {
			return err
		}
		return txn.Delete([]byte(pairKey(found.FromUser, found.ToUser)))
	})
	if err != nil {
		return domain.FriendRequest{}, err
	}
	return request, nil
}

func (f *FriendRepository) PendingFor(userID string) ([]domain.FriendRequest, error) {
	var requests []domain.FriendRequest
	err := f.db.View(func(txn *badger.Txn) error {
		prefix := []byte("freqto:" + userID + ":")
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := string(it.Item().Key()[len(prefix):])
			request, err := readRequest(txn, id)
			if err != nil {
				return err
			}
			requests = append(requests, request)
		}
		return nil
	})
	return requests, err
}

// CreateFriendship writes the symmetric edge between two users.
func (f *FriendRepository) CreateFriendship(a, b string) error {
	return f.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(friendKey(a, b)), nil); err != nil {
			return err
		}
		return txn.Set([]byte(friendKey(b, a)), nil)
	})
}

func (f *FriendRepository) Friends(userID string) ([]string, error) {
	var friends []string
	err := f.db.View(func(txn *badger.Txn) error {
		prefix := []byte("friend:" + userID + ":")
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			friends = append(friends, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	return friends, err
}

func readRequest(txn *badger.Txn, id string) (domain.FriendRequest, error) {
	item, err := txn.Get([]byte(requestKey(id)))
	if err == badger.ErrKeyNotFound {
		return domain.FriendRequest{}, errors.ErrRequestNotFound
	}
	if err != nil {
		return domain.FriendRequest{}, err
	}
	var request domain.FriendRequest
	err = item.Value(func(value []byte) error {
		return json.Unmarshal(value, &request)
	})
	return request, err
}

func requestKey(id string) string {
	return "freq:" + id
}

func recipientKey(userID, id string) string {
	return fmt.Sprintf("freqto:%s:%s", userID, id)
}

// pairKey is order-independent so one marker covers both directions.
func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("freqpair:%s|%s", a, b)
}

func friendKey(a, b string) string {
	return fmt.Sprintf("friend:%s:%s", a, b)
}
