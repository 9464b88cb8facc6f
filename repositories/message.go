//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"chat-relay/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

type IMessageRepository interface {
	Append(ch domain.Channel, senderID, content string) (domain.Message, error)
	History(ch domain.Channel) ([]domain.Message, error)
}

// MessageRepository persists the per-channel message log in BadgerDB.
//
// Keys are formatted as "msg:{channel_key}:{seq_padded}" so that a prefix
// scan yields messages in sequence order (19-digit zero padding keeps the
// lexicographical order equal to the numeric order). The current sequence
// of a channel lives under "seq:{channel_key}" and is read and bumped in
// the same transaction as the message write, guarded by a per-channel
// mutex: that pair is the single serialization point giving every message
// a strictly increasing sequence matching arrival order.
type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
	retention     *time.Duration // global channel ephemeral window

	mu   sync.Mutex
	seqs map[string]*sync.Mutex
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int, retention *time.Duration) *MessageRepository {
	return &MessageRepository{
		db:            db,
		log:           log,
		limitMessages: limitMessages,
		retention:     retention,
		seqs:          make(map[string]*sync.Mutex),
	}
}

type diskMessage struct {
	Seq       int64     `json:"seq"`
	Channel   string    `json:"channel"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Append assigns the next sequence number of the channel and persists
// the message atomically. The returned Message is immutable from the
// caller's point of view.
func (m *MessageRepository) Append(ch domain.Channel, senderID, content string) (domain.Message, error) {
	lock := m.channelLock(ch.Key())
	lock.Lock()
	defer lock.Unlock()

	msg := domain.Message{
		Channel:   ch.Key(),
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	err := m.db.Update(func(txn *badger.Txn) error {
		seq, err := readSeq(txn, ch)
		if err != nil {
			return err
		}
		msg.Seq = seq + 1

		bytes, err := json.Marshal(fromMessage(msg))
		if err != nil {
			return err
		}
		if err = txn.Set([]byte(messageKey(ch, msg.Seq)), bytes); err != nil {
			return err
		}
		return txn.Set([]byte(seqKey(ch)), []byte(strconv.FormatInt(msg.Seq, 10)))
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("append to %s failed: %w", ch.Key(), err)
	}
	return msg, nil
}

// History retrieves the most recent messages of a channel in ascending
// sequence order. Thanks to the padded sequence in the key, a reverse
// prefix scan naturally walks newest to oldest; the result is flipped
// back before returning. The configured limit bounds the snapshot size,
// and the global channel additionally drops messages older than the
// retention window.
func (m *MessageRepository) History(ch domain.Channel) ([]domain.Message, error) {
	var collected []diskMessage
	cutoff := m.cutoff(ch)

	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%s:", ch.Key()))
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the newest possible key, then walk backwards.
		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(collected) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *m.limitMessages))
				break
			}
			var dm diskMessage
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &dm)
			})
			if err != nil {
				return err
			}
			if cutoff != nil && dm.CreatedAt.Before(*cutoff) {
				break
			}
			collected = append(collected, dm)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	messages := lo.Map(collected, func(dm diskMessage, _ int) domain.Message {
		return toMessage(dm)
	})
	lo.Reverse(messages)
	return messages, nil
}

// cutoff returns the oldest timestamp still served, or nil when the
// channel has no retention window. Only the global room is ephemeral.
func (m *MessageRepository) cutoff(ch domain.Channel) *time.Time {
	if m.retention == nil || ch.Kind != domain.KindGlobal {
		return nil
	}
	return lo.ToPtr(time.Now().UTC().Add(-*m.retention))
}

func (m *MessageRepository) channelLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.seqs[key]
	if !ok {
		lock = &sync.Mutex{}
		m.seqs[key] = lock
	}
	return lock
}

func readSeq(txn *badger.Txn, ch domain.Channel) (int64, error) {
	item, err := txn.Get([]byte(seqKey(ch)))
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var seq int64
	err = item.Value(func(value []byte) error {
		seq, err = strconv.ParseInt(string(value), 10, 64)
		return err
	})
	return seq, err
}

func messageKey(ch domain.Channel, seq int64) string {
	return fmt.Sprintf("msg:%s:%019d", ch.Key(), seq)
}

func seqKey(ch domain.Channel) string {
	return "seq:" + ch.Key()
}

func fromMessage(msg domain.Message) diskMessage {
	return diskMessage{
		Seq:       msg.Seq,
		Channel:   msg.Channel,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
}

func toMessage(dm diskMessage) domain.Message {
	return domain.Message{
		Seq:       dm.Seq,
		Channel:   dm.Channel,
		SenderID:  dm.SenderID,
		Content:   dm.Content,
		CreatedAt: dm.CreatedAt,
	}
}
