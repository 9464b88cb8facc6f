package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"chat-relay/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMessageRepository_Append_Assigns_Increasing_Sequences(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(testDB(t), slog.Default(), nil, nil)

	// When appending three messages to the same channel
	first, err := repo.Append(domain.Global(), "alice", "one")
	req.NoError(err)
	second, err := repo.Append(domain.Global(), "bob", "two")
	req.NoError(err)
	third, err := repo.Append(domain.Global(), "alice", "three")
	req.NoError(err)

	// Then sequences are strictly increasing from 1
	req.Equal(int64(1), first.Seq)
	req.Equal(int64(2), second.Seq)
	req.Equal(int64(3), third.Seq)

	// And history returns them in that order
	messages, err := repo.History(domain.Global())
	req.NoError(err)
	req.Len(messages, 3)
	req.Equal([]string{"one", "two", "three"}, lo.Map(messages, func(m domain.Message, _ int) string {
		return m.Content
	}))
}

func TestMessageRepository_Sequences_Are_Per_Channel(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(testDB(t), slog.Default(), nil, nil)
	room := domain.RoomChannel("7b0c9a3e")

	_, err := repo.Append(domain.Global(), "alice", "global one")
	req.NoError(err)
	inRoom, err := repo.Append(room, "alice", "room one")
	req.NoError(err)

	// Each channel keeps its own counter
	req.Equal(int64(1), inRoom.Seq)

	messages, err := repo.History(room)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("room one", messages[0].Content)
}

func TestMessageRepository_Concurrent_Appends_Never_Collide(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(testDB(t), slog.Default(), nil, nil)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Append(domain.Global(), "alice", fmt.Sprintf("msg %d", i))
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	messages, err := repo.History(domain.Global())
	req.NoError(err)
	req.Len(messages, writers)
	for i, msg := range messages {
		req.Equal(int64(i+1), msg.Seq)
	}
}

func TestMessageRepository_History_Honors_Limit(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(testDB(t), slog.Default(), lo.ToPtr(2), nil)

	for i := 1; i <= 5; i++ {
		_, err := repo.Append(domain.Global(), "alice", fmt.Sprintf("msg %d", i))
		req.NoError(err)
	}

	// Only the most recent two survive, still in ascending order
	messages, err := repo.History(domain.Global())
	req.NoError(err)
	req.Len(messages, 2)
	req.Equal(int64(4), messages[0].Seq)
	req.Equal(int64(5), messages[1].Seq)
}

func TestMessageRepository_Global_Retention_Window(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(testDB(t), slog.Default(), nil, lo.ToPtr(time.Hour))

	_, err := repo.Append(domain.Global(), "alice", "fresh")
	req.NoError(err)

	// An old message written directly, as if an hour had passed
	stale := diskMessage{
		Seq:       0,
		Channel:   "global",
		SenderID:  "alice",
		Content:   "stale",
		CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
	}
	req.NoError(writeDiskMessage(repo.db, domain.Global(), stale))

	messages, err := repo.History(domain.Global())
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("fresh", messages[0].Content)
}

func TestMessageRepository_Retention_Does_Not_Apply_To_Rooms(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(testDB(t), slog.Default(), nil, lo.ToPtr(time.Hour))
	room := domain.RoomChannel("9f2d")

	stale := diskMessage{
		Seq:       1,
		Channel:   room.Key(),
		SenderID:  "alice",
		Content:   "kept",
		CreatedAt: time.Now().UTC().Add(-48 * time.Hour),
	}
	req.NoError(writeDiskMessage(repo.db, room, stale))

	messages, err := repo.History(room)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("kept", messages[0].Content)
}

func writeDiskMessage(db *badger.DB, ch domain.Channel, dm diskMessage) error {
	return db.Update(func(txn *badger.Txn) error {
		bytes, err := json.Marshal(dm)
		if err != nil {
			return err
		}
		return txn.Set([]byte(messageKey(ch, dm.Seq)), bytes)
	})
}
