package runtime

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/moderation"

	"github.com/stretchr/testify/require"
)

// memoryHistory assigns per-channel sequence numbers in memory.
type memoryHistory struct {
	mu       sync.Mutex
	messages map[string][]domain.Message
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{messages: map[string][]domain.Message{}}
}

func (h *memoryHistory) Append(ch domain.Channel, senderID, content string) (domain.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := ch.Key()
	msg := domain.Message{
		Seq:       int64(len(h.messages[key]) + 1),
		Channel:   key,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	h.messages[key] = append(h.messages[key], msg)
	return msg, nil
}

func (h *memoryHistory) History(ch domain.Channel) ([]domain.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.Message(nil), h.messages[ch.Key()]...), nil
}

func TestBroker_PostMessage_Persists_Then_Publishes(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), newFakeMembers())
	router := NewChannelRouter(slog.Default(), registry, newFakeMembers(), time.Second)
	broker := NewBroker(slog.Default(), newMemoryHistory(), router, nil)

	conn := &fakeConn{}
	_, err := registry.Register(conn, "bob", domain.Global())
	req.NoError(err)

	// When alice posts a message
	msg, err := broker.PostMessage(context.Background(), domain.Global(), "alice", "hello")

	// Then the confirmed copy carries the sequence and reaches bob
	req.NoError(err)
	req.Equal(int64(1), msg.Seq)
	frames := conn.Frames()
	req.Len(frames, 1)
	frame, err := event.Decode(frames[0])
	req.NoError(err)
	received, err := frame.DecodeEvent()
	req.NoError(err)
	posted, ok := received.(event.MessagePosted)
	req.True(ok)
	req.Equal(msg.Seq, posted.Message.Seq)
	req.Equal("hello", posted.Message.Content)
}

func TestBroker_Censors_Before_The_Log(t *testing.T) {
	req := require.New(t)
	moderator, err := moderation.NewModerator([]string{"badger"}, '*', slog.Default())
	req.NoError(err)

	registry := NewRegistry(slog.Default(), newFakeMembers())
	router := NewChannelRouter(slog.Default(), registry, newFakeMembers(), time.Second)
	history := newMemoryHistory()
	broker := NewBroker(slog.Default(), history, router, &moderator)

	conn := &fakeConn{}
	_, err = registry.Register(conn, "bob", domain.Global())
	req.NoError(err)

	msg, err := broker.PostMessage(context.Background(), domain.Global(), "alice", "the badger is loose")
	req.NoError(err)

	// The censored form is the only one anywhere: confirmed copy,
	// durable log, and fan-out
	req.Equal("the ****** is loose", msg.Content)
	stored, err := history.History(domain.Global())
	req.NoError(err)
	req.Equal("the ****** is loose", stored[0].Content)

	frames := conn.Frames()
	req.Len(frames, 1)
	frame, err := event.Decode(frames[0])
	req.NoError(err)
	received, err := frame.DecodeEvent()
	req.NoError(err)
	req.Equal("the ****** is loose", received.(event.MessagePosted).Message.Content)
}

func TestBroker_Concurrent_Sends_Get_Distinct_Consecutive_Sequences(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), newFakeMembers())
	router := NewChannelRouter(slog.Default(), registry, newFakeMembers(), time.Second)
	history := newMemoryHistory()
	broker := NewBroker(slog.Default(), history, router, nil)

	// When many senders post concurrently to the same channel
	const senders = 50
	var wg sync.WaitGroup
	seqs := make(chan int64, senders)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg, err := broker.PostMessage(context.Background(), domain.Global(), "alice", "ping")
			if err == nil {
				seqs <- msg.Seq
			}
		}()
	}
	wg.Wait()
	close(seqs)

	// Then every send got a distinct sequence covering 1..senders
	seen := map[int64]bool{}
	for seq := range seqs {
		req.False(seen[seq], "sequence %d assigned twice", seq)
		seen[seq] = true
	}
	req.Len(seen, senders)
	for seq := int64(1); seq <= senders; seq++ {
		req.True(seen[seq], "missing sequence %d", seq)
	}

	// And the stored history is strictly increasing
	messages, err := history.History(domain.Global())
	req.NoError(err)
	req.Len(messages, senders)
	for i, msg := range messages {
		req.Equal(int64(i+1), msg.Seq)
	}
}
