// Package runtime wires live connections to the durable log: the
// registry tracks who listens where, the router fans events out, and
// the broker turns send intents into confirmed, sequenced messages.
package runtime

import (
	"context"
	"log/slog"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/moderation"

	"github.com/abadojack/whatlanggo"
)

// Broker accepts a message send, persists it through the history store
// (which assigns the channel sequence) and fans the confirmed copy out.
// The sender receives its own message back through its subscription
// like any other participant, keeping a single source of truth for
// order and timestamps; the client's reconciler matches that echo
// against the pending copy it rendered optimistically.
//
// Content moderation runs before the append, so the censored form is
// the only one that ever exists: in the log, in the fan-out, and in the
// sender's confirmed echo.
type Broker struct {
	log       *slog.Logger
	history   contract.HistoryStore
	router    contract.Router
	moderator *moderation.Moderator
}

func NewBroker(log *slog.Logger, history contract.HistoryStore, router contract.Router, moderator *moderation.Moderator) *Broker {
	return &Broker{log: log, history: history, router: router, moderator: moderator}
}

// PostMessage censors, appends and publishes. The append is the
// serialization point: concurrent sends to the same channel receive
// distinct, order-consistent sequence numbers before any fan-out
// starts.
func (b *Broker) PostMessage(ctx context.Context, ch domain.Channel, senderID, content string) (domain.Message, error) {
	content = b.censor(ch, senderID, content)

	msg, err := b.history.Append(ch, senderID, content)
	if err != nil {
		return domain.Message{}, err
	}

	delivered := b.router.Publish(ctx, ch, event.MessagePosted{Message: msg})
	b.log.Debug("message published",
		"channel", ch.Key(),
		"seq", msg.Seq,
		"delivered", delivered)
	return msg, nil
}

func (b *Broker) censor(ch domain.Channel, senderID, content string) string {
	if b.moderator == nil {
		return content
	}
	cleaned, found := b.moderator.Censor(content)
	if len(found) == 0 {
		return content
	}

	info := whatlanggo.Detect(content)
	b.log.Warn("message censored",
		"channel", ch.Key(),
		"sender_id", senderID,
		"words", len(found),
		"lang", info.Lang.Iso6391())
	return cleaned
}
