package runtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
)

// ChannelRouter resolves an event to the set of connections that must
// receive it and fans the encoded frame out to them in parallel.
//
// Delivery is best-effort and at-most-once per connected target. A
// connection that cannot absorb the frame within the write timeout is
// torn down; its owner's reconnection supervisor will retry, and the
// resulting resnapshot absorbs anything missed.
//
// ChannelRouter is safe for concurrent use by multiple goroutines.
type ChannelRouter struct {
	log          *slog.Logger
	registry     *Registry
	members      contract.MembershipSource
	writeTimeout time.Duration
}

func NewChannelRouter(log *slog.Logger, registry *Registry, members contract.MembershipSource, writeTimeout time.Duration) *ChannelRouter {
	return &ChannelRouter{
		log:          log,
		registry:     registry,
		members:      members,
		writeTimeout: writeTimeout,
	}
}

// Publish delivers e to every connection currently bound to ch and
// returns the number of successful deliveries.
//
// For a room channel, membership is re-checked per connection at
// publish time rather than trusted from registration, so an invite
// racing with a send never routes to a connection whose membership
// state is stale. A notification published to a user with no open
// notification connection is dropped.
func (r *ChannelRouter) Publish(ctx context.Context, ch domain.Channel, e event.DomainEvent) int {
	frame, err := event.Encode(ch, e)
	if err != nil {
		r.log.Error("failed to encode frame", "channel", ch.Key(), "error", err)
		return 0
	}

	targets := r.registry.ConnectionsFor(ch)
	if ch.Kind == domain.KindRoom {
		targets = r.memberConnections(ch.Room, targets)
	}
	if len(targets) == 0 {
		if ch.Kind == domain.KindNotifications {
			r.log.Debug("recipient offline, notification dropped", "channel", ch.Key())
		}
		return 0
	}

	var delivered atomic.Int64
	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			writeCtx, cancel := context.WithTimeout(ctx, r.writeTimeout)
			defer cancel()

			if err := c.WriteFrame(writeCtx, frame); err != nil {
				// A write that used up the whole budget is a slow
				// consumer; anything else means the peer is gone.
				reason := errors.ErrConnectionClosed
				if writeCtx.Err() != nil {
					reason = errors.ErrSlowConsumer
				}
				r.log.Warn("dropping connection",
					"user_id", c.UserID,
					"channel", ch.Key(),
					"reason", reason,
					"error", err)
				r.registry.Unregister(c)
				_ = c.Close()
				return
			}
			delivered.Add(1)
		}(target)
	}
	wg.Wait()

	return int(delivered.Load())
}

func (r *ChannelRouter) memberConnections(roomID domain.RoomID, conns []*Connection) []*Connection {
	kept := conns[:0]
	for _, c := range conns {
		member, err := r.members.IsMember(roomID, c.UserID)
		if err != nil {
			r.log.Warn("membership check failed during publish", "room_id", roomID, "error", err)
			continue
		}
		if member {
			kept = append(kept, c)
		}
	}
	return kept
}
