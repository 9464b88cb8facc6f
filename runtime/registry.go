package runtime

import (
	"context"
	"log/slog"
	"sync"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/google/uuid"
)

// Conn is the transport-level duplex connection. Implementations must
// honor the context deadline on writes so one slow consumer cannot
// stall fan-out to the others.
type Conn interface {
	WriteFrame(ctx context.Context, data []byte) error
	Close() error
}

// Connection binds a Conn to one (user, channel) pair. The binding is
// immutable for the connection's lifetime: switching channel means
// closing and registering a new connection.
type Connection struct {
	ID      string
	UserID  string
	Channel domain.Channel
	conn    Conn
}

func (c *Connection) WriteFrame(ctx context.Context, data []byte) error {
	return c.conn.WriteFrame(ctx, data)
}

func (c *Connection) Close() error { return c.conn.Close() }

// Registry tracks every live connection keyed by the channel it
// subscribes to. Pure bookkeeping: the only business rule it enforces
// is the registration-time membership and identity check.
type Registry struct {
	mu        sync.RWMutex
	byChannel map[string]map[*Connection]struct{}
	members   contract.MembershipSource
	log       *slog.Logger
}

func NewRegistry(log *slog.Logger, members contract.MembershipSource) *Registry {
	return &Registry{
		byChannel: make(map[string]map[*Connection]struct{}),
		members:   members,
		log:       log,
	}
}

// Register binds conn to (userID, ch) and starts tracking it.
// A connection without a valid identity is rejected with ErrUnauthorized.
// Registering for a room the user is not a member of fails with
// ErrNotAMember; a notification channel may only be opened by its owner.
func (r *Registry) Register(conn Conn, userID string, ch domain.Channel) (*Connection, error) {
	if userID == "" {
		return nil, errors.ErrUnauthorized
	}

	switch ch.Kind {
	case domain.KindRoom:
		member, err := r.members.IsMember(ch.Room, userID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, errors.ErrNotAMember
		}
	case domain.KindNotifications:
		if ch.User != userID {
			return nil, errors.ErrUnauthorized
		}
	}

	connection := &Connection{
		ID:      uuid.NewString(),
		UserID:  userID,
		Channel: ch,
		conn:    conn,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	key := ch.Key()
	if _, ok := r.byChannel[key]; !ok {
		r.byChannel[key] = make(map[*Connection]struct{})
	}
	r.byChannel[key][connection] = struct{}{}
	r.log.Debug("connection registered", "user_id", userID, "channel", key)
	return connection, nil
}

// Unregister removes the connection. Safe to call more than once and
// on a connection that was already torn down: a publish racing against
// the close simply no-ops.
func (r *Registry) Unregister(c *Connection) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := c.Channel.Key()
	if conns, ok := r.byChannel[key]; ok {
		delete(conns, c)
		// No empty sets left behind to avoid leaking channel entries
		if len(conns) == 0 {
			delete(r.byChannel, key)
		}
	}
}

// ActiveConnections counts live connections across all channels.
func (r *Registry) ActiveConnections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, conns := range r.byChannel {
		total += len(conns)
	}
	return total
}

// ConnectionsFor returns a snapshot of the connections bound to ch.
// The snapshot is safe to fan out to while registrations continue.
func (r *Registry) ConnectionsFor(ch domain.Channel) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns, ok := r.byChannel[ch.Key()]
	if !ok {
		return nil
	}
	snapshot := make([]*Connection, 0, len(conns))
	for c := range conns {
		snapshot = append(snapshot, c)
	}
	return snapshot
}
