// Package event defines the events flowing through the channel router
// and their JSON wire framing (one object per frame, UTF-8 text).
package event

import (
	"chat-relay/domain"
)

// Frame types on the wire.
const (
	TypeMessage         = "message"
	TypeMembershipDelta = "membership_delta"
	TypeNotification    = "notification"
)

// Notification kinds.
const (
	KindFriendRequestReceived = "friend_request_received"
	KindFriendRequestResolved = "friend_request_resolved"
	KindRoomInvite            = "room_invite"
)

type DomainEvent interface {
	FrameType() string
}

// MessagePosted carries a server-confirmed message to every
// connection bound to its channel.
type MessagePosted struct {
	Message domain.Message
}

func (MessagePosted) FrameType() string { return TypeMessage }

// MembershipDelta announces members added to a room. Deltas are
// additive only, mirroring the room model.
type MembershipDelta struct {
	RoomID    domain.RoomID `json:"room_id"`
	RoomName  string        `json:"room_name"`
	AddedIDs  []string      `json:"added_ids"`
	MemberIDs []string      `json:"member_ids"`
}

func (MembershipDelta) FrameType() string { return TypeMembershipDelta }

// Notification is a fire-and-forget event for a single user.
// It is not persisted: if the recipient has no open notification
// connection, the event is dropped.
type Notification struct {
	Kind        string         `json:"kind"`
	RecipientID string         `json:"recipient_id"`
	Payload     map[string]any `json:"payload,omitempty"`
}

func (Notification) FrameType() string { return TypeNotification }
