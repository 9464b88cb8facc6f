// Package domain contains core concepts of the messaging layer.
// This file defines the Channel variants and their wire keys.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"fmt"
	"strings"
)

type ChannelKind int

const (
	KindGlobal ChannelKind = iota
	KindRoom
	KindNotifications
)

// Channel is a logical, independently ordered event stream.
// Exactly one variant applies: the global room, one private room,
// or one user's notification stream.
type Channel struct {
	Kind ChannelKind
	Room RoomID // set when Kind == KindRoom
	User string // set when Kind == KindNotifications
}

func Global() Channel {
	return Channel{Kind: KindGlobal}
}

func RoomChannel(id RoomID) Channel {
	return Channel{Kind: KindRoom, Room: id}
}

func Notifications(userID string) Channel {
	return Channel{Kind: KindNotifications, User: userID}
}

// Key returns the stable identifier used on the wire and as a storage prefix.
func (c Channel) Key() string {
	switch c.Kind {
	case KindRoom:
		return "room:" + string(c.Room)
	case KindNotifications:
		return "notif:" + c.User
	default:
		return "global"
	}
}

func (c Channel) String() string { return c.Key() }

// ParseChannel is the inverse of Key.
func ParseChannel(key string) (Channel, error) {
	switch {
	case key == "global":
		return Global(), nil
	case strings.HasPrefix(key, "room:") && len(key) > len("room:"):
		return RoomChannel(RoomID(strings.TrimPrefix(key, "room:"))), nil
	case strings.HasPrefix(key, "notif:") && len(key) > len("notif:"):
		return Notifications(strings.TrimPrefix(key, "notif:")), nil
	default:
		return Channel{}, fmt.Errorf("unknown channel key %q", key)
	}
}
