package domain

import "slices"

type RoomID string

// Room is a private multi-party conversation. Membership only grows:
// members are added through accepted invites, never removed.
// The creator is always a member.
type Room struct {
	ID        RoomID   `json:"id"`
	Name      string   `json:"name"`
	CreatedBy string   `json:"created_by"`
	MemberIDs []string `json:"member_ids"`
}

func (r Room) IsMember(userID string) bool {
	return slices.Contains(r.MemberIDs, userID)
}
