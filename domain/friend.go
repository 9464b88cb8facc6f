package domain

// RequestState is the lifecycle state of a FriendRequest.
// Pending is the only non-terminal state.
type RequestState string

const (
	StatePending  RequestState = "pending"
	StateAccepted RequestState = "accepted"
	StateDeclined RequestState = "declined"
)

// Decision is the recipient's answer to a pending request.
type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionDecline Decision = "decline"
)

// FriendRequest links two users. At most one pending request may
// exist per unordered user pair at any time.
type FriendRequest struct {
	ID       string       `json:"id"`
	FromUser string       `json:"from_user"`
	ToUser   string       `json:"to_user"`
	State    RequestState `json:"state"`
}
