package errors

import "fmt"

var (
	// Connection and identity
	ErrUnauthorized     = fmt.Errorf("missing or invalid identity")
	ErrConnectionClosed = fmt.Errorf("connection closed")
	ErrSlowConsumer     = fmt.Errorf("write timed out, consumer too slow")

	// Room mutations
	ErrNotAMember   = fmt.Errorf("user is not a member of the room")
	ErrRoomNotFound = fmt.Errorf("room not found")
	ErrInvalidName  = fmt.Errorf("room name is empty or blank")

	// Friend request lifecycle
	ErrDuplicateRequest = fmt.Errorf("a pending request already exists between these users")
	ErrSelfRequest      = fmt.Errorf("cannot send a friend request to yourself")
	ErrRequestNotFound  = fmt.Errorf("friend request not found")
	ErrNotPending       = fmt.Errorf("friend request is no longer pending")
	ErrForbidden        = fmt.Errorf("only the recipient may respond to a request")

	// Accounts
	ErrUserAlreadyExists  = fmt.Errorf("username already taken")
	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity requirements")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")

	// Supervision
	ErrWorkerPanic = fmt.Errorf("worker panic")
)
