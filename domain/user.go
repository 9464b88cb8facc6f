package domain

// User identifies an account. ID is stable and unique,
// Username is unique and human-chosen.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}
