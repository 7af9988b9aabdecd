package domain

import "time"

// User is a registered account. Immutable after registration apart from
// bookkeeping timestamps.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Query is one persisted question/answer pair owned by a single user.
// Records are append-only; they are never mutated or deleted.
type Query struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Sources   []Source  `json:"sources,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Source points at the passage an answer was grounded on.
type Source struct {
	Label    string `json:"label"`
	Filename string `json:"filename"`
	Location string `json:"location,omitempty"`
	Snippet  string `json:"snippet"`
}

// Document is one unit of extracted text plus where it came from.
// Documents live only for the session that trained them.
type Document struct {
	Content  string `json:"content"`
	Source   string `json:"source"`
	Location string `json:"location,omitempty"`
}

// Transcript roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one transcript entry of the in-session conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
