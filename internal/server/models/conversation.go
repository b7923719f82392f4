package models

// Conversation groups the chat records of one thread. CreatedAt is unix
// milliseconds.
type Conversation struct {
	ID         int64
	Identifier string
	UserID     string
	CreatedAt  int64
}
