package models

// Role tells who authored a chat record.
type Role int16

const (
	RoleUser      Role = 0
	RoleAssistant Role = 1
)

// String returns the upstream message role name.
func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	default:
		return "unknown"
	}
}

// ChatRecord is one utterance within a conversation. CreatedAt is unix
// milliseconds; records are immutable once written.
type ChatRecord struct {
	ID             int64
	UserID         string
	ConversationID int64
	Content        string
	Role           Role
	CreatedAt      int64
}
