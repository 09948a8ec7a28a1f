package models

import "time"

// Role identifies which side of the dialogue produced a ConversationEntry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationEntry is one immutable turn in a user's dialogue.
type ConversationEntry struct {
	ID        string    `json:"id" bson:"entry_id"`
	UserID    int64     `json:"user_id" bson:"user_id"`
	Role      Role      `json:"role" bson:"role"`
	Content   string    `json:"content" bson:"content"`
	MessageID *int      `json:"message_id,omitempty" bson:"message_id,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
