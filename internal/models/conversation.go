package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// DefaultConversationTitle is the title given to conversations created without one.
const DefaultConversationTitle = "New Chat"

// Table names used for record IDs.
const (
	ConversationTable = "conversation"
	MessageTable      = "message"
)

// Conversation represents a persistent chat session.
type Conversation struct {
	ID           surrealmodels.RecordID `json:"id"`
	Title        string                 `json:"title"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	MessageCount int                    `json:"message_count"`
}

// Message represents a single chat message within a conversation.
// Messages are immutable once stored.
type Message struct {
	ID           surrealmodels.RecordID `json:"id"`
	Conversation surrealmodels.RecordID `json:"conversation"`
	Role         Role                   `json:"role"`
	Content      string                 `json:"content"`
	ModelContent *string                `json:"model_content,omitempty"` // Augmented text seen by the model
	File         *FileInfo              `json:"file,omitempty"`
	References   []Reference            `json:"references,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// ModelText returns the text the response generator should see for this message.
func (m Message) ModelText() string {
	if m.ModelContent != nil && *m.ModelContent != "" {
		return *m.ModelContent
	}
	return m.Content
}

// FileInfo describes a file attached to a message.
type FileInfo struct {
	Filename string `json:"filename"`
	Type     string `json:"type"` // Media type reported by the client
	URL      string `json:"url"`  // Public location, e.g. /uploads/<name>
	Size     int64  `json:"size"`
}

// Reference is a citation attached to a message.
type Reference struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// NewConversationID returns the record ID for a conversation key.
func NewConversationID(id string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID(ConversationTable, id)
}

// NewMessageID returns the record ID for a message key.
func NewMessageID(id string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID(MessageTable, id)
}
