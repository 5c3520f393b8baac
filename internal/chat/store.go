// Package chat implements the conversation turn pipeline: recording a turn,
// assembling history, generating a reply and titling new conversations.
package chat

import (
	"context"

	"github.com/raphaelgruber/convo-go/internal/models"
)

// Store persists conversations and their messages. It is pure data access.
//
// GetConversation returns (nil, nil) when the conversation does not exist.
// ListConversations orders by last update, most recent first.
// ListMessages orders ascending by creation time, the canonical history order.
// AppendMessage inserts the message and then bumps the owning conversation's
// updated_at and message_count; the two writes are issued in that order.
type Store interface {
	CreateConversation(ctx context.Context, title string) (*models.Conversation, error)
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	AppendMessage(ctx context.Context, in models.MessageInput) (*models.Message, error)
	RenameConversation(ctx context.Context, id, title string) (bool, error)
	DeleteConversation(ctx context.Context, id string) (bool, error)
}

// ResponseGenerator produces a reply from an ordered history and an optional image path.
type ResponseGenerator interface {
	Generate(ctx context.Context, history []models.Message, imagePath string) (string, error)
}

// TitleDeriver produces a short conversation title from the first exchange.
type TitleDeriver interface {
	DeriveTitle(ctx context.Context, userText, replyText string) (string, error)
}
