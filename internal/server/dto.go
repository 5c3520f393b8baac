package server

import (
	"time"

	"github.com/raphaelgruber/convo-go/internal/models"
)

// ChatResponse is the wire form of a conversation.
type ChatResponse struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// MessageResponse is the wire form of a message.
type MessageResponse struct {
	ID           string             `json:"id"`
	ChatID       string             `json:"chat_id"`
	Role         models.Role        `json:"role"`
	Content      string             `json:"content"`
	ModelContent *string            `json:"model_content,omitempty"`
	References   []models.Reference `json:"references,omitempty"`
	File         *models.FileInfo   `json:"file,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
}

// TurnResponse is returned by the message and upload endpoints.
type TurnResponse struct {
	ChatID   string          `json:"chat_id"`
	Message  MessageResponse `json:"message"`
	Response MessageResponse `json:"response"`
	Title    string          `json:"title,omitempty"`
}

type createChatRequest struct {
	Title string `json:"title"`
}

type renameChatRequest struct {
	Title string `json:"title" binding:"required"`
}

type sendMessageRequest struct {
	Content          string `json:"content"`
	OriginalContent  string `json:"original_content"`
	WebSearchResults string `json:"web_search_results"`
}

type webSearchRequest struct {
	Query string `json:"query"`
}

type ttsRequest struct {
	Text  string `json:"text" binding:"required"`
	Voice string `json:"voice"`
	Model string `json:"model"`
}

func toChatResponse(c models.Conversation) ChatResponse {
	return ChatResponse{
		ID:           models.IDString(c.ID),
		Title:        c.Title,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		MessageCount: c.MessageCount,
	}
}

func toChatResponses(convs []models.Conversation) []ChatResponse {
	out := make([]ChatResponse, 0, len(convs))
	for _, c := range convs {
		out = append(out, toChatResponse(c))
	}
	return out
}

func toMessageResponse(m models.Message) MessageResponse {
	return MessageResponse{
		ID:           models.IDString(m.ID),
		ChatID:       models.IDString(m.Conversation),
		Role:         m.Role,
		Content:      m.Content,
		ModelContent: m.ModelContent,
		References:   m.References,
		File:         m.File,
		Timestamp:    m.CreatedAt,
	}
}

func toMessageResponses(msgs []models.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return out
}
