package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidMessage is returned when a message fails validation before being written.
var ErrInvalidMessage = errors.New("invalid message")

// MessageInput is the input structure for appending a message.
type MessageInput struct {
	ConversationID string      `json:"conversation_id"`
	Role           Role        `json:"role"`
	Content        string      `json:"content"`
	ModelContent   *string     `json:"model_content,omitempty"`
	File           *FileInfo   `json:"file,omitempty"`
	References     []Reference `json:"references,omitempty"`
}

// Validate checks the input shape before it reaches the store.
func (in MessageInput) Validate() error {
	if strings.TrimSpace(in.ConversationID) == "" {
		return fmt.Errorf("%w: conversation id is required", ErrInvalidMessage)
	}
	if !in.Role.Valid() {
		return fmt.Errorf("%w: role %q", ErrInvalidMessage, in.Role)
	}
	if in.File != nil {
		if in.File.Filename == "" {
			return fmt.Errorf("%w: file name is required", ErrInvalidMessage)
		}
		if in.File.Size < 0 {
			return fmt.Errorf("%w: negative file size", ErrInvalidMessage)
		}
	}
	for i, ref := range in.References {
		if ref.URL == "" {
			return fmt.Errorf("%w: reference %d has no url", ErrInvalidMessage, i)
		}
	}
	return nil
}
