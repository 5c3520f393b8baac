package chat

import (
	"context"

	"github.com/raphaelgruber/convo-go/internal/models"
)

// HistoryAssembler produces the ordered messages handed to the response generator.
type HistoryAssembler interface {
	Assemble(ctx context.Context, conversationID string) ([]models.Message, error)
}

// StoreAssembler returns the store's canonical message order.
// MaxMessages > 0 keeps only the most recent messages; 0 means full history.
type StoreAssembler struct {
	Store       Store
	MaxMessages int
}

// Assemble implements HistoryAssembler.
func (a StoreAssembler) Assemble(ctx context.Context, conversationID string) ([]models.Message, error) {
	messages, err := a.Store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if a.MaxMessages > 0 && len(messages) > a.MaxMessages {
		messages = messages[len(messages)-a.MaxMessages:]
	}
	return messages, nil
}

// Truncates reports whether Assemble may drop older messages.
func (a StoreAssembler) Truncates() bool {
	return a.MaxMessages > 0
}

// truncating is implemented by assemblers that may return a partial history.
type truncating interface {
	Truncates() bool
}

// ModelView maps stored messages to what the generator sees: augmented text
// replaces the display text where one was recorded.
func ModelView(history []models.Message) []models.Message {
	out := make([]models.Message, len(history))
	for i, m := range history {
		m.Content = m.ModelText()
		m.ModelContent = nil
		out[i] = m
	}
	return out
}

func hasRole(history []models.Message, role models.Role) bool {
	for _, m := range history {
		if m.Role == role {
			return true
		}
	}
	return false
}
