// Package memory provides an in-process conversation store for development and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/convo-go/internal/chat"
	"github.com/raphaelgruber/convo-go/internal/models"
)

var _ chat.Store = (*Store)(nil)

// ErrConversationNotFound is returned when appending to a missing conversation.
var ErrConversationNotFound = errors.New("conversation not found")

// Store keeps conversations and messages in memory. Safe for concurrent use.
type Store struct {
	mu            sync.RWMutex
	defaultTitle  string
	conversations map[string]*models.Conversation
	messages      map[string][]models.Message
	now           func() time.Time
}

// New creates an empty store. An empty defaultTitle falls back to models.DefaultConversationTitle.
func New(defaultTitle string) *Store {
	if defaultTitle == "" {
		defaultTitle = models.DefaultConversationTitle
	}
	return &Store{
		defaultTitle:  defaultTitle,
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]models.Message),
		now:           time.Now,
	}
}

func (s *Store) CreateConversation(_ context.Context, title string) (*models.Conversation, error) {
	if title == "" {
		title = s.defaultTitle
	}
	now := s.now().UTC()
	conv := &models.Conversation{
		ID:        models.NewConversationID(uuid.NewString()),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[models.MustRecordIDString(conv.ID)] = conv

	out := *conv
	return &out, nil
}

func (s *Store) ListConversations(_ context.Context) ([]models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b models.Conversation) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (s *Store) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

func (s *Store) ListMessages(_ context.Context, conversationID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.messages[conversationID]), nil
}

// AppendMessage stores the message and then updates the conversation counters.
// Timestamps never go backwards within a conversation.
func (s *Store) AppendMessage(_ context.Context, in models.MessageInput) (*models.Message, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[in.ConversationID]
	if !ok {
		return nil, fmt.Errorf("append message: %w: %s", ErrConversationNotFound, in.ConversationID)
	}

	now := s.now().UTC()
	if existing := s.messages[in.ConversationID]; len(existing) > 0 {
		if last := existing[len(existing)-1].CreatedAt; now.Before(last) {
			now = last
		}
	}

	msg := models.Message{
		ID:           models.NewMessageID(uuid.NewString()),
		Conversation: conv.ID,
		Role:         in.Role,
		Content:      in.Content,
		ModelContent: in.ModelContent,
		File:         in.File,
		References:   slices.Clone(in.References),
		CreatedAt:    now,
	}
	s.messages[in.ConversationID] = append(s.messages[in.ConversationID], msg)

	conv.UpdatedAt = now
	conv.MessageCount++

	return &msg, nil
}

// RenameConversation is a no-op when the title is unchanged.
func (s *Store) RenameConversation(_ context.Context, id, title string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok {
		return false, nil
	}
	if c.Title != title {
		c.Title = title
		c.UpdatedAt = s.now().UTC()
	}
	return true, nil
}

func (s *Store) DeleteConversation(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.messages, id)
	if _, ok := s.conversations[id]; !ok {
		return false, nil
	}
	delete(s.conversations, id)
	return true, nil
}
