package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/convo-go/internal/chat"
	"github.com/raphaelgruber/convo-go/internal/metrics"
	"github.com/raphaelgruber/convo-go/internal/models"
)

var _ chat.Store = (*Client)(nil)

// messageRecord is the stored shape of a message row.
type messageRecord struct {
	ID           surrealmodels.RecordID `json:"id"`
	Conversation surrealmodels.RecordID `json:"conversation"`
	Role         models.Role            `json:"role"`
	Content      string                 `json:"content"`
	ModelContent *string                `json:"model_content,omitempty"`
	File         *models.FileInfo       `json:"file,omitempty"`
	Citations    []models.Reference     `json:"citations,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

func (r messageRecord) toModel() models.Message {
	return models.Message{
		ID:           r.ID,
		Conversation: r.Conversation,
		Role:         r.Role,
		Content:      r.Content,
		ModelContent: r.ModelContent,
		File:         r.File,
		References:   r.Citations,
		CreatedAt:    r.CreatedAt,
	}
}

// fileVar returns nil for a missing attachment, like other optional fields.
func fileVar(f *models.FileInfo) any {
	if f == nil {
		return nil
	}
	return map[string]any{
		"filename": f.Filename,
		"type":     f.Type,
		"url":      f.URL,
		"size":     f.Size,
	}
}

func citationsVar(refs []models.Reference) []map[string]any {
	out := make([]map[string]any, 0, len(refs))
	for _, r := range refs {
		out = append(out, map[string]any{
			"title":   r.Title,
			"url":     r.URL,
			"snippet": r.Snippet,
		})
	}
	return out
}

// CreateConversation creates an empty conversation with a generated ID.
// An empty title falls back to the configured default.
func (c *Client) CreateConversation(ctx context.Context, title string) (*models.Conversation, error) {
	defer c.track(metrics.OpDBWrite, time.Now())

	if title == "" {
		title = c.cfg.DefaultTitle
	}
	now := c.now().UTC().Format(time.RFC3339Nano)

	results, err := surrealdb.Query[[]models.Conversation](ctx, c.db, `
		CREATE type::record("conversation", $id) SET
			title = $title,
			created_at = type::datetime($now),
			updated_at = type::datetime($now),
			message_count = 0
	`, map[string]any{
		"id":    uuid.NewString(),
		"title": title,
		"now":   now,
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create conversation: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// ListConversations returns all conversations, most recently updated first.
func (c *Client) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	defer c.track(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]models.Conversation](ctx, c.db, `
		SELECT * FROM conversation ORDER BY updated_at DESC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Conversation{}, nil
	}
	return (*results)[0].Result, nil
}

// GetConversation retrieves a conversation by ID.
// Returns nil if not found.
func (c *Client) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	defer c.track(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]models.Conversation](ctx, c.db, `
		SELECT * FROM type::record("conversation", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// ListMessages returns a conversation's messages in ascending creation order.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	defer c.track(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]messageRecord](ctx, c.db, `
		SELECT * FROM message
		WHERE conversation = type::record("conversation", $id)
		ORDER BY created_at ASC
	`, map[string]any{"id": conversationID})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Message{}, nil
	}
	records := (*results)[0].Result
	out := make([]models.Message, len(records))
	for i, r := range records {
		out[i] = r.toModel()
	}
	return out, nil
}

// AppendMessage inserts a message, then bumps the conversation's updated_at
// and message_count. The two writes run separately and in that order; a
// failure between them leaves the count one short. created_at is kept
// strictly after the conversation's latest message.
func (c *Client) AppendMessage(ctx context.Context, in models.MessageInput) (*models.Message, error) {
	defer c.track(metrics.OpDBWrite, time.Now())

	if err := in.Validate(); err != nil {
		return nil, err
	}

	last, err := surrealdb.Query[[]time.Time](ctx, c.db, `
		SELECT VALUE created_at FROM message
		WHERE conversation = type::record("conversation", $conversation)
		ORDER BY created_at DESC
		LIMIT 1
	`, map[string]any{"conversation": in.ConversationID})
	if err != nil {
		return nil, fmt.Errorf("load last message time: %w", wrapQueryError(err))
	}
	var lastAt time.Time
	if last != nil && len(*last) > 0 && len((*last)[0].Result) > 0 {
		lastAt = (*last)[0].Result[0]
	}
	now := nextMessageTime(c.now(), lastAt).Format(time.RFC3339Nano)

	results, err := surrealdb.Query[[]messageRecord](ctx, c.db, `
		CREATE type::record("message", $id) SET
			conversation = type::record("conversation", $conversation),
			role = $role,
			content = $content,
			model_content = $model_content,
			file = $file,
			citations = $citations,
			created_at = type::datetime($now)
	`, map[string]any{
		"id":            uuid.NewString(),
		"conversation":  in.ConversationID,
		"role":          string(in.Role),
		"content":       in.Content,
		"model_content": in.ModelContent,
		"file":          fileVar(in.File),
		"citations":     citationsVar(in.References),
		"now":           now,
	})
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("insert message: no result returned")
	}
	msg := (*results)[0].Result[0].toModel()

	updated, err := surrealdb.Query[[]models.Conversation](ctx, c.db, `
		UPDATE type::record("conversation", $conversation) SET
			updated_at = type::datetime($now),
			message_count += 1
	`, map[string]any{
		"conversation": in.ConversationID,
		"now":          now,
	})
	if err != nil {
		return nil, fmt.Errorf("update conversation counters: %w", wrapQueryError(err))
	}
	if updated == nil || len(*updated) == 0 || len((*updated)[0].Result) == 0 {
		return nil, fmt.Errorf("update conversation counters: %w: %s", ErrNotFound, in.ConversationID)
	}

	return &msg, nil
}

// messageTimeStep separates messages that would otherwise share a timestamp.
const messageTimeStep = time.Microsecond

// nextMessageTime returns now, moved strictly after last when the clock is
// behind or equal to it, so created_at order matches append order.
func nextMessageTime(now, last time.Time) time.Time {
	now = now.UTC()
	if !last.IsZero() && !now.After(last) {
		return last.UTC().Add(messageTimeStep)
	}
	return now
}

// RenameConversation sets the title. updated_at only moves when the title changes.
// Returns false if the conversation does not exist.
func (c *Client) RenameConversation(ctx context.Context, id, title string) (bool, error) {
	defer c.track(metrics.OpDBWrite, time.Now())

	results, err := surrealdb.Query[[]models.Conversation](ctx, c.db, `
		UPDATE type::record("conversation", $id) SET
			updated_at = IF title != $title THEN type::datetime($now) ELSE updated_at END,
			title = $title
	`, map[string]any{
		"id":    id,
		"title": title,
		"now":   c.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return false, fmt.Errorf("rename conversation: %w", wrapQueryError(err))
	}

	return results != nil && len(*results) > 0 && len((*results)[0].Result) > 0, nil
}

// DeleteConversation removes all messages of a conversation, then the conversation.
// Returns false if the conversation did not exist.
func (c *Client) DeleteConversation(ctx context.Context, id string) (bool, error) {
	defer c.track(metrics.OpDBWrite, time.Now())

	_, err := surrealdb.Query[any](ctx, c.db, `
		DELETE message WHERE conversation = type::record("conversation", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return false, fmt.Errorf("delete messages: %w", wrapQueryError(err))
	}

	// RETURN BEFORE returns the deleted record, empty if it never existed
	results, err := surrealdb.Query[[]models.Conversation](ctx, c.db, `
		DELETE type::record("conversation", $id) RETURN BEFORE
	`, map[string]any{"id": id})
	if err != nil {
		return false, fmt.Errorf("delete conversation: %w", wrapQueryError(err))
	}

	return results != nil && len(*results) > 0 && len((*results)[0].Result) > 0, nil
}
