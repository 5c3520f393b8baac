package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/raphaelgruber/convo-go/internal/metrics"
	"github.com/raphaelgruber/convo-go/internal/models"
)

func TestIsFatalAPIError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil error", nil, false},
		{"generic error", errors.New("connection reset"), false},
		{"credit balance", errors.New("insufficient credit balance"), true},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"quota exceeded", errors.New("quota exceeded for model"), true},
		{"billing issue", errors.New("billing account inactive"), true},
		{"invalid api key", errors.New("invalid api key"), true},
		{"authentication failed", errors.New("authentication failed"), true},
		{"unauthorized", errors.New("unauthorized request"), true},
		{"401 status", errors.New("HTTP 401: not allowed"), true},
		{"403 status", errors.New("HTTP 403: forbidden"), true},
		{"wrapped error", fmt.Errorf("embed: %w", errors.New("credit balance too low")), true},
		{"404 not fatal", errors.New("HTTP 404: not found"), false},
		{"timeout not fatal", errors.New("context deadline exceeded"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isFatalAPIError(tt.err)
			if got != tt.fatal {
				t.Errorf("isFatalAPIError(%v) = %v, want %v", tt.err, got, tt.fatal)
			}
		})
	}
}

func TestWrapFatalError(t *testing.T) {
	t.Run("wraps fatal error", func(t *testing.T) {
		err := errors.New("invalid api key provided")
		wrapped := wrapFatalError(err)
		if !errors.Is(wrapped, ErrFatalAPI) {
			t.Errorf("expected wrapped error to match ErrFatalAPI")
		}
	})

	t.Run("passes through non-fatal error", func(t *testing.T) {
		err := errors.New("network timeout")
		result := wrapFatalError(err)
		if errors.Is(result, ErrFatalAPI) {
			t.Errorf("non-fatal error should not be wrapped with ErrFatalAPI")
		}
		if result != err {
			t.Errorf("expected original error returned, got %v", result)
		}
	})

	t.Run("nil error", func(t *testing.T) {
		result := wrapFatalError(nil)
		if result != nil {
			t.Errorf("expected nil, got %v", result)
		}
	})
}

// recordingModel captures the messages it is asked to complete.
type recordingModel struct {
	reply    string
	info     map[string]any
	err      error
	messages []llms.MessageContent
}

func (r *recordingModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	r.messages = messages
	if r.err != nil {
		return nil, r.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: r.reply, GenerationInfo: r.info}}}, nil
}

func (r *recordingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, r, prompt, options...)
}

func TestGenerateMapsRoles(t *testing.T) {
	rec := &recordingModel{reply: "sure", info: map[string]any{"PromptTokens": 12, "CompletionTokens": 3}}
	collector := metrics.NewCollector()
	m := New(rec, nil, "test-model", collector, nil)

	history := []models.Message{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
		{Role: models.RoleUser, Content: "search this"},
		{Role: models.RoleSystem, Content: "results"},
	}
	reply, err := m.Generate(context.Background(), history, "")
	require.NoError(t, err)
	assert.Equal(t, "sure", reply)

	require.Len(t, rec.messages, 5)
	wantRoles := []llms.ChatMessageType{
		llms.ChatMessageTypeSystem,
		llms.ChatMessageTypeHuman,
		llms.ChatMessageTypeAI,
		llms.ChatMessageTypeHuman,
		llms.ChatMessageTypeSystem,
	}
	for i, want := range wantRoles {
		assert.Equal(t, want, rec.messages[i].Role, "message %d", i)
	}
	assert.Equal(t, llms.TextContent{Text: "results"}, rec.messages[4].Parts[0])

	snap := collector.Snapshot().LLMGenerate
	require.NotNil(t, snap)
	require.NotNil(t, snap.TotalInputTokens)
	assert.Equal(t, int64(12), *snap.TotalInputTokens)
	assert.Equal(t, int64(3), *snap.TotalOutputTokens)
}

func TestGenerateAttachesImageToLastUserMessage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cat.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\nfake"), 0o644))

	rec := &recordingModel{reply: "a cat"}
	m := New(rec, nil, "vision", nil, nil)

	history := []models.Message{
		{Role: models.RoleUser, Content: "what is this?"},
		{Role: models.RoleSystem, Content: "ctx"},
	}
	_, err := m.Generate(context.Background(), history, path)
	require.NoError(t, err)

	user := rec.messages[1]
	require.Len(t, user.Parts, 2)
	img, ok := user.Parts[1].(llms.BinaryContent)
	require.True(t, ok)
	assert.Equal(t, "image/png", img.MIMEType)

	_, err = m.Generate(context.Background(), history, filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}

func TestGenerateWrapsFatalErrors(t *testing.T) {
	collector := metrics.NewCollector()
	m := New(&recordingModel{err: errors.New("HTTP 401: invalid api key")}, nil, "x", collector, nil)

	_, err := m.Generate(context.Background(), []models.Message{{Role: models.RoleUser, Content: "hi"}}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFatalAPI)
	assert.Equal(t, int64(1), collector.Snapshot().LLMGenerate.Failures)
}

func TestDeriveTitleUsesTitleModel(t *testing.T) {
	main := &recordingModel{reply: "unused"}
	titler := &recordingModel{reply: "\"Planning a Trip to Japan.\"\nExtra line"}
	m := New(main, titler, "x", nil, nil)

	title, err := m.DeriveTitle(context.Background(), "help me plan Japan", "Sure, here's a plan")
	require.NoError(t, err)
	assert.Equal(t, "Planning a Trip to Japan", title)
	assert.Nil(t, main.messages)
	require.Len(t, titler.messages, 2)

	empty := New(&recordingModel{reply: "  \"\" "}, nil, "x", nil, nil)
	_, err = empty.DeriveTitle(context.Background(), "a", "b")
	assert.Error(t, err)
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Trip Planning", "Trip Planning"},
		{"  \"Trip Planning\"  ", "Trip Planning"},
		{"Title: Go Generics", "Go Generics"},
		{"**Bold Title**", "Bold Title"},
		{"Question?", "Question"},
		{"first\nsecond", "first"},
		{strings.Repeat("a", 80), strings.Repeat("a", 60)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanTitle(tt.in), "CleanTitle(%q)", tt.in)
	}
}

func TestEchoModel(t *testing.T) {
	m := New(NewEchoModel(), nil, "echo", nil, nil)

	reply, err := m.Generate(context.Background(), []models.Message{{Role: models.RoleUser, Content: "ping"}}, "")
	require.NoError(t, err)
	assert.Equal(t, "You said: ping", reply)

	title, err := m.DeriveTitle(context.Background(), "tell me about the history of Rome please", "ok")
	require.NoError(t, err)
	assert.Equal(t, "tell me about the history of", title)
}

func TestTokenUsage(t *testing.T) {
	in, out := tokenUsage(map[string]any{"InputTokens": 5, "OutputTokens": int64(7)})
	assert.Equal(t, int64(5), in)
	assert.Equal(t, int64(7), out)

	in, out = tokenUsage(nil)
	assert.Zero(t, in)
	assert.Zero(t, out)
}
