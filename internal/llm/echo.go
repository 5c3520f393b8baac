package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// EchoModel is an offline llms.Model for development: it replies by echoing
// the last human message and titles with its first words.
type EchoModel struct{}

var _ llms.Model = EchoModel{}

// NewEchoModel returns the offline model.
func NewEchoModel() EchoModel {
	return EchoModel{}
}

func (EchoModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	var last string
	images := 0
	for _, msg := range messages {
		if msg.Role != llms.ChatMessageTypeHuman {
			continue
		}
		var text []string
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llms.TextContent:
				text = append(text, p.Text)
			case llms.BinaryContent:
				images++
			}
		}
		last = strings.Join(text, " ")
	}

	// Title requests carry the exchange after a "User message:" header
	if _, rest, ok := strings.Cut(last, "User message:\n"); ok {
		first, _, _ := strings.Cut(rest, "\n")
		words := strings.Fields(first)
		if len(words) > 6 {
			words = words[:6]
		}
		return response(strings.Join(words, " ")), nil
	}

	reply := "You said: " + last
	if images > 0 {
		reply += fmt.Sprintf(" (with %d image)", images)
	}
	return response(reply), nil
}

func (m EchoModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func response(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content: text,
			GenerationInfo: map[string]any{
				"PromptTokens":     0,
				"CompletionTokens": len(strings.Fields(text)),
			},
		}},
	}
}
