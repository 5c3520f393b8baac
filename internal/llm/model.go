// Package llm generates chat replies and conversation titles using langchaingo.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/raphaelgruber/convo-go/internal/chat"
	"github.com/raphaelgruber/convo-go/internal/config"
	"github.com/raphaelgruber/convo-go/internal/metrics"
	"github.com/raphaelgruber/convo-go/internal/models"
)

// Supported providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAzure     = "azure"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderBedrock   = "bedrock"
	ProviderMock      = "mock"
)

var (
	_ chat.ResponseGenerator = (*Model)(nil)
	_ chat.TitleDeriver      = (*Model)(nil)
)

// Model wraps langchaingo models for reply generation and titling.
type Model struct {
	llm          llms.Model
	titleLLM     llms.Model
	modelName    string
	systemPrompt string
	metrics      *metrics.Collector
	logger       *slog.Logger
}

// NewModel creates the reply and title models based on configuration.
// The title model defaults to the reply model.
func NewModel(ctx context.Context, cfg config.Config, collector *metrics.Collector, logger *slog.Logger) (*Model, error) {
	model, err := newProviderModel(ctx, cfg, cfg.LLMModel)
	if err != nil {
		return nil, err
	}

	titleModel := model
	if cfg.TitleModel != "" && cfg.TitleModel != cfg.LLMModel {
		titleModel, err = newProviderModel(ctx, cfg, cfg.TitleModel)
		if err != nil {
			return nil, fmt.Errorf("title model: %w", err)
		}
	}

	return New(model, titleModel, cfg.LLMModel, collector, logger), nil
}

// New wraps already constructed langchaingo models.
func New(model, titleModel llms.Model, modelName string, collector *metrics.Collector, logger *slog.Logger) *Model {
	if titleModel == nil {
		titleModel = model
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{
		llm:          model,
		titleLLM:     titleModel,
		modelName:    modelName,
		systemPrompt: DefaultSystemPrompt,
		metrics:      collector,
		logger:       logger,
	}
}

func newProviderModel(ctx context.Context, cfg config.Config, modelName string) (llms.Model, error) {
	switch cfg.LLMProvider {
	case ProviderOllama:
		model, err := ollama.New(
			ollama.WithModel(modelName),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}
		return model, nil

	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err := openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
		return model, nil

	case ProviderAzure:
		az := cfg.AzureOpenAI
		if az.APIKey == "" || az.Endpoint == "" {
			return nil, fmt.Errorf("Azure OpenAI API key and endpoint required")
		}
		// Azure addresses models by deployment name
		deployment := az.Deployment
		if modelName != cfg.LLMModel {
			deployment = modelName
		}
		model, err := openai.New(
			openai.WithToken(az.APIKey),
			openai.WithBaseURL(az.Endpoint),
			openai.WithAPIType(openai.APITypeAzure),
			openai.WithAPIVersion(az.APIVersion),
			openai.WithModel(deployment),
		)
		if err != nil {
			return nil, fmt.Errorf("create azure openai model: %w", err)
		}
		return model, nil

	case ProviderAnthropic:
		if cfg.AnthropicKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err := anthropic.New(
			anthropic.WithToken(cfg.AnthropicKey),
			anthropic.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}
		return model, nil

	case ProviderBedrock:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		model, err := bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}
		return model, nil

	case ProviderMock:
		return NewEchoModel(), nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}
}

// Generate produces a reply to the conversation history. When imagePath is
// set, the image is attached to the last user message.
func (m *Model) Generate(ctx context.Context, history []models.Message, imagePath string) (string, error) {
	messages, err := m.buildMessages(history, imagePath)
	if err != nil {
		return "", err
	}

	start := time.Now()
	response, err := m.llm.GenerateContent(ctx, messages)
	duration := time.Since(start)
	if err != nil {
		m.metrics.RecordFailure(metrics.OpLLMGenerate)
		m.logger.WarnContext(ctx, "generation failed", "model", m.modelName, "duration_ms", duration.Milliseconds(), "error", err)
		return "", fmt.Errorf("generate: %w", wrapFatalError(err))
	}
	if len(response.Choices) == 0 {
		m.metrics.RecordFailure(metrics.OpLLMGenerate)
		return "", fmt.Errorf("no response choices")
	}

	choice := response.Choices[0]
	in, out := tokenUsage(choice.GenerationInfo)
	m.metrics.RecordLLMUsage(metrics.OpLLMGenerate, duration, in, out)
	m.logger.DebugContext(ctx, "generation complete",
		"model", m.modelName,
		"messages", len(messages),
		"duration_ms", duration.Milliseconds(),
		"input_tokens", in,
		"output_tokens", out,
	)
	return choice.Content, nil
}

// DeriveTitle asks the title model for a short conversation title.
func (m *Model) DeriveTitle(ctx context.Context, userText, replyText string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, titleSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, titleUserPrompt(userText, replyText)),
	}

	start := time.Now()
	response, err := m.titleLLM.GenerateContent(ctx, messages, llms.WithMaxTokens(24), llms.WithTemperature(0.3))
	duration := time.Since(start)
	if err != nil {
		m.metrics.RecordFailure(metrics.OpLLMTitle)
		return "", fmt.Errorf("derive title: %w", wrapFatalError(err))
	}
	if len(response.Choices) == 0 {
		m.metrics.RecordFailure(metrics.OpLLMTitle)
		return "", fmt.Errorf("no response choices")
	}

	in, out := tokenUsage(response.Choices[0].GenerationInfo)
	m.metrics.RecordLLMUsage(metrics.OpLLMTitle, duration, in, out)

	title := CleanTitle(response.Choices[0].Content)
	if title == "" {
		return "", fmt.Errorf("derive title: empty title")
	}
	return title, nil
}

// Model returns the reply model name.
func (m *Model) Model() string {
	return m.modelName
}

// buildMessages maps stored history to langchaingo messages, prefixed by the system prompt.
func (m *Model) buildMessages(history []models.Message, imagePath string) ([]llms.MessageContent, error) {
	messages := make([]llms.MessageContent, 0, len(history)+1)
	if m.systemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, m.systemPrompt))
	}

	lastUser := -1
	for _, msg := range history {
		switch msg.Role {
		case models.RoleUser:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, msg.Content))
			lastUser = len(messages) - 1
		case models.RoleAssistant:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeAI, msg.Content))
		case models.RoleSystem:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, msg.Content))
		}
	}

	if imagePath != "" {
		if lastUser < 0 {
			return nil, fmt.Errorf("image attached without a user message")
		}
		part, err := imagePart(imagePath)
		if err != nil {
			return nil, err
		}
		messages[lastUser].Parts = append(messages[lastUser].Parts, part)
	}

	return messages, nil
}

func imagePart(path string) (llms.ContentPart, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return llms.BinaryPart(mimeType, data), nil
}

// tokenUsage reads token counts from provider generation info.
// Providers name the fields differently.
func tokenUsage(info map[string]any) (int64, int64) {
	return firstInt(info, "PromptTokens", "InputTokens", "input_tokens", "prompt_tokens"),
		firstInt(info, "CompletionTokens", "OutputTokens", "output_tokens", "completion_tokens")
}

func firstInt(info map[string]any, keys ...string) int64 {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return int64(v)
		case int32:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
	}
	return 0
}
