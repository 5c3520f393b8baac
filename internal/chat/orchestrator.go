package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/convo-go/internal/config"
	"github.com/raphaelgruber/convo-go/internal/metrics"
	"github.com/raphaelgruber/convo-go/internal/models"
)

// TurnInput is one incoming user turn.
type TurnInput struct {
	DisplayText string           // What the user typed; stored as message content
	ModelText   string           // Augmented text the model sees; empty means DisplayText
	ContextText string           // Side-channel context stored as a system message
	File        *models.FileInfo // Attachment descriptor for the user message
	ImagePath   string           // Local image for vision generation
}

// NewTurnInput builds a turn from the wire pair: content is what the model
// sees, original is the literal user input when content was augmented.
func NewTurnInput(content, original string) TurnInput {
	display := original
	if display == "" {
		display = content
	}
	return TurnInput{DisplayText: display, ModelText: content}
}

func (in TurnInput) modelText() string {
	if in.ModelText != "" {
		return in.ModelText
	}
	return in.DisplayText
}

// TurnResult holds the messages written by a completed turn.
type TurnResult struct {
	UserMessage      *models.Message
	ContextMessage   *models.Message // nil without side-channel context
	AssistantMessage *models.Message
	Title            string // Non-empty when the conversation was titled by this turn
}

// Options configures an Orchestrator.
type Options struct {
	History     HistoryAssembler // Defaults to the full store history
	TurnTimeout time.Duration    // 0 disables the turn deadline
	Metrics     *metrics.Collector
	Logger      *slog.Logger
}

// Orchestrator runs conversation turns. Turns on the same conversation are
// serialized; turns on different conversations run concurrently.
type Orchestrator struct {
	store     Store
	history   HistoryAssembler
	generator ResponseGenerator
	titler    TitleDeriver
	locks     *KeyedMutex
	timeout   time.Duration
	metrics   *metrics.Collector
	logger    *slog.Logger
	now       func() time.Time
}

// NewOrchestrator creates a turn orchestrator.
func NewOrchestrator(store Store, generator ResponseGenerator, titler TitleDeriver, opts Options) *Orchestrator {
	history := opts.History
	if history == nil {
		history = StoreAssembler{Store: store}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:     store,
		history:   history,
		generator: generator,
		titler:    titler,
		locks:     NewKeyedMutex(),
		timeout:   opts.TurnTimeout,
		metrics:   opts.Metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// ProcessTurn records the user turn, generates exactly one reply and records it.
// The first completed exchange of a conversation also derives its title.
//
// Errors before the reply is stored abort the turn; messages already written
// stay in place. Titling errors are logged and never returned.
func (o *Orchestrator) ProcessTurn(ctx context.Context, conversationID string, in TurnInput) (*TurnResult, error) {
	start := o.now()
	ctx = config.WithLogFields(ctx, config.LogFields{ConversationID: conversationID})

	result, err := o.processTurn(ctx, conversationID, in)
	if err != nil {
		o.metrics.RecordFailure(metrics.OpTurn)
		o.logger.ErrorContext(ctx, "turn failed", "error", err)
		return nil, err
	}

	o.metrics.RecordTiming(metrics.OpTurn, o.now().Sub(start))
	return result, nil
}

func (o *Orchestrator) processTurn(ctx context.Context, conversationID string, in TurnInput) (*TurnResult, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	unlock, err := o.locks.Lock(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("wait for conversation lock: %w", err)
	}
	defer unlock()

	// Validate
	conv, err := o.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: get conversation: %w", ErrStorage, err)
	}
	if conv == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, conversationID)
	}
	if strings.TrimSpace(in.DisplayText) == "" && strings.TrimSpace(in.ModelText) == "" && in.File == nil {
		return nil, fmt.Errorf("%w: empty message", ErrInvalidTurn)
	}

	// Persist user message
	userInput := models.MessageInput{
		ConversationID: conversationID,
		Role:           models.RoleUser,
		Content:        in.DisplayText,
		File:           in.File,
	}
	if mt := in.modelText(); mt != in.DisplayText {
		userInput.ModelContent = &mt
	}
	userMsg, err := o.store.AppendMessage(ctx, userInput)
	if err != nil {
		return nil, fmt.Errorf("%w: append user message: %w", ErrStorage, err)
	}
	result := &TurnResult{UserMessage: userMsg}

	// Side-channel context
	if strings.TrimSpace(in.ContextText) != "" {
		ctxMsg, err := o.store.AppendMessage(ctx, models.MessageInput{
			ConversationID: conversationID,
			Role:           models.RoleSystem,
			Content:        in.ContextText,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: append context message: %w", ErrStorage, err)
		}
		result.ContextMessage = ctxMsg
	}

	history, err := o.history.Assemble(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: assemble history: %w", ErrStorage, err)
	}
	firstExchange, err := o.isFirstExchange(ctx, conversationID, history)
	if err != nil {
		return nil, fmt.Errorf("%w: check first exchange: %w", ErrStorage, err)
	}

	o.logger.DebugContext(ctx, "generating reply", "history_len", len(history), "has_image", in.ImagePath != "")
	reply, err := o.generator.Generate(ctx, ModelView(history), in.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	assistantMsg, err := o.store.AppendMessage(ctx, models.MessageInput{
		ConversationID: conversationID,
		Role:           models.RoleAssistant,
		Content:        reply,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: append assistant message: %w", ErrStorage, err)
	}
	result.AssistantMessage = assistantMsg

	if firstExchange {
		userText := in.DisplayText
		if strings.TrimSpace(userText) == "" {
			userText = in.modelText()
		}
		title, err := o.deriveTitle(ctx, conversationID, userText, reply)
		if err != nil {
			o.logger.WarnContext(ctx, "titling failed", "error", err)
		} else {
			result.Title = title
		}
	}

	o.logger.InfoContext(ctx, "turn completed",
		"history_len", len(history),
		"context_injected", result.ContextMessage != nil,
		"titled", result.Title != "",
	)
	return result, nil
}

// isFirstExchange reports whether the conversation has no stored reply yet.
// A truncated history is confirmed against the full message list.
func (o *Orchestrator) isFirstExchange(ctx context.Context, conversationID string, history []models.Message) (bool, error) {
	if hasRole(history, models.RoleAssistant) {
		return false, nil
	}
	if t, ok := o.history.(truncating); !ok || !t.Truncates() {
		return true, nil
	}
	full, err := o.store.ListMessages(ctx, conversationID)
	if err != nil {
		return false, err
	}
	return !hasRole(full, models.RoleAssistant), nil
}

func (o *Orchestrator) deriveTitle(ctx context.Context, conversationID, userText, reply string) (string, error) {
	title, err := o.titler.DeriveTitle(ctx, userText, reply)
	if err != nil {
		return "", fmt.Errorf("%w: derive: %w", ErrTitling, err)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("%w: empty title", ErrTitling)
	}
	ok, err := o.store.RenameConversation(ctx, conversationID, title)
	if err != nil {
		return "", fmt.Errorf("%w: rename: %w", ErrTitling, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: conversation disappeared", ErrTitling)
	}
	return title, nil
}
