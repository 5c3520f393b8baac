package chat_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/convo-go/internal/chat"
	"github.com/raphaelgruber/convo-go/internal/metrics"
	"github.com/raphaelgruber/convo-go/internal/models"
	"github.com/raphaelgruber/convo-go/internal/store/memory"
)

type fakeGenerator struct {
	mu        sync.Mutex
	reply     string
	err       error
	calls     int
	histories [][]models.Message
	images    []string
	check     func([]models.Message)
}

func (g *fakeGenerator) Generate(_ context.Context, history []models.Message, imagePath string) (string, error) {
	if g.check != nil {
		g.check(history)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.histories = append(g.histories, history)
	g.images = append(g.images, imagePath)
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

type fakeTitler struct {
	mu        sync.Mutex
	title     string
	err       error
	calls     int
	userTexts []string
	replies   []string
}

func (f *fakeTitler) DeriveTitle(_ context.Context, userText, reply string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.userTexts = append(f.userTexts, userText)
	f.replies = append(f.replies, reply)
	return f.title, f.err
}

// failingStore fails AppendMessage for the configured role.
type failingStore struct {
	*memory.Store
	failRole models.Role
}

func (s failingStore) AppendMessage(ctx context.Context, in models.MessageInput) (*models.Message, error) {
	if in.Role == s.failRole {
		return nil, errors.New("disk full")
	}
	return s.Store.AppendMessage(ctx, in)
}

func setup(t *testing.T, gen *fakeGenerator, titler *fakeTitler) (*chat.Orchestrator, *memory.Store, string) {
	t.Helper()
	store := memory.New("")
	conv, err := store.CreateConversation(context.Background(), "")
	require.NoError(t, err)
	orch := chat.NewOrchestrator(store, gen, titler, chat.Options{})
	return orch, store, models.MustRecordIDString(conv.ID)
}

func roles(msgs []models.Message) []models.Role {
	out := make([]models.Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

func TestProcessTurnFirstTurn(t *testing.T) {
	gen := &fakeGenerator{reply: "Hi there!"}
	titler := &fakeTitler{title: "Greetings"}
	orch, store, id := setup(t, gen, titler)
	ctx := context.Background()

	res, err := orch.ProcessTurn(ctx, id, chat.NewTurnInput("Hello", ""))
	require.NoError(t, err)

	assert.Equal(t, "Hello", res.UserMessage.Content)
	assert.Equal(t, models.RoleUser, res.UserMessage.Role)
	assert.Nil(t, res.ContextMessage)
	assert.Equal(t, "Hi there!", res.AssistantMessage.Content)
	assert.Equal(t, "Greetings", res.Title)

	msgs, err := store.ListMessages(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []models.Role{models.RoleUser, models.RoleAssistant}, roles(msgs))

	conv, err := store.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Greetings", conv.Title)
	assert.Equal(t, 2, conv.MessageCount)

	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, 1, titler.calls)
	assert.Equal(t, []string{"Hello"}, titler.userTexts)
	assert.Equal(t, []string{"Hi there!"}, titler.replies)
}

func TestProcessTurnSecondTurnNotTitled(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	titler := &fakeTitler{title: "First"}
	orch, store, id := setup(t, gen, titler)
	ctx := context.Background()

	_, err := orch.ProcessTurn(ctx, id, chat.NewTurnInput("one", ""))
	require.NoError(t, err)
	res, err := orch.ProcessTurn(ctx, id, chat.NewTurnInput("two", ""))
	require.NoError(t, err)

	assert.Empty(t, res.Title)
	assert.Equal(t, 1, titler.calls)

	conv, err := store.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 4, conv.MessageCount)
	assert.Equal(t, "First", conv.Title)

	// The second generation sees the whole conversation.
	require.Len(t, gen.histories, 2)
	assert.Equal(t,
		[]models.Role{models.RoleUser, models.RoleAssistant, models.RoleUser},
		roles(gen.histories[1]))
}

func TestProcessTurnWithContext(t *testing.T) {
	gen := &fakeGenerator{reply: "Based on the results..."}
	titler := &fakeTitler{title: "Search"}
	orch, store, id := setup(t, gen, titler)
	ctx := context.Background()

	in := chat.NewTurnInput("what's new?", "")
	in.ContextText = "search snippet"
	res, err := orch.ProcessTurn(ctx, id, in)
	require.NoError(t, err)
	require.NotNil(t, res.ContextMessage)
	assert.Equal(t, models.RoleSystem, res.ContextMessage.Role)
	assert.Equal(t, "search snippet", res.ContextMessage.Content)

	msgs, err := store.ListMessages(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []models.Role{models.RoleUser, models.RoleSystem, models.RoleAssistant}, roles(msgs))

	require.Len(t, gen.histories, 1)
	assert.Equal(t, []models.Role{models.RoleUser, models.RoleSystem}, roles(gen.histories[0]))
	assert.Equal(t, "search snippet", gen.histories[0][1].Content)

	// Context plus user message on the first turn still counts as the first exchange.
	assert.Equal(t, 1, titler.calls)
	assert.Equal(t, "Search", res.Title)
}

func TestProcessTurnAugmentedText(t *testing.T) {
	gen := &fakeGenerator{reply: "Summary of the file"}
	titler := &fakeTitler{title: "File"}
	orch, store, id := setup(t, gen, titler)
	ctx := context.Background()

	augmented := "summarize\n\n[File: notes.txt]\nline one"
	in := chat.NewTurnInput(augmented, "summarize")
	in.File = &models.FileInfo{Filename: "notes.txt", Type: "text/plain", URL: "/uploads/abc.txt", Size: 8}
	in.ImagePath = ""

	res, err := orch.ProcessTurn(ctx, id, in)
	require.NoError(t, err)

	assert.Equal(t, "summarize", res.UserMessage.Content)
	require.NotNil(t, res.UserMessage.ModelContent)
	assert.Equal(t, augmented, *res.UserMessage.ModelContent)
	assert.Equal(t, in.File, res.UserMessage.File)

	// Generator sees the augmented text, the titler sees what the user typed.
	assert.Equal(t, augmented, gen.histories[0][0].Content)
	assert.Nil(t, gen.histories[0][0].ModelContent)
	assert.Equal(t, []string{"summarize"}, titler.userTexts)

	// Stored display text is unchanged.
	msgs, err := store.ListMessages(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "summarize", msgs[0].Content)

	// Later turns keep showing the augmented text to the model.
	_, err = orch.ProcessTurn(ctx, id, chat.NewTurnInput("and then?", ""))
	require.NoError(t, err)
	assert.Equal(t, augmented, gen.histories[1][0].Content)
}

func TestProcessTurnPassesImagePath(t *testing.T) {
	gen := &fakeGenerator{reply: "A cat"}
	orch, _, id := setup(t, gen, &fakeTitler{title: "Cat"})

	in := chat.NewTurnInput("what is this?", "")
	in.ImagePath = "uploads/cat.png"
	_, err := orch.ProcessTurn(context.Background(), id, in)
	require.NoError(t, err)
	assert.Equal(t, []string{"uploads/cat.png"}, gen.images)
}

func TestProcessTurnNotFound(t *testing.T) {
	gen := &fakeGenerator{reply: "x"}
	orch, _, _ := setup(t, gen, &fakeTitler{})

	_, err := orch.ProcessTurn(context.Background(), "missing", chat.NewTurnInput("hi", ""))
	require.Error(t, err)
	assert.ErrorIs(t, err, chat.ErrNotFound)
	assert.Zero(t, gen.calls)
}

func TestProcessTurnEmptyInput(t *testing.T) {
	gen := &fakeGenerator{reply: "x"}
	orch, store, id := setup(t, gen, &fakeTitler{})

	_, err := orch.ProcessTurn(context.Background(), id, chat.NewTurnInput("  ", ""))
	assert.ErrorIs(t, err, chat.ErrInvalidTurn)

	msgs, err := store.ListMessages(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestProcessTurnEmptyInputMissingConversation(t *testing.T) {
	orch, _, _ := setup(t, &fakeGenerator{reply: "x"}, &fakeTitler{})

	_, err := orch.ProcessTurn(context.Background(), "missing", chat.NewTurnInput("", ""))
	assert.ErrorIs(t, err, chat.ErrNotFound)
	assert.NotErrorIs(t, err, chat.ErrInvalidTurn)
}

func TestProcessTurnGenerationFailure(t *testing.T) {
	cause := errors.New("provider unavailable")
	gen := &fakeGenerator{err: cause}
	titler := &fakeTitler{title: "never"}
	orch, store, id := setup(t, gen, titler)
	ctx := context.Background()

	_, err := orch.ProcessTurn(ctx, id, chat.NewTurnInput("Hello", ""))
	require.Error(t, err)
	assert.ErrorIs(t, err, chat.ErrGeneration)
	assert.ErrorIs(t, err, cause)

	msgs, err := store.ListMessages(ctx, id)
	require.NoError(t, err)
	require.Len(t, msgs, 1, "user message stays without a reply")
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Zero(t, titler.calls)
	assert.Equal(t, 1, gen.calls, "no retries")

	// The next successful turn appends after the orphan and is still the first exchange.
	gen.err = nil
	gen.reply = "Hi"
	res, err := orch.ProcessTurn(ctx, id, chat.NewTurnInput("Hello again", ""))
	require.NoError(t, err)
	assert.Equal(t, "never", res.Title)

	msgs, err = store.ListMessages(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []models.Role{models.RoleUser, models.RoleUser, models.RoleAssistant}, roles(msgs))
}

func TestProcessTurnStorageFailure(t *testing.T) {
	mem := memory.New("")
	ctx := context.Background()
	conv, err := mem.CreateConversation(ctx, "")
	require.NoError(t, err)
	id := models.MustRecordIDString(conv.ID)

	gen := &fakeGenerator{reply: "x"}
	orch := chat.NewOrchestrator(failingStore{Store: mem, failRole: models.RoleAssistant}, gen, &fakeTitler{}, chat.Options{})

	_, err = orch.ProcessTurn(ctx, id, chat.NewTurnInput("Hello", ""))
	assert.ErrorIs(t, err, chat.ErrStorage)

	msgs, err := mem.ListMessages(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []models.Role{models.RoleUser}, roles(msgs))
}

func TestProcessTurnTitlingFailureSwallowed(t *testing.T) {
	gen := &fakeGenerator{reply: "reply"}
	titler := &fakeTitler{err: errors.New("title model down")}
	orch, store, id := setup(t, gen, titler)
	ctx := context.Background()

	res, err := orch.ProcessTurn(ctx, id, chat.NewTurnInput("Hello", ""))
	require.NoError(t, err)
	assert.Empty(t, res.Title)
	assert.Equal(t, "reply", res.AssistantMessage.Content)

	conv, err := store.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultConversationTitle, conv.Title)
	assert.Equal(t, 2, conv.MessageCount)
}

func TestProcessTurnBlankTitleIgnored(t *testing.T) {
	orch, store, id := setup(t, &fakeGenerator{reply: "r"}, &fakeTitler{title: "   "})
	ctx := context.Background()

	res, err := orch.ProcessTurn(ctx, id, chat.NewTurnInput("Hello", ""))
	require.NoError(t, err)
	assert.Empty(t, res.Title)

	conv, err := store.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultConversationTitle, conv.Title)
}

func TestProcessTurnWindowedHistoryTitlesOnce(t *testing.T) {
	store := memory.New("")
	ctx := context.Background()
	conv, err := store.CreateConversation(ctx, "")
	require.NoError(t, err)
	id := models.MustRecordIDString(conv.ID)

	gen := &fakeGenerator{reply: "r"}
	titler := &fakeTitler{title: "T"}
	orch := chat.NewOrchestrator(store, gen, titler, chat.Options{
		History: chat.StoreAssembler{Store: store, MaxMessages: 1},
	})

	for i := 0; i < 3; i++ {
		_, err := orch.ProcessTurn(ctx, id, chat.NewTurnInput(fmt.Sprintf("turn %d", i), ""))
		require.NoError(t, err)
	}

	assert.Equal(t, 1, titler.calls)
	for _, h := range gen.histories {
		assert.Len(t, h, 1)
	}
}

func TestProcessTurnSerializesSameConversation(t *testing.T) {
	var violations int
	var mu sync.Mutex
	gen := &fakeGenerator{reply: "r"}
	gen.check = func(history []models.Message) {
		users, assistants := 0, 0
		for _, m := range history {
			switch m.Role {
			case models.RoleUser:
				users++
			case models.RoleAssistant:
				assistants++
			}
		}
		// Serialized turns always see complete prior exchanges plus exactly one new user message.
		if users != assistants+1 {
			mu.Lock()
			violations++
			mu.Unlock()
		}
		time.Sleep(time.Millisecond)
	}
	titler := &fakeTitler{title: "T"}
	orch, store, id := setup(t, gen, titler)
	ctx := context.Background()

	const turns = 10
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := orch.ProcessTurn(ctx, id, chat.NewTurnInput(fmt.Sprintf("msg %d", i), ""))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Zero(t, violations)
	assert.Equal(t, 1, titler.calls)

	conv, err := store.GetConversation(ctx, id)
	require.NoError(t, err)
	msgs, err := store.ListMessages(ctx, id)
	require.NoError(t, err)
	assert.Len(t, msgs, turns*2)
	assert.Equal(t, len(msgs), conv.MessageCount)
}

type blockingGenerator struct {
	started chan struct{}
}

func (g *blockingGenerator) Generate(ctx context.Context, _ []models.Message, _ string) (string, error) {
	close(g.started)
	<-ctx.Done()
	return "", ctx.Err()
}

func TestProcessTurnTimeout(t *testing.T) {
	store := memory.New("")
	ctx := context.Background()
	conv, err := store.CreateConversation(ctx, "")
	require.NoError(t, err)
	id := models.MustRecordIDString(conv.ID)

	gen := &blockingGenerator{started: make(chan struct{})}
	collector := metrics.NewCollector()
	orch := chat.NewOrchestrator(store, gen, &fakeTitler{}, chat.Options{
		TurnTimeout: 20 * time.Millisecond,
		Metrics:     collector,
	})

	_, err = orch.ProcessTurn(ctx, id, chat.NewTurnInput("Hello", ""))
	require.Error(t, err)
	assert.ErrorIs(t, err, chat.ErrGeneration)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	snap := collector.Snapshot()
	require.NotNil(t, snap.Turn)
	assert.Equal(t, int64(1), snap.Turn.Failures)
}

func TestNewTurnInput(t *testing.T) {
	in := chat.NewTurnInput("augmented", "typed")
	assert.Equal(t, "typed", in.DisplayText)
	assert.Equal(t, "augmented", in.ModelText)

	plain := chat.NewTurnInput("typed", "")
	assert.Equal(t, "typed", plain.DisplayText)
	assert.Equal(t, "typed", plain.ModelText)
}
