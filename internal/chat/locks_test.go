package chat

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/convo-go/internal/models"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	ctx := context.Background()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(ctx, "conv")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
	assert.Zero(t, k.Len(), "idle entries are removed")
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	k := NewKeyedMutex()
	ctx := context.Background()

	unlockA, err := k.Lock(ctx, "a")
	require.NoError(t, err)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := k.Lock(ctx, "b")
		if err == nil {
			unlockB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestKeyedMutexContextCancel(t *testing.T) {
	k := NewKeyedMutex()

	unlock, err := k.Lock(context.Background(), "conv")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "conv")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, k.Len())

	unlock()
	unlock() // second call is a no-op
	assert.Zero(t, k.Len())
}

func TestStoreAssemblerWindow(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleUser, Content: "1"},
		{Role: models.RoleAssistant, Content: "2"},
		{Role: models.RoleUser, Content: "3"},
	}
	store := listOnlyStore{msgs: msgs}

	full, err := StoreAssembler{Store: store}.Assemble(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, msgs, full)

	window, err := StoreAssembler{Store: store, MaxMessages: 2}.Assemble(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, msgs[1:], window)

	assert.False(t, StoreAssembler{}.Truncates())
	assert.True(t, StoreAssembler{MaxMessages: 5}.Truncates())
}

func TestModelView(t *testing.T) {
	augmented := "typed\n\n[File: a.md]\nbody"
	history := []models.Message{
		{Role: models.RoleUser, Content: "typed", ModelContent: &augmented},
		{Role: models.RoleAssistant, Content: "reply"},
	}

	view := ModelView(history)
	assert.Equal(t, augmented, view[0].Content)
	assert.Nil(t, view[0].ModelContent)
	assert.Equal(t, "reply", view[1].Content)
	assert.Equal(t, "typed", history[0].Content, "input is not modified")
}

// listOnlyStore serves ListMessages from a fixed slice.
type listOnlyStore struct {
	Store
	msgs []models.Message
}

func (s listOnlyStore) ListMessages(context.Context, string) ([]models.Message, error) {
	return s.msgs, nil
}
