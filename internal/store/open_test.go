package store

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/convo-go/internal/config"
)

func TestOpenMemory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h, err := Open(context.Background(), config.Config{StorageBackend: config.StorageMemory, DefaultTitle: "Untitled"}, logger, nil)
	require.NoError(t, err)

	conv, err := h.CreateConversation(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "Untitled", conv.Title)
	assert.NoError(t, h.Ping(context.Background()))
	assert.NoError(t, h.WipeData(context.Background()))
	assert.NoError(t, h.Close(context.Background()))
}

func TestOpenUnknownBackend(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := Open(context.Background(), config.Config{StorageBackend: "mongo"}, logger, nil)
	assert.ErrorContains(t, err, "unknown storage backend")
}

func TestNilHandleClose(t *testing.T) {
	var h *Handle
	assert.NoError(t, h.Close(context.Background()))
}
