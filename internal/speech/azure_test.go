package speech

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/convo-go/internal/metrics"
)

type speechBody struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

func TestSynthesize(t *testing.T) {
	var (
		gotPath    string
		gotVersion string
		gotKey     string
		gotBody    speechBody
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotVersion = r.URL.Query().Get("api-version")
		gotKey = r.Header.Get("api-key")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", ContentType)
		_, _ = w.Write([]byte("ID3audio"))
	}))
	defer srv.Close()

	collector := metrics.NewCollector()
	c := NewClient(Config{Endpoint: srv.URL + "/", APIKey: "secret", Deployment: "speech-prod", APIVersion: "2025-03-01-preview"}, collector, nil)

	audio, err := c.Synthesize(context.Background(), Request{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3audio"), audio)
	assert.Equal(t, "/openai/deployments/speech-prod/audio/speech", gotPath)
	assert.Equal(t, "2025-03-01-preview", gotVersion)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, speechBody{Model: DefaultModel, Input: "hello", Voice: DefaultVoice, ResponseFormat: "mp3"}, gotBody)
	assert.Equal(t, int64(1), collector.Snapshot().Speech.Count)
}

func TestSynthesizeCustomVoice(t *testing.T) {
	var (
		gotBody    speechBody
		gotVersion string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotVersion = r.URL.Query().Get("api-version")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, APIKey: "k", Deployment: "d"}, nil, nil)
	_, err := c.Synthesize(context.Background(), Request{Text: "hi", Voice: "alloy", Model: "tts-1"})
	require.NoError(t, err)
	assert.Equal(t, "alloy", gotBody.Voice)
	assert.Equal(t, "tts-1", gotBody.Model)
	assert.Equal(t, DefaultAPIVersion, gotVersion)
}

func TestSynthesizeUpstreamError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":"InternalError","message":"deployment unavailable"}}`))
	}))
	defer srv.Close()

	collector := metrics.NewCollector()
	c := NewClient(Config{Endpoint: srv.URL, APIKey: "k", Deployment: "d"}, collector, nil)
	_, err := c.Synthesize(context.Background(), Request{Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Equal(t, 1, calls, "failed requests are not retried")
	assert.Equal(t, int64(1), collector.Snapshot().Speech.Failures)
}

func TestSynthesizeValidation(t *testing.T) {
	c := NewClient(Config{}, nil, nil)
	assert.False(t, c.Configured())

	_, err := c.Synthesize(context.Background(), Request{Text: "  "})
	assert.ErrorIs(t, err, ErrEmptyText)

	_, err = c.Synthesize(context.Background(), Request{Text: "hi"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
