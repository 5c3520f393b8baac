// Package speech synthesizes audio through an Azure OpenAI speech deployment.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"

	"github.com/raphaelgruber/convo-go/internal/metrics"
)

const (
	DefaultVoice      = "nova"
	DefaultModel      = "tts-hd"
	DefaultAPIVersion = "2025-03-01-preview"
	DefaultTimeout    = 30 * time.Second

	// ContentType is the media type of synthesized audio.
	ContentType = "audio/mpeg"
)

var (
	// ErrNotConfigured is returned when endpoint, key or deployment is missing.
	ErrNotConfigured = errors.New("speech not configured")

	// ErrEmptyText is returned for requests without text.
	ErrEmptyText = errors.New("text is required")
)

// Config identifies the speech deployment.
type Config struct {
	Endpoint   string
	APIKey     string
	Deployment string
	APIVersion string // Defaults to DefaultAPIVersion
}

// Request is one synthesis request.
type Request struct {
	Text  string
	Voice string // Defaults to DefaultVoice
	Model string // Defaults to DefaultModel
}

// Client calls the Azure OpenAI audio/speech endpoint.
type Client struct {
	cfg     Config
	openai  openai.Client
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewClient creates a speech client with the default timeout.
func NewClient(cfg Config, collector *metrics.Collector, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")

	return &Client{
		cfg: cfg,
		openai: openai.NewClient(
			azure.WithEndpoint(cfg.Endpoint, cfg.APIVersion),
			azure.WithAPIKey(cfg.APIKey),
			option.WithMiddleware(deploymentPath(cfg.Deployment)),
			option.WithHTTPClient(&http.Client{Timeout: DefaultTimeout}),
			option.WithMaxRetries(0),
		),
		metrics: collector,
		logger:  logger,
	}
}

// deploymentPath routes requests to the configured deployment. The azure
// options derive the deployment from the request model, which here is sent
// to the deployment unchanged.
func deploymentPath(deployment string) option.Middleware {
	return func(r *http.Request, next option.MiddlewareNext) (*http.Response, error) {
		const marker = "/deployments/"
		if i := strings.Index(r.URL.Path, marker); i >= 0 {
			rest := r.URL.Path[i+len(marker):]
			if j := strings.Index(rest, "/"); j >= 0 {
				r.URL.Path = r.URL.Path[:i] + marker + deployment + rest[j:]
				r.URL.RawPath = ""
			}
		}
		return next(r)
	}
}

// Configured reports whether the deployment is fully specified.
func (c *Client) Configured() bool {
	return c.cfg.Endpoint != "" && c.cfg.APIKey != "" && c.cfg.Deployment != ""
}

// Synthesize returns MP3 audio for the request text.
func (c *Client) Synthesize(ctx context.Context, r Request) ([]byte, error) {
	if strings.TrimSpace(r.Text) == "" {
		return nil, ErrEmptyText
	}
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if r.Voice == "" {
		r.Voice = DefaultVoice
	}
	if r.Model == "" {
		r.Model = DefaultModel
	}

	start := time.Now()
	audio, err := c.synthesize(ctx, r)
	if err != nil {
		c.metrics.RecordFailure(metrics.OpSpeech)
		return nil, err
	}
	c.metrics.RecordTiming(metrics.OpSpeech, time.Since(start))
	c.logger.DebugContext(ctx, "speech synthesized", "voice", r.Voice, "bytes", len(audio))
	return audio, nil
}

func (c *Client) synthesize(ctx context.Context, r Request) ([]byte, error) {
	resp, err := c.openai.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          r.Text,
		Model:          openai.SpeechModel(r.Model),
		Voice:          openai.AudioSpeechNewParamsVoice(r.Voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("speech API error (status %d): %w", apiErr.StatusCode, err)
		}
		return nil, fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return audio, nil
}
