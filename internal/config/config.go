// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	StorageSurrealDB = "surrealdb"
	StorageMemory    = "memory"
)

// Config holds all configuration values.
type Config struct {
	// HTTP server
	Port        string
	CORSOrigins []string

	// Storage
	StorageBackend string

	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Language model
	LLMProvider   string
	LLMModel      string
	TitleModel    string
	OpenAIAPIKey  string
	AnthropicKey  string
	OllamaHost    string
	AWSRegion     string
	AzureOpenAI   AzureOpenAIConfig
	AzureSpeech   AzureSpeechConfig
	GoogleAPIKey  string
	GoogleCSEID   string
	DefaultTitle  string
	HistoryLimit  int
	TurnTimeout   time.Duration

	// Uploads
	UploadDir   string
	MaxFileSize int64

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// AzureOpenAIConfig configures the Azure OpenAI chat deployment.
type AzureOpenAIConfig struct {
	APIKey     string
	Endpoint   string
	APIVersion string
	Deployment string
}

// AzureSpeechConfig configures the Azure OpenAI text-to-speech deployment.
type AzureSpeechConfig struct {
	APIKey     string
	Endpoint   string
	APIVersion string
	Deployment string
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first when present;
// variables already set in the environment win.
func Load() Config {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	azureKey := getEnv("AZURE_OPENAI_API_KEY", "")
	azureEndpoint := strings.TrimRight(getEnv("AZURE_OPENAI_ENDPOINT", ""), "/")

	return Config{
		Port:        getEnv("CONVO_PORT", "8000"),
		CORSOrigins: splitList(getEnv("CONVO_CORS_ORIGINS", "*")),

		StorageBackend: strings.ToLower(getEnv("CONVO_STORAGE_BACKEND", StorageSurrealDB)),

		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "convo"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "chat"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		LLMProvider:  strings.ToLower(getEnv("CONVO_LLM_PROVIDER", "openai")),
		LLMModel:     getEnv("CONVO_LLM_MODEL", "gpt-4o"),
		TitleModel:   getEnv("CONVO_TITLE_MODEL", ""),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		AnthropicKey: getEnv("ANTHROPIC_API_KEY", ""),
		OllamaHost:   getEnv("OLLAMA_HOST", "http://localhost:11434"),
		AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
		AzureOpenAI: AzureOpenAIConfig{
			APIKey:     azureKey,
			Endpoint:   azureEndpoint,
			APIVersion: getEnv("AZURE_OPENAI_API_VERSION", "2024-06-01"),
			Deployment: getEnv("AZURE_OPENAI_DEPLOYMENT", "gpt-4o"),
		},
		// Speech falls back to the chat deployment credentials.
		AzureSpeech: AzureSpeechConfig{
			APIKey:     getEnv("AZURE_TTS_API_KEY", azureKey),
			Endpoint:   strings.TrimRight(getEnv("AZURE_TTS_ENDPOINT", azureEndpoint), "/"),
			APIVersion: getEnv("AZURE_TTS_API_VERSION", "2025-03-01-preview"),
			Deployment: getEnv("AZURE_TTS_DEPLOYMENT", "tts-hd"),
		},
		GoogleAPIKey: getEnv("GOOGLE_API_KEY", ""),
		GoogleCSEID:  getEnv("GOOGLE_SEARCH_ENGINE_ID", ""),
		DefaultTitle: getEnv("CONVO_DEFAULT_TITLE", "New Chat"),
		HistoryLimit: getEnvInt("CONVO_HISTORY_LIMIT", 0),
		TurnTimeout:  getEnvDuration("CONVO_TURN_TIMEOUT", 120*time.Second),

		UploadDir:   getEnv("CONVO_UPLOAD_DIR", "uploads"),
		MaxFileSize: int64(getEnvInt("CONVO_MAX_FILE_SIZE", 10*1024*1024)),

		LogFile:  getEnv("CONVO_LOG_FILE", "/tmp/convo.log"),
		LogLevel: parseLogLevel(getEnv("CONVO_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", val, "default", defaultVal)
		return defaultVal
	}
	return n
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		// Plain integers are seconds.
		if secs, convErr := strconv.Atoi(val); convErr == nil {
			return time.Duration(secs) * time.Second
		}
		slog.Warn("invalid duration in environment, using default", "key", key, "value", val, "default", defaultVal)
		return defaultVal
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
