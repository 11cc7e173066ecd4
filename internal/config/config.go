package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	APIPort   string
	DBPath    string
	LogLevel  slog.Level
	LogFormat string

	OpenAIBaseURL   string
	OpenAIAPIKey    string
	ChatModel       string
	EmbeddingModel  string
	ImageModel      string
	ImageSize       string
	ImageQuality    string
	TranscribeModel string

	QdrantURL        string
	QdrantCollection string
	QdrantVectorSize int

	TwilioAccountSID     string
	TwilioAuthToken      string
	TwilioWhatsAppNumber string

	RulesPath string
	Rules     *Rules
}

// Load reads configuration from environment variables and returns a Config.
// If a .env file exists in the current directory or an ancestor, it is
// loaded first; environment variables already set take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load() // Try current directory

	// Walk up a few levels so the server can be started from subdirectories.
	if wd, err := os.Getwd(); err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	cfg := &Config{
		APIPort:   getEnv("API_PORT", "9000"),
		DBPath:    getEnv("DB_PATH", "./data/safeguardai.db"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", "https://api.openai.com"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		ChatModel:       getEnv("CHAT_MODEL", "gpt-4o-mini"),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		ImageModel:      getEnv("IMAGE_MODEL", "dall-e-3"),
		ImageSize:       getEnv("IMAGE_SIZE", "1024x1024"),
		ImageQuality:    getEnv("IMAGE_QUALITY", "standard"),
		TranscribeModel: getEnv("TRANSCRIBE_MODEL", "whisper-1"),

		QdrantURL:        getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "safety_documents"),

		TwilioAccountSID:     getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:      getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioWhatsAppNumber: getEnv("TWILIO_WHATSAPP_NUMBER", ""),

		RulesPath: getEnv("RULES_PATH", ""),
	}

	switch strings.ToLower(getEnv("LOG_LEVEL", "info")) {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		cfg.LogLevel = slog.LevelInfo
	}

	// Must match the output vector size of the embedding model
	// (1536 for text-embedding-3-small). If this changes, the Qdrant
	// collection must be recreated.
	vectorSizeStr := getEnv("QDRANT_VECTOR_SIZE", "1536")
	vectorSize, err := strconv.Atoi(vectorSizeStr)
	if err != nil {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be a valid integer: %w", err)
	}
	if vectorSize <= 0 {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be greater than 0")
	}
	cfg.QdrantVectorSize = vectorSize

	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	rules, err := LoadRules(cfg.RulesPath)
	if err != nil {
		return nil, err
	}
	cfg.Rules = rules

	// Create the data directory up front so SQLite can open its file.
	dataDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
