package main

import (
	"context"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"time"

	"safeguardai/internal/classify"
	"safeguardai/internal/config"
	"safeguardai/internal/gateway"
	"safeguardai/internal/http"
	"safeguardai/internal/indexer"
	"safeguardai/internal/llm"
	"safeguardai/internal/rag"
	"safeguardai/internal/security"
	"safeguardai/internal/service"
	"safeguardai/internal/storage"
	"safeguardai/internal/vectorstore"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	// Initialize database
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	userRepo := storage.NewUserRepo(db)
	conversationRepo := storage.NewConversationRepo(db)
	safetyLogRepo := storage.NewSafetyLogRepo(db)

	ctx := context.Background()

	vectorStore, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
	if err != nil {
		log.Fatalf("Failed to create Qdrant client: %v", err)
	}

	if err := vectorStore.EnsureCollection(ctx, cfg.QdrantCollection, cfg.QdrantVectorSize); err != nil {
		log.Fatalf("Failed to ensure Qdrant collection: %v", err)
	}
	slog.Info("Qdrant collection ready", "collection", cfg.QdrantCollection, "vector_size", cfg.QdrantVectorSize)

	embedder := llm.NewEmbeddingsClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.QdrantVectorSize)
	completions := llm.NewClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.ChatModel)
	images := llm.NewImageClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.ImageModel, cfg.ImageSize, cfg.ImageQuality)
	transcriber := llm.NewTranscribeClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.TranscribeModel)

	rules := cfg.Rules
	chunker := indexer.NewWordChunker(rules.ChunkSize, rules.ChunkOverlap)
	pipeline := indexer.NewPipeline(embedder, vectorStore, cfg.QdrantCollection, chunker)

	engine := rag.NewEngine(
		embedder,
		vectorStore,
		cfg.QdrantCollection,
		completions,
		rag.NewImageTool(images),
		rules,
	)
	slog.Info("Answer engine initialized")

	gate := security.NewGate(
		rules.InboundMessageMaxLength,
		rules.InjectionPatterns,
		time.Duration(rules.RateLimitWindowSeconds)*time.Second,
		rules.RateLimitMaxRequests,
	)
	intents := classify.NewIntentClassifier(rules.CannedResponses, rules.SafetyKeywords, rules.GeneralKeywords())

	twilio := gateway.NewTwilioClient(
		cfg.TwilioAccountSID,
		cfg.TwilioAuthToken,
		cfg.TwilioWhatsAppNumber,
		rules.MaxOutboundLength,
		rules.ImageCaptionFallback,
	)

	svc := service.NewService(
		gate,
		intents,
		engine,
		completions,
		transcriber,
		twilio,
		userRepo,
		conversationRepo,
		safetyLogRepo,
		rules,
		logger,
	)

	deps := &http.Deps{
		Dispatcher: svc,
		Pipeline:   pipeline,
	}
	router := http.NewRouter(deps)

	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr)
	slog.Debug("LLM configuration", "base_url", cfg.OpenAIBaseURL, "model", cfg.ChatModel)
	if err := nethttp.ListenAndServe(addr, router); err != nil {
		log.Fatalf("API server failed to start: %v", err)
	}
}
