package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"safeguardai/internal/classify"
	"safeguardai/internal/config"
	"safeguardai/internal/contextutil"
	"safeguardai/internal/rag"
	"safeguardai/internal/security"
	"safeguardai/internal/storage"
)

const (
	generalTemperature = 0.8
	generalMaxTokens   = 80
	safetyLogFieldMax  = 500
)

// QueryEngine answers safety questions from the document index.
type QueryEngine interface {
	Answer(ctx context.Context, query string, priorSources []string) (rag.Result, error)
}

// Completer runs a single chat completion. Used for general small talk.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error)
}

// Transcriber converts a voice note to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// Gateway delivers replies and fetches inbound media.
type Gateway interface {
	Send(ctx context.Context, to, message, mediaURL string) error
	FetchMedia(ctx context.Context, mediaURL, contentType string) ([]byte, string, error)
}

// Service routes inbound WhatsApp messages: security gate, intent
// classification, the cached/general/safety handlers, and persistence.
type Service struct {
	gate          *security.Gate
	intents       *classify.IntentClassifier
	engine        QueryEngine
	completer     Completer
	transcriber   Transcriber
	gateway       Gateway
	users         storage.UserStore
	conversations storage.ConversationStore
	safetyLogs    storage.SafetyLogStore
	rules         *config.Rules
	logger        *slog.Logger

	// Injectable for deterministic tests.
	now  func() time.Time
	pick func(n int) int
}

// NewService wires the message processing service.
func NewService(
	gate *security.Gate,
	intents *classify.IntentClassifier,
	engine QueryEngine,
	completer Completer,
	transcriber Transcriber,
	gw Gateway,
	users storage.UserStore,
	conversations storage.ConversationStore,
	safetyLogs storage.SafetyLogStore,
	rules *config.Rules,
	logger *slog.Logger,
) *Service {
	return &Service{
		gate:          gate,
		intents:       intents,
		engine:        engine,
		completer:     completer,
		transcriber:   transcriber,
		gateway:       gw,
		users:         users,
		conversations: conversations,
		safetyLogs:    safetyLogs,
		rules:         rules,
		logger:        logger,
		now:           time.Now,
		pick:          rand.Intn,
	}
}

// Handle runs the full inbound flow for one webhook delivery in the
// background: optional voice transcription, processing, and the outbound
// send. It returns immediately; the webhook handler has already acked Twilio.
func (s *Service) Handle(from, body, mediaURL, mediaContentType string) {
	go func() {
		// Detached from the request context: Twilio got its 200 already.
		ctx := contextutil.WithLogger(context.Background(), s.logger.With("from", from))
		logger := contextutil.LoggerFromContext(ctx)

		isVoice := mediaURL != "" && strings.HasPrefix(strings.ToLower(mediaContentType), "audio/")
		if isVoice {
			transcript, errText := s.transcribeVoice(ctx, mediaURL, mediaContentType)
			if errText != "" {
				if err := s.gateway.Send(ctx, from, errText, ""); err != nil {
					logger.ErrorContext(ctx, "failed to send voice error reply", "error", err)
				}
				return
			}
			body = transcript
		}

		text, imageURL := s.Process(ctx, from, body, isVoice, false)
		if text == "" {
			return
		}
		if err := s.gateway.Send(ctx, from, text, imageURL); err != nil {
			logger.ErrorContext(ctx, "failed to send reply", "error", err)
		}
	}()
}

// transcribeVoice fetches and transcribes a voice note. On failure it returns
// a user-facing error text instead of a transcript.
func (s *Service) transcribeVoice(ctx context.Context, mediaURL, contentType string) (transcript, errText string) {
	logger := contextutil.LoggerFromContext(ctx)

	data, filename, err := s.gateway.FetchMedia(ctx, mediaURL, contentType)
	if err != nil {
		logger.ErrorContext(ctx, "failed to fetch voice media", "error", err)
		return "", voiceDownloadFailed
	}

	transcript, err = s.transcriber.Transcribe(ctx, bytes.NewReader(data), filename)
	if err != nil || strings.TrimSpace(transcript) == "" {
		logger.ErrorContext(ctx, "voice transcription failed", "error", err)
		return "", voiceNotUnderstood
	}

	logger.InfoContext(ctx, "voice note transcribed", "length", len(transcript))
	return transcript, ""
}

// Process runs one inbound message through security, routing, and the
// matching handler, records the exchange, and returns the reply text plus an
// optional image URL. It never returns an error to the caller: every failure
// maps to user-facing text, and panics are converted to the generic error
// reply.
func (s *Service) Process(ctx context.Context, from, body string, isVoice, skipRateLimit bool) (text, imageURL string) {
	logger := contextutil.LoggerFromContext(ctx)
	start := s.now()

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "panic while processing message", "panic", r)
			s.recordFailure(ctx, from, body)
			text, imageURL = errorResponse, ""
		}
	}()

	logger.InfoContext(ctx, "processing message", "voice", isVoice, "length", len(body))

	sanitised, err := s.gate.Check(ctx, from, body, skipRateLimit)
	if err != nil {
		var rejection *security.Rejection
		if errors.As(err, &rejection) {
			return rejection.UserMessage, ""
		}
		logger.ErrorContext(ctx, "security check failed", "error", err)
		return errorResponse, ""
	}
	body = sanitised

	if strings.TrimSpace(body) == "" {
		logger.InfoContext(ctx, "message empty after sanitisation, skipping save")
		return emptyMessageResponse, ""
	}

	user, err := s.users.GetOrCreateByPhone(ctx, from)
	if err != nil {
		logger.ErrorContext(ctx, "failed to resolve user", "error", err)
		s.recordFailure(ctx, from, body)
		return errorResponse, ""
	}

	intent := s.intents.Classify(body)
	recentLog := s.recentSafetyLog(ctx, user.ID)

	var response string
	var sources []string

	switch intent {
	case classify.IntentCached:
		response = s.cannedReply(body)
		logger.InfoContext(ctx, "served from response cache")

	case classify.IntentGeneral:
		if s.intents.IsFollowUp(body, recentLog != nil) {
			logger.InfoContext(ctx, "follow-up routed to safety path")
			response, sources, imageURL = s.safetyReply(ctx, user, body, recentLog)
		} else if s.intents.IsCannedKey(body) {
			response = s.cannedReply(strings.TrimRight(strings.ToLower(strings.TrimSpace(body)), "?"))
			logger.InfoContext(ctx, "intro question served from response cache")
		} else {
			response = s.generalReply(ctx, body)
			logger.InfoContext(ctx, "general reply generated")
		}

	default:
		response, sources, imageURL = s.safetyReply(ctx, user, body, recentLog)
	}

	messageType := storage.MessageTypeText
	if isVoice {
		messageType = storage.MessageTypeVoice
	}
	if err := s.conversations.Append(ctx, &storage.ConversationRecord{
		UserID:        user.ID,
		Message:       body,
		Response:      response,
		MessageType:   messageType,
		IncludedImage: imageURL != "",
	}); err != nil {
		logger.WarnContext(ctx, "failed to record conversation", "error", err)
	}

	logger.InfoContext(ctx, "message processed",
		"intent", intent,
		"sources", sources,
		"elapsed", s.now().Sub(start).Round(10*time.Millisecond),
		"length", len(response))
	return response, imageURL
}

// safetyReply answers through the retrieval engine and records the audit log.
func (s *Service) safetyReply(ctx context.Context, user *storage.UserRecord, body string, recentLog *storage.SafetyLogRecord) (string, []string, string) {
	logger := contextutil.LoggerFromContext(ctx)

	var priorSources []string
	if recentLog != nil && recentLog.Sources != "" {
		for _, src := range strings.Split(recentLog.Sources, ",") {
			if src = strings.TrimSpace(src); src != "" {
				priorSources = append(priorSources, src)
			}
		}
	}

	result, err := s.engine.Answer(ctx, body, priorSources)
	if err != nil {
		logger.ErrorContext(ctx, "safety query failed", "error", err)
		return errorResponse, nil, ""
	}

	sourcesStr := strings.Join(result.Sources, ", ")
	if len(sourcesStr) > safetyLogFieldMax {
		sourcesStr = sourcesStr[:safetyLogFieldMax-3] + "..."
	}
	if err := s.safetyLogs.Append(ctx, &storage.SafetyLogRecord{
		UserID:          user.ID,
		TaskDescription: truncate(body, safetyLogFieldMax),
		SafetyCheck:     truncate(fmt.Sprintf("Answered from documents: %s", sourcesStr), safetyLogFieldMax),
		Sources:         sourcesStr,
	}); err != nil {
		logger.WarnContext(ctx, "failed to record safety log", "error", err)
	}

	return result.Answer, result.Sources, result.ImageURL
}

// cannedReply picks a random variant for a canned key. The key must exist.
func (s *Service) cannedReply(key string) string {
	variants := s.intents.CannedVariants(key)
	if len(variants) == 0 {
		return s.rules.GeneralFallbackMessage
	}
	return variants[s.pick(len(variants))]
}

// generalReply answers small talk with one short completion, falling back to
// the static greeting on any failure.
func (s *Service) generalReply(ctx context.Context, body string) string {
	logger := contextutil.LoggerFromContext(ctx)
	maxChars := s.rules.GeneralResponseMaxChars

	systemPrompt := fmt.Sprintf(`You are SafeGuardAI, a workplace safety assistant on WhatsApp.

STRICT RULES:
- Plain text only — no asterisks, no markdown, no emojis.
- Maximum %d characters total.
- One or two sentences maximum.
- Natural and human — not robotic.
- Never repeat the same phrasing twice.
- End with a brief offer to help if appropriate.

For greetings: warm, brief, invite a safety question.
For appreciation: acknowledge, offer more help.
For closings: warm safety-focused farewell.
For capability questions: briefly mention safety procedures, hazard controls, and company documents.`, maxChars)

	reply, err := s.completer.Complete(ctx, systemPrompt, body, generalTemperature, generalMaxTokens)
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			logger.ErrorContext(ctx, "general reply failed", "error", err)
		}
		return s.rules.GeneralFallbackMessage
	}

	if len(reply) > maxChars {
		head := reply[:maxChars]
		if cut := strings.LastIndex(head, " "); cut > 0 {
			head = head[:cut]
		}
		if !strings.HasSuffix(head, ".") && !strings.HasSuffix(head, "!") && !strings.HasSuffix(head, "?") {
			head += "."
		}
		reply = head
	}
	return reply
}

// recentSafetyLog returns the user's latest safety log inside the
// conversation context window, or nil.
func (s *Service) recentSafetyLog(ctx context.Context, userID string) *storage.SafetyLogRecord {
	since := s.now().Add(-time.Duration(s.rules.ContextWindowMinutes) * time.Minute)
	logs, err := s.safetyLogs.RecentByUser(ctx, userID, since, 1)
	if err != nil || len(logs) == 0 {
		return nil
	}
	return logs[0]
}

// recordFailure stores the failed exchange for audit when the user already
// exists. Best effort.
func (s *Service) recordFailure(ctx context.Context, from, body string) {
	logger := contextutil.LoggerFromContext(ctx)

	user, err := s.users.GetByPhone(ctx, from)
	if err != nil {
		return
	}
	if body == "" {
		body = "(error before message set)"
	}
	if err := s.conversations.Append(ctx, &storage.ConversationRecord{
		UserID:      user.ID,
		Message:     truncate(body, 5000),
		Response:    errorResponse,
		MessageType: storage.MessageTypeText,
	}); err != nil {
		logger.WarnContext(ctx, "could not save failure conversation", "error", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
