package rag

import (
	"context"

	"safeguardai/internal/classify"
	"safeguardai/internal/contextutil"
	"safeguardai/internal/llm"
)

const synthesisTemperature = 0.05

// Completer runs chat completions, directly or as a multi-role pipeline.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error)
	RunMultiRole(ctx context.Context, tasks []llm.Task) (string, error)
}

// strategy synthesises a raw answer from a query and its document context.
type strategy interface {
	Synthesize(ctx context.Context, query, docContext string, assessment classify.Assessment) (string, error)
}

// directStrategy answers with a single completion call. The fast path for
// simple queries.
type directStrategy struct {
	completer Completer
	notInDocs string
}

func (s *directStrategy) Synthesize(ctx context.Context, query, docContext string, assessment classify.Assessment) (string, error) {
	logger := contextutil.LoggerFromContext(ctx)

	answer, err := s.completer.Complete(ctx,
		directSystemPrompt(assessment.TargetMin, assessment.TargetMax, s.notInDocs),
		directUserPrompt(query, docContext),
		synthesisTemperature, 600)
	if err != nil {
		// Degrade to the canonical refusal rather than surfacing an error
		// to the user.
		logger.ErrorContext(ctx, "direct synthesis failed", "error", err)
		return s.notInDocs, nil
	}
	return answer, nil
}

// multiStepStrategy chains a researcher role into a formatter role. Used for
// medium and complex queries where a single pass tends to drop requirements.
type multiStepStrategy struct {
	completer Completer
	notInDocs string
}

func (s *multiStepStrategy) Synthesize(ctx context.Context, query, docContext string, assessment classify.Assessment) (string, error) {
	tasks := []llm.Task{
		{
			Role:           researcherRole,
			Description:    researchPrompt(query, docContext, s.notInDocs),
			ExpectedOutput: `Complete safety answer from the documents, OR the single short "not in documents" sentence when the docs do not contain the answer.`,
			Temperature:    synthesisTemperature,
		},
		{
			Role:        formatterRole,
			Description: formatPrompt(query, assessment.TargetMin, assessment.TargetMax),
			ExpectedOutput: "Professional WhatsApp message with bold formatting, " +
				"within the target character range.",
			ReceivesPrior: true,
			Temperature:   synthesisTemperature,
		},
	}

	return s.completer.RunMultiRole(ctx, tasks)
}

// selectStrategy picks the fast path for simple text-only queries and the
// multi-role pipeline otherwise.
func selectStrategy(direct, multiStep strategy, level classify.Level, imageRequested bool) strategy {
	if level == classify.LevelSimple && !imageRequested {
		return direct
	}
	return multiStep
}
