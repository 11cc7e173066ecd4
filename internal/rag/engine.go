package rag

import (
	"context"
	"fmt"
	"strings"

	"safeguardai/internal/classify"
	"safeguardai/internal/config"
	"safeguardai/internal/contextutil"
	"safeguardai/internal/postprocess"
	"safeguardai/internal/vectorstore"
)

// Embedder generates the query embedding for retrieval.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Engine answers safety questions from indexed documents: retrieve, gate,
// synthesise, post-process.
type Engine struct {
	embedder   Embedder
	store      vectorstore.VectorStore
	collection string
	scorer     *classify.ComplexityScorer
	direct     strategy
	multiStep  strategy
	imageTool  *ImageTool
	processor  *postprocess.Processor
	rules      *config.Rules
}

// NewEngine creates an answer engine.
func NewEngine(
	embedder Embedder,
	store vectorstore.VectorStore,
	collection string,
	completer Completer,
	imageTool *ImageTool,
	rules *config.Rules,
) *Engine {
	return &Engine{
		embedder:   embedder,
		store:      store,
		collection: collection,
		scorer: classify.NewComplexityScorer(
			rules.ComplexityMediumThreshold,
			rules.ComplexityComplexThreshold,
			rules.ComplexitySimpleTarget,
			rules.ComplexityMediumTarget,
			rules.ComplexityComplexTarget,
		),
		direct:    &directStrategy{completer: completer, notInDocs: rules.NotInDocumentsMessage},
		multiStep: &multiStepStrategy{completer: completer, notInDocs: rules.NotInDocumentsMessage},
		imageTool: imageTool,
		processor: postprocess.NewProcessor(rules.NotInDocumentsMessage, rules.MaxOutboundLength),
		rules:     rules,
	}
}

// notInDocs builds the canonical refusal result.
func (e *Engine) notInDocs() Result {
	return Result{Answer: e.rules.NotInDocumentsMessage}
}

// Answer resolves a safety query. priorSources are the document titles from
// the sender's recent conversation; they widen retrieval when the bare query
// lands outside the relevance threshold.
func (e *Engine) Answer(ctx context.Context, query string, priorSources []string) (Result, error) {
	logger := contextutil.LoggerFromContext(ctx)

	assessment := e.scorer.Assess(query)
	logger.InfoContext(ctx, "query complexity assessed",
		"level", assessment.Level, "target_min", assessment.TargetMin,
		"target_max", assessment.TargetMax, "reason", assessment.Reasoning)

	hits, err := e.search(ctx, query)
	if err != nil {
		return Result{}, err
	}
	if len(hits) == 0 {
		logger.WarnContext(ctx, "no retrieval results")
		return e.notInDocs(), nil
	}

	threshold := e.rules.RelevanceDistanceThreshold
	if best := bestDistance(hits); threshold > 0 && best > threshold {
		if len(priorSources) == 0 {
			logger.InfoContext(ctx, "relevance gate rejected query",
				"best_distance", best, "threshold", threshold)
			return e.notInDocs(), nil
		}

		// The query alone may be an elliptical follow-up; retry with the
		// conversation's document titles prepended.
		augmented := strings.Join(priorSources, " ") + " " + query
		logger.InfoContext(ctx, "relevance gate retrying with conversation context",
			"best_distance", best, "threshold", threshold, "prior_sources", priorSources)

		retryHits, err := e.search(ctx, augmented)
		if err != nil {
			return Result{}, err
		}
		retryBest := bestDistance(retryHits)
		if len(retryHits) == 0 || retryBest > threshold {
			logger.InfoContext(ctx, "relevance gate retry still above threshold",
				"best_distance", retryBest)
			return e.notInDocs(), nil
		}
		hits = retryHits
	}

	sources := uniqueSources(hits)

	if topicNotInSources(query, sources, e.rules.TopicGateRules) {
		logger.InfoContext(ctx, "topic gate rejected query", "sources", sources)
		return e.notInDocs(), nil
	}

	docContext := buildContext(hits)
	imageRequested := ImageRequested(query, e.rules.ImageTriggerPhrases)

	answer, err := selectStrategy(e.direct, e.multiStep, assessment.Level, imageRequested).
		Synthesize(ctx, query, docContext, assessment)
	if err != nil {
		return Result{}, fmt.Errorf("answer synthesis failed: %w", err)
	}

	processed := e.processor.Process(ctx, postprocess.Input{
		Answer:         answer,
		Sources:        sources,
		ImageRequested: imageRequested,
		FallbackImage:  e.fallbackImage(query),
	})

	return Result{
		Answer:   processed.Text,
		Sources:  processed.Sources,
		ImageURL: processed.ImageURL,
	}, nil
}

// search embeds the query and retrieves the nearest chunks. An empty index
// short-circuits without an embedding call.
func (e *Engine) search(ctx context.Context, query string) ([]vectorstore.Hit, error) {
	count, err := e.store.Count(ctx, e.collection)
	if err != nil {
		return nil, fmt.Errorf("failed to count index: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	vec, err := e.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	k := e.rules.RAGNumResults
	if k > count {
		k = count
	}

	hits, err := e.store.Search(ctx, e.collection, vec, k)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	// Drop hits with no usable text.
	kept := hits[:0]
	for _, hit := range hits {
		if strings.TrimSpace(hit.Text) != "" {
			kept = append(kept, hit)
		}
	}
	return kept, nil
}

// fallbackImage returns the post-processing hook that generates an image when
// the synthesis produced none.
func (e *Engine) fallbackImage(query string) func(ctx context.Context) string {
	if e.imageTool == nil {
		return nil
	}
	return func(ctx context.Context) string {
		description := DescriptionForImage(
			query,
			e.rules.ImageTriggerPhrases,
			e.rules.ImageDescriptionMaxLength,
			e.rules.ImageDescriptionFallback,
		)
		return postprocess.ExtractImageURL(e.imageTool.Run(ctx, description))
	}
}

// bestDistance returns the minimum distance among hits, or 0 for none.
func bestDistance(hits []vectorstore.Hit) float64 {
	if len(hits) == 0 {
		return 0
	}
	best := hits[0].Distance
	for _, hit := range hits[1:] {
		if hit.Distance < best {
			best = hit.Distance
		}
	}
	return best
}

// uniqueSources returns the distinct source titles in hit order.
func uniqueSources(hits []vectorstore.Hit) []string {
	seen := make(map[string]struct{}, len(hits))
	var sources []string
	for _, hit := range hits {
		if hit.Source == "" {
			continue
		}
		if _, ok := seen[hit.Source]; ok {
			continue
		}
		seen[hit.Source] = struct{}{}
		sources = append(sources, hit.Source)
	}
	return sources
}

// buildContext formats hits as attributed excerpts for the prompts.
func buildContext(hits []vectorstore.Hit) string {
	parts := make([]string, 0, len(hits))
	for _, hit := range hits {
		parts = append(parts, fmt.Sprintf("From %s:\n%s", hit.Source, hit.Text))
	}
	return strings.Join(parts, "\n\n")
}

// topicNotInSources reports whether the query mentions a gated topic whose
// required source hints are absent from every retrieved title.
func topicNotInSources(query string, sources []string, gateRules []config.TopicGateRule) bool {
	q := strings.ToLower(query)
	joined := strings.ToLower(strings.Join(sources, " "))

	for _, rule := range gateRules {
		triggered := false
		for _, kw := range rule.TriggerKeywords {
			if strings.Contains(q, strings.ToLower(kw)) {
				triggered = true
				break
			}
		}
		if !triggered {
			continue
		}

		hinted := false
		for _, hint := range rule.RequiredSourceHints {
			if strings.Contains(joined, strings.ToLower(hint)) {
				hinted = true
				break
			}
		}
		if !hinted {
			return true
		}
	}
	return false
}
