package indexer

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/google/uuid"

	"safeguardai/internal/contextutil"
	"safeguardai/internal/vectorstore"
)

// Embedder generates embedding vectors for chunk texts.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Pipeline orchestrates the indexing of documents into the vector store.
type Pipeline struct {
	embedder   Embedder
	store      vectorstore.VectorStore
	collection string
	chunker    *WordChunker
}

// NewPipeline creates a new indexing pipeline.
func NewPipeline(embedder Embedder, store vectorstore.VectorStore, collection string, chunker *WordChunker) *Pipeline {
	return &Pipeline{
		embedder:   embedder,
		store:      store,
		collection: collection,
		chunker:    chunker,
	}
}

// IsIndexed reports whether a document with the given title is already in the
// index. Lookup failures are treated as not indexed.
func (p *Pipeline) IsIndexed(ctx context.Context, title string) bool {
	sources, err := p.store.Sources(ctx, p.collection)
	if err != nil {
		return false
	}
	return slices.Contains(sources, title)
}

// AddDocument reads, chunks, embeds and stores one document under the given
// title. Re-indexing an already indexed title is a no-op unless force is set,
// in which case the old chunks are replaced. Individual chunk embedding
// failures are skipped; the call fails only when no chunk could be embedded.
func (p *Pipeline) AddDocument(ctx context.Context, path, title string, force bool) error {
	logger := contextutil.LoggerFromContext(ctx)

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read document %s: %w", path, err)
	}

	if title == "" {
		title = DocumentTitle(content, path)
	}

	alreadyIndexed := p.IsIndexed(ctx, title)
	if alreadyIndexed && !force {
		logger.InfoContext(ctx, "document already indexed, skipping", "title", title)
		return nil
	}

	chunks := p.chunker.Chunk(string(content))
	logger.InfoContext(ctx, "document chunked", "title", title, "chunks", len(chunks))

	if alreadyIndexed && force {
		if err := p.store.DeleteBySource(ctx, p.collection, title); err != nil {
			logger.WarnContext(ctx, "failed to delete existing chunks", "title", title, "error", err)
		}
	}

	points := make([]vectorstore.Point, 0, len(chunks))
	var firstErr error
	for _, chunk := range chunks {
		vec, err := p.embedder.EmbedText(ctx, chunk.Text)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			logger.ErrorContext(ctx, "failed to embed chunk", "title", title, "chunk", chunk.Index, "error", err)
			continue
		}

		// Deterministic IDs keep re-indexing idempotent at the point level.
		id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s_chunk_%d", title, chunk.Index)))
		points = append(points, vectorstore.Point{
			ID:  id.String(),
			Vec: vec,
			Meta: map[string]any{
				"source":      title,
				"chunk_index": chunk.Index,
				"text":        chunk.Text,
				"origin_path": path,
			},
		})
	}

	if len(points) > 0 {
		if err := p.store.Upsert(ctx, p.collection, points); err != nil {
			return fmt.Errorf("failed to store chunks: %w", err)
		}
	} else if len(chunks) > 0 && firstErr != nil {
		return fmt.Errorf("indexing failed: %s", classifyEmbedError(firstErr))
	}

	logger.InfoContext(ctx, "document indexed", "title", title, "chunks_stored", len(points), "chunks_total", len(chunks))
	return nil
}

// Stats returns the current index counts and source titles.
func (p *Pipeline) Stats(ctx context.Context) (Stats, error) {
	count, err := p.store.Count(ctx, p.collection)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count chunks: %w", err)
	}

	sources, err := p.store.Sources(ctx, p.collection)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to list sources: %w", err)
	}

	return Stats{Chunks: count, Sources: sources}, nil
}

// classifyEmbedError turns common embedding failures into operator-friendly
// messages.
func classifyEmbedError(err error) string {
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		msg = "embedding API error"
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "api_key") || strings.Contains(lower, "authentication"):
		return "OpenAI API key is missing or invalid. Check OPENAI_API_KEY in .env"
	case strings.Contains(lower, "connection") || strings.Contains(lower, "timeout"):
		return "Could not reach OpenAI (connection or timeout). Check network and try again."
	default:
		return msg
	}
}
