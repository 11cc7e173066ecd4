package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks safeguardai/internal/vectorstore VectorStore

import "context"

// Point represents a vector point with metadata.
type Point struct {
	ID   string
	Vec  []float32
	Meta map[string]any
}

// Hit is one retrieved chunk. Distance is a cosine distance: 0 means
// identical, larger means less similar.
type Hit struct {
	Text     string
	Source   string
	Distance float64
	Meta     map[string]any
}

// VectorStore defines the interface for vector storage operations.
type VectorStore interface {
	// Upsert inserts or updates points in the collection.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns the k nearest points to query, ordered by ascending
	// distance.
	Search(ctx context.Context, collection string, query []float32, k int) ([]Hit, error)

	// DeleteBySource removes every point whose source metadata matches.
	DeleteBySource(ctx context.Context, collection, source string) error

	// Sources returns the distinct source titles stored in the collection.
	Sources(ctx context.Context, collection string) ([]string, error)

	// Count returns the number of points in the collection.
	Count(ctx context.Context, collection string) (int, error)
}
