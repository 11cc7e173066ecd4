package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"safeguardai/internal/vectorstore"
	"safeguardai/internal/vectorstore/mocks"
)

type stubEmbedder struct {
	fn    func(text string) ([]float32, error)
	calls int
}

func (s *stubEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	s.calls++
	if s.fn != nil {
		return s.fn(text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manual.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test document: %v", err)
	}
	return path
}

func TestPipeline_AddDocument(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)
	embedder := &stubEmbedder{}
	pipeline := NewPipeline(embedder, store, "safety_documents", NewWordChunker(50, 10))

	path := writeDoc(t, strings.Repeat("ppe inspection before every shift ", 10))

	store.EXPECT().Sources(gomock.Any(), "safety_documents").Return(nil, nil)
	store.EXPECT().Upsert(gomock.Any(), "safety_documents", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, points []vectorstore.Point) error {
			if len(points) == 0 {
				t.Error("Upsert() called with no points")
			}
			for i, point := range points {
				if point.Meta["source"] != "PPE Manual" {
					t.Errorf("point %d source = %v, want PPE Manual", i, point.Meta["source"])
				}
				if point.Meta["text"] == "" {
					t.Errorf("point %d has empty text payload", i)
				}
			}
			return nil
		})

	if err := pipeline.AddDocument(context.Background(), path, "PPE Manual", false); err != nil {
		t.Fatalf("AddDocument() error = %v", err)
	}
	if embedder.calls == 0 {
		t.Error("embedder was never called")
	}
}

func TestPipeline_AddDocument_SkipsIndexed(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)
	embedder := &stubEmbedder{}
	pipeline := NewPipeline(embedder, store, "safety_documents", NewWordChunker(50, 10))

	path := writeDoc(t, "ladder inspection checklist")

	store.EXPECT().Sources(gomock.Any(), "safety_documents").Return([]string{"Ladder Manual"}, nil)

	if err := pipeline.AddDocument(context.Background(), path, "Ladder Manual", false); err != nil {
		t.Fatalf("AddDocument() error = %v", err)
	}
	if embedder.calls != 0 {
		t.Errorf("embedder called %d times for an already indexed document", embedder.calls)
	}
}

func TestPipeline_AddDocument_ForceReplaces(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)
	embedder := &stubEmbedder{}
	pipeline := NewPipeline(embedder, store, "safety_documents", NewWordChunker(50, 10))

	path := writeDoc(t, "ladder inspection checklist with new revision details")

	store.EXPECT().Sources(gomock.Any(), "safety_documents").Return([]string{"Ladder Manual"}, nil)
	store.EXPECT().DeleteBySource(gomock.Any(), "safety_documents", "Ladder Manual").Return(nil)
	store.EXPECT().Upsert(gomock.Any(), "safety_documents", gomock.Any()).Return(nil)

	if err := pipeline.AddDocument(context.Background(), path, "Ladder Manual", true); err != nil {
		t.Fatalf("AddDocument() error = %v", err)
	}
}

func TestPipeline_AddDocument_AllChunksFail(t *testing.T) {
	tests := []struct {
		name    string
		embed   error
		wantMsg string
	}{
		{
			name:    "credential error",
			embed:   errors.New("embedding failed: invalid api_key provided"),
			wantMsg: "OPENAI_API_KEY",
		},
		{
			name:    "connectivity error",
			embed:   errors.New("embedding failed: connection refused"),
			wantMsg: "Could not reach OpenAI",
		},
		{
			name:    "other error kept verbatim",
			embed:   errors.New("model overloaded"),
			wantMsg: "model overloaded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			store := mocks.NewMockVectorStore(ctrl)
			embedder := &stubEmbedder{fn: func(string) ([]float32, error) { return nil, tt.embed }}
			pipeline := NewPipeline(embedder, store, "safety_documents", NewWordChunker(50, 10))

			path := writeDoc(t, "forklift pre-use inspection steps")

			store.EXPECT().Sources(gomock.Any(), "safety_documents").Return(nil, nil)

			err := pipeline.AddDocument(context.Background(), path, "Forklift Manual", false)
			if err == nil {
				t.Fatal("AddDocument() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("AddDocument() error = %q, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestPipeline_AddDocument_PartialFailureStoresRest(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)

	var n int
	embedder := &stubEmbedder{fn: func(string) ([]float32, error) {
		n++
		if n == 1 {
			return nil, fmt.Errorf("transient failure")
		}
		return []float32{1}, nil
	}}
	pipeline := NewPipeline(embedder, store, "safety_documents", NewWordChunker(30, 5))

	path := writeDoc(t, strings.Repeat("scaffold erection and inspection rules ", 8))

	store.EXPECT().Sources(gomock.Any(), "safety_documents").Return(nil, nil)
	store.EXPECT().Upsert(gomock.Any(), "safety_documents", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, points []vectorstore.Point) error {
			if len(points) == 0 {
				t.Error("expected surviving chunks to be stored")
			}
			return nil
		})

	if err := pipeline.AddDocument(context.Background(), path, "Scaffold Manual", false); err != nil {
		t.Fatalf("AddDocument() error = %v", err)
	}
}

func TestPipeline_Stats(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)
	pipeline := NewPipeline(&stubEmbedder{}, store, "safety_documents", NewWordChunker(50, 10))

	store.EXPECT().Count(gomock.Any(), "safety_documents").Return(42, nil)
	store.EXPECT().Sources(gomock.Any(), "safety_documents").Return([]string{"A", "B"}, nil)

	stats, err := pipeline.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Chunks != 42 {
		t.Errorf("Stats() chunks = %d, want 42", stats.Chunks)
	}
	if len(stats.Sources) != 2 {
		t.Errorf("Stats() sources = %v, want 2 entries", stats.Sources)
	}
}
