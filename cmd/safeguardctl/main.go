package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"safeguardai/internal/config"
	"safeguardai/internal/contextutil"
	"safeguardai/internal/indexer"
	"safeguardai/internal/llm"
	"safeguardai/internal/vectorstore"
)

func main() {
	root := &cobra.Command{
		Use:           "safeguardctl",
		Short:         "Operator tool for the SafeGuardAI document index",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newIndexCmd(), newStatsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// buildPipeline wires config, embedder and vector store for a command run.
func buildPipeline(ctx context.Context) (*indexer.Pipeline, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	store, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureCollection(ctx, cfg.QdrantCollection, cfg.QdrantVectorSize); err != nil {
		return nil, err
	}

	embedder := llm.NewEmbeddingsClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.QdrantVectorSize)
	chunker := indexer.NewWordChunker(cfg.Rules.ChunkSize, cfg.Rules.ChunkOverlap)
	return indexer.NewPipeline(embedder, store, cfg.QdrantCollection, chunker), nil
}

func newIndexCmd() *cobra.Command {
	var title string
	var force bool

	cmd := &cobra.Command{
		Use:   "index <path>",
		Short: "Chunk, embed and store a safety document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := contextutil.WithLogger(cmd.Context(), slog.Default())
			pipeline, err := buildPipeline(ctx)
			if err != nil {
				return err
			}
			if err := pipeline.AddDocument(ctx, args[0], title, force); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "indexed", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "document title (derived from the file when empty)")
	cmd.Flags().BoolVar(&force, "force", false, "re-index even when the title is already indexed")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index counts and document titles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := contextutil.WithLogger(cmd.Context(), slog.Default())
			pipeline, err := buildPipeline(ctx)
			if err != nil {
				return err
			}
			stats, err := pipeline.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "chunks: %d\ndocuments: %d\n", stats.Chunks, len(stats.Sources))
			for _, source := range stats.Sources {
				fmt.Fprintln(cmd.OutOrStdout(), "  -", source)
			}
			return nil
		},
	}
}
