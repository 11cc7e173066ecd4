package llm

import "fmt"

// EmbeddingError wraps a failure of the embedding service. Callers may treat
// it as fatal for the chunk being embedded.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string { return fmt.Sprintf("embedding failed: %v", e.Err) }
func (e *EmbeddingError) Unwrap() error { return e.Err }

// ImageGenError wraps a failure of the image generation service.
type ImageGenError struct {
	Err error
}

func (e *ImageGenError) Error() string { return fmt.Sprintf("image generation failed: %v", e.Err) }
func (e *ImageGenError) Unwrap() error { return e.Err }
