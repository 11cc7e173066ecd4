package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// EmbeddingsClient is a client for an OpenAI-style embeddings API.
type EmbeddingsClient struct {
	BaseURL      string
	APIKey       string
	Model        string
	ExpectedSize int // Expected vector size for validation
	client       *http.Client
}

// NewEmbeddingsClient creates a new embeddings client. expectedSize is the
// vector size the index was created with; every returned vector is validated
// against it.
func NewEmbeddingsClient(baseURL, apiKey, model string, expectedSize int) *EmbeddingsClient {
	return &EmbeddingsClient{
		BaseURL:      baseURL,
		APIKey:       apiKey,
		Model:        model,
		ExpectedSize: expectedSize,
		client:       &http.Client{Timeout: 30 * time.Second},
	}
}

// EmbeddingsRequest represents the request payload for the embeddings API.
type EmbeddingsRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// EmbeddingData represents a single embedding in the response.
type EmbeddingData struct {
	Embedding []float64 `json:"embedding"`
}

// EmbeddingsResponse represents the response from the embeddings API.
type EmbeddingsResponse struct {
	Data []EmbeddingData `json:"data"`
}

// EmbedText generates the embedding vector for one text. All failures are
// reported as *EmbeddingError.
func (c *EmbeddingsClient) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, &EmbeddingError{Err: fmt.Errorf("empty input")}
	}

	url := fmt.Sprintf("%s/v1/embeddings", c.BaseURL)

	body, err := json.Marshal(EmbeddingsRequest{Model: c.Model, Input: text})
	if err != nil {
		return nil, &EmbeddingError{Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, &EmbeddingError{Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &EmbeddingError{Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, &EmbeddingError{Err: fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))}
	}

	var embeddingsResp EmbeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingsResp); err != nil {
		return nil, &EmbeddingError{Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	if len(embeddingsResp.Data) == 0 {
		return nil, &EmbeddingError{Err: fmt.Errorf("no embedding returned")}
	}

	data := embeddingsResp.Data[0]
	if c.ExpectedSize > 0 && len(data.Embedding) != c.ExpectedSize {
		return nil, &EmbeddingError{Err: fmt.Errorf("embedding has size %d, expected %d", len(data.Embedding), c.ExpectedSize)}
	}

	vec := make([]float32, len(data.Embedding))
	for i, v := range data.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
