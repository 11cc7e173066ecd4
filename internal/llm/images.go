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

// ImageClient is a client for an OpenAI-style image generation API.
type ImageClient struct {
	BaseURL string
	APIKey  string
	Model   string
	Size    string
	Quality string
	client  *http.Client
}

// NewImageClient creates a new image generation client. Image generation is
// slow; the timeout is sized accordingly.
func NewImageClient(baseURL, apiKey, model, size, quality string) *ImageClient {
	return &ImageClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		Size:    size,
		Quality: quality,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type imageRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Size    string `json:"size"`
	Quality string `json:"quality"`
	N       int    `json:"n"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// Generate creates one image for the prompt and returns its URL. All
// failures are reported as *ImageGenError.
func (c *ImageClient) Generate(ctx context.Context, prompt string) (string, error) {
	url := fmt.Sprintf("%s/v1/images/generations", c.BaseURL)

	body, err := json.Marshal(imageRequest{
		Model:   c.Model,
		Prompt:  prompt,
		Size:    c.Size,
		Quality: c.Quality,
		N:       1,
	})
	if err != nil {
		return "", &ImageGenError{Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return "", &ImageGenError{Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &ImageGenError{Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", &ImageGenError{Err: fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))}
	}

	var imgResp imageResponse
	if err := json.NewDecoder(resp.Body).Decode(&imgResp); err != nil {
		return "", &ImageGenError{Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	if len(imgResp.Data) == 0 || imgResp.Data[0].URL == "" {
		return "", &ImageGenError{Err: fmt.Errorf("no image returned")}
	}

	return imgResp.Data[0].URL, nil
}
