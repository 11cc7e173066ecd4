package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"
)

// Supported audio containers for voice-note transcription.
var supportedAudioFormats = map[string]struct{}{
	".mp3": {}, ".mp4": {}, ".mpeg": {}, ".mpga": {},
	".m4a": {}, ".wav": {}, ".webm": {}, ".ogg": {},
}

// TranscribeClient is a client for an OpenAI-style audio transcription API.
type TranscribeClient struct {
	BaseURL string
	APIKey  string
	Model   string
	client  *http.Client
}

// NewTranscribeClient creates a new transcription client.
func NewTranscribeClient(baseURL, apiKey, model string) *TranscribeClient {
	return &TranscribeClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads audio and returns the transcript text. filename decides
// the container format; unsupported formats fail without an upload.
func (c *TranscribeClient) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := supportedAudioFormats[ext]; !ok {
		return "", fmt.Errorf("unsupported audio format %q", ext)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", fmt.Errorf("failed to copy audio: %w", err)
	}
	if err := writer.WriteField("model", c.Model); err != nil {
		return "", fmt.Errorf("failed to write model field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalise form: %w", err)
	}

	url := fmt.Sprintf("%s/v1/audio/transcriptions", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}

	var transcript transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&transcript); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return strings.TrimSpace(transcript.Text), nil
}
