package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a client for an OpenAI-style chat completions API.
type Client struct {
	BaseURL string
	APIKey  string
	Model   string
	client  *http.Client
}

// NewClient creates a new completions client. Calls carry a bounded timeout
// because no cancellation is propagated into background message tasks.
func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		client:  &http.Client{Timeout: 90 * time.Second},
	}
}

// ChatMessage represents a single message in a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents the request payload for chat completions.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// ChatChoice represents a single choice in the chat response.
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatResponse represents the response from the chat completions API.
type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Choices []ChatChoice `json:"choices"`
}

// Complete sends one system+user completion request and returns the reply
// text, trimmed.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error) {
	url := fmt.Sprintf("%s/v1/chat/completions", c.BaseURL)

	payload := ChatRequest{
		Model: c.Model,
		Messages: []ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	req.Header.Set("Content-Type", "application/json")

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

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}

	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}

// Role describes one role in a multi-role pipeline.
type Role struct {
	Name      string
	Goal      string
	Backstory string
}

// Task is one step of a multi-role pipeline: a role plus its briefing. When
// ReceivesPrior is set, the previous task's output is appended to the
// briefing so the role can build on it.
type Task struct {
	Role           Role
	Description    string
	ExpectedOutput string
	ReceivesPrior  bool
	Temperature    float64
	MaxTokens      int
}

// RunMultiRole executes tasks sequentially, feeding each task's output into
// the next, and returns the final task's output.
func (c *Client) RunMultiRole(ctx context.Context, tasks []Task) (string, error) {
	if len(tasks) == 0 {
		return "", fmt.Errorf("no tasks given")
	}

	var prior string
	for i, task := range tasks {
		systemPrompt := fmt.Sprintf(
			"You are %s.\n\nYOUR GOAL: %s\n\nBACKGROUND: %s",
			task.Role.Name, task.Role.Goal, task.Role.Backstory,
		)
		if task.ExpectedOutput != "" {
			systemPrompt += "\n\nEXPECTED OUTPUT: " + task.ExpectedOutput
		}

		userPrompt := task.Description
		if task.ReceivesPrior && prior != "" {
			userPrompt += "\n\n--- OUTPUT FROM THE PREVIOUS STEP ---\n" + prior
		}

		out, err := c.Complete(ctx, systemPrompt, userPrompt, task.Temperature, task.MaxTokens)
		if err != nil {
			return "", fmt.Errorf("multi-role task %d (%s) failed: %w", i, task.Role.Name, err)
		}
		prior = out
	}

	return prior, nil
}
