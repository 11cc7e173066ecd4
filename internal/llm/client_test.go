package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func chatServer(t *testing.T, reply func(req ChatRequest) string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}

		resp := ChatResponse{Choices: []ChatChoice{{Message: ChatMessage{Role: "assistant", Content: reply(req)}}}}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Fatalf("failed to encode response: %v", err)
		}
	}))
}

func TestClient_Complete(t *testing.T) {
	var seen ChatRequest
	server := chatServer(t, func(req ChatRequest) string {
		seen = req
		return "  Wear your hard hat.  "
	})
	defer server.Close()

	client := NewClient(server.URL, "test-key", "gpt-4o-mini")
	got, err := client.Complete(context.Background(), "You are a safety assistant.", "what ppe for welding", 0.05, 600)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "Wear your hard hat." {
		t.Errorf("Complete() = %q, want trimmed reply", got)
	}

	if seen.Model != "gpt-4o-mini" {
		t.Errorf("request model = %q", seen.Model)
	}
	if seen.Temperature != 0.05 {
		t.Errorf("request temperature = %v", seen.Temperature)
	}
	if seen.MaxTokens != 600 {
		t.Errorf("request max_tokens = %d", seen.MaxTokens)
	}
	if len(seen.Messages) != 2 || seen.Messages[0].Role != "system" || seen.Messages[1].Role != "user" {
		t.Errorf("request messages = %+v", seen.Messages)
	}
}

func TestClient_Complete_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limit"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", "gpt-4o-mini")
	_, err := client.Complete(context.Background(), "system", "user", 0.1, 100)
	if err == nil {
		t.Fatal("Complete() error = nil, want bad status error")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("Complete() error = %v, want status code in it", err)
	}
}

func TestClient_Complete_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", "gpt-4o-mini")
	if _, err := client.Complete(context.Background(), "system", "user", 0.1, 100); err == nil {
		t.Error("Complete() error = nil, want no choices error")
	}
}

func TestClient_RunMultiRole(t *testing.T) {
	var prompts []string
	server := chatServer(t, func(req ChatRequest) string {
		prompts = append(prompts, req.Messages[1].Content)
		if len(prompts) == 1 {
			return "research findings"
		}
		return "formatted answer"
	})
	defer server.Close()

	client := NewClient(server.URL, "test-key", "gpt-4o-mini")
	tasks := []Task{
		{
			Role:        Role{Name: "a researcher", Goal: "find facts", Backstory: "expert"},
			Description: "research the question",
		},
		{
			Role:          Role{Name: "a formatter", Goal: "format", Backstory: "editor"},
			Description:   "format the findings",
			ReceivesPrior: true,
		},
	}

	got, err := client.RunMultiRole(context.Background(), tasks)
	if err != nil {
		t.Fatalf("RunMultiRole() error = %v", err)
	}
	if got != "formatted answer" {
		t.Errorf("RunMultiRole() = %q, want final task output", got)
	}

	if len(prompts) != 2 {
		t.Fatalf("got %d completion calls, want 2", len(prompts))
	}
	if !strings.Contains(prompts[1], "--- OUTPUT FROM THE PREVIOUS STEP ---") {
		t.Errorf("second prompt missing prior-output marker: %q", prompts[1])
	}
	if !strings.Contains(prompts[1], "research findings") {
		t.Errorf("second prompt missing first task output: %q", prompts[1])
	}
}

func TestClient_RunMultiRole_Empty(t *testing.T) {
	client := NewClient("http://unused", "test-key", "gpt-4o-mini")
	if _, err := client.RunMultiRole(context.Background(), nil); err == nil {
		t.Error("RunMultiRole() error = nil, want error for no tasks")
	}
}

func TestClient_RunMultiRole_FailedTaskNamesRole(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", "gpt-4o-mini")
	tasks := []Task{{Role: Role{Name: "a researcher"}, Description: "research"}}

	_, err := client.RunMultiRole(context.Background(), tasks)
	if err == nil {
		t.Fatal("RunMultiRole() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "a researcher") {
		t.Errorf("RunMultiRole() error = %v, want failing role named", err)
	}
}
