package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTranscribeClient_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("failed to parse multipart form: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model field = %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file part: %v", err)
		}
		defer func() {
			_ = file.Close()
		}()
		if header.Filename != "voice.ogg" {
			t.Errorf("uploaded filename = %q", header.Filename)
		}
		w.Write([]byte(`{"text":" what ppe do i need for welding "}`))
	}))
	defer server.Close()

	client := NewTranscribeClient(server.URL, "test-key", "whisper-1")
	got, err := client.Transcribe(context.Background(), strings.NewReader("OggS fake audio"), "voice.ogg")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got != "what ppe do i need for welding" {
		t.Errorf("Transcribe() = %q, want trimmed transcript", got)
	}
}

func TestTranscribeClient_Transcribe_UnsupportedFormat(t *testing.T) {
	requested := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = true
	}))
	defer server.Close()

	client := NewTranscribeClient(server.URL, "test-key", "whisper-1")
	_, err := client.Transcribe(context.Background(), strings.NewReader("data"), "voice.flac")
	if err == nil {
		t.Fatal("Transcribe() error = nil, want unsupported format error")
	}
	if requested {
		t.Error("unsupported format still uploaded audio")
	}
}
