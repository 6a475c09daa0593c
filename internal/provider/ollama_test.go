package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOllamaComplete(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotReq ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":{"role":"assistant","content":"4"},"prompt_eval_count":12,"eval_count":3}`))
	}))
	defer srv.Close()

	// Trailing slash on the base URL must not produce a double slash.
	p := NewOllama(srv.URL+"/", "qwen2.5:3b", 5*time.Second)
	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{
			{Role: MessageRoleSystem, Content: "You are terse."},
			{Role: MessageRoleUser, Content: "2+2?"},
		},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	if gotPath != "/api/chat" {
		t.Errorf("path = %q, want /api/chat", gotPath)
	}
	if gotReq.Stream {
		t.Error("stream must be false")
	}
	if gotReq.Model != "qwen2.5:3b" {
		t.Errorf("model = %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[1].Content != "2+2?" {
		t.Errorf("messages = %+v", gotReq.Messages)
	}
	if resp.Content != "4" {
		t.Errorf("content = %q, want 4", resp.Content)
	}
	if resp.Usage.PromptTokens != 12 || resp.Usage.CompletionTokens != 3 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestOllamaCompleteErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewOllama(srv.URL, "missing:latest", 5*time.Second)
	_, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: MessageRoleUser, Content: "hi"}},
	})
	if !errors.Is(err, ErrBadResponse) {
		t.Fatalf("got %v, want ErrBadResponse", err)
	}
	if want := "model not found"; err != nil && !strings.Contains(err.Error(), want) {
		t.Errorf("error %q does not carry the body detail %q", err, want)
	}
}

func TestOllamaCompleteUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // nothing listens anymore

	p := NewOllama(srv.URL, "qwen2.5:3b", time.Second)
	_, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: MessageRoleUser, Content: "hi"}},
	})
	if !errors.Is(err, ErrProviderDown) {
		t.Fatalf("got %v, want ErrProviderDown", err)
	}
	if !IsRetryable(err) {
		t.Error("a down provider should be retryable")
	}
}

func TestOllamaCompleteTimeout(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	p := NewOllama(srv.URL, "qwen2.5:3b", 50*time.Millisecond)
	_, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: MessageRoleUser, Content: "hi"}},
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
}

func TestOllamaCompleteBadJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	}))
	defer srv.Close()

	p := NewOllama(srv.URL, "qwen2.5:3b", time.Second)
	_, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: MessageRoleUser, Content: "hi"}},
	})
	if !errors.Is(err, ErrBadResponse) {
		t.Fatalf("got %v, want ErrBadResponse", err)
	}
}

func TestNewProvider(t *testing.T) {
	t.Parallel()

	p, err := New("Ollama", "http://localhost:11434", "qwen2.5:3b", time.Minute)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if p.ModelName() != "qwen2.5:3b" {
		t.Errorf("model = %q", p.ModelName())
	}

	if _, err := New("openai", "http://x", "gpt", time.Minute); !errors.Is(err, ErrUnsupported) {
		t.Errorf("got %v, want ErrUnsupported", err)
	}
}
