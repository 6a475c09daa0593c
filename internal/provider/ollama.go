package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
)

// Ollama talks to an Ollama-compatible /api/chat endpoint.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates an Ollama provider. A zero timeout disables the client
// deadline; the gateway enforces its own boundary timeout regardless.
func NewOllama(baseURL, model string, timeout time.Duration) *Ollama {
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// ModelName returns the configured model identifier.
func (o *Ollama) ModelName() string {
	return o.model
}

type ollamaChatRequest struct {
	Model    string    `json:"model"`
	Stream   bool      `json:"stream"`
	Messages []Message `json:"messages"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

// Complete performs a single non-streaming chat completion.
func (o *Ollama) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	body, err := json.Marshal(ollamaChatRequest{
		Model:    o.model,
		Stream:   false,
		Messages: req.Messages,
	})
	if err != nil {
		return CompletionResponse{}, err
	}

	url := o.baseURL + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return CompletionResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return CompletionResponse{}, requestError(err, url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr != nil {
			detail = []byte("<failed to read response body>")
		}
		return CompletionResponse{}, fmt.Errorf("%w: status %d: %s", ErrBadResponse, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var parsed ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return CompletionResponse{}, fmt.Errorf("%w: parsing chat response: %v", ErrBadResponse, err)
	}

	return CompletionResponse{
		Content: parsed.Message.Content,
		Usage: Usage{
			PromptTokens:     parsed.PromptEvalCount,
			CompletionTokens: parsed.EvalCount,
		},
	}, nil
}

// requestError maps transport failures to sentinels with actionable detail:
// a refused connection and a timeout get distinct messages so the operator
// knows whether to start the provider or raise the deadline.
func requestError(err error, url string) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: no answer from %s; increase the model timeout or check model responsiveness", ErrTimeout, url)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%w: connection refused by %s; ensure the model provider is running and the base URL is correct", ErrProviderDown, url)
	}
	return fmt.Errorf("%w: calling %s: %v", ErrProviderDown, url, err)
}

// New builds a provider from the configured kind. Only "ollama" is known.
func New(kind, baseURL, model string, timeout time.Duration) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "ollama":
		return NewOllama(baseURL, model, timeout), nil
	default:
		return nil, fmt.Errorf("%w: %q (supported: ollama)", ErrUnsupported, kind)
	}
}
