// Package providertest provides a mock provider for testing.
package providertest

import (
	"context"
	"sync/atomic"

	"github.com/warden-run/warden/internal/provider"
)

// MockProvider is a configurable provider for tests.
type MockProvider struct {
	// Model is the name reported by ModelName. Defaults to "mock" when empty.
	Model string

	// CompleteFunc handles Complete calls. When nil, Complete echoes the
	// last message content back.
	CompleteFunc func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)

	calls atomic.Int64
}

var _ provider.Provider = (*MockProvider)(nil)

// Complete records the call and delegates to CompleteFunc.
func (m *MockProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	m.calls.Add(1)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	var last string
	if n := len(req.Messages); n > 0 {
		last = req.Messages[n-1].Content
	}
	return provider.CompletionResponse{Content: last}, nil
}

// ModelName returns the configured model name.
func (m *MockProvider) ModelName() string {
	if m.Model == "" {
		return "mock"
	}
	return m.Model
}

// CompleteCalls returns how many times Complete was invoked.
func (m *MockProvider) CompleteCalls() int {
	return int(m.calls.Load())
}
