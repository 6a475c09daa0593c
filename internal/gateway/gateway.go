// Package gateway mediates all model access for tools. Tools never talk to a
// provider directly: every inference passes through the gateway, which checks
// the caller's grant before any network activity, enforces its own deadline,
// and normalizes provider failures.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/warden-run/warden/internal/capability"
	"github.com/warden-run/warden/internal/protocol"
	"github.com/warden-run/warden/internal/provider"
)

// DefaultTimeout bounds a single inference when no timeout is configured.
const DefaultTimeout = 60 * time.Second

// ModelRequest is a single inference request from a tool.
type ModelRequest struct {
	Messages    []provider.Message `json:"messages"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
}

// ModelResponse is the gateway's answer to a ModelRequest.
type ModelResponse struct {
	Content string         `json:"content"`
	Model   string         `json:"model"`
	Usage   provider.Usage `json:"usage"`
}

// Gateway fronts a single provider. Safe for concurrent use.
type Gateway struct {
	provider provider.Provider
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *Metrics
}

// New creates a gateway over the given provider. A zero timeout falls back to
// DefaultTimeout; the gateway deadline applies even when the provider's own
// HTTP client carries none.
func New(p provider.Provider, timeout time.Duration, logger *slog.Logger) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		provider: p,
		timeout:  timeout,
		logger:   logger,
		metrics:  &Metrics{},
	}
}

// Metrics returns the gateway's counters.
func (g *Gateway) Metrics() *Metrics {
	return g.metrics
}

// Infer runs one completion on behalf of a tool. The grant is checked before
// anything touches the network: a caller without model_access is denied with
// zero provider calls made.
func (g *Gateway) Infer(ctx context.Context, grant capability.Grant, req ModelRequest) (ModelResponse, error) {
	if !grant.Has(capability.KindModelAccess) {
		g.metrics.RecordDenial()
		g.logger.Warn("inference denied", "reason", "missing model_access grant")
		return ModelResponse{}, protocol.CapabilityDenied("model_access capability not granted")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.provider.Complete(ctx, provider.CompletionRequest{
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	latency := time.Since(start)
	if err != nil {
		g.metrics.RecordError()
		g.logger.Error("inference failed",
			"model", g.provider.ModelName(),
			"latency", latency,
			"error", err)
		return ModelResponse{}, normalize(err)
	}

	tokens := resp.Usage.PromptTokens + resp.Usage.CompletionTokens
	g.metrics.RecordInference(tokens, latency)
	g.logger.Debug("inference completed",
		"model", g.provider.ModelName(),
		"tokens", tokens,
		"latency", latency)

	return ModelResponse{
		Content: resp.Content,
		Model:   g.provider.ModelName(),
		Usage:   resp.Usage,
	}, nil
}

// normalize folds provider errors into the gateway failure kind. The
// underlying message is preserved so the operator remedy survives.
func normalize(err error) error {
	var f *protocol.Failure
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, provider.ErrTimeout) {
		return protocol.GatewayError("inference timed out: %s", err)
	}
	return protocol.GatewayError("%s", err)
}
