package builtin

import (
	"context"
	"encoding/json"

	"github.com/warden-run/warden/internal/capability"
	"github.com/warden-run/warden/internal/gateway"
	"github.com/warden-run/warden/internal/manifest"
	"github.com/warden-run/warden/internal/protocol"
	"github.com/warden-run/warden/internal/provider"
	"github.com/warden-run/warden/internal/runner"
)

var modelCompleteManifest = manifest.Manifest{
	Name:        "model.complete",
	Version:     "1.0.0",
	Description: "Runs one completion through the model gateway.",
	Trusted:     true,
	InputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"prompt": {"type": "string"},
			"system": {"type": "string"}
		},
		"required": ["prompt"],
		"additionalProperties": false
	}`),
	Capabilities: []capability.Capability{{Kind: capability.KindModelAccess}},
	Limits:       manifest.Limits{TimeoutSec: 90},
}

func modelComplete(ctx context.Context, inv protocol.Invocation, env runner.Env) (json.RawMessage, error) {
	var args struct {
		Prompt string `json:"prompt"`
		System string `json:"system"`
	}
	if err := json.Unmarshal(inv.Args, &args); err != nil {
		return nil, protocol.InvalidArguments("%s", err)
	}
	if env.Gateway == nil {
		return nil, protocol.GatewayError("no gateway attached")
	}

	var messages []provider.Message
	if args.System != "" {
		messages = append(messages, provider.Message{Role: provider.MessageRoleSystem, Content: args.System})
	}
	messages = append(messages, provider.Message{Role: provider.MessageRoleUser, Content: args.Prompt})

	// The gateway re-checks the grant; a missing model_access capability
	// fails here with zero provider calls.
	resp, err := env.Gateway.Infer(ctx, inv.Grant, gateway.ModelRequest{Messages: messages})
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{
		"content": resp.Content,
		"model":   resp.Model,
	})
}
