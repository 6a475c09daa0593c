// Package protocol parses agent-issued tool calls, validates their arguments
// against manifest input schemas, and defines the typed result and failure
// shapes shared by every runner strategy. It is the first and cheapest stage
// of an invocation: malformed payloads are rejected here, before any
// capability or sandbox work happens.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for envelope parsing.
var (
	// ErrNotToolCall is returned when the payload is not a tool_call
	// envelope at all (plain prose, invalid JSON, wrong shape).
	ErrNotToolCall = errors.New("not a tool call")

	// ErrEmptyToolName is returned when the envelope carries a blank name.
	ErrEmptyToolName = errors.New("tool call has empty name")
)

// Call is a parsed tool invocation request before validation.
// Arguments is nil for legacy name-only calls.
type Call struct {
	Name      string
	Arguments json.RawMessage
}

type envelope struct {
	ToolCall payload `json:"tool_call"`
}

type payload struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ParseCall extracts a tool call from an agent payload. Both the legacy
// name-only shape {"tool_call":{"name":...}} and the argument-bearing shape
// {"tool_call":{"name":...,"arguments":{...}}} are accepted; unknown fields
// anywhere in the envelope are rejected.
func ParseCall(raw []byte) (Call, error) {
	dec := json.NewDecoder(bytes.NewReader(bytes.TrimSpace(raw)))
	dec.DisallowUnknownFields()

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return Call{}, fmt.Errorf("%w: %s", ErrNotToolCall, err)
	}
	// Trailing content after the envelope means the payload was not a
	// bare tool call.
	if dec.More() {
		return Call{}, fmt.Errorf("%w: trailing content after envelope", ErrNotToolCall)
	}

	name := strings.TrimSpace(env.ToolCall.Name)
	if name == "" {
		return Call{}, ErrEmptyToolName
	}

	args := env.ToolCall.Arguments
	if len(args) > 0 {
		if !json.Valid(args) {
			return Call{}, fmt.Errorf("%w: invalid arguments JSON", ErrNotToolCall)
		}
	} else {
		args = nil
	}

	return Call{Name: name, Arguments: args}, nil
}
