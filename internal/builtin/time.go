package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/warden-run/warden/internal/manifest"
	"github.com/warden-run/warden/internal/protocol"
	"github.com/warden-run/warden/internal/runner"
)

var timeNowManifest = manifest.Manifest{
	Name:        "time.now",
	Version:     "1.0.0",
	Description: "Returns the current date and time.",
	Trusted:     true,
	InputSchema: json.RawMessage(`{"type": "object", "additionalProperties": false}`),
	Limits:      manifest.Limits{TimeoutSec: 5},
}

// timeNow needs no capabilities at all: it is the canary that a tool with an
// empty grant can still do useful work.
func timeNow(_ context.Context, _ protocol.Invocation, _ runner.Env) (json.RawMessage, error) {
	now := time.Now()
	out := fmt.Sprintf("%s (unix: %d)", now.Format(time.RFC3339), now.Unix())
	return json.Marshal(out)
}
