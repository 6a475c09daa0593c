package security

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func newCaptureLogger(r *Redactor) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewRedactingHandler(inner, r)), &buf
}

func TestRedactingHandlerMessageAndAttrs(t *testing.T) {
	t.Parallel()

	r := &Redactor{}
	r.AddLiteral("topsecretvalue")
	logger, buf := newCaptureLogger(r)

	logger.Info("token topsecretvalue leaked", "detail", "value=topsecretvalue")

	out := buf.String()
	if strings.Contains(out, "topsecretvalue") {
		t.Errorf("secret in log output: %s", out)
	}
	if !strings.Contains(out, RedactPlaceholder) {
		t.Errorf("placeholder missing: %s", out)
	}
}

func TestRedactingHandlerWithAttrsAndGroups(t *testing.T) {
	t.Parallel()

	r := &Redactor{}
	r.AddLiteral("persistedsecret")
	logger, buf := newCaptureLogger(r)

	logger.With("base", "persistedsecret").WithGroup("inner").Info("hello", "k", "persistedsecret")

	out := buf.String()
	if strings.Contains(out, "persistedsecret") {
		t.Errorf("secret in log output: %s", out)
	}
}

func TestRedactingHandlerEnabledDelegates(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})
	h := NewRedactingHandler(inner, &Redactor{})

	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be disabled")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled")
	}
}
