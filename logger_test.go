package glpipe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/soypat/glpipe/gldriver"
)

func TestLoggerDefaultSilent(t *testing.T) {
	l := Logger()
	if l == nil {
		t.Fatal("Logger() returned nil")
	}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if l.Enabled(context.Background(), level) {
			t.Errorf("default logger enabled for %v", level)
		}
	}
}

func TestSetLoggerUsedByContext(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	rec := gldriver.NewRecorder(gldriver.Features{})
	rec.FailCompile = func(gldriver.ShaderType, string) bool { return true }
	ctx := NewContext(rec, Config{})
	p := ctx.NewPipeline()
	p.AddLayer(0)
	if err := ctx.FlushPipeline(p); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "shader compilation failed") {
		t.Errorf("package logger did not receive compile failure, got:\n%s", buf.String())
	}

	SetLogger(nil)
	if Logger().Enabled(context.Background(), slog.LevelError) {
		t.Error("SetLogger(nil) did not restore the silent logger")
	}
}
