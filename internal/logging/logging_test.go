package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	slogctx "github.com/veqryn/slog-context"
)

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, Options{Level: slog.LevelWarn, NoColor: true})
	l.Info("hidden")
	l.Warn("field has no intermediary name", "class", "net/A/C")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WRN field has no intermediary name class=net/A/C")
}

func TestContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	ctx := slogctx.NewCtx(context.Background(), New(&buf, Options{Level: slog.LevelDebug, NoColor: true}))
	ctx = slogctx.With(ctx, "jar", "patched.jar")
	slogctx.Debug(ctx, "scanned patched jar", "classes", 3)

	assert.Contains(t, buf.String(), "DBG scanned patched jar jar=patched.jar classes=3")
}

func TestSetupInstallsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	ctx := Setup(context.Background(), &buf, Options{Level: slog.LevelInfo, NoColor: true})
	slog.Info("from default")
	slogctx.FromCtx(ctx).Info("from context")

	assert.Contains(t, buf.String(), "from default")
	assert.Contains(t, buf.String(), "from context")
}
