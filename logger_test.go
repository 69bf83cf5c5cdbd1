package gpucore

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger_FieldHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(slog.NewTextHandler(&buf, nil))

	logger.WithKind("host").WithBytes(64).WithPointer(0x1000).Warn("leaked memory block")

	out := buf.String()
	assert.Contains(t, out, "kind=host")
	assert.Contains(t, out, "bytes=64")
	assert.Contains(t, out, "ptr=4096")
	assert.Contains(t, out, "leaked memory block")
}

func TestLogger_NilHandlerDefaults(t *testing.T) {
	logger := NewLogger(nil)
	assert.NotNil(t, logger.Logger)
}

func TestNoopLogger_Discards(t *testing.T) {
	logger := NoopLogger()
	assert.False(t, logger.Enabled(context.Background(), slog.LevelError))
}
