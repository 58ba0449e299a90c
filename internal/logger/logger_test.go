package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// TestParseLogLevel verifies known and unknown log level strings.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	level, ok := ParseLogLevel("debug")
	require.True(t, ok)
	require.Equal(t, zapcore.DebugLevel, level)

	level, ok = ParseLogLevel(" WARN ")
	require.True(t, ok)
	require.Equal(t, zapcore.WarnLevel, level)

	level, ok = ParseLogLevel("nonsense")
	require.False(t, ok)
	require.Equal(t, zapcore.InfoLevel, level)
}

// TestFromContext_Fallback ensures the global logger is used when the context carries none.
func TestFromContext_Fallback(t *testing.T) {
	t.Parallel()

	require.NotNil(t, FromContext(context.Background()))
}

// TestWithName ensures a named logger is stored in and retrieved from the context.
func TestWithName(t *testing.T) {
	t.Parallel()

	ctx := WithName(context.Background(), "installer")
	require.NotNil(t, FromContext(ctx))
	require.NotSame(t, FromContext(context.Background()), FromContext(ctx))
}
