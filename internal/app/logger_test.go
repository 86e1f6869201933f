package app

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/forecourt-io/forecourt/testing"
)

func TestLogLevelFromConfig(t *testing.T) {
	cases := []struct {
		raw  string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"garbage", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, logLevel(&Config{LogLevel: tc.raw}), "level %q", tc.raw)
	}
	require.Equal(t, slog.LevelInfo, logLevel(nil))
}

func TestNewLoggerHonoursDebugLevel(t *testing.T) {
	logger := NewLogger(&Config{LogFormat: "json", LogLevel: "debug"})
	require.True(t, logger.Enabled(nil, slog.LevelDebug))

	logger = NewLogger(&Config{LogFormat: "pretty", LogLevel: "error"})
	require.False(t, logger.Enabled(nil, slog.LevelWarn))
}
