// Package logger_test contains tests for the logger package
package logger_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/phrazzld/measure-hub/internal/config"
	"github.com/phrazzld/measure-hub/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		ok    bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"Warn", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := logger.ParseLevel(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("filters below level", func(t *testing.T) {
		buf := &logger.TestLogBuffer{}
		l := logger.New(buf, "warn")

		l.Info("hidden")
		l.Warn("shown", "task_id", "t1")

		entries, err := buf.GetLogEntries()
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "shown", entries[0]["msg"])
		assert.Equal(t, "t1", entries[0]["task_id"])
	})

	t.Run("invalid level warns and uses info", func(t *testing.T) {
		buf := &logger.TestLogBuffer{}
		l := logger.New(buf, "chatty")

		l.Debug("hidden")
		l.Info("shown")

		logger.AssertLogContains(t, buf, "invalid log level configured")
		logger.AssertLogField(t, buf, "configured_level", "chatty")
		entries, err := buf.FindEntries("shown")
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}

func TestSetup(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	l, err := logger.Setup(config.ServerConfig{LogLevel: "debug"})
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, l, slog.Default())
	assert.True(t, l.Enabled(context.Background(), slog.LevelDebug))
}

func TestContextHelpers(t *testing.T) {
	custom, _ := logger.GetTestLogger(t)
	fallback := slog.Default()

	//nolint:staticcheck // nil context is part of the contract
	assert.Equal(t, fallback, logger.FromContextOrDefault(nil, fallback))
	assert.Equal(t, fallback, logger.FromContextOrDefault(context.Background(), fallback))

	ctx := logger.WithLogger(context.Background(), custom)
	assert.Equal(t, custom, logger.FromContext(ctx))

	assert.Panics(t, func() { logger.WithLogger(context.Background(), nil) })

	ctx = logger.WithRequestID(ctx, "req-1")
	assert.Equal(t, "req-1", logger.RequestID(ctx))
	assert.Empty(t, logger.RequestID(context.Background()))
}
