package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammerola/storefront-ledger/internal/pkg/logger"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestNew_JSON(t *testing.T) {
	t.Run("context_values_become_attributes", func(t *testing.T) {
		var buf bytes.Buffer
		l := logger.New(&logger.LogConfig{Level: "info", Format: "json", Output: &buf})

		ctx := logger.WithValue(context.Background(), logger.ContextKeyRequestID, "req-1")
		ctx = logger.WithValue(ctx, logger.ContextKeyUserID, "clerk")
		l.InfoContext(ctx, "sale completed", slog.String("order_id", "ORD-1"))

		m := decodeLine(t, &buf)
		assert.Equal(t, "sale completed", m["msg"])
		assert.Equal(t, "INFO", m["severity"])
		assert.Equal(t, "req-1", m["request_id"])
		assert.Equal(t, "clerk", m["user_id"])
		assert.Equal(t, "ORD-1", m["order_id"])
	})

	t.Run("secrets_are_redacted", func(t *testing.T) {
		var buf bytes.Buffer
		l := logger.New(&logger.LogConfig{Level: "info", Format: "json", Output: &buf})

		l.With(slog.String("fiscal_key", "abc")).Info("loaded token=xyz",
			slog.String("db_password", "hunter2"),
			slog.Group("aws", slog.String("secret_access_key", "s3cr3t")))

		out := buf.String()
		assert.NotContains(t, out, "abc")
		assert.NotContains(t, out, "xyz")
		assert.NotContains(t, out, "hunter2")
		assert.NotContains(t, out, "s3cr3t")
		assert.Contains(t, out, "***REDACTED***")
	})

	t.Run("level_filters", func(t *testing.T) {
		var buf bytes.Buffer
		l := logger.New(&logger.LogConfig{Level: "warn", Format: "json", Output: &buf})

		l.Info("dropped")
		assert.Zero(t, buf.Len())
		l.Warn("kept")
		assert.Contains(t, buf.String(), "kept")
	})
}

func TestNew_Sampling(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(&logger.LogConfig{Level: "debug", Format: "json", Output: &buf, SampleRate: 0.000001})

	for i := 0; i < 50; i++ {
		l.Error("always")
	}
	assert.Equal(t, 50, strings.Count(buf.String(), "always"))
}

func TestNew_Pretty(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(&logger.LogConfig{Level: "info", Format: "pretty", Output: &buf})

	l.With(slog.String("service", "ledger")).Info("movement applied", slog.Int64("quantity", -2))
	out := buf.String()
	assert.Contains(t, out, "movement applied")
	assert.Contains(t, out, "service")
	assert.Contains(t, out, "-2")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, logger.ParseLevel(in), in)
	}
}

func TestAsynqLogger(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(&logger.LogConfig{Level: "info", Format: "json", Output: &buf})

	logger.NewAsynqLogger(l).Warn("retrying ", "task")
	m := decodeLine(t, &buf)
	assert.Equal(t, "retrying task", m["msg"])
	assert.Equal(t, "asynq", m["component"])
}
