package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "log line: %s", buf.String())
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug not logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		assert.Zero(t, buf.Len())
	})

	t.Run("info logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Info("info message")
		entry := decodeEntry(t, &buf)
		assert.Equal(t, "info", entry["level"])
		assert.Equal(t, "info message", entry["msg"])
	})

	t.Run("warn and error logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Warn("warn message")
		assert.NotZero(t, buf.Len())

		buf.Reset()
		logger.Error("error message")
		assert.NotZero(t, buf.Len())
	})
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("plan", "premium").WithFields(map[string]interface{}{
		"request_id": "pr-1",
		"amount":     500000,
	}).Info("payment request created")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "premium", entry["plan"])
	assert.Equal(t, "pr-1", entry["request_id"])
	assert.Equal(t, float64(500000), entry["amount"])
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithError(errors.New("connection refused")).Error("reconcile failed")
	entry := decodeEntry(t, &buf)
	assert.Equal(t, "connection refused", entry["error"])

	assert.Same(t, logger, logger.WithError(nil))
}

func TestLogger_Formatters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	logger.Debugf("test %s %d", "string", 42)
	assert.Equal(t, "test string 42", decodeEntry(t, &buf)["msg"])

	buf.Reset()
	logger.Warnf("warning %s", "test")
	assert.Equal(t, "warning test", decodeEntry(t, &buf)["msg"])
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	logger.Error("discarded")
	assert.NotNil(t, logger.Logrus())
}

func TestContextHelpers(t *testing.T) {
	t.Run("RequestID and UserID", func(t *testing.T) {
		ctx := WithUserID(WithRequestID(context.Background(), "req-123"), "user-456")
		assert.Equal(t, "req-123", GetRequestID(ctx))
		assert.Equal(t, "user-456", GetUserID(ctx))
	})

	t.Run("FromContext", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := WithLogger(context.Background(), NewLogger(InfoLevel, &buf))
		ctx = WithRequestID(ctx, "req-123")
		ctx = WithUserID(ctx, "user-456")

		FromContext(ctx).Info("test message")

		entry := decodeEntry(t, &buf)
		assert.Equal(t, "req-123", entry["request_id"])
		assert.Equal(t, "user-456", entry["user_id"])
	})
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", DebugLevel.String())
	assert.Equal(t, "ERROR", ErrorLevel.String())
}
