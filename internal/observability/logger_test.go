// File: internal/observability/logger_test.go
package observability

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/aerialguide/internal/config"
)

func bufferWriter() (*bytes.Buffer, zapcore.WriteSyncer) {
	var buf bytes.Buffer
	return &buf, zapcore.AddSync(&buf)
}

func TestNewLogger(t *testing.T) {
	t.Run("console output is colorized", func(t *testing.T) {
		buf, w := bufferWriter()
		logger, err := NewLogger(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "aerialguide",
			Colors:      config.ColorConfig{Info: "green"},
		}, w)
		require.NoError(t, err)

		logger.Named("guidance").Info("Build cycle finished", zap.Int("prescribed", 12))
		out := buf.String()
		assert.Contains(t, out, colorGreen+"INFO"+colorReset)
		assert.Contains(t, out, "aerialguide.guidance.")
		assert.Contains(t, out, `"prescribed": 12`)
	})

	t.Run("uncolored levels stay plain", func(t *testing.T) {
		buf, w := bufferWriter()
		logger, err := NewLogger(config.LoggerConfig{Level: "info", Format: "console"}, w)
		require.NoError(t, err)
		logger.Warn("Skipping unreadable attack date")
		assert.Contains(t, buf.String(), "WARN")
		assert.NotContains(t, buf.String(), colorReset)
	})

	t.Run("json output", func(t *testing.T) {
		buf, w := bufferWriter()
		logger, err := NewLogger(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "JSONTest"}, w)
		require.NoError(t, err)
		logger.Warn("Unknown image", zap.String("image_id", "S1/4001"))

		var entry map[string]any
		require.NoError(t, jsoniter.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "warn", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "Unknown image", entry["msg"])
		assert.Equal(t, "S1/4001", entry["image_id"])
	})

	t.Run("level filtering and bad levels", func(t *testing.T) {
		buf, w := bufferWriter()
		logger, err := NewLogger(config.LoggerConfig{Level: "verbose", Format: "json"}, w)
		require.NoError(t, err)
		logger.Debug("hidden")
		logger.Info("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("rotated file receives json", func(t *testing.T) {
		_, w := bufferWriter()
		path := filepath.Join(t.TempDir(), "logs", "guide.log")
		logger, err := NewLogger(config.LoggerConfig{Level: "debug", Format: "console", LogFile: path, MaxSize: 1}, w)
		require.NoError(t, err)
		logger.Error("This should go to the file.")
		require.NoError(t, logger.Sync())

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), `"msg":"This should go to the file."`)
	})
}

func TestInitialize(t *testing.T) {
	t.Cleanup(ResetForTest)

	t.Run("only initializes once", func(t *testing.T) {
		ResetForTest()
		buf, w := bufferWriter()
		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "First"}, w)
		first := GetLogger()
		Initialize(config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "Second"}, w)

		assert.Same(t, first, GetLogger())
		GetLogger().Info("test")
		Sync()
		assert.True(t, strings.Contains(buf.String(), "First"))
		assert.False(t, strings.Contains(buf.String(), "Second"))
	})

	t.Run("falls back to console when the file is unusable", func(t *testing.T) {
		ResetForTest()
		blocker := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(blocker, nil, 0o600))

		buf, w := bufferWriter()
		Initialize(config.LoggerConfig{Level: "info", Format: "json", LogFile: filepath.Join(blocker, "sub", "x.log")}, w)
		assert.Contains(t, buf.String(), "Log file unavailable")
	})
}

func TestGetLogger(t *testing.T) {
	t.Cleanup(ResetForTest)

	ResetForTest()
	require.NotNil(t, GetLogger(), "fallback before initialization")

	_, w := bufferWriter()
	Initialize(config.LoggerConfig{Level: "info", ServiceName: "GlobalTest"}, w)
	assert.Equal(t, globalLogger.Load(), GetLogger())
}
