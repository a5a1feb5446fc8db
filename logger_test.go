package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "wavescope.log")

	log, err := newLogger(LogConfig{Level: "debug", File: path, MaxSize: 1})
	require.NoError(t, err)
	log.Debug("decoded samples", zap.String("path", "a.wav"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"decoded samples"`)
	assert.Contains(t, string(data), `"path":"a.wav"`)
}

func TestNewLoggerDisabled(t *testing.T) {
	log, err := newLogger(LogConfig{})
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.ErrorLevel))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLogLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLogLevel("warn"))
	assert.Equal(t, zapcore.InfoLevel, parseLogLevel("loud"))
}
