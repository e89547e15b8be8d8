package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerRenamesCoreKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, Options{Service: "credod", Env: "test", Level: "debug"})
	logger.Debug("reserve listed", slog.String("asset", "USDC"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "reserve listed", line["message"])
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "credod", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "USDC", line["asset"])
	require.Contains(t, line, "timestamp")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelWarn, ParseLevel(" WARNING "))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestSetupWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credod.log")
	logger, closer := Setup(Options{Service: "credod", File: path})
	logger.Info("started")
	require.NoError(t, closer.Close())
	require.FileExists(t, path)
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("jwt_secret", "hunter2").Value.String())
	require.Equal(t, "alice", MaskField("user", "alice").Value.String())
	require.Equal(t, "", MaskField("webhook_secret", "").Value.String())
	require.False(t, IsAllowlisted("secret"))
	require.True(t, IsAllowlisted("Asset"))
}

func TestLoggerMasksSecretKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, Options{Service: "credod"})
	logger.Info("webhook configured", slog.String("webhookSecret", "s3cr3t"), slog.String("Authorization", "Bearer abc"), slog.String("endpoint", "https://hooks.example"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, RedactedValue, line["webhookSecret"])
	require.Equal(t, RedactedValue, line["Authorization"])
	require.Equal(t, "https://hooks.example", line["endpoint"])
}
