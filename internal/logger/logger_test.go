package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLevel("debug"))
	require.Equal(t, slog.LevelWarn, parseLevel("WARNING"))
	require.Equal(t, slog.LevelError, parseLevel(" error "))
	require.Equal(t, slog.LevelInfo, parseLevel(""))
	require.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}

func TestSetupWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appvisor.log")
	l := Setup(Config{Level: "debug", File: path})
	require.NotNil(t, l)

	l.Info("hello", "component", "test")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "hello")
	require.Contains(t, string(data), "component=test")
}

func TestSetupInstallsDefault(t *testing.T) {
	l := Setup(Config{Level: "warn"})
	require.Equal(t, l, slog.Default())
	require.False(t, l.Enabled(t.Context(), slog.LevelInfo))
	require.True(t, l.Enabled(t.Context(), slog.LevelWarn))
}

func TestSetupColorHandler(t *testing.T) {
	l := Setup(Config{Level: "info", Color: true})
	require.NotNil(t, l)
}
