package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "Debug")
	require.NoError(t, err)
	logger.Debug("tool finished", "tool", "view_file", "status", "success")
	require.Contains(t, buf.String(), "tool=view_file")
	require.Contains(t, buf.String(), `msg="tool finished"`)

	_, err = New(&buf, "loud")
	require.Error(t, err)
}

func TestOpen(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		logger, closer, err := Open(filepath.Join(t.TempDir(), "x.log"), "")
		require.NoError(t, err)
		logger.Error("dropped")
		require.NoError(t, closer.Close())
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "lmagent.log")
		logger, closer, err := Open(path, "info")
		require.NoError(t, err)
		logger.Info("hello", "n", 1)
		logger.Debug("hidden")
		require.NoError(t, closer.Close())

		b, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Contains(t, string(b), "hello")
		require.NotContains(t, string(b), "hidden")
	})
}
