package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/lmagent/internal/config"
	"github.com/dotcommander/lmagent/internal/errs"
	"github.com/dotcommander/lmagent/internal/storage"
)

func TestShowSession(t *testing.T) {
	a := testArchive(t)
	saveTurns(t, a, storage.Session{}, "older question")
	s := saveTurns(t, a, storage.Session{}, "fix the build")

	t.Run("by title", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, showSession(&out, a, "fix the build", false, 80))
		require.Equal(t, "**Prompt**: fix the build\n\n**Assistant**: ok\n", out.String())
	})

	t.Run("by id prefix", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, showSession(&out, a, storage.ShortID(s.ID), false, 80))
		require.Contains(t, out.String(), "fix the build")
	})

	t.Run("latest", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, showSession(&out, a, "", false, 80))
		require.Contains(t, out.String(), "fix the build")
	})

	t.Run("rendered", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, showSession(&out, a, s.ID, true, 80))
		require.Contains(t, out.String(), "fix the build")
	})

	t.Run("missing", func(t *testing.T) {
		var out bytes.Buffer
		err := showSession(&out, a, "nope", false, 80)
		require.ErrorIs(t, err, errs.ErrNotFound)
		require.Empty(t, out.String())
	})
}

func TestDeleteSessions(t *testing.T) {
	t.Run("deletes several", func(t *testing.T) {
		a := testArchive(t)
		first := saveTurns(t, a, storage.Session{}, "first")
		saveTurns(t, a, storage.Session{}, "second")
		saveTurns(t, a, storage.Session{}, "third")

		var out bytes.Buffer
		cfg := &config.Config{}
		require.NoError(t, deleteSessions(&out, cfg, a, []string{first.ID[:6], "second"}))
		require.Len(t, a.DB().List(), 1)
		require.Contains(t, out.String(), "DELETED")
		require.Contains(t, out.String(), storage.ShortID(first.ID))

		_, _, err := a.Load(first.ID)
		require.ErrorIs(t, err, errs.ErrNotFound)
	})

	t.Run("unknown target", func(t *testing.T) {
		a := testArchive(t)
		var out bytes.Buffer
		cfg := &config.Config{Settings: config.Settings{Quiet: true}}
		err := deleteSessions(&out, cfg, a, []string{"nope"})
		require.ErrorIs(t, err, errs.ErrNotFound)
		require.Empty(t, out.String())
	})
}

func TestPruneSessions(t *testing.T) {
	a := testArchive(t)
	old := saveTurns(t, a, storage.Session{}, "old")
	old.UpdatedAt = time.Now().Add(-30 * 24 * time.Hour)
	require.NoError(t, a.DB().Save(old))
	saveTurns(t, a, storage.Session{}, "fresh")

	var out bytes.Buffer
	cfg := &config.Config{}
	require.NoError(t, pruneSessions(&out, cfg, a, 7*24*time.Hour, true))
	require.Contains(t, out.String(), "1 conversations")

	list := a.DB().List()
	require.Len(t, list, 1)
	require.Equal(t, "fresh", list[0].Title)

	out.Reset()
	require.NoError(t, pruneSessions(&out, cfg, a, 7*24*time.Hour, true))
	require.Equal(t, "No conversations found.\n", out.String())
}

func TestPrintList(t *testing.T) {
	var out bytes.Buffer
	printList(&out, asciiStyles(), []storage.Session{{
		ID:        "0123456789abcdef",
		Title:     "fix the build",
		UpdatedAt: time.Now().Add(-2 * time.Hour),
	}})
	require.Contains(t, out.String(), "01234567\tfix the build\t")
	require.Contains(t, out.String(), "ago")
}

func TestSessionLine(t *testing.T) {
	line := sessionLine(asciiStyles(), storage.Session{
		ID:        "0123456789abcdef",
		Title:     "fix the build",
		UpdatedAt: time.Now(),
		API:       "lmstudio",
		Model:     "qwen",
	})
	require.Contains(t, line, "01234567")
	require.Contains(t, line, "fix the build")
	require.Contains(t, line, "qwen (lmstudio)")
}
