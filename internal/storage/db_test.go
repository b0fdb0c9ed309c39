package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/lmagent/internal/errs"
)

func testDB(tb testing.TB) *DB {
	db, err := Open(":memory:")
	require.NoError(tb, err)
	tb.Cleanup(func() {
		require.NoError(tb, db.Close())
	})
	return db
}

func session(id, title string, age time.Duration) Session {
	return Session{
		ID:        id,
		Title:     title,
		UpdatedAt: time.Now().Add(-age).UTC(),
		API:       "lmstudio",
		Model:     "qwen2.5-coder",
		Turns:     4,
	}
}

func TestDB(t *testing.T) {
	const testid = "df31ae23ab8b75b5643c2f846c570997"

	t.Run("list-empty", func(t *testing.T) {
		require.Empty(t, testDB(t).List())
	})

	t.Run("save and find by prefix", func(t *testing.T) {
		db := testDB(t)
		require.NoError(t, db.Save(session(testid, "refactor parser", 0)))

		s, err := db.Find("df31")
		require.NoError(t, err)
		require.Equal(t, testid, s.ID)
		require.Equal(t, "refactor parser", s.Title)
		require.Equal(t, 4, s.Turns)
	})

	t.Run("short prefix does not match ids", func(t *testing.T) {
		db := testDB(t)
		require.NoError(t, db.Save(session(testid, "refactor parser", 0)))

		_, err := db.Find("df3")
		require.ErrorIs(t, err, ErrNoMatches)
		require.ErrorIs(t, err, errs.ErrNotFound)
	})

	t.Run("validation", func(t *testing.T) {
		db := testDB(t)
		require.ErrorIs(t, db.Save(session("", "x", 0)), errs.ErrValidation)
		require.ErrorIs(t, db.Save(session(NewSessionID(), " ", 0)), errs.ErrValidation)
	})

	t.Run("update", func(t *testing.T) {
		db := testDB(t)
		require.NoError(t, db.Save(session(testid, "first", time.Hour)))
		require.NoError(t, db.Save(session(testid, "second", 0)))

		list := db.List()
		require.Len(t, list, 1)
		require.Equal(t, "second", list[0].Title)
	})

	t.Run("latest", func(t *testing.T) {
		db := testDB(t)
		_, err := db.Latest()
		require.ErrorIs(t, err, ErrNoMatches)

		next := NewSessionID()
		require.NoError(t, db.Save(session(testid, "old", time.Hour)))
		require.NoError(t, db.Save(session(next, "new", 0)))

		latest, err := db.Latest()
		require.NoError(t, err)
		require.Equal(t, next, latest.ID)
	})

	t.Run("find by title", func(t *testing.T) {
		db := testDB(t)
		require.NoError(t, db.Save(session(NewSessionID(), "message 1", 0)))
		require.NoError(t, db.Save(session(testid, "message 2", 0)))

		s, err := db.Find("message 2")
		require.NoError(t, err)
		require.Equal(t, testid, s.ID)
	})

	t.Run("find match many", func(t *testing.T) {
		db := testDB(t)
		require.NoError(t, db.Save(session(testid, "a", 0)))
		require.NoError(t, db.Save(session("df31ae23ab9b75b5641c2f846c571000", "b", 0)))

		_, err := db.Find("df31ae")
		require.ErrorIs(t, err, ErrManyMatches)
		require.ErrorIs(t, err, errs.ErrAmbiguous)
	})

	t.Run("older than", func(t *testing.T) {
		db := testDB(t)
		require.NoError(t, db.Save(session(testid, "old", 48*time.Hour)))
		require.NoError(t, db.Save(session(NewSessionID(), "new", 0)))

		old := db.ListOlderThan(24 * time.Hour)
		require.Len(t, old, 1)
		require.Equal(t, testid, old[0].ID)
	})

	t.Run("delete", func(t *testing.T) {
		db := testDB(t)
		require.NoError(t, db.Save(session(testid, "a", 0)))
		require.NoError(t, db.Delete(NewSessionID()))
		require.Len(t, db.List(), 1)

		require.NoError(t, db.Delete(testid))
		require.Empty(t, db.List())
	})

	t.Run("completions", func(t *testing.T) {
		db := testDB(t)
		const id1 = "fc5012d8c67073ea0a46a3c05488a0e1"
		const id2 = "6c33f71694bf41a18c844a96d1f62f15"
		require.NoError(t, db.Save(session(id1, "some title", 0)))
		require.NoError(t, db.Save(session(id2, "football teams", 0)))

		require.Equal(t, []string{
			"fc5012d8\tsome title",
			"football teams\t6c33f716",
		}, db.Completions("f"))

		require.Equal(t, []string{id1 + "\tsome title"}, db.Completions(id1[:IDShort]))
	})

	t.Run("persists to jsonl index", func(t *testing.T) {
		dir := t.TempDir()

		db, err := Open(dir)
		require.NoError(t, err)
		require.NoError(t, db.Save(session(testid, "a", 0)))
		require.NoError(t, db.Delete(testid))
		require.NoError(t, db.Save(session(testid, "b", 0)))
		require.NoError(t, db.Close())

		db2, err := Open(dir)
		require.NoError(t, err)
		s, err := db2.Find(testid[:8])
		require.NoError(t, err)
		require.Equal(t, "b", s.Title)

		_, err = os.Stat(filepath.Join(dir, indexFileName))
		require.NoError(t, err)
	})

	t.Run("corrupt index", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, indexFileName), []byte("{nope\n"), 0o600))
		_, err := Open(dir)
		require.ErrorIs(t, err, errs.ErrParse)
	})
}

func TestCompaction(t *testing.T) {
	db := testDB(t)
	id := NewSessionID()
	for i := range compactMinOps + 1 {
		s := session(id, "same", 0)
		s.Turns = i
		require.NoError(t, db.Save(s))
	}
	require.Less(t, db.ops, compactMinOps)

	data, err := os.ReadFile(db.indexPath)
	require.NoError(t, err)
	require.Less(t, len(data), 4096)
}

func TestNewSessionID(t *testing.T) {
	id := NewSessionID()
	require.Len(t, id, 32)
	require.NotEqual(t, id, NewSessionID())
	require.Equal(t, id[:IDShort], ShortID(id))
}
