// Package storage keeps the index of saved conversation sessions. The
// conversation turns themselves live in the session cache.
package storage

import (
	"bufio"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/dotcommander/lmagent/internal/errs"
)

var (
	// ErrNoMatches is returned when no session matches the query.
	ErrNoMatches = fmt.Errorf("no sessions found: %w", errs.ErrNotFound)
	// ErrManyMatches is returned when several sessions match the query.
	ErrManyMatches = fmt.Errorf("multiple sessions matched the input: %w", errs.ErrAmbiguous)
)

const (
	indexFileName      = "sessions.jsonl"
	compactMinOps      = 256
	compactScaleFactor = 4
)

type event struct {
	Op      string   `json:"op"`
	ID      string   `json:"id,omitempty"`
	Session *Session `json:"session,omitempty"`
}

// Session is the metadata of a saved conversation.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
	API       string    `json:"api,omitempty"`
	Model     string    `json:"model,omitempty"`
	Turns     int       `json:"turns"`
}

// DB is an append-only JSONL session index guarded by a file lock, so two
// running chats can share it.
type DB struct {
	mu             sync.RWMutex
	indexPath      string
	lock           *flock.Flock
	sessions       map[string]Session
	ops            int
	cleanupTempDir string
}

// Open loads the index from dir. The special value ":memory:" creates a
// temporary store.
func Open(dir string) (*DB, error) {
	var cleanup string
	if dir == ":memory:" {
		tmp, err := os.MkdirTemp("", "lmagent-sessions-*")
		if err != nil {
			return nil, fmt.Errorf("could not create temp sessions directory: %w", err)
		}
		dir, cleanup = tmp, tmp
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("could not create store directory: %w", err)
	}

	db := &DB{
		indexPath:      filepath.Join(dir, indexFileName),
		lock:           flock.New(filepath.Join(dir, "sessions.lock")),
		sessions:       make(map[string]Session),
		cleanupTempDir: cleanup,
	}
	if err := db.load(); err != nil {
		return nil, err
	}
	return db, nil
}

// Close releases temporary resources.
func (db *DB) Close() error {
	if db.cleanupTempDir == "" {
		return nil
	}
	if err := os.RemoveAll(db.cleanupTempDir); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// Save upserts a session record.
func (db *DB) Save(s Session) error {
	if strings.TrimSpace(s.ID) == "" {
		return errs.Kind(errs.ErrValidation, errors.New("save session: empty id"))
	}
	if strings.TrimSpace(s.Title) == "" {
		return errs.Kind(errs.ErrValidation, errors.New("save session: empty title"))
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	db.sessions[s.ID] = s
	if err := db.appendLocked(event{Op: "upsert", Session: &s}); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return db.compactIfNeededLocked()
}

// Delete removes a session record by ID. Unknown IDs are ignored.
func (db *DB) Delete(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.sessions[id]; !ok {
		return nil
	}
	delete(db.sessions, id)
	if err := db.appendLocked(event{Op: "delete", ID: id}); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return db.compactIfNeededLocked()
}

// List returns sessions, most recently updated first.
func (db *DB) List() []Session {
	return db.filter(func(Session) bool { return true })
}

// ListOlderThan returns sessions not updated within d.
func (db *DB) ListOlderThan(d time.Duration) []Session {
	cutoff := time.Now().Add(-d)
	return db.filter(func(s Session) bool { return s.UpdatedAt.Before(cutoff) })
}

// Latest returns the most recently updated session.
func (db *DB) Latest() (Session, error) {
	list := db.List()
	if len(list) == 0 {
		return Session{}, ErrNoMatches
	}
	return list[0], nil
}

// Find resolves a session by exact title or ID prefix.
func (db *DB) Find(in string) (Session, error) {
	matches := db.filter(func(s Session) bool {
		return s.Title == in || (len(in) >= IDMinLen && strings.HasPrefix(s.ID, in))
	})
	switch len(matches) {
	case 0:
		return Session{}, fmt.Errorf("%w: %s", ErrNoMatches, in)
	case 1:
		return matches[0], nil
	default:
		return Session{}, fmt.Errorf("%w: %s", ErrManyMatches, in)
	}
}

// Completions returns shell completion candidates for IDs and titles.
func (db *DB) Completions(in string) []string {
	set := map[string]struct{}{}
	for _, s := range db.List() {
		if strings.HasPrefix(s.ID, in) {
			id := s.ID
			if len(in) < IDShort {
				id = ShortID(id)
			}
			set[id+"\t"+s.Title] = struct{}{}
		}
		if strings.HasPrefix(s.Title, in) {
			set[s.Title+"\t"+ShortID(s.ID)] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

func (db *DB) filter(keep func(Session) bool) []Session {
	db.mu.RLock()
	out := make([]Session, 0, len(db.sessions))
	for _, s := range db.sessions {
		if keep(s) {
			out = append(out, s)
		}
	}
	db.mu.RUnlock()

	slices.SortFunc(out, func(a, b Session) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (db *DB) withLock(fn func() error) error {
	if err := db.lock.Lock(); err != nil {
		return fmt.Errorf("lock index: %w", err)
	}
	defer func() { _ = db.lock.Unlock() }()
	return fn()
}

func (db *DB) load() error {
	return db.withLock(func() error {
		file, err := os.Open(db.indexPath)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("could not open index file: %w", err)
		}
		defer file.Close() //nolint:errcheck

		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var evt event
			if err := json.Unmarshal([]byte(line), &evt); err != nil {
				return errs.Kind(errs.ErrParse, fmt.Errorf("could not parse index event: %w", err))
			}
			if err := db.apply(evt); err != nil {
				return err
			}
			db.ops++
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("could not scan index file: %w", err)
		}
		return nil
	})
}

func (db *DB) apply(evt event) error {
	switch evt.Op {
	case "upsert":
		if evt.Session == nil || strings.TrimSpace(evt.Session.ID) == "" {
			return errs.Kind(errs.ErrParse, errors.New("invalid upsert event"))
		}
		db.sessions[evt.Session.ID] = *evt.Session
	case "delete":
		delete(db.sessions, evt.ID)
	default:
		return errs.Kind(errs.ErrParse, fmt.Errorf("invalid index event op: %q", evt.Op))
	}
	return nil
}

func (db *DB) appendLocked(evt event) error {
	return db.withLock(func() error {
		file, err := os.OpenFile(db.indexPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer func() { _ = file.Close() }()

		bts, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("marshal index event: %w", err)
		}
		if _, err := file.Write(append(bts, '\n')); err != nil {
			return fmt.Errorf("write index event: %w", err)
		}
		if err := file.Sync(); err != nil {
			return fmt.Errorf("sync index: %w", err)
		}
		db.ops++
		return nil
	})
}

func (db *DB) compactIfNeededLocked() error {
	if db.ops < compactMinOps {
		return nil
	}
	if len(db.sessions) > 0 && db.ops < len(db.sessions)*compactScaleFactor {
		return nil
	}
	return db.compactLocked()
}

// compactLocked rewrites the index with one upsert per live session.
func (db *DB) compactLocked() error {
	items := make([]Session, 0, len(db.sessions))
	for _, s := range db.sessions {
		items = append(items, s)
	}
	slices.SortFunc(items, func(a, b Session) int {
		if c := a.UpdatedAt.Compare(b.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	return db.withLock(func() error {
		tmpPath := db.indexPath + ".tmp"
		file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open compacted index: %w", err)
		}
		enc := json.NewEncoder(file)
		for i := range items {
			if err := enc.Encode(event{Op: "upsert", Session: &items[i]}); err != nil {
				_ = file.Close()
				return fmt.Errorf("write compacted index: %w", err)
			}
		}
		if err := file.Sync(); err != nil {
			_ = file.Close()
			return fmt.Errorf("sync compacted index: %w", err)
		}
		if err := file.Close(); err != nil {
			return fmt.Errorf("close compacted index: %w", err)
		}
		if err := os.Rename(tmpPath, db.indexPath); err != nil {
			return fmt.Errorf("replace index with compacted version: %w", err)
		}
		db.ops = len(db.sessions)
		return nil
	})
}
