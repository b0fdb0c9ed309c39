package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/dotcommander/lmagent/internal/proto"
	"github.com/dotcommander/lmagent/internal/storage/cache"
)

// Archive stores whole conversations: metadata in the index, turns in the
// session cache.
type Archive struct {
	db    *DB
	turns *cache.Sessions
}

// OpenArchive opens the archive under dir.
func OpenArchive(dir string) (*Archive, error) {
	db, err := Open(dir)
	if err != nil {
		return nil, err
	}
	turns, err := cache.NewSessions(dir)
	if err != nil {
		return nil, fmt.Errorf("open session cache: %w", err)
	}
	return &Archive{db: db, turns: turns}, nil
}

// DB returns the session index.
func (a *Archive) DB() *DB { return a.db }

// Close closes the index.
func (a *Archive) Close() error { return a.db.Close() }

// Save stores turns under s.ID, creating an ID and title when missing.
func (a *Archive) Save(s Session, turns []proto.Message) (Session, error) {
	if s.ID == "" {
		s.ID = NewSessionID()
	}
	if s.Title == "" {
		s.Title = Title(turns)
	}
	s.Turns = len(turns)
	s.UpdatedAt = time.Now().UTC()
	if err := a.turns.Put(s.ID, turns); err != nil {
		return s, fmt.Errorf("save session %s: %w", ShortID(s.ID), err)
	}
	if err := a.db.Save(s); err != nil {
		return s, err
	}
	return s, nil
}

// Load finds a session by title or ID prefix and reads its turns.
func (a *Archive) Load(in string) (Session, []proto.Message, error) {
	s, err := a.db.Find(in)
	if err != nil {
		return Session{}, nil, err
	}
	return a.read(s)
}

// LoadLatest reads the most recently updated session.
func (a *Archive) LoadLatest() (Session, []proto.Message, error) {
	s, err := a.db.Latest()
	if err != nil {
		return Session{}, nil, err
	}
	return a.read(s)
}

func (a *Archive) read(s Session) (Session, []proto.Message, error) {
	turns, err := a.turns.Get(s.ID)
	if err != nil {
		return s, nil, fmt.Errorf("load session %s: %w", ShortID(s.ID), err)
	}
	return s, turns, nil
}

// Delete removes a session and its turns.
func (a *Archive) Delete(s Session) error {
	if err := a.turns.Delete(s.ID); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete session %s: %w", ShortID(s.ID), err)
	}
	return a.db.Delete(s.ID)
}

// Prune deletes sessions not updated within d and returns them.
func (a *Archive) Prune(d time.Duration) ([]Session, error) {
	old := a.db.ListOlderThan(d)
	for _, s := range old {
		if err := a.Delete(s); err != nil {
			return nil, err
		}
	}
	return old, nil
}

const titleLen = 60

// Title derives a session title from the first user turn.
func Title(turns []proto.Message) string {
	for _, t := range turns {
		if t.Role != proto.RoleUser {
			continue
		}
		title := strings.Join(strings.Fields(t.Content), " ")
		if r := []rune(title); len(r) > titleLen {
			title = string(r[:titleLen-1]) + "…"
		}
		if title != "" {
			return title
		}
	}
	return "untitled " + time.Now().Format("2006-01-02 15:04")
}
