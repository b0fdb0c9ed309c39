// Package session holds the bounded conversation history of a chat.
package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dotcommander/lmagent/internal/errs"
	"github.com/dotcommander/lmagent/internal/proto"
	"github.com/dotcommander/lmagent/internal/storage/cache"
)

// Defaults.
const (
	DefaultCapacity     = 50
	DefaultSnapshotFile = "conversation_history.json"
	TrimNotice          = "Conversation history trimmed to prevent token limit issues."
)

// Store is an ordered, capacity bounded list of turns. The oldest turns are
// evicted first. It is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	turns    []proto.Message
	capacity int
	trimmed  bool
}

// NewStore returns an empty store. A capacity below one uses DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity}
}

// Capacity returns the maximum number of turns kept.
func (s *Store) Capacity() int { return s.capacity }

// Append adds turns and evicts the oldest ones over capacity. It returns
// true only for the first eviction since the store was created or cleared.
func (s *Store) Append(turns ...proto.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, turns...)
	if !s.trim() {
		return false
	}
	first := !s.trimmed
	s.trimmed = true
	return first
}

func (s *Store) trim() bool {
	over := len(s.turns) - s.capacity
	if over <= 0 {
		return false
	}
	s.turns = append([]proto.Message(nil), s.turns[over:]...)
	return true
}

// Turns returns a copy of the turns.
func (s *Store) Turns() []proto.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]proto.Message(nil), s.turns...)
}

// TextOnly returns the turns without image payloads.
func (s *Store) TextOnly() []proto.Message {
	return proto.TextOnly(s.Turns())
}

// Len returns the number of turns.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Clear removes every turn and re-arms the trim notice.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
	s.trimmed = false
}

// Snapshot serializes the turns as an indented JSON list.
func (s *Store) Snapshot() ([]byte, error) {
	turns := s.Turns()
	if turns == nil {
		turns = []proto.Message{}
	}
	b, err := json.MarshalIndent(turns, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return b, nil
}

// Restore replaces the turns with a snapshot. Malformed data leaves the
// store untouched. A snapshot longer than the capacity keeps its newest
// turns.
func (s *Store) Restore(data []byte) error {
	_, err := s.restore(data)
	return err
}

// restore reports whether the snapshot had to be trimmed. The trim notice
// state follows the restored turns.
func (s *Store) restore(data []byte) (bool, error) {
	var turns []proto.Message
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&turns); err != nil {
		return false, errs.Kind(errs.ErrParse, fmt.Errorf("restore: %w", err))
	}
	if _, err := dec.Token(); err != io.EOF {
		return false, errs.Kind(errs.ErrParse, fmt.Errorf("restore: trailing data"))
	}
	if turns == nil {
		return false, errs.Kind(errs.ErrParse, fmt.Errorf("restore: expected a list of turns"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = turns
	s.trimmed = s.trim()
	return s.trimmed, nil
}

// Save writes a snapshot to path atomically.
func (s *Store) Save(path string) error {
	b, err := s.Snapshot()
	if err != nil {
		return err
	}
	if err := cache.WriteFile(path, func(w io.Writer) error {
		_, err := w.Write(b)
		return err //nolint:wrapcheck
	}); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// Load restores a snapshot from path and reports whether it was trimmed to
// fit the capacity.
func (s *Store) Load(path string) (bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return false, errs.Kind(errs.ErrNotFound, fmt.Errorf("load history: %w", err))
	}
	return s.restore(b)
}
