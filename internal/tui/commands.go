package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/dotcommander/lmagent/internal/agent"
	"github.com/dotcommander/lmagent/internal/logging"
	"github.com/dotcommander/lmagent/internal/proto"
	"github.com/dotcommander/lmagent/internal/session"
)

// Command is an interactive command typed at the prompt.
type Command int

// Commands.
const (
	CmdNone Command = iota
	CmdHelp
	CmdSave
	CmdLoad
	CmdClear
	CmdExit
)

// ParseCommand recognizes the interactive commands, with or without a
// leading slash and in any case. Anything else is a user turn.
func ParseCommand(input string) Command {
	word := strings.ToLower(strings.TrimSpace(input))
	word = strings.TrimPrefix(word, "/")
	switch word {
	case "help":
		return CmdHelp
	case "save":
		return CmdSave
	case "load":
		return CmdLoad
	case "clear", "reset":
		return CmdClear
	case "exit", "quit":
		return CmdExit
	default:
		return CmdNone
	}
}

// SaveFn persists the conversation after each turn.
type SaveFn func([]proto.Message) error

// Session is the state shared by the chat UIs: the controller, the snapshot
// file used by save and load, and the history autosave.
type Session struct {
	Controller   *agent.Controller
	API          string
	SnapshotPath string
	Autosave     SaveFn
	Logger       *log.Logger
}

// Exec runs a save, load or clear command and returns the message to show.
func (s *Session) Exec(cmd Command) (string, error) {
	store := s.Controller.Store()
	switch cmd {
	case CmdSave:
		if err := store.Save(s.SnapshotPath); err != nil {
			return "", fmt.Errorf("save conversation: %w", err)
		}
		return "Conversation saved to " + s.SnapshotPath, nil
	case CmdLoad:
		trimmed, err := store.Load(s.SnapshotPath)
		if err != nil {
			return "", fmt.Errorf("load conversation: %w", err)
		}
		msg := fmt.Sprintf("Loaded %d turns from %s", store.Len(), s.SnapshotPath)
		if trimmed {
			msg += fmt.Sprintf("\n%s Kept the newest %d turns.", session.TrimNotice, store.Capacity())
		}
		return msg, nil
	case CmdClear:
		store.Clear()
		return "Conversation history cleared.", nil
	default:
		return "", fmt.Errorf("command %d has no action", cmd)
	}
}

// AfterTurn autosaves the conversation when it is not empty.
func (s *Session) AfterTurn() error {
	if s.Autosave == nil {
		return nil
	}
	turns := s.Controller.Store().Turns()
	if len(turns) == 0 {
		return nil
	}
	if err := s.Autosave(turns); err != nil {
		logging.OrDiscard(s.Logger).Warn("autosave failed", "err", err)
		return err
	}
	return nil
}

// Explain turns a failed turn into a user-facing error.
func (s *Session) Explain(err error) string {
	e := agent.Explain(err, s.API, s.Controller.Model())
	if e.Reason == "" {
		return e.Error()
	}
	if e.Err == nil || e.Err.Error() == e.Reason {
		return e.Reason
	}
	return e.Reason + " " + e.Err.Error()
}
