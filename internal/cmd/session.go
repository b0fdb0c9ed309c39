package cmd

import (
	"fmt"
	"io"

	"github.com/charmbracelet/x/exp/ordered"

	"github.com/dotcommander/lmagent/internal/config"
	"github.com/dotcommander/lmagent/internal/errs"
	"github.com/dotcommander/lmagent/internal/present"
	"github.com/dotcommander/lmagent/internal/proto"
	"github.com/dotcommander/lmagent/internal/storage"
	"github.com/dotcommander/lmagent/internal/tui"
)

func openArchive(cfg *config.Config) (*storage.Archive, error) {
	archive, err := storage.OpenArchive(cfg.CachePath)
	if err != nil {
		return nil, errs.Wrap(err, "Could not open the conversation history.")
	}
	return archive, nil
}

// sessionPlan is the saved session a run resumes from and saves to.
type sessionPlan struct {
	Session storage.Session
	Turns   []proto.Message
	Resumed bool
}

// planSession resolves --continue, --continue-last and --title. A title that
// names an existing session resumes it. A resumed session brings back its
// backend unless a model was given.
func planSession(cfg *config.Config, archive *storage.Archive) (sessionPlan, error) {
	var plan sessionPlan
	var err error
	switch {
	case cfg.ContinueLast:
		plan.Session, plan.Turns, err = archive.LoadLatest()
	case cfg.Continue != "":
		plan.Session, plan.Turns, err = archive.Load(cfg.Continue)
	case cfg.Title != "":
		if _, ferr := archive.DB().Find(cfg.Title); ferr == nil {
			plan.Session, plan.Turns, err = archive.Load(cfg.Title)
		}
	}
	if err != nil {
		return sessionPlan{}, errs.Wrap(err, "Could not find the conversation.")
	}

	plan.Resumed = plan.Session.ID != ""
	plan.Session.Title = ordered.First(cfg.Title, plan.Session.Title)
	if plan.Resumed && cfg.Model == "" && plan.Session.Model != "" {
		cfg.API = ordered.First(plan.Session.API, cfg.API)
		cfg.Model = plan.Session.Model
	}
	return plan, nil
}

// autosaver writes the conversation to the archive after every turn.
type autosaver struct {
	cfg     *config.Config
	archive *storage.Archive
	session storage.Session
	saved   bool
}

func newAutosaver(cfg *config.Config, archive *storage.Archive, plan sessionPlan) *autosaver {
	return &autosaver{cfg: cfg, archive: archive, session: plan.Session}
}

// SaveFn returns the save hook for the UI, or nil when saving is disabled.
func (a *autosaver) SaveFn() tui.SaveFn {
	if a == nil || a.cfg.NoCache {
		return nil
	}
	return a.save
}

func (a *autosaver) save(turns []proto.Message) error {
	s := a.session
	s.API = a.cfg.API
	s.Model = a.cfg.Model
	s, err := a.archive.Save(s, turns)
	if err != nil {
		return err //nolint:wrapcheck
	}
	a.session = s
	a.saved = true
	return nil
}

// report tells the user where the conversation went.
func (a *autosaver) report(w io.Writer, s present.Styles) {
	if a == nil || a.cfg.Quiet {
		return
	}
	if a.cfg.NoCache {
		_, _ = fmt.Fprintf(w, "\nConversation was not saved because %s or %s is set.\n",
			s.InlineCode.Render("--no-cache"),
			s.InlineCode.Render("LMAGENT_NO_CACHE"))
		return
	}
	if !a.saved {
		return
	}
	_, _ = fmt.Fprintln(w, "\nConversation saved:",
		s.InlineCode.Render(storage.ShortID(a.session.ID)),
		s.Comment.Render(a.session.Title))
}
