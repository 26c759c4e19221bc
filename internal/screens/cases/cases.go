// Package cases lists imported cases and starts a run for the one the
// student picks.
package cases

import (
	"context"
	"fmt"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/medisim/internal/casedoc"
	"github.com/abhisek/medisim/internal/router"
	"github.com/abhisek/medisim/internal/screen"
	"github.com/abhisek/medisim/internal/screens/encounter"
	"github.com/abhisek/medisim/internal/session"
	"github.com/abhisek/medisim/internal/store"
	"github.com/abhisek/medisim/internal/ui/components"
	"github.com/abhisek/medisim/internal/ui/layout"
	"github.com/abhisek/medisim/internal/ui/theme"
)

// Service is what the picker needs from session.Service.
type Service interface {
	encounter.Service
	ListCases(ctx context.Context) ([]store.CaseRecord, error)
	Case(ctx context.Context, id string) (*casedoc.Case, error)
	StartRun(ctx context.Context, caseID, student string) (*session.Run, error)
}

type loadedMsg struct {
	Cases []store.CaseRecord
	Err   error
}

type startedMsg struct {
	Run  *session.Run
	Case *casedoc.Case
	Err  error
}

type selectMsg struct {
	CaseID string
}

// Screen is the case picker.
type Screen struct {
	svc     Service
	student string
	menu    components.Menu
	loaded  bool
	count   int
	err     error
}

var _ screen.Screen = (*Screen)(nil)
var _ screen.KeyHintProvider = (*Screen)(nil)
var _ screen.StatusProvider = (*Screen)(nil)

// New creates the picker. Runs it starts are attributed to student.
func New(svc Service, student string) *Screen {
	return &Screen{svc: svc, student: student}
}

func (s *Screen) Init() tea.Cmd {
	return s.load
}

func (s *Screen) load() tea.Msg {
	recs, err := s.svc.ListCases(context.Background())
	return loadedMsg{Cases: recs, Err: err}
}

func (s *Screen) Title() string {
	return "Cases"
}

func (s *Screen) Status() string {
	if !s.loaded {
		return ""
	}
	return fmt.Sprintf("%d available", s.count)
}

func (s *Screen) KeyHints() []layout.KeyHint {
	return []layout.KeyHint{
		{Key: "↑↓", Description: "Navigate"},
		{Key: "Enter", Description: "Start"},
		{Key: "Ctrl+C", Description: "Quit"},
	}
}

func (s *Screen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case loadedMsg:
		s.loaded = true
		s.err = msg.Err
		s.count = len(msg.Cases)
		s.menu = components.NewMenu(menuItems(msg.Cases))
		return s, nil

	case selectMsg:
		s.err = nil
		caseID := msg.CaseID
		return s, func() tea.Msg {
			ctx := context.Background()
			c, err := s.svc.Case(ctx, caseID)
			if err != nil {
				return startedMsg{Err: err}
			}
			run, err := s.svc.StartRun(ctx, caseID, s.student)
			return startedMsg{Run: run, Case: c, Err: err}
		}

	case startedMsg:
		if msg.Err != nil {
			s.err = msg.Err
			return s, nil
		}
		enc := encounter.New(s.svc, msg.Run, msg.Case)
		return s, func() tea.Msg { return router.PushScreenMsg{Screen: enc} }
	}

	var cmd tea.Cmd
	s.menu, cmd = s.menu.Update(msg)
	return s, cmd
}

func menuItems(recs []store.CaseRecord) []components.MenuItem {
	items := make([]components.MenuItem, len(recs))
	for i, rec := range recs {
		id := rec.ID
		detail := id
		if rec.Version != "" {
			detail += " v" + rec.Version
		}
		items[i] = components.MenuItem{
			Label:  rec.Title,
			Detail: detail,
			Action: func() tea.Cmd {
				return func() tea.Msg { return selectMsg{CaseID: id} }
			},
		}
	}
	return items
}

func (s *Screen) View(width, height int) string {
	out := "\n" + theme.Title.Width(width).Render("Choose a case") + "\n\n"

	switch {
	case !s.loaded:
		out += theme.Hint.Render("  Loading cases...")
	case s.count == 0 && s.err == nil:
		out += theme.Hint.Render("  No cases imported yet. Run `medisim case import <file>` first.")
	default:
		out += s.menu.View()
	}

	if s.err != nil {
		out += "\n" + theme.ErrorLine.Render("  "+s.err.Error())
	}
	return out
}
