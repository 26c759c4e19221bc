// Package encounter is the chat screen where a student interviews the
// simulated patient, orders tests and submits an assessment.
package encounter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/medisim/internal/casedoc"
	"github.com/abhisek/medisim/internal/orders"
	"github.com/abhisek/medisim/internal/router"
	"github.com/abhisek/medisim/internal/screen"
	"github.com/abhisek/medisim/internal/screens/report"
	"github.com/abhisek/medisim/internal/session"
	"github.com/abhisek/medisim/internal/ui/components"
	"github.com/abhisek/medisim/internal/ui/layout"
)

// Service is the part of session.Service the encounter drives.
type Service interface {
	Ask(ctx context.Context, runID, text string) (*session.Exchange, error)
	Order(ctx context.Context, runID, testName string) (*orders.Fulfillment, error)
	Results(ctx context.Context, runID string) ([]orders.Fulfillment, error)
	Submit(ctx context.Context, runID string, a session.Assessment) (*session.Report, error)
}

type lineKind int

const (
	lineSystem lineKind = iota
	lineStudent
	linePatient
	lineResult
	lineError
)

type line struct {
	kind lineKind
	text string
}

// Screen implements screen.Screen for one run.
type Screen struct {
	svc   Service
	run   *session.Run
	cse   *casedoc.Case
	lines []line
	input components.TextInput
	busy  bool

	// form is non-nil while the assessment is being collected.
	form *submitForm
}

var _ screen.Screen = (*Screen)(nil)
var _ screen.KeyHintProvider = (*Screen)(nil)
var _ screen.StatusProvider = (*Screen)(nil)

// New creates the encounter screen for run, which must be a run of c.
func New(svc Service, run *session.Run, c *casedoc.Case) *Screen {
	s := &Screen{
		svc:   svc,
		run:   run,
		cse:   c,
		input: components.NewTextInput("Ask the patient a question, or /help", 500),
	}
	s.lines = append(s.lines, introLines(c)...)
	return s
}

func (s *Screen) Init() tea.Cmd {
	return s.input.Init()
}

func (s *Screen) Title() string {
	return s.cse.Title
}

func (s *Screen) Status() string {
	return fmt.Sprintf("%s · %s", s.cse.ID, strings.ReplaceAll(string(s.run.Status), "_", " "))
}

func (s *Screen) KeyHints() []layout.KeyHint {
	if s.form != nil {
		return []layout.KeyHint{
			{Key: "Enter", Description: "Next"},
			{Key: "/cancel", Description: "Back to interview"},
		}
	}
	return []layout.KeyHint{
		{Key: "Enter", Description: "Send"},
		{Key: "↑↓", Description: "Recall"},
		{Key: "/help", Description: "Commands"},
		{Key: "Esc", Description: "Leave"},
	}
}

func (s *Screen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case replyMsg:
		return s.handleReply(msg)
	case orderMsg:
		return s.handleOrder(msg)
	case resultsMsg:
		return s.handleResults(msg)
	case submittedMsg:
		return s.handleSubmitted(msg)
	case tea.KeyMsg:
		if msg.String() == "enter" {
			return s.handleEnter()
		}
	}

	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)
	return s, cmd
}

func (s *Screen) handleEnter() (screen.Screen, tea.Cmd) {
	if s.busy {
		return s, nil
	}
	text := strings.TrimSpace(s.input.Take())

	if s.form != nil {
		return s.advanceForm(text)
	}
	if text == "" {
		return s, nil
	}
	if strings.HasPrefix(text, "/") {
		return s.runCommand(text)
	}

	s.busy = true
	s.add(lineStudent, text)
	runID := s.run.ID
	return s, func() tea.Msg {
		ex, err := s.svc.Ask(context.Background(), runID, text)
		return replyMsg{Exchange: ex, Err: err}
	}
}

func (s *Screen) runCommand(text string) (screen.Screen, tea.Cmd) {
	name, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)
	runID := s.run.ID

	switch strings.ToLower(name) {
	case "/help":
		s.add(lineSystem, helpText)
		return s, nil

	case "/tests":
		if len(s.cse.OrdersAllowed) == 0 {
			s.add(lineSystem, "No tests can be ordered for this case.")
			return s, nil
		}
		s.add(lineSystem, "Available tests: "+strings.Join(s.cse.OrdersAllowed, ", "))
		return s, nil

	case "/order":
		if arg == "" {
			s.add(lineError, "Usage: /order <test name>")
			return s, nil
		}
		s.busy = true
		s.add(lineSystem, "Ordering "+arg+"...")
		return s, func() tea.Msg {
			f, err := s.svc.Order(context.Background(), runID, arg)
			return orderMsg{TestName: arg, Fulfillment: f, Err: err}
		}

	case "/results":
		s.busy = true
		return s, func() tea.Msg {
			fs, err := s.svc.Results(context.Background(), runID)
			return resultsMsg{Fulfillments: fs, Err: err}
		}

	case "/submit":
		s.form = &submitForm{}
		s.add(lineSystem, "Submitting your assessment. Type /cancel to keep interviewing.")
		s.input.SetPlaceholder(s.form.prompt())
		return s, nil
	}

	s.add(lineError, fmt.Sprintf("Unknown command %s. Type /help for the list.", name))
	return s, nil
}

func (s *Screen) advanceForm(text string) (screen.Screen, tea.Cmd) {
	if strings.EqualFold(text, "/cancel") {
		s.form = nil
		s.input.SetPlaceholder("Ask the patient a question, or /help")
		s.add(lineSystem, "Back to the interview.")
		return s, nil
	}

	s.add(lineStudent, s.form.prompt()+": "+text)
	if !s.form.answer(text) {
		s.input.SetPlaceholder(s.form.prompt())
		return s, nil
	}

	a := s.form.assessment()
	s.busy = true
	s.add(lineSystem, "Scoring...")
	runID := s.run.ID
	return s, func() tea.Msg {
		rep, err := s.svc.Submit(context.Background(), runID, a)
		return submittedMsg{Report: rep, Err: err}
	}
}

func (s *Screen) handleReply(msg replyMsg) (screen.Screen, tea.Cmd) {
	s.busy = false
	if msg.Err != nil {
		s.add(lineError, describe(msg.Err))
		return s, nil
	}
	s.add(linePatient, msg.Exchange.Reply.Text)
	return s, nil
}

func (s *Screen) handleOrder(msg orderMsg) (screen.Screen, tea.Cmd) {
	s.busy = false
	if msg.Err != nil {
		s.add(lineError, describe(msg.Err))
		if errors.Is(msg.Err, orders.ErrTestNotAllowed) {
			if alts := orders.Suggest(msg.TestName, s.cse); len(alts) > 0 {
				s.add(lineSystem, "Did you mean: "+strings.Join(alts, ", ")+"?")
			} else {
				s.add(lineSystem, "Type /tests to see what can be ordered.")
			}
		}
		return s, nil
	}
	f := msg.Fulfillment
	s.add(lineResult, f.Order.TestName+": "+f.Result.Text)
	return s, nil
}

func (s *Screen) handleResults(msg resultsMsg) (screen.Screen, tea.Cmd) {
	s.busy = false
	if msg.Err != nil {
		s.add(lineError, describe(msg.Err))
		return s, nil
	}
	if len(msg.Fulfillments) == 0 {
		s.add(lineSystem, "No tests ordered yet.")
		return s, nil
	}
	for _, f := range msg.Fulfillments {
		s.add(lineResult, f.Order.TestName+": "+f.Result.Text)
	}
	return s, nil
}

func (s *Screen) handleSubmitted(msg submittedMsg) (screen.Screen, tea.Cmd) {
	s.busy = false
	if msg.Err != nil {
		s.form = nil
		s.add(lineError, describe(msg.Err))
		return s, nil
	}
	s.run.Status = session.StatusSubmitted
	rep := report.New(msg.Report, s.cse)
	return s, func() tea.Msg { return router.ReplaceScreenMsg{Screen: rep} }
}

func (s *Screen) add(kind lineKind, text string) {
	s.lines = append(s.lines, line{kind: kind, text: text})
}

// describe turns service errors into something a student can act on.
func describe(err error) string {
	switch {
	case errors.Is(err, orders.ErrTestNotAllowed):
		return "That test is not available for this case."
	case errors.Is(err, session.ErrRunSubmitted), errors.Is(err, session.ErrAlreadySubmitted):
		return "This encounter has already been submitted."
	case errors.Is(err, session.ErrEmptyQuestion):
		return "Type a question first."
	}
	return "Something went wrong: " + err.Error()
}

const helpText = `Commands:
  /tests            list tests you can order
  /order <test>     order a test, e.g. /order Urinalysis
  /results          show results so far
  /submit           give your diagnosis and finish
Anything else is asked to the patient.`

// introLines is the triage note shown when the encounter opens.
func introLines(c *casedoc.Case) []line {
	var who []string
	d := c.Patient.Demographics
	if d.Name != casedoc.Unknown {
		who = append(who, d.Name)
	}
	if d.Age != casedoc.Unknown {
		who = append(who, d.Age+" years old")
	}
	if d.Sex != casedoc.Unknown {
		who = append(who, d.Sex)
	}

	out := []line{}
	if len(who) > 0 {
		out = append(out, line{lineSystem, "Patient: " + strings.Join(who, ", ")})
	}
	if cc := c.Patient.Story.ChiefComplaint; cc != casedoc.Unknown {
		out = append(out, line{lineSystem, "Chief complaint: " + cc})
	}

	v := c.Patient.Vitals
	var vitals []string
	for _, f := range []struct{ label, value string }{
		{"T", v.Temperature},
		{"HR", v.HeartRate},
		{"RR", v.RespiratoryRate},
		{"BP", v.BloodPressure},
	} {
		if f.value != casedoc.Unknown {
			vitals = append(vitals, f.label+" "+f.value)
		}
	}
	if len(vitals) > 0 {
		out = append(out, line{lineSystem, "Vitals: " + strings.Join(vitals, "  ")})
	}
	out = append(out, line{lineSystem, "Take a history. Type /help for commands."})
	return out
}
