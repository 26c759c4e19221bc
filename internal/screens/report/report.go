// Package report shows a scored submission.
package report

import (
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/medisim/internal/casedoc"
	"github.com/abhisek/medisim/internal/evaluation"
	"github.com/abhisek/medisim/internal/router"
	"github.com/abhisek/medisim/internal/screen"
	"github.com/abhisek/medisim/internal/session"
	"github.com/abhisek/medisim/internal/ui/components"
	"github.com/abhisek/medisim/internal/ui/layout"
	"github.com/abhisek/medisim/internal/ui/theme"
)

// Screen displays an evaluation next to what the case expected.
type Screen struct {
	report *session.Report
	cse    *casedoc.Case
}

var _ screen.Screen = (*Screen)(nil)
var _ screen.KeyHintProvider = (*Screen)(nil)
var _ screen.StatusProvider = (*Screen)(nil)

// New creates a report screen. c may be nil when the case is no longer
// available; the expected answers are then omitted.
func New(rep *session.Report, c *casedoc.Case) *Screen {
	return &Screen{report: rep, cse: c}
}

func (s *Screen) Init() tea.Cmd {
	return nil
}

func (s *Screen) Title() string {
	return "Evaluation"
}

func (s *Screen) Status() string {
	return fmt.Sprintf("overall %.2f / %d", s.report.Evaluation.Overall, evaluation.MaxScore)
}

func (s *Screen) KeyHints() []layout.KeyHint {
	return []layout.KeyHint{
		{Key: "Enter", Description: "Done"},
		{Key: "Esc", Description: "Back"},
		{Key: "Ctrl+C", Description: "Quit"},
	}
}

func (s *Screen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	if kmsg, ok := msg.(tea.KeyMsg); ok {
		switch kmsg.String() {
		case "enter", "q":
			return s, func() tea.Msg { return router.PopScreenMsg{} }
		}
	}
	return s, nil
}

var criterionLabels = map[evaluation.Criterion]string{
	evaluation.HistoryCoverage:     "History",
	evaluation.DifferentialQuality: "Differential",
	evaluation.TestSelection:       "Tests",
	evaluation.Communication:       "Communication",
}

func (s *Screen) View(width, height int) string {
	ev := s.report.Evaluation
	inner := min(width-4, 90)

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(theme.Title.Width(width).Render(fmt.Sprintf("Overall %.2f / %d", ev.Overall, evaluation.MaxScore)))
	b.WriteString("\n")
	b.WriteString(theme.Subtitle.Width(width).Render("Rubric " + ev.RubricID))
	b.WriteString("\n\n")

	for _, c := range evaluation.Criteria {
		score := ev.Scores[c]
		bar := components.NewProgressBar(criterionLabels[c], float64(score), evaluation.MaxScore, inner)
		bar.LabelWidth = 14
		b.WriteString("  " + bar.View() + "\n")

		style := theme.ScoreLow
		if score >= evaluation.MaxScore {
			style = theme.ScoreHigh
		}
		b.WriteString("  " + strings.Repeat(" ", 16) + style.Render(ev.Feedback[c]) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(s.renderAssessment(inner))
	return lipgloss.NewStyle().MaxHeight(height).Render(b.String())
}

func (s *Screen) renderAssessment(width int) string {
	a := s.report.Assessment
	rows := [][2]string{
		{"Your final dx", orDash(a.FinalDx)},
		{"Your differential", orDash(strings.Join(a.Differential, "; "))},
	}
	if len(a.Plan) > 0 {
		rows = append(rows, [2]string{"Your plan", strings.Join(a.Plan, "; ")})
	}
	if s.cse != nil {
		e := s.cse.Expected
		if e.FinalDx != casedoc.Unknown {
			rows = append(rows, [2]string{"Expected dx", e.FinalDx})
		}
		if len(e.Differentials.ShouldInclude) > 0 {
			rows = append(rows, [2]string{"Should include", strings.Join(e.Differentials.ShouldInclude, "; ")})
		}
		if len(e.KeyFindings) > 0 {
			rows = append(rows, [2]string{"Key findings", strings.Join(e.KeyFindings, "; ")})
		}
	}

	var b strings.Builder
	for _, r := range rows {
		label := theme.Hint.Render(fmt.Sprintf("%-18s", r[0]))
		value := theme.Body.Width(max(width-20, 10)).Render(r[1])
		b.WriteString("  " + lipgloss.JoinHorizontal(lipgloss.Top, label, value) + "\n")
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
