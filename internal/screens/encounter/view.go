package encounter

import (
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/medisim/internal/ui/layout"
	"github.com/abhisek/medisim/internal/ui/theme"
)

// inputHeight covers the divider and the prompt.
const inputHeight = 2

func (s *Screen) View(width, height int) string {
	inner := width - 4
	if inner < 20 {
		inner = 20
	}

	var rendered []string
	for _, l := range s.lines {
		rendered = append(rendered, strings.Split(renderLine(l, inner), "\n")...)
	}
	if s.busy {
		rendered = append(rendered, theme.Hint.Render("  ..."))
	}

	logHeight := height - inputHeight
	rendered = layout.Tail(rendered, logHeight)
	if pad := logHeight - len(rendered); pad > 0 {
		rendered = append(make([]string, pad), rendered...)
	}

	var b strings.Builder
	for _, r := range rendered {
		b.WriteString("  " + r + "\n")
	}
	b.WriteString(lipgloss.NewStyle().Foreground(theme.Border).Render(strings.Repeat("─", inner)))
	b.WriteString("\n")

	label := theme.StudentLabel.Render("  You ▸ ")
	if s.form != nil {
		label = theme.SystemLine.Render("  " + s.form.prompt() + " ▸ ")
	}
	b.WriteString(label + s.input.View())
	return b.String()
}

func renderLine(l line, width int) string {
	var prefix string
	var style lipgloss.Style
	switch l.kind {
	case lineStudent:
		prefix = theme.StudentLabel.Render("You: ")
		style = theme.Body
	case linePatient:
		prefix = theme.PatientLabel.Render("Patient: ")
		style = theme.Body
	case lineResult:
		prefix = theme.SystemLine.Render("Result ")
		style = theme.ResultLine
	case lineError:
		style = theme.ErrorLine
	default:
		style = theme.Hint
	}
	body := style.Width(width - lipgloss.Width(prefix)).Render(l.text)
	return lipgloss.JoinHorizontal(lipgloss.Top, prefix, body)
}
