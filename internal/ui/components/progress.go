package components

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/medisim/internal/ui/theme"
)

// ProgressBar displays a horizontal bar for a score out of Max.
type ProgressBar struct {
	Label string

	// LabelWidth pads the label so stacked bars line up.
	LabelWidth int
	Score      float64
	Max        float64
	Width      int
}

// NewProgressBar creates a bar for score out of outOf.
func NewProgressBar(label string, score, outOf float64, width int) ProgressBar {
	return ProgressBar{
		Label: label,
		Score: score,
		Max:   outOf,
		Width: width,
	}
}

// Fraction returns Score/Max clamped to [0, 1].
func (p ProgressBar) Fraction() float64 {
	if p.Max <= 0 {
		return 0
	}
	f := p.Score / p.Max
	return min(max(f, 0), 1)
}

// View renders the progress bar followed by "score/max".
func (p ProgressBar) View() string {
	var result string

	if p.Label != "" {
		label := p.Label
		if pad := p.LabelWidth - lipgloss.Width(label); pad > 0 {
			label += strings.Repeat(" ", pad)
		}
		result += lipgloss.NewStyle().Foreground(theme.Text).Render(label) + "  "
	}

	suffix := fmt.Sprintf("  %g/%g", p.Score, p.Max)
	barWidth := p.Width - lipgloss.Width(result) - len(suffix)
	if barWidth < 4 {
		barWidth = 4
	}

	filled := int(float64(barWidth) * p.Fraction())
	empty := barWidth - filled

	fill := theme.Secondary
	if p.Fraction() >= 1 {
		fill = theme.Success
	}
	result += lipgloss.NewStyle().Background(fill).Render(strings.Repeat(" ", filled))
	result += lipgloss.NewStyle().Background(theme.Border).Render(strings.Repeat(" ", empty))
	result += lipgloss.NewStyle().Foreground(theme.TextDim).Render(suffix)

	return result
}
