package theme

import (
	"charm.land/lipgloss/v2"
)

// Color palette: muted clinical blues with clear status colors.
var (
	Primary   = lipgloss.Color("#3B82F6") // Blue
	Secondary = lipgloss.Color("#14B8A6") // Teal
	Accent    = lipgloss.Color("#F59E0B") // Amber
	Success   = lipgloss.Color("#22C55E") // Green
	Error     = lipgloss.Color("#F43F5E") // Rose
	Text      = lipgloss.Color("#F8FAFC") // White
	TextDim   = lipgloss.Color("#94A3B8") // Slate
	BgDark    = lipgloss.Color("#0F172A") // Deep Navy
	BgCard    = lipgloss.Color("#1E293B") // Dark Slate
	Border    = lipgloss.Color("#334155") // Slate
)

// Typography
var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary).
		Align(lipgloss.Center)

	Subtitle = lipgloss.NewStyle().
			Foreground(TextDim).
			Align(lipgloss.Center)

	Body = lipgloss.NewStyle().
		Foreground(Text)

	Hint = lipgloss.NewStyle().
		Foreground(TextDim).
		Italic(true)
)

// Layout
var (
	Header = lipgloss.NewStyle().
		Background(BgCard).
		Padding(0, 2)

	Footer = lipgloss.NewStyle().
		Background(BgCard).
		Padding(0, 2)

	Card = lipgloss.NewStyle().
		Background(BgCard).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Border).
		Padding(1, 2)
)

// Conversation
var (
	StudentLabel = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)

	PatientLabel = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	SystemLine = lipgloss.NewStyle().
			Foreground(Accent)

	ResultLine = lipgloss.NewStyle().
			Foreground(Text).
			PaddingLeft(2)

	ErrorLine = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)
)

// Scores
var (
	ScoreHigh = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	ScoreLow = lipgloss.NewStyle().
			Foreground(Accent).
			Bold(true)

	Selected = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)

	Unselected = lipgloss.NewStyle().
			Foreground(Text)
)
