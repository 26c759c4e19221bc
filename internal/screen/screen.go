package screen

import (
	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/medisim/internal/ui/layout"
)

// Screen is one page of the terminal UI. The router owns a stack of them.
type Screen interface {
	// Init returns an initial command when the screen is first created.
	Init() tea.Cmd

	// Update handles messages and returns updated screen + command.
	Update(msg tea.Msg) (Screen, tea.Cmd)

	// View renders the screen content (excluding header/footer).
	View(width, height int) string

	// Title returns the screen name for the header.
	Title() string
}

// KeyHintProvider is implemented by screens that replace the default
// footer key hints.
type KeyHintProvider interface {
	KeyHints() []layout.KeyHint
}

// StatusProvider is implemented by screens that show status text, such as
// the active case and run state, on the right of the header.
type StatusProvider interface {
	Status() string
}
