package components

import (
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
)

// TextInput wraps bubbles/textinput with a recall buffer: up and down step
// through previously submitted lines.
type TextInput struct {
	Model   textinput.Model
	history []string
	cursor  int
}

// NewTextInput creates a focused text input. charLimit of zero means no
// limit.
func NewTextInput(placeholder string, charLimit int) TextInput {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.Focus()

	if charLimit > 0 {
		ti.CharLimit = charLimit
	}

	return TextInput{Model: ti}
}

// Init returns the initial command.
func (t TextInput) Init() tea.Cmd {
	return t.Model.Focus()
}

// Update handles messages.
func (t TextInput) Update(msg tea.Msg) (TextInput, tea.Cmd) {
	if kmsg, ok := msg.(tea.KeyMsg); ok {
		switch kmsg.String() {
		case "up":
			if t.cursor > 0 {
				t.cursor--
				t.Model.SetValue(t.history[t.cursor])
				t.Model.CursorEnd()
			}
			return t, nil
		case "down":
			if t.cursor < len(t.history)-1 {
				t.cursor++
				t.Model.SetValue(t.history[t.cursor])
			} else {
				t.cursor = len(t.history)
				t.Model.SetValue("")
			}
			t.Model.CursorEnd()
			return t, nil
		}
	}

	var cmd tea.Cmd
	t.Model, cmd = t.Model.Update(msg)
	return t, cmd
}

// View renders the text input.
func (t TextInput) View() string {
	return t.Model.View()
}

// Value returns the current input value.
func (t TextInput) Value() string {
	return t.Model.Value()
}

// Take returns the current value, remembers it for recall and clears the
// input.
func (t *TextInput) Take() string {
	v := t.Model.Value()
	if v != "" {
		t.history = append(t.history, v)
	}
	t.cursor = len(t.history)
	t.Model.SetValue("")
	return v
}

// SetPlaceholder changes the placeholder text.
func (t *TextInput) SetPlaceholder(p string) {
	t.Model.Placeholder = p
}
