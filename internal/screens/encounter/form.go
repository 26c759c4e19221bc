package encounter

import (
	"strings"

	"github.com/abhisek/medisim/internal/session"
)

// submitForm collects the assessment one field at a time.
type submitForm struct {
	step         int
	finalDx      string
	differential []string
	plan         []string
}

var formPrompts = []string{
	"Final diagnosis",
	"Differential, most likely first (separate with ;)",
	"Initial plan (separate with ;, optional)",
}

func (f *submitForm) prompt() string {
	return formPrompts[f.step]
}

// answer records text for the current step and reports whether the form
// is complete. A blank final diagnosis is accepted and scored as such.
func (f *submitForm) answer(text string) bool {
	switch f.step {
	case 0:
		f.finalDx = text
	case 1:
		f.differential = splitList(text)
	case 2:
		f.plan = splitList(text)
	}
	f.step++
	return f.step == len(formPrompts)
}

func (f *submitForm) assessment() session.Assessment {
	return session.Assessment{
		Differential: f.differential,
		FinalDx:      f.finalDx,
		Plan:         f.plan,
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
