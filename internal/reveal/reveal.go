// Package reveal turns a student's question into the simulated patient's
// reply.
package reveal

import (
	"context"
	"strings"

	"github.com/abhisek/medisim/internal/casedoc"
	"github.com/abhisek/medisim/internal/intent"
	"github.com/abhisek/medisim/internal/transcript"
)

// Clarification is the reply when no tag has a scripted reveal.
const Clarification = "I'm not sure what you mean. Could you clarify?"

// Apology is the reply when a generative provider fails.
const Apology = "I'm sorry, I'm not feeling up to answering that right now. Could you ask me again?"

// Turn is the conversation state a patient reply is produced from.
type Turn struct {
	// Tags classify Utterance.
	Tags intent.Tags

	Case *casedoc.Case

	// Transcript holds the messages before Utterance.
	Transcript transcript.Transcript

	Utterance string
}

// Resolver produces one patient utterance. Implementations never fail;
// problems degrade to a fixed reply.
type Resolver interface {
	Resolve(ctx context.Context, turn Turn) string
}

// Lookup joins the case's reveals for tags, in tag order, with single
// spaces. It returns Clarification when no tag has a reveal.
func Lookup(tags intent.Tags, c *casedoc.Case) string {
	var hits []string
	for _, tag := range tags {
		if text, ok := c.Reveal(tag); ok {
			hits = append(hits, text)
		}
	}
	if len(hits) == 0 {
		return Clarification
	}
	return strings.Join(hits, " ")
}

// RuleBased answers strictly from the case's reveal table.
type RuleBased struct{}

var _ Resolver = RuleBased{}

func (RuleBased) Resolve(_ context.Context, turn Turn) string {
	return Lookup(turn.Tags, turn.Case)
}
