package reveal

import (
	"bytes"
	"context"
	"strings"
	"text/template"
	"time"

	"github.com/abhisek/medisim/internal/casedoc"
	"github.com/abhisek/medisim/internal/llm"
	"github.com/abhisek/medisim/internal/logger"
	"github.com/abhisek/medisim/internal/transcript"
)

// ProviderBacked role-plays the patient with an LLM, conditioned on the
// case and the conversation so far. Tags are ignored. Any failure, timeout
// or empty reply yields Apology.
type ProviderBacked struct {
	provider llm.Provider
	timeout  time.Duration
	log      *logger.Logger
}

var _ Resolver = (*ProviderBacked)(nil)

// NewProviderBacked creates a resolver that bounds every provider call by
// timeout. A zero timeout relies on the caller's context alone.
func NewProviderBacked(p llm.Provider, timeout time.Duration, log *logger.Logger) *ProviderBacked {
	if log == nil {
		log = logger.Nop()
	}
	return &ProviderBacked{provider: p, timeout: timeout, log: log}
}

var replySchema = &llm.Schema{
	Name:        "patient-reply",
	Description: "The simulated patient's next utterance",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"reply": map[string]any{
				"type":        "string",
				"description": "What the patient says, in the first person",
			},
		},
		"required":             []any{"reply"},
		"additionalProperties": false,
	},
}

type replyOutput struct {
	Reply string `json:"reply"`
}

func (r *ProviderBacked) Resolve(ctx context.Context, turn Turn) string {
	ctx = llm.WithPurpose(ctx, llm.PurposePatientReply)
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	system, err := buildPersonaPrompt(turn.Case)
	if err != nil {
		r.log.Warn("patient prompt failed", "case_id", turn.Case.ID, "error", err)
		return Apology
	}

	resp, err := r.provider.Generate(ctx, llm.Request{
		System:      system,
		Messages:    history(turn.Transcript, turn.Utterance),
		Schema:      replySchema,
		MaxTokens:   512,
		Temperature: 0.7,
	})
	if err != nil {
		r.log.Warn("patient reply failed, using fallback", "case_id", turn.Case.ID, "error", err)
		return Apology
	}

	var out replyOutput
	if err := resp.Decode(&out); err != nil {
		r.log.Warn("patient reply undecodable, using fallback", "case_id", turn.Case.ID, "error", err)
		return Apology
	}
	reply := strings.TrimSpace(out.Reply)
	if reply == "" {
		r.log.Warn("patient reply empty, using fallback", "case_id", turn.Case.ID)
		return Apology
	}
	return reply
}

// history maps the transcript onto chat roles (student as user, patient as
// assistant) and appends the new utterance.
func history(t transcript.Transcript, utterance string) []llm.Message {
	msgs := make([]llm.Message, 0, len(t)+1)
	for _, m := range t {
		role := llm.RoleUser
		if m.Sender == transcript.Patient {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Text})
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: utterance})
}

// buildPersonaPrompt renders the system prompt. The patient sees its own
// profile and scripted answers but not the expected diagnosis or test
// results.
func buildPersonaPrompt(c *casedoc.Case) (string, error) {
	view := *c
	view.OrdersAllowed = nil
	view.OrderResults = nil
	view.Expected = casedoc.Expected{}
	view.Warnings = nil

	doc, err := casedoc.Marshal(&view)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	err = personaTemplate.Execute(&buf, map[string]any{
		"Personality": c.Patient.Personality,
		"Case":        strings.TrimSpace(string(doc)),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

var personaTemplate = template.Must(template.New("persona").Parse(`You are a standardized patient in a clinical training simulation. A medical student is taking your history.

Rules:
- Stay in character and answer in the first person, in plain lay language.
- Answer only what was asked. Do not volunteer the rest of your history.
- When a scripted answer under qa_reveals covers the question, say it in your own words without changing the facts.
- Never invent symptoms, results or a diagnosis that the case does not support.
- If asked something the case does not cover, say you are not sure.
{{- if and .Personality (ne .Personality "unknown")}}
- Your manner: {{.Personality}}.
{{- end}}

Your case:
{{.Case}}`))
