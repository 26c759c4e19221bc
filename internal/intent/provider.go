package intent

import (
	"bytes"
	"context"
	"text/template"
	"time"

	"github.com/abhisek/medisim/internal/llm"
	"github.com/abhisek/medisim/internal/logger"
)

// ProviderClassifier asks an LLM to pick topic tags from a fixed
// vocabulary. Any provider failure degrades to keyword matching, so
// Classify still never returns an empty set.
type ProviderClassifier struct {
	provider llm.Provider
	fallback *KeywordClassifier
	vocab    Tags
	schema   *llm.Schema
	timeout  time.Duration
	log      *logger.Logger
}

var _ Classifier = (*ProviderClassifier)(nil)

// NewProviderClassifier creates a classifier over table's vocabulary. A
// zero timeout leaves the call bounded only by the caller's context.
func NewProviderClassifier(p llm.Provider, table KeywordTable, timeout time.Duration, log *logger.Logger) *ProviderClassifier {
	if log == nil {
		log = logger.Nop()
	}
	vocab := table.Vocabulary()
	return &ProviderClassifier{
		provider: p,
		fallback: NewKeywordClassifier(table),
		vocab:    vocab,
		schema:   tagSchema(vocab),
		timeout:  timeout,
		log:      log,
	}
}

type tagOutput struct {
	Tags []string `json:"tags"`
}

func (c *ProviderClassifier) Classify(text string) Tags {
	return c.ClassifyContext(context.Background(), text)
}

// ClassifyContext is Classify bounded by ctx.
func (c *ProviderClassifier) ClassifyContext(ctx context.Context, text string) Tags {
	ctx = llm.WithPurpose(ctx, llm.PurposeIntentTagging)
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var msg bytes.Buffer
	if err := tagUserTemplate.Execute(&msg, map[string]any{"Vocab": c.vocab, "Text": text}); err != nil {
		return c.fallback.Classify(text)
	}

	resp, err := c.provider.Generate(ctx, llm.Request{
		System:    tagSystemPrompt,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: msg.String()}},
		Schema:    c.schema,
		MaxTokens: 128,
	})
	if err != nil {
		c.log.Warn("intent tagging failed, using keywords", "error", err)
		return c.fallback.Classify(text)
	}

	var out tagOutput
	if err := resp.Decode(&out); err != nil {
		c.log.Warn("intent tagging returned bad output, using keywords", "error", err)
		return c.fallback.Classify(text)
	}

	var tags Tags
	for _, s := range out.Tags {
		t := NormalizeTag(s)
		if t != TagMisc && c.vocab.Contains(t) {
			tags = tags.add(t)
		}
	}
	if len(tags) == 0 {
		return Tags{TagMisc}
	}
	return tags
}

func tagSchema(vocab Tags) *llm.Schema {
	enum := make([]any, len(vocab))
	for i, t := range vocab {
		enum[i] = string(t)
	}
	return &llm.Schema{
		Name:        "intent-tags",
		Description: "Clinical history topics a student question asks about",
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"tags": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string", "enum": enum},
				},
			},
			"required":             []any{"tags"},
			"additionalProperties": false,
		},
	}
}

const tagSystemPrompt = `You label a medical student's question to a simulated patient with the history-taking topics it asks about.

Rules:
- Only use topics from the list provided.
- Return every topic the question covers, most relevant first.
- Return ["misc"] when the question covers none of them.`

var tagUserTemplate = template.Must(template.New("tags").Parse(`Topics: {{range $i, $t := .Vocab}}{{if $i}}, {{end}}{{$t}}{{end}}

Question: {{.Text}}`))
