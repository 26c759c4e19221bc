// Package casedoc loads, validates and builds authored case documents: the
// YAML scripts that define a simulated patient, what they reveal, which
// tests may be ordered and what the student is expected to conclude.
package casedoc

import (
	"errors"
	"slices"

	"github.com/abhisek/medisim/internal/intent"
)

// Unknown is the rendered value of any absent scalar descriptive field.
const Unknown = "unknown"

// DefaultRubricID is assigned when a document names no rubric.
const DefaultRubricID = "rubric_default"

// PendingResult is returned for an allowed test that has no authored result.
const PendingResult = "Pending"

var (
	// ErrMalformedDocument means the raw text is not parseable YAML or its
	// root is not a key/value mapping.
	ErrMalformedDocument = errors.New("malformed case document")

	// ErrInvalidPayload means a structured builder payload failed validation.
	ErrInvalidPayload = errors.New("invalid case payload")
)

// Case is a fully defaulted, typed case document. It is treated as
// immutable once loaded.
type Case struct {
	ID         string
	Title      string
	Specialty  string
	Difficulty string
	Version    string
	Objectives []string
	RubricID   string

	Patient Patient

	// Reveals maps a topic tag to the patient's scripted disclosure.
	Reveals map[intent.TopicTag]string

	OrdersAllowed []string
	OrderResults  map[string]string

	Expected Expected

	// Warnings lists type mismatches that were tolerated during load.
	Warnings []string
}

type Patient struct {
	Demographics Demographics
	Personality  string
	Vitals       Vitals
	Story        Story
}

type Demographics struct {
	Age  string
	Sex  string
	Name string
}

type Vitals struct {
	Temperature     string
	HeartRate       string
	RespiratoryRate string
	BloodPressure   string
}

type Story struct {
	ChiefComplaint string
	HPISummary     string
}

type Expected struct {
	KeyFindings   []string
	Differentials Differentials
	FinalDx       string
	InitialPlan   []string
}

type Differentials struct {
	ShouldInclude          []string
	ReasonableAlternatives []string
}

// Allows reports whether testName is on the order allow-list. Matching is
// exact.
func (c *Case) Allows(testName string) bool {
	return slices.Contains(c.OrdersAllowed, testName)
}

// ResultFor returns the authored result text for testName, or
// PendingResult when none was authored.
func (c *Case) ResultFor(testName string) string {
	if r, ok := c.OrderResults[testName]; ok {
		return r
	}
	return PendingResult
}

// Reveal returns the disclosure scripted for tag.
func (c *Case) Reveal(tag intent.TopicTag) (string, bool) {
	r, ok := c.Reveals[tag]
	return r, ok
}

// UnlistedResults returns result keys that are not on the allow-list, in
// sorted order. They are harmless but unreachable.
func (c *Case) UnlistedResults() []string {
	var out []string
	for name := range c.OrderResults {
		if !c.Allows(name) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// empty returns a Case with every field at its default.
func empty() *Case {
	return &Case{
		ID:         Unknown,
		Title:      Unknown,
		Specialty:  Unknown,
		Difficulty: Unknown,
		Objectives: []string{},
		RubricID:   DefaultRubricID,
		Patient: Patient{
			Demographics: Demographics{Age: Unknown, Sex: Unknown, Name: Unknown},
			Personality:  Unknown,
			Vitals: Vitals{
				Temperature:     Unknown,
				HeartRate:       Unknown,
				RespiratoryRate: Unknown,
				BloodPressure:   Unknown,
			},
			Story: Story{ChiefComplaint: Unknown, HPISummary: Unknown},
		},
		Reveals:       map[intent.TopicTag]string{},
		OrdersAllowed: []string{},
		OrderResults:  map[string]string{},
		Expected: Expected{
			KeyFindings: []string{},
			Differentials: Differentials{
				ShouldInclude:          []string{},
				ReasonableAlternatives: []string{},
			},
			FinalDx:     Unknown,
			InitialPlan: []string{},
		},
	}
}
