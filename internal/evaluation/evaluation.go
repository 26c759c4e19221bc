// Package evaluation scores a submitted encounter against the case rubric.
package evaluation

import (
	"math"
	"slices"

	"github.com/abhisek/medisim/internal/casedoc"
	"github.com/abhisek/medisim/internal/intent"
	"github.com/abhisek/medisim/internal/transcript"
)

// Criterion names one rubric dimension.
type Criterion string

const (
	HistoryCoverage     Criterion = "history_coverage"
	DifferentialQuality Criterion = "differential_quality"
	TestSelection       Criterion = "test_selection"
	Communication       Criterion = "communication"
)

// Criteria lists every criterion in report order.
var Criteria = []Criterion{HistoryCoverage, DifferentialQuality, TestSelection, Communication}

// MaxScore is the top of every criterion's scale.
const MaxScore = 2

// communicationScore is fixed until transcripts are assessed for it.
const communicationScore = 1

var (
	// requiredHistory must all be asked about for full history marks.
	requiredHistory = intent.Tags{intent.TagOnset, intent.TagDischarge, intent.TagFlankPain, intent.TagPregnancy}

	// partialHistory earns partial marks when any one was asked about.
	partialHistory = intent.Tags{intent.TagOnset, intent.TagDischarge}
)

var feedbackText = map[Criterion][2]string{
	// {below max, at max}
	HistoryCoverage:     {"Consider asking about pregnancy status and flank pain.", "Thorough history-taking."},
	DifferentialQuality: {"Include the most likely dx in your top 3.", "Good differential."},
	TestSelection:       {"Urinalysis and pregnancy test are appropriate first-line tests.", "Appropriate initial testing."},
}

const communicationFeedback = "Try summarizing before moving on."

// Evaluation is the scored outcome of one run.
type Evaluation struct {
	RubricID string
	Scores   map[Criterion]int
	Feedback map[Criterion]string

	// Overall is the unweighted mean of Scores rounded to two decimals.
	Overall float64
}

// Evaluate scores an encounter. It depends only on its arguments.
func Evaluate(c *casedoc.Case, t transcript.Transcript, differential []string, finalDx string, orderedTests []string) *Evaluation {
	scores := map[Criterion]int{
		HistoryCoverage:     historyScore(t.TagUnion()),
		DifferentialQuality: differentialScore(c, differential, finalDx),
		TestSelection:       testScore(c, orderedTests),
		Communication:       communicationScore,
	}

	feedback := make(map[Criterion]string, len(Criteria))
	sum := 0
	for _, cr := range Criteria {
		sum += scores[cr]
		if cr == Communication {
			feedback[cr] = communicationFeedback
			continue
		}
		text := feedbackText[cr]
		if scores[cr] < MaxScore {
			feedback[cr] = text[0]
		} else {
			feedback[cr] = text[1]
		}
	}

	return &Evaluation{
		RubricID: c.RubricID,
		Scores:   scores,
		Feedback: feedback,
		Overall:  round2(float64(sum) / float64(len(Criteria))),
	}
}

func historyScore(asked intent.Tags) int {
	all := true
	for _, tag := range requiredHistory {
		if !asked.Contains(tag) {
			all = false
			break
		}
	}
	if all {
		return 2
	}
	for _, tag := range partialHistory {
		if asked.Contains(tag) {
			return 1
		}
	}
	return 0
}

func differentialScore(c *casedoc.Case, differential []string, finalDx string) int {
	want := c.Expected.Differentials.ShouldInclude
	if slices.Contains(want, finalDx) {
		return 2
	}
	for _, dx := range differential {
		if slices.Contains(want, dx) {
			return 2
		}
	}
	if len(differential) > 0 {
		return 1
	}
	return 0
}

// testScore has no partial tier.
func testScore(c *casedoc.Case, orderedTests []string) int {
	for _, name := range orderedTests {
		if c.Allows(name) {
			return 2
		}
	}
	return 0
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
