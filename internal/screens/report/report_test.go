package report

import (
	"strings"
	"testing"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/medisim/internal/casedoc"
	"github.com/abhisek/medisim/internal/evaluation"
	"github.com/abhisek/medisim/internal/router"
	"github.com/abhisek/medisim/internal/session"
)

func testReport() *session.Report {
	return &session.Report{
		RunID: "run-1",
		Evaluation: &evaluation.Evaluation{
			RubricID: "rubric_uti_v1",
			Scores: map[evaluation.Criterion]int{
				evaluation.HistoryCoverage:     2,
				evaluation.DifferentialQuality: 2,
				evaluation.TestSelection:       2,
				evaluation.Communication:       1,
			},
			Feedback: map[evaluation.Criterion]string{
				evaluation.HistoryCoverage:     "Good coverage of key history items.",
				evaluation.DifferentialQuality: "Differential includes the expected diagnosis.",
				evaluation.TestSelection:       "Appropriate initial tests ordered.",
				evaluation.Communication:       "Professional tone.",
			},
			Overall: 1.75,
		},
		Assessment: session.Assessment{
			Differential: []string{"Acute uncomplicated cystitis", "Vaginitis"},
			FinalDx:      "Acute uncomplicated cystitis",
		},
	}
}

func testCase() *casedoc.Case {
	c := &casedoc.Case{Title: "Dysuria"}
	c.Expected.FinalDx = "Acute uncomplicated cystitis"
	c.Expected.Differentials.ShouldInclude = []string{"Acute uncomplicated cystitis"}
	return c
}

func TestView_ShowsScoresAndFeedback(t *testing.T) {
	s := New(testReport(), testCase())
	view := s.View(100, 40)

	for _, want := range []string{
		"Overall 1.75 / 2",
		"rubric_uti_v1",
		"History",
		"Communication",
		"Professional tone.",
		"Expected dx",
		"Should include",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestView_WithoutCase(t *testing.T) {
	s := New(testReport(), nil)
	view := s.View(100, 40)

	if strings.Contains(view, "Expected dx") {
		t.Error("expected answers should be hidden without a case")
	}
	if !strings.Contains(view, "Your final dx") {
		t.Error("view should still show the submitted assessment")
	}
}

func TestStatus(t *testing.T) {
	s := New(testReport(), nil)
	if got, want := s.Status(), "overall 1.75 / 2"; got != want {
		t.Errorf("Status() = %q, want %q", got, want)
	}
}

func TestEnterPops(t *testing.T) {
	s := New(testReport(), nil)
	_, cmd := s.Update(tea.KeyPressMsg{Code: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected a command")
	}
	if _, ok := cmd().(router.PopScreenMsg); !ok {
		t.Errorf("expected PopScreenMsg, got %T", cmd())
	}
}
