// Package session orchestrates runs: one student working one case from the
// first question to a scored submission.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/abhisek/medisim/internal/casedoc"
	"github.com/abhisek/medisim/internal/evaluation"
	"github.com/abhisek/medisim/internal/intent"
	"github.com/abhisek/medisim/internal/orders"
	"github.com/abhisek/medisim/internal/store"
	"github.com/abhisek/medisim/internal/transcript"
)

var (
	// ErrRunSubmitted rejects messages and orders on a submitted run.
	ErrRunSubmitted = errors.New("run already submitted")

	// ErrAlreadySubmitted rejects a second submission of a run.
	ErrAlreadySubmitted = errors.New("run was already submitted and evaluated")

	// ErrCaseNotNewer rejects an import that would replace a stored case
	// with an equal or older version.
	ErrCaseNotNewer = errors.New("stored case has an equal or newer version")

	// ErrEmptyQuestion rejects a blank student utterance.
	ErrEmptyQuestion = errors.New("question is empty")
)

// Status is a run's lifecycle state. The only transition is
// StatusInProgress -> StatusSubmitted.
type Status string

const (
	StatusInProgress Status = store.RunInProgress
	StatusSubmitted  Status = store.RunSubmitted
)

// Run is one student attempt at one case.
type Run struct {
	ID          string
	CaseID      string
	Student     string
	Status      Status
	StartedAt   time.Time
	SubmittedAt *time.Time

	// CaseVersion is the version of the case the run was started against.
	CaseVersion string

	// caseDoc is the case document pinned at start.
	caseDoc []byte
}

// Open reports whether the run still accepts messages and orders.
func (r *Run) Open() bool {
	return r.Status == StatusInProgress
}

// checkOpen returns ErrRunSubmitted unless the run is in progress.
func (r *Run) checkOpen() error {
	if !r.Open() {
		return fmt.Errorf("run %s: %w", r.ID, ErrRunSubmitted)
	}
	return nil
}

// submit moves the run to StatusSubmitted. SubmittedAt is set only once.
func (r *Run) submit(at time.Time) error {
	if !r.Open() {
		return fmt.Errorf("run %s: %w", r.ID, ErrAlreadySubmitted)
	}
	r.Status = StatusSubmitted
	if r.SubmittedAt == nil {
		r.SubmittedAt = &at
	}
	return nil
}

// Snapshot is the state of a run read at one point, used for scoring. The
// transcript and orders are loaded fresh for each snapshot; Case is shared
// with the service's cache and must not be modified.
type Snapshot struct {
	Run        Run
	Case       *casedoc.Case
	Transcript transcript.Transcript
	Orders     []orders.Fulfillment
}

// OrderedTests returns the ordered test names, oldest first.
func (s *Snapshot) OrderedTests() []string {
	return orders.TestNames(s.Orders)
}

// Assessment is the student's diagnostic conclusion.
type Assessment struct {
	Differential []string
	FinalDx      string

	// Plan is stored with the evaluation but not scored.
	Plan []string
}

// Report is a stored evaluation with the assessment it scored.
type Report struct {
	RunID      string
	Evaluation *evaluation.Evaluation
	Assessment Assessment
	CreatedAt  time.Time
}

// Exchange is one question and the patient's reply.
type Exchange struct {
	Question transcript.Message
	Reply    transcript.Message
}

func runFromRecord(rec *store.RunRecord) *Run {
	return &Run{
		ID:          rec.ID,
		CaseID:      rec.CaseID,
		Student:     rec.Student,
		Status:      Status(rec.Status),
		StartedAt:   rec.StartedAt,
		SubmittedAt: rec.SubmittedAt,
		CaseVersion: rec.CaseVersion,
		caseDoc:     rec.CaseDocument,
	}
}

func messageToRecord(m transcript.Message) store.MessageRecord {
	return store.MessageRecord{
		Seq:       m.Seq,
		Sender:    string(m.Sender),
		Text:      m.Text,
		Tags:      m.Tags.Strings(),
		CreatedAt: m.CreatedAt,
	}
}

func messageFromRecord(rec store.MessageRecord) transcript.Message {
	m := transcript.Message{
		Seq:       rec.Seq,
		Sender:    transcript.Sender(rec.Sender),
		Text:      rec.Text,
		CreatedAt: rec.CreatedAt,
	}
	if len(rec.Tags) > 0 {
		m.Tags = intent.TagsFromStrings(rec.Tags)
	}
	return m
}

func fulfillmentFromRecord(rec store.OrderRecord) orders.Fulfillment {
	return orders.Fulfillment{
		Order:  orders.Order{TestName: rec.TestName, CreatedAt: rec.CreatedAt},
		Result: orders.Result{Text: rec.ResultText, CreatedAt: rec.ResultAt},
	}
}

func evaluationToRecord(runID string, ev *evaluation.Evaluation, a Assessment) store.EvaluationRecord {
	scores := make(map[string]int, len(ev.Scores))
	for c, s := range ev.Scores {
		scores[string(c)] = s
	}
	feedback := make(map[string]string, len(ev.Feedback))
	for c, f := range ev.Feedback {
		feedback[string(c)] = f
	}
	return store.EvaluationRecord{
		RunID:        runID,
		RubricID:     ev.RubricID,
		Scores:       scores,
		Feedback:     feedback,
		Overall:      ev.Overall,
		Differential: a.Differential,
		FinalDx:      a.FinalDx,
		Plan:         a.Plan,
	}
}

func reportFromRecord(rec *store.EvaluationRecord) *Report {
	ev := &evaluation.Evaluation{
		RubricID: rec.RubricID,
		Scores:   make(map[evaluation.Criterion]int, len(rec.Scores)),
		Feedback: make(map[evaluation.Criterion]string, len(rec.Feedback)),
		Overall:  rec.Overall,
	}
	for c, s := range rec.Scores {
		ev.Scores[evaluation.Criterion(c)] = s
	}
	for c, f := range rec.Feedback {
		ev.Feedback[evaluation.Criterion(c)] = f
	}
	return &Report{
		RunID:      rec.RunID,
		Evaluation: ev,
		Assessment: Assessment{
			Differential: rec.Differential,
			FinalDx:      rec.FinalDx,
			Plan:         rec.Plan,
		},
		CreatedAt: rec.CreatedAt,
	}
}
