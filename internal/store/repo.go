package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrRunClosed is returned when a write targets a run that is no longer in
// progress.
var ErrRunClosed = errors.New("run is not in progress")

// Run status values.
const (
	RunInProgress = "in_progress"
	RunSubmitted  = "submitted"
)

// QueryOpts configures list queries.
type QueryOpts struct {
	Limit   int    // max results (0 = unlimited)
	Purpose string // LLM events only; empty matches all
	CaseID  string // runs only; empty matches all
}

// CaseRecord is a stored case document. Document holds the raw YAML the
// case was imported from.
type CaseRecord struct {
	ID         string
	Title      string
	Version    string
	RubricID   string
	Document   []byte
	ImportedAt time.Time
}

// CaseRepo stores authored cases.
type CaseRepo interface {
	// PutCase inserts rec or replaces the stored case with the same ID.
	PutCase(ctx context.Context, rec CaseRecord) error

	// GetCase returns ErrNotFound when no case has the ID.
	GetCase(ctx context.Context, id string) (*CaseRecord, error)

	ListCases(ctx context.Context) ([]CaseRecord, error)
}

// RunRecord is one student attempt at one case.
type RunRecord struct {
	ID          string
	CaseID      string
	Student     string
	Status      string
	StartedAt   time.Time
	SubmittedAt *time.Time

	// CaseVersion and CaseDocument pin the case as it was when the run
	// started. Later imports of the same case do not affect the run.
	CaseVersion  string
	CaseDocument []byte
}

// MessageRecord is a stored transcript entry. Seq is assigned by the
// store, starting at 1 for each run.
type MessageRecord struct {
	RunID     string
	Seq       int
	Sender    string
	Text      string
	Tags      []string
	CreatedAt time.Time
}

// OrderRecord is an order joined with its result.
type OrderRecord struct {
	ID         int64
	RunID      string
	TestName   string
	CreatedAt  time.Time
	ResultText string
	ResultAt   time.Time
}

// EvaluationRecord is the stored outcome of a submission: the scores plus
// the assessment they were computed from.
type EvaluationRecord struct {
	RunID        string
	RubricID     string
	Scores       map[string]int
	Feedback     map[string]string
	Overall      float64
	Differential []string
	FinalDx      string
	Plan         []string
	CreatedAt    time.Time
}

// RunRepo stores runs and everything that hangs off them.
type RunRepo interface {
	CreateRun(ctx context.Context, rec RunRecord) error

	// GetRun returns ErrNotFound when no run has the ID.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, opts QueryOpts) ([]RunRecord, error)

	// AppendMessages stores msgs in one transaction, assigning consecutive
	// sequence numbers after the run's last message. The stored records
	// are returned. Fails with ErrRunClosed once the run is submitted.
	AppendMessages(ctx context.Context, runID string, msgs ...MessageRecord) ([]MessageRecord, error)

	// Transcript returns the run's messages in sequence order.
	Transcript(ctx context.Context, runID string) ([]MessageRecord, error)

	// AddOrder stores an order and its result in one transaction. Fails
	// with ErrRunClosed once the run is submitted.
	AddOrder(ctx context.Context, rec OrderRecord) (*OrderRecord, error)

	// Orders returns the run's orders with results, oldest first.
	Orders(ctx context.Context, runID string) ([]OrderRecord, error)

	// Submit marks the run submitted at the given time and stores its
	// evaluation in one transaction. Fails with ErrRunClosed when the run
	// was already submitted.
	Submit(ctx context.Context, ev EvaluationRecord, at time.Time) error

	// Evaluation returns ErrNotFound until the run has been submitted.
	Evaluation(ctx context.Context, runID string) (*EvaluationRecord, error)
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// LLMRequestEvent is a stored LLM request event.
type LLMRequestEvent struct {
	ID        int64
	Timestamp time.Time
	LLMRequestEventData
}

// PurposeUsage aggregates LLM usage for one purpose label.
type PurposeUsage struct {
	Purpose      string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// ModelUsage aggregates LLM token usage for one model.
type ModelUsage struct {
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
}

// EventRepo records and queries LLM request events.
type EventRepo interface {
	// AppendLLMRequest records an LLM API call event.
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error

	// QueryLLMEvents returns events newest first.
	QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMRequestEvent, error)

	// GetLLMEvent returns ErrNotFound when no event has the ID.
	GetLLMEvent(ctx context.Context, id int64) (*LLMRequestEvent, error)

	LLMUsageByPurpose(ctx context.Context) ([]PurposeUsage, error)
	LLMUsageByModel(ctx context.Context) ([]ModelUsage, error)
}
