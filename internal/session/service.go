package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/abhisek/medisim/internal/casedoc"
	"github.com/abhisek/medisim/internal/evaluation"
	"github.com/abhisek/medisim/internal/intent"
	"github.com/abhisek/medisim/internal/logger"
	"github.com/abhisek/medisim/internal/orders"
	"github.com/abhisek/medisim/internal/reveal"
	"github.com/abhisek/medisim/internal/store"
	"github.com/abhisek/medisim/internal/transcript"
)

// Options configures a Service. Zero values select keyword tagging,
// rule-based replies, a ten minute case cache and a no-op logger.
type Options struct {
	Classifier intent.Classifier
	Resolver   reveal.Resolver
	CaseTTL    time.Duration
	Logger     *logger.Logger

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Service runs encounters against stored cases. All writes to one run are
// serialized; different runs proceed in parallel.
type Service struct {
	cases      store.CaseRepo
	runs       store.RunRepo
	classifier intent.Classifier
	resolver   reveal.Resolver
	caseCache  *cache.Cache
	locks      *runLocks
	log        *logger.Logger
	now        func() time.Time
}

// contextClassifier is implemented by classifiers that make blocking calls.
type contextClassifier interface {
	ClassifyContext(ctx context.Context, text string) intent.Tags
}

// NewService creates a Service over the given repositories.
func NewService(cases store.CaseRepo, runs store.RunRepo, opts Options) *Service {
	if opts.Classifier == nil {
		opts.Classifier = intent.NewKeywordClassifier(intent.DefaultKeywordTable())
	}
	if opts.Resolver == nil {
		opts.Resolver = reveal.RuleBased{}
	}
	if opts.CaseTTL <= 0 {
		opts.CaseTTL = 10 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		cases:      cases,
		runs:       runs,
		classifier: opts.Classifier,
		resolver:   opts.Resolver,
		caseCache:  cache.New(opts.CaseTTL, 2*opts.CaseTTL),
		locks:      newRunLocks(),
		log:        opts.Logger,
		now:        opts.Now,
	}
}

// ImportCase parses raw and stores it. source is the file the document came
// from; its stem stands in for a missing title or id. A stored case is only
// replaced by a newer version unless force is set.
func (s *Service) ImportCase(ctx context.Context, raw []byte, source string, force bool) (*casedoc.Case, error) {
	c, err := casedoc.Load(raw)
	if err != nil {
		return nil, err
	}

	stem := fileStem(source)
	if c.Title == casedoc.Unknown && stem != "" {
		c.Title = stem
	}
	if c.ID == casedoc.Unknown {
		c.ID = casedoc.Slug(c.Title)
	}

	existing, err := s.cases.GetCase(ctx, c.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("look up case %s: %w", c.ID, err)
	case !force && casedoc.CompareVersions(c.Version, existing.Version) <= 0:
		return nil, fmt.Errorf("case %s version %q, stored %q: %w", c.ID, c.Version, existing.Version, ErrCaseNotNewer)
	}

	doc, err := casedoc.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("render case %s: %w", c.ID, err)
	}
	rec := store.CaseRecord{
		ID:         c.ID,
		Title:      c.Title,
		Version:    c.Version,
		RubricID:   c.RubricID,
		Document:   doc,
		ImportedAt: s.now(),
	}
	if err := s.cases.PutCase(ctx, rec); err != nil {
		return nil, fmt.Errorf("store case %s: %w", c.ID, err)
	}
	s.caseCache.Delete(c.ID)

	s.log.Info("case imported", "case_id", c.ID, "version", c.Version, "warnings", len(c.Warnings))
	return c, nil
}

// Case returns the stored case with id, parsed. Parsed cases are cached.
func (s *Service) Case(ctx context.Context, id string) (*casedoc.Case, error) {
	if v, ok := s.caseCache.Get(id); ok {
		return v.(*casedoc.Case), nil
	}
	rec, err := s.cases.GetCase(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("case %s: %w", id, err)
	}
	c, err := casedoc.Load(rec.Document)
	if err != nil {
		return nil, fmt.Errorf("case %s: %w", id, err)
	}
	s.caseCache.SetDefault(id, c)
	return c, nil
}

// ListCases returns stored case summaries.
func (s *Service) ListCases(ctx context.Context) ([]store.CaseRecord, error) {
	return s.cases.ListCases(ctx)
}

// StartRun opens a new run of caseID for student. The case as loaded now
// is stored with the run and used for the rest of the run.
func (s *Service) StartRun(ctx context.Context, caseID, student string) (*Run, error) {
	c, err := s.Case(ctx, caseID)
	if err != nil {
		return nil, err
	}
	doc, err := casedoc.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("case %s: %w", caseID, err)
	}
	run := &Run{
		ID:          uuid.NewString(),
		CaseID:      caseID,
		Student:     strings.TrimSpace(student),
		Status:      StatusInProgress,
		StartedAt:   s.now(),
		CaseVersion: c.Version,
		caseDoc:     doc,
	}
	err = s.runs.CreateRun(ctx, store.RunRecord{
		ID:           run.ID,
		CaseID:       run.CaseID,
		Student:      run.Student,
		Status:       string(run.Status),
		StartedAt:    run.StartedAt,
		CaseVersion:  run.CaseVersion,
		CaseDocument: doc,
	})
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	s.log.Info("run started", "run_id", run.ID, "case_id", caseID, "case_version", c.Version, "student", run.Student)
	return run, nil
}

// Run returns the run with id.
func (s *Service) Run(ctx context.Context, id string) (*Run, error) {
	rec, err := s.runs.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	return runFromRecord(rec), nil
}

// ListRuns returns runs newest first.
func (s *Service) ListRuns(ctx context.Context, opts store.QueryOpts) ([]Run, error) {
	recs, err := s.runs.ListRuns(ctx, opts)
	if err != nil {
		return nil, err
	}
	out := make([]Run, len(recs))
	for i := range recs {
		out[i] = *runFromRecord(&recs[i])
	}
	return out, nil
}

// Ask records a student question and the patient's reply.
func (s *Service) Ask(ctx context.Context, runID, text string) (*Exchange, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyQuestion
	}

	unlock := s.locks.lock(runID)
	defer unlock()

	run, c, err := s.openRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	history, err := s.Transcript(ctx, runID)
	if err != nil {
		return nil, err
	}

	tags := s.classify(ctx, text)
	question := transcript.FromStudent(text, tags, s.now())
	reply := s.resolver.Resolve(ctx, reveal.Turn{
		Tags:       tags,
		Case:       c,
		Transcript: history,
		Utterance:  text,
	})
	answer := transcript.FromPatient(reply, s.now())

	stored, err := s.runs.AppendMessages(ctx, run.ID, messageToRecord(question), messageToRecord(answer))
	if err != nil {
		return nil, mapClosed(err, ErrRunSubmitted)
	}

	s.log.Debug("question answered", "run_id", run.ID, "tags", tags.Strings())
	return &Exchange{
		Question: messageFromRecord(stored[0]),
		Reply:    messageFromRecord(stored[1]),
	}, nil
}

func (s *Service) classify(ctx context.Context, text string) intent.Tags {
	if cc, ok := s.classifier.(contextClassifier); ok {
		return cc.ClassifyContext(ctx, text)
	}
	return s.classifier.Classify(text)
}

// Order requests a test. The order and its result are stored together.
func (s *Service) Order(ctx context.Context, runID, testName string) (*orders.Fulfillment, error) {
	testName = strings.TrimSpace(testName)

	unlock := s.locks.lock(runID)
	defer unlock()

	run, c, err := s.openRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	f, err := orders.Fulfill(testName, c, s.now())
	if err != nil {
		return nil, err
	}
	_, err = s.runs.AddOrder(ctx, store.OrderRecord{
		RunID:      run.ID,
		TestName:   f.Order.TestName,
		CreatedAt:  f.Order.CreatedAt,
		ResultText: f.Result.Text,
		ResultAt:   f.Result.CreatedAt,
	})
	if err != nil {
		return nil, mapClosed(err, ErrRunSubmitted)
	}
	s.log.Info("test ordered", "run_id", run.ID, "test", testName)
	return f, nil
}

// Results returns the run's orders with their results, oldest first.
func (s *Service) Results(ctx context.Context, runID string) ([]orders.Fulfillment, error) {
	if _, err := s.runs.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	recs, err := s.runs.Orders(ctx, runID)
	if err != nil {
		return nil, err
	}
	out := make([]orders.Fulfillment, len(recs))
	for i, rec := range recs {
		out[i] = fulfillmentFromRecord(rec)
	}
	return out, nil
}

// Transcript returns the run's messages in order.
func (s *Service) Transcript(ctx context.Context, runID string) (transcript.Transcript, error) {
	recs, err := s.runs.Transcript(ctx, runID)
	if err != nil {
		return nil, err
	}
	out := make(transcript.Transcript, len(recs))
	for i, rec := range recs {
		out[i] = messageFromRecord(rec)
	}
	return out, nil
}

// Snapshot captures the run, its case, transcript and orders.
func (s *Service) Snapshot(ctx context.Context, runID string) (*Snapshot, error) {
	run, err := s.Run(ctx, runID)
	if err != nil {
		return nil, err
	}
	c, err := s.runCase(ctx, run)
	if err != nil {
		return nil, err
	}
	t, err := s.Transcript(ctx, runID)
	if err != nil {
		return nil, err
	}
	fs, err := s.Results(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Run: *run, Case: c, Transcript: t, Orders: fs}, nil
}

// Submit scores the run and closes it. A run can be submitted once.
func (s *Service) Submit(ctx context.Context, runID string, a Assessment) (*Report, error) {
	a = cleanAssessment(a)

	unlock := s.locks.lock(runID)
	defer unlock()

	snap, err := s.Snapshot(ctx, runID)
	if err != nil {
		return nil, err
	}
	run := snap.Run
	now := s.now()
	if err := run.submit(now); err != nil {
		return nil, err
	}

	ev := evaluation.Evaluate(snap.Case, snap.Transcript, a.Differential, a.FinalDx, snap.OrderedTests())
	if err := s.runs.Submit(ctx, evaluationToRecord(run.ID, ev, a), *run.SubmittedAt); err != nil {
		return nil, mapClosed(err, ErrAlreadySubmitted)
	}

	s.log.Info("run submitted", "run_id", run.ID, "overall", ev.Overall)
	return &Report{RunID: run.ID, Evaluation: ev, Assessment: a, CreatedAt: now}, nil
}

// Evaluation returns the run's stored report, or store.ErrNotFound before
// submission.
func (s *Service) Evaluation(ctx context.Context, runID string) (*Report, error) {
	rec, err := s.runs.Evaluation(ctx, runID)
	if err != nil {
		return nil, err
	}
	return reportFromRecord(rec), nil
}

// openRun loads an in-progress run and its case.
func (s *Service) openRun(ctx context.Context, runID string) (*Run, *casedoc.Case, error) {
	run, err := s.Run(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	if err := run.checkOpen(); err != nil {
		return nil, nil, err
	}
	c, err := s.runCase(ctx, run)
	if err != nil {
		return nil, nil, err
	}
	return run, c, nil
}

// runCase returns the case pinned on run. Runs stored without a pinned
// document fall back to the current case.
func (s *Service) runCase(ctx context.Context, run *Run) (*casedoc.Case, error) {
	if len(run.caseDoc) == 0 {
		return s.Case(ctx, run.CaseID)
	}
	key := "run/" + run.ID
	if v, ok := s.caseCache.Get(key); ok {
		return v.(*casedoc.Case), nil
	}
	c, err := casedoc.Load(run.caseDoc)
	if err != nil {
		return nil, fmt.Errorf("run %s case %s: %w", run.ID, run.CaseID, err)
	}
	s.caseCache.SetDefault(key, c)
	return c, nil
}

func mapClosed(err, to error) error {
	if errors.Is(err, store.ErrRunClosed) {
		return fmt.Errorf("%w: %w", to, err)
	}
	return err
}

func cleanAssessment(a Assessment) Assessment {
	trim := func(xs []string) []string {
		var out []string
		for _, x := range xs {
			if x = strings.TrimSpace(x); x != "" {
				out = append(out, x)
			}
		}
		return out
	}
	return Assessment{
		Differential: trim(a.Differential),
		FinalDx:      strings.TrimSpace(a.FinalDx),
		Plan:         trim(a.Plan),
	}
}

func fileStem(path string) string {
	if path == "" {
		return ""
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// runLocks hands out one mutex per run ID and forgets it when unused.
type runLocks struct {
	mu    sync.Mutex
	locks map[string]*runLock
}

type runLock struct {
	mu   sync.Mutex
	refs int
}

func newRunLocks() *runLocks {
	return &runLocks{locks: make(map[string]*runLock)}
}

func (l *runLocks) lock(id string) (unlock func()) {
	l.mu.Lock()
	rl, ok := l.locks[id]
	if !ok {
		rl = &runLock{}
		l.locks[id] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
