package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedRun(t *testing.T, s *Store, runID string) {
	t.Helper()
	ctx := context.Background()
	if err := s.CaseRepo().PutCase(ctx, CaseRecord{
		ID: "case_uti_001", Title: "Dysuria", RubricID: "rubric_uti_v1",
		Document: []byte("id: case_uti_001\n"), ImportedAt: time.Now(),
	}); err != nil {
		t.Fatalf("put case: %v", err)
	}
	if err := s.RunRepo().CreateRun(ctx, RunRecord{
		ID: runID, CaseID: "case_uti_001", Student: "sam", StartedAt: time.Now(),
	}); err != nil {
		t.Fatalf("create run: %v", err)
	}
}

func TestOpenClose(t *testing.T) {
	s := openTestStore(t)
	if s.DB() == nil {
		t.Fatal("expected non-nil db")
	}
	if s.Dialect() != "sqlite3" {
		t.Fatalf("dialect = %q, want sqlite3", s.Dialect())
	}
}

func TestPragmasApplied(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()

	tests := []struct {
		pragma string
		want   string
	}{
		// WAL mode falls back to "memory" for in-memory databases, so
		// journal_mode is covered by TestOpenFileDatabase.
		{"foreign_keys", "1"},
		{"synchronous", "1"}, // NORMAL = 1
	}

	for _, tt := range tests {
		var got string
		if err := db.QueryRow("PRAGMA " + tt.pragma).Scan(&got); err != nil {
			t.Errorf("PRAGMA %s: %v", tt.pragma, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PRAGMA %s = %q, want %q", tt.pragma, got, tt.want)
		}
	}
}

func TestOpenFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "medisim.db")
	if err := EnsureDir(path); err != nil {
		t.Fatalf("ensure dir: %v", err)
	}
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	var mode string
	if err := s.DB().QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestAutoMigrationCreatesTables(t *testing.T) {
	s := openTestStore(t)

	for _, table := range []string{"cases", "runs", "messages", "orders", "results", "evaluations", "llm_request_events"} {
		var name string
		err := s.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s: %v", table, err)
		}
	}
}

func TestCaseRepo_PutGetList(t *testing.T) {
	s := openTestStore(t)
	repo := s.CaseRepo()
	ctx := context.Background()

	if _, err := repo.GetCase(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	rec := CaseRecord{ID: "b", Title: "Second", Version: "1.0.0", RubricID: "r", Document: []byte("title: Second\n"), ImportedAt: time.Now()}
	if err := repo.PutCase(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := repo.PutCase(ctx, CaseRecord{ID: "a", Title: "First", RubricID: "r", Document: []byte("{}"), ImportedAt: time.Now()}); err != nil {
		t.Fatalf("put: %v", err)
	}

	// Replace keeps one row per ID.
	rec.Version = "1.1.0"
	rec.Document = []byte("title: Second v2\n")
	if err := repo.PutCase(ctx, rec); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, err := repo.GetCase(ctx, "b")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != "1.1.0" || string(got.Document) != "title: Second v2\n" {
		t.Errorf("got %+v, want replaced case", got)
	}

	all, err := repo.ListCases(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].ID != "a" || all[1].ID != "b" {
		t.Errorf("list = %+v, want [a b]", all)
	}
}

func TestRunRepo_CreateAndGet(t *testing.T) {
	s := openTestStore(t)
	seedRun(t, s, "run-1")

	run, err := s.RunRepo().GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != RunInProgress {
		t.Errorf("status = %q, want %q", run.Status, RunInProgress)
	}
	if run.SubmittedAt != nil {
		t.Errorf("submitted_at = %v, want nil", run.SubmittedAt)
	}
	if run.Student != "sam" || run.CaseID != "case_uti_001" {
		t.Errorf("unexpected run %+v", run)
	}
}

func TestRunRepo_KeepsPinnedCase(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.CaseRepo().PutCase(ctx, CaseRecord{
		ID: "case_uti_001", Title: "Dysuria", Version: "1.0.0", RubricID: "rubric_uti_v1",
		Document: []byte("id: case_uti_001\nversion: 1.0.0\n"), ImportedAt: time.Now(),
	}); err != nil {
		t.Fatalf("put case: %v", err)
	}
	doc := []byte("id: case_uti_001\nversion: 1.0.0\n")
	if err := s.RunRepo().CreateRun(ctx, RunRecord{
		ID: "run-1", CaseID: "case_uti_001", Student: "sam", StartedAt: time.Now(),
		CaseVersion: "1.0.0", CaseDocument: doc,
	}); err != nil {
		t.Fatalf("create run: %v", err)
	}

	// Replacing the stored case leaves the run's copy untouched.
	if err := s.CaseRepo().PutCase(ctx, CaseRecord{
		ID: "case_uti_001", Title: "Dysuria", Version: "2.0.0", RubricID: "rubric_uti_v1",
		Document: []byte("id: case_uti_001\nversion: 2.0.0\n"), ImportedAt: time.Now(),
	}); err != nil {
		t.Fatalf("put case: %v", err)
	}

	run, err := s.RunRepo().GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.CaseVersion != "1.0.0" {
		t.Errorf("case_version = %q, want 1.0.0", run.CaseVersion)
	}
	if string(run.CaseDocument) != string(doc) {
		t.Errorf("case_document = %q, want %q", run.CaseDocument, doc)
	}

	runs, err := s.RunRepo().ListRuns(ctx, QueryOpts{})
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].CaseVersion != "1.0.0" {
		t.Errorf("listed runs = %+v", runs)
	}
}

func TestRunRepo_RequiresCase(t *testing.T) {
	s := openTestStore(t)
	err := s.RunRepo().CreateRun(context.Background(), RunRecord{ID: "run-x", CaseID: "missing", Student: "sam", StartedAt: time.Now()})
	if err == nil {
		t.Fatal("expected foreign key violation")
	}
}

func TestRunRepo_AppendMessagesAssignsSequence(t *testing.T) {
	s := openTestStore(t)
	seedRun(t, s, "run-1")
	repo := s.RunRepo()
	ctx := context.Background()

	now := time.Now()
	got, err := repo.AppendMessages(ctx, "run-1",
		MessageRecord{Sender: "student", Text: "When did it start?", Tags: []string{"onset"}, CreatedAt: now},
		MessageRecord{Sender: "patient", Text: "Three days ago.", CreatedAt: now},
	)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if got[0].Seq != 1 || got[1].Seq != 2 {
		t.Fatalf("seqs = %d,%d, want 1,2", got[0].Seq, got[1].Seq)
	}

	if _, err := repo.AppendMessages(ctx, "run-1", MessageRecord{Sender: "student", Text: "Any discharge?", Tags: []string{"discharge"}, CreatedAt: now}); err != nil {
		t.Fatalf("append: %v", err)
	}

	msgs, err := repo.Transcript(ctx, "run-1")
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	for i, m := range msgs {
		if m.Seq != i+1 {
			t.Errorf("msgs[%d].Seq = %d", i, m.Seq)
		}
	}
	if len(msgs[0].Tags) != 1 || msgs[0].Tags[0] != "onset" {
		t.Errorf("tags = %v, want [onset]", msgs[0].Tags)
	}
	if len(msgs[1].Tags) != 0 {
		t.Errorf("patient tags = %v, want none", msgs[1].Tags)
	}
}

func TestRunRepo_AppendToUnknownRun(t *testing.T) {
	s := openTestStore(t)
	_, err := s.RunRepo().AppendMessages(context.Background(), "ghost", MessageRecord{Sender: "student", Text: "hi"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRunRepo_AddOrderWritesResult(t *testing.T) {
	s := openTestStore(t)
	seedRun(t, s, "run-1")
	repo := s.RunRepo()
	ctx := context.Background()

	now := time.Now()
	for _, name := range []string{"Urinalysis", "Pregnancy test"} {
		rec, err := repo.AddOrder(ctx, OrderRecord{RunID: "run-1", TestName: name, CreatedAt: now, ResultText: name + " result", ResultAt: now})
		if err != nil {
			t.Fatalf("add order: %v", err)
		}
		if rec.ID == 0 {
			t.Fatal("expected order ID to be assigned")
		}
	}

	orders, err := repo.Orders(ctx, "run-1")
	if err != nil {
		t.Fatalf("orders: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("len = %d, want 2", len(orders))
	}
	if orders[0].TestName != "Urinalysis" || orders[0].ResultText != "Urinalysis result" {
		t.Errorf("orders[0] = %+v", orders[0])
	}

	var results int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM results").Scan(&results); err != nil {
		t.Fatalf("count results: %v", err)
	}
	if results != 2 {
		t.Errorf("results = %d, want 2", results)
	}
}

func TestRunRepo_SubmitOnce(t *testing.T) {
	s := openTestStore(t)
	seedRun(t, s, "run-1")
	repo := s.RunRepo()
	ctx := context.Background()

	if _, err := repo.Evaluation(ctx, "run-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before submit, got %v", err)
	}

	at := time.Now().UTC().Truncate(time.Second)
	ev := EvaluationRecord{
		RunID:        "run-1",
		RubricID:     "rubric_uti_v1",
		Scores:       map[string]int{"history_coverage": 2, "communication": 1},
		Feedback:     map[string]string{"communication": "Try summarizing before moving on."},
		Overall:      1.5,
		Differential: []string{"Acute uncomplicated cystitis"},
		FinalDx:      "Acute uncomplicated cystitis",
	}
	if err := repo.Submit(ctx, ev, at); err != nil {
		t.Fatalf("submit: %v", err)
	}

	run, err := repo.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != RunSubmitted || run.SubmittedAt == nil || !run.SubmittedAt.Equal(at) {
		t.Errorf("run = %+v, want submitted at %v", run, at)
	}

	got, err := repo.Evaluation(ctx, "run-1")
	if err != nil {
		t.Fatalf("evaluation: %v", err)
	}
	if got.Overall != 1.5 || got.Scores["history_coverage"] != 2 || got.FinalDx != ev.FinalDx {
		t.Errorf("evaluation = %+v", got)
	}
	if got.Plan == nil || len(got.Plan) != 0 {
		t.Errorf("plan = %#v, want empty", got.Plan)
	}

	// Second submit and any further writes are rejected; the first
	// submission stands.
	ev.Overall = 0
	if err := repo.Submit(ctx, ev, at.Add(time.Hour)); !errors.Is(err, ErrRunClosed) {
		t.Errorf("second submit: expected ErrRunClosed, got %v", err)
	}
	if _, err := repo.AppendMessages(ctx, "run-1", MessageRecord{Sender: "student", Text: "hi"}); !errors.Is(err, ErrRunClosed) {
		t.Errorf("append after submit: expected ErrRunClosed, got %v", err)
	}
	if _, err := repo.AddOrder(ctx, OrderRecord{RunID: "run-1", TestName: "CBC"}); !errors.Is(err, ErrRunClosed) {
		t.Errorf("order after submit: expected ErrRunClosed, got %v", err)
	}
	got, _ = repo.Evaluation(ctx, "run-1")
	if got.Overall != 1.5 {
		t.Errorf("overall = %v, want first submission kept", got.Overall)
	}
}

func TestRunRepo_ListRuns(t *testing.T) {
	s := openTestStore(t)
	seedRun(t, s, "run-1")
	ctx := context.Background()
	repo := s.RunRepo()

	if err := repo.CreateRun(ctx, RunRecord{ID: "run-2", CaseID: "case_uti_001", Student: "kim", StartedAt: time.Now().Add(time.Minute)}); err != nil {
		t.Fatalf("create run: %v", err)
	}

	runs, err := repo.ListRuns(ctx, QueryOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-2" {
		t.Fatalf("runs = %+v, want newest first", runs)
	}

	runs, err = repo.ListRuns(ctx, QueryOpts{Limit: 1, CaseID: "case_uti_001"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("len = %d, want 1", len(runs))
	}
}

func TestEventRepo_LLMEvents(t *testing.T) {
	s := openTestStore(t)
	repo := s.EventRepo()
	ctx := context.Background()

	events := []LLMRequestEventData{
		{Provider: "openai", Model: "gpt-4o-mini", Purpose: "patient-reply", InputTokens: 100, OutputTokens: 20, LatencyMs: 300, Success: true, RequestBody: "[user]\nhi"},
		{Provider: "openai", Model: "gpt-4o-mini", Purpose: "patient-reply", InputTokens: 50, OutputTokens: 10, LatencyMs: 100, Success: true},
		{Provider: "openai", Model: "gpt-4o-mini", Purpose: "intent-tagging", LatencyMs: 900, Success: false, ErrorMessage: "timeout"},
	}
	for _, e := range events {
		if err := repo.AppendLLMRequest(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	all, err := repo.QueryLLMEvents(ctx, QueryOpts{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(all) != 3 || all[0].Purpose != "intent-tagging" {
		t.Fatalf("events = %+v, want newest first", all)
	}

	replies, err := repo.QueryLLMEvents(ctx, QueryOpts{Purpose: "patient-reply", Limit: 1})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(replies) != 1 || replies[0].InputTokens != 50 {
		t.Fatalf("replies = %+v", replies)
	}

	e, err := repo.GetLLMEvent(ctx, all[2].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e.RequestBody != "[user]\nhi" || !e.Success {
		t.Errorf("event = %+v", e)
	}
	if _, err := repo.GetLLMEvent(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	byPurpose, err := repo.LLMUsageByPurpose(ctx)
	if err != nil {
		t.Fatalf("usage by purpose: %v", err)
	}
	if len(byPurpose) != 2 {
		t.Fatalf("purposes = %+v", byPurpose)
	}
	reply := byPurpose[1]
	if reply.Purpose != "patient-reply" || reply.Calls != 2 || reply.InputTokens != 150 || reply.AvgLatencyMs != 200 {
		t.Errorf("patient-reply usage = %+v", reply)
	}

	byModel, err := repo.LLMUsageByModel(ctx)
	if err != nil {
		t.Fatalf("usage by model: %v", err)
	}
	if len(byModel) != 1 || byModel[0].Calls != 2 || byModel[0].OutputTokens != 30 {
		t.Errorf("model usage = %+v", byModel)
	}
}

func TestDefaultDBPath(t *testing.T) {
	dir := t.TempDir()

	t.Setenv("MEDISIM_DB", filepath.Join(dir, "custom", "x.db"))
	p, err := DefaultDBPath()
	if err != nil {
		t.Fatalf("default path: %v", err)
	}
	if p != filepath.Join(dir, "custom", "x.db") {
		t.Errorf("path = %q", p)
	}

	t.Setenv("MEDISIM_DB", "")
	t.Setenv("XDG_DATA_HOME", dir)
	p, err = DefaultDBPath()
	if err != nil {
		t.Fatalf("default path: %v", err)
	}
	if p != filepath.Join(dir, "medisim", "medisim.db") {
		t.Errorf("path = %q", p)
	}
}
