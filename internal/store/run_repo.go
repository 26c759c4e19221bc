package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

type runRepo struct {
	db *sql.DB
	b  *entsql.DialectBuilder
}

var runFields = []string{"id", "case_id", "student", "status", "started_at", "submitted_at", "case_version", "case_document"}

func (r *runRepo) CreateRun(ctx context.Context, rec RunRecord) error {
	status := rec.Status
	if status == "" {
		status = RunInProgress
	}
	ins := r.b.Insert("runs").
		Columns("id", "case_id", "student", "status", "started_at", "case_version", "case_document").
		Values(rec.ID, rec.CaseID, rec.Student, status, rec.StartedAt.UTC(), rec.CaseVersion, string(rec.CaseDocument))
	if _, err := exec(ctx, r.db, ins); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (r *runRepo) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	sel := r.b.Select(runFields...).From(r.b.Table("runs")).Where(entsql.EQ("id", id))
	rec, err := scanRun(queryRow(ctx, r.db, sel))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	return rec, nil
}

func (r *runRepo) ListRuns(ctx context.Context, opts QueryOpts) ([]RunRecord, error) {
	sel := r.b.Select(runFields...).From(r.b.Table("runs")).OrderBy(entsql.Desc("started_at"), entsql.Desc("id"))
	if opts.CaseID != "" {
		sel = sel.Where(entsql.EQ("case_id", opts.CaseID))
	}
	if opts.Limit > 0 {
		sel = sel.Limit(opts.Limit)
	}

	rows, err := queryRows(ctx, r.db, sel)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanRun(s scanner) (*RunRecord, error) {
	var rec RunRecord
	var (
		submitted sql.NullTime
		doc       string
	)
	if err := s.Scan(&rec.ID, &rec.CaseID, &rec.Student, &rec.Status, &rec.StartedAt, &submitted, &rec.CaseVersion, &doc); err != nil {
		return nil, err
	}
	if doc != "" {
		rec.CaseDocument = []byte(doc)
	}
	if submitted.Valid {
		t := submitted.Time
		rec.SubmittedAt = &t
	}
	return &rec, nil
}

func (r *runRepo) AppendMessages(ctx context.Context, runID string, msgs ...MessageRecord) ([]MessageRecord, error) {
	out := make([]MessageRecord, 0, len(msgs))
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := requireOpen(ctx, tx, r.b, runID); err != nil {
			return err
		}

		var last sql.NullInt64
		sel := r.b.Select(entsql.Max("seq")).From(r.b.Table("messages")).Where(entsql.EQ("run_id", runID))
		if err := queryRow(ctx, tx, sel).Scan(&last); err != nil {
			return fmt.Errorf("query last seq: %w", err)
		}
		seq := int(last.Int64)

		for _, m := range msgs {
			seq++
			m.RunID = runID
			m.Seq = seq
			if m.Tags == nil {
				m.Tags = []string{}
			}
			tags, err := encodeJSON(m.Tags)
			if err != nil {
				return fmt.Errorf("encode tags: %w", err)
			}
			ins := r.b.Insert("messages").
				Columns("run_id", "seq", "sender", "text", "tags", "created_at").
				Values(runID, m.Seq, m.Sender, m.Text, tags, m.CreatedAt.UTC())
			if _, err := exec(ctx, tx, ins); err != nil {
				return fmt.Errorf("save message: %w", err)
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *runRepo) Transcript(ctx context.Context, runID string) ([]MessageRecord, error) {
	sel := r.b.Select("seq", "sender", "text", "tags", "created_at").
		From(r.b.Table("messages")).
		Where(entsql.EQ("run_id", runID)).
		OrderBy("seq")
	rows, err := queryRows(ctx, r.db, sel)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var out []MessageRecord
	for rows.Next() {
		m := MessageRecord{RunID: runID}
		var tags string
		if err := rows.Scan(&m.Seq, &m.Sender, &m.Text, &tags, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if err := decodeJSON(tags, &m.Tags); err != nil {
			return nil, fmt.Errorf("decode tags of message %d: %w", m.Seq, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *runRepo) AddOrder(ctx context.Context, rec OrderRecord) (*OrderRecord, error) {
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := requireOpen(ctx, tx, r.b, rec.RunID); err != nil {
			return err
		}

		ins := r.b.Insert("orders").
			Columns("run_id", "test_name", "created_at").
			Values(rec.RunID, rec.TestName, rec.CreatedAt.UTC()).
			Returning("id")
		if err := queryRow(ctx, tx, ins).Scan(&rec.ID); err != nil {
			return fmt.Errorf("save order: %w", err)
		}

		res := r.b.Insert("results").
			Columns("order_id", "result_text", "created_at").
			Values(rec.ID, rec.ResultText, rec.ResultAt.UTC())
		if _, err := exec(ctx, tx, res); err != nil {
			return fmt.Errorf("save result: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *runRepo) Orders(ctx context.Context, runID string) ([]OrderRecord, error) {
	o := r.b.Table("orders").As("o")
	res := r.b.Table("results").As("r")
	sel := r.b.Select(o.C("id"), o.C("test_name"), o.C("created_at"), res.C("result_text"), res.C("created_at")).
		From(o).
		Join(res).On(o.C("id"), res.C("order_id")).
		Where(entsql.EQ(o.C("run_id"), runID)).
		OrderBy(o.C("id"))
	rows, err := queryRows(ctx, r.db, sel)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []OrderRecord
	for rows.Next() {
		rec := OrderRecord{RunID: runID}
		if err := rows.Scan(&rec.ID, &rec.TestName, &rec.CreatedAt, &rec.ResultText, &rec.ResultAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *runRepo) Submit(ctx context.Context, ev EvaluationRecord, at time.Time) error {
	scores, err := encodeJSON(ev.Scores)
	if err != nil {
		return fmt.Errorf("encode scores: %w", err)
	}
	feedback, err := encodeJSON(ev.Feedback)
	if err != nil {
		return fmt.Errorf("encode feedback: %w", err)
	}
	differential, err := encodeJSON(nonNil(ev.Differential))
	if err != nil {
		return fmt.Errorf("encode differential: %w", err)
	}
	plan, err := encodeJSON(nonNil(ev.Plan))
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := requireOpen(ctx, tx, r.b, ev.RunID); err != nil {
			return err
		}

		// submitted_at is written exactly once.
		upd := r.b.Update("runs").
			Set("status", RunSubmitted).
			Set("submitted_at", at.UTC()).
			Where(entsql.And(
				entsql.EQ("id", ev.RunID),
				entsql.EQ("status", RunInProgress),
				entsql.IsNull("submitted_at"),
			))
		res, err := exec(ctx, tx, upd)
		if err != nil {
			return fmt.Errorf("mark run submitted: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("run %s: %w", ev.RunID, ErrRunClosed)
		}

		ins := r.b.Insert("evaluations").
			Columns("run_id", "rubric_id", "scores", "feedback", "overall", "differential", "final_dx", "plan", "created_at").
			Values(ev.RunID, ev.RubricID, scores, feedback, ev.Overall, differential, ev.FinalDx, plan, at.UTC())
		if _, err := exec(ctx, tx, ins); err != nil {
			return fmt.Errorf("save evaluation: %w", err)
		}
		return nil
	})
}

func (r *runRepo) Evaluation(ctx context.Context, runID string) (*EvaluationRecord, error) {
	sel := r.b.Select("rubric_id", "scores", "feedback", "overall", "differential", "final_dx", "plan", "created_at").
		From(r.b.Table("evaluations")).
		Where(entsql.EQ("run_id", runID))

	ev := EvaluationRecord{RunID: runID}
	var scores, feedback, differential, plan string
	err := queryRow(ctx, r.db, sel).Scan(&ev.RubricID, &scores, &feedback, &ev.Overall, &differential, &ev.FinalDx, &plan, &ev.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("evaluation for run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query evaluation: %w", err)
	}

	for _, f := range []struct {
		raw string
		dst any
	}{
		{scores, &ev.Scores},
		{feedback, &ev.Feedback},
		{differential, &ev.Differential},
		{plan, &ev.Plan},
	} {
		if err := decodeJSON(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("decode evaluation: %w", err)
		}
	}
	return &ev, nil
}

func nonNil(xs []string) []string {
	if xs == nil {
		return []string{}
	}
	return xs
}
