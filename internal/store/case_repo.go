package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
)

type caseRepo struct {
	db *sql.DB
	b  *entsql.DialectBuilder
}

var caseFields = []string{"id", "title", "version", "rubric_id", "document", "imported_at"}

func (r *caseRepo) PutCase(ctx context.Context, rec CaseRecord) error {
	ins := r.b.Insert("cases").
		Columns(caseFields...).
		Values(rec.ID, rec.Title, rec.Version, rec.RubricID, string(rec.Document), rec.ImportedAt.UTC()).
		OnConflict(entsql.ConflictColumns("id"), entsql.ResolveWithNewValues())
	if _, err := exec(ctx, r.db, ins); err != nil {
		return fmt.Errorf("save case %s: %w", rec.ID, err)
	}
	return nil
}

func (r *caseRepo) GetCase(ctx context.Context, id string) (*CaseRecord, error) {
	sel := r.b.Select(caseFields...).From(r.b.Table("cases")).Where(entsql.EQ("id", id))
	rec, err := scanCase(queryRow(ctx, r.db, sel))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("case %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query case: %w", err)
	}
	return rec, nil
}

func (r *caseRepo) ListCases(ctx context.Context) ([]CaseRecord, error) {
	sel := r.b.Select(caseFields...).From(r.b.Table("cases")).OrderBy("id")
	rows, err := queryRows(ctx, r.db, sel)
	if err != nil {
		return nil, fmt.Errorf("query cases: %w", err)
	}
	defer rows.Close()

	var out []CaseRecord
	for rows.Next() {
		rec, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCase(s scanner) (*CaseRecord, error) {
	var rec CaseRecord
	var doc string
	if err := s.Scan(&rec.ID, &rec.Title, &rec.Version, &rec.RubricID, &doc, &rec.ImportedAt); err != nil {
		return nil, err
	}
	rec.Document = []byte(doc)
	return &rec, nil
}
