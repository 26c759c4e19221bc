package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// builder is anything entsql can render to a query and its arguments.
type builder interface {
	Query() (string, []any)
}

func exec(ctx context.Context, q querier, b builder) (sql.Result, error) {
	query, args := b.Query()
	return q.ExecContext(ctx, query, args...)
}

func queryRows(ctx context.Context, q querier, b builder) (*sql.Rows, error) {
	query, args := b.Query()
	return q.QueryContext(ctx, query, args...)
}

func queryRow(ctx context.Context, q querier, b builder) *sql.Row {
	query, args := b.Query()
	return q.QueryRowContext(ctx, query, args...)
}

// withTx runs fn in a transaction, committing on success.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// runStatus returns the run's status, or ErrNotFound.
func runStatus(ctx context.Context, q querier, b *entsql.DialectBuilder, runID string) (string, error) {
	var status string
	err := queryRow(ctx, q, b.Select("status").From(b.Table("runs")).Where(entsql.EQ("id", runID))).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("query run status: %w", err)
	}
	return status, nil
}

// requireOpen fails with ErrRunClosed unless the run is in progress.
func requireOpen(ctx context.Context, q querier, b *entsql.DialectBuilder, runID string) error {
	status, err := runStatus(ctx, q, b, runID)
	if err != nil {
		return err
	}
	if status != RunInProgress {
		return fmt.Errorf("run %s: %w", runID, ErrRunClosed)
	}
	return nil
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}
