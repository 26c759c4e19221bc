package store

import (
	"context"
	"math"

	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table definitions in the shape ent's migrate package generates, so the
// schema is created and evolved by ent's migration engine for both SQLite
// and Postgres.

const textSize = math.MaxInt32

var (
	casesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "title", Type: field.TypeString},
		{Name: "version", Type: field.TypeString, Default: ""},
		{Name: "rubric_id", Type: field.TypeString},
		{Name: "document", Type: field.TypeString, Size: textSize},
		{Name: "imported_at", Type: field.TypeTime},
	}
	casesTable = &schema.Table{
		Name:       "cases",
		Columns:    casesColumns,
		PrimaryKey: []*schema.Column{casesColumns[0]},
	}

	runsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "student", Type: field.TypeString},
		{Name: "status", Type: field.TypeString},
		{Name: "started_at", Type: field.TypeTime},
		{Name: "submitted_at", Type: field.TypeTime, Nullable: true},
		{Name: "case_id", Type: field.TypeString},
		{Name: "case_version", Type: field.TypeString, Default: ""},
		{Name: "case_document", Type: field.TypeString, Size: textSize, Default: ""},
	}
	runsTable = &schema.Table{
		Name:       "runs",
		Columns:    runsColumns,
		PrimaryKey: []*schema.Column{runsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "runs_cases_runs",
				Columns:    []*schema.Column{runsColumns[5]},
				RefColumns: []*schema.Column{casesColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{Name: "run_case_id", Columns: []*schema.Column{runsColumns[5]}},
		},
	}

	messagesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "seq", Type: field.TypeInt},
		{Name: "sender", Type: field.TypeString},
		{Name: "text", Type: field.TypeString, Size: textSize},
		{Name: "tags", Type: field.TypeString, Default: "[]"},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "run_id", Type: field.TypeString},
	}
	messagesTable = &schema.Table{
		Name:       "messages",
		Columns:    messagesColumns,
		PrimaryKey: []*schema.Column{messagesColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "messages_runs_messages",
				Columns:    []*schema.Column{messagesColumns[6]},
				RefColumns: []*schema.Column{runsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{Name: "message_run_id_seq", Unique: true, Columns: []*schema.Column{messagesColumns[6], messagesColumns[1]}},
		},
	}

	ordersColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "test_name", Type: field.TypeString},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "run_id", Type: field.TypeString},
	}
	ordersTable = &schema.Table{
		Name:       "orders",
		Columns:    ordersColumns,
		PrimaryKey: []*schema.Column{ordersColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "orders_runs_orders",
				Columns:    []*schema.Column{ordersColumns[3]},
				RefColumns: []*schema.Column{runsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{Name: "order_run_id", Columns: []*schema.Column{ordersColumns[3]}},
		},
	}

	resultsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "result_text", Type: field.TypeString, Size: textSize},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "order_id", Type: field.TypeInt64, Unique: true},
	}
	resultsTable = &schema.Table{
		Name:       "results",
		Columns:    resultsColumns,
		PrimaryKey: []*schema.Column{resultsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "results_orders_result",
				Columns:    []*schema.Column{resultsColumns[3]},
				RefColumns: []*schema.Column{ordersColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
	}

	evaluationsColumns = []*schema.Column{
		{Name: "rubric_id", Type: field.TypeString},
		{Name: "scores", Type: field.TypeString, Size: textSize},
		{Name: "feedback", Type: field.TypeString, Size: textSize},
		{Name: "overall", Type: field.TypeFloat64},
		{Name: "differential", Type: field.TypeString, Size: textSize, Default: "[]"},
		{Name: "final_dx", Type: field.TypeString, Default: ""},
		{Name: "plan", Type: field.TypeString, Size: textSize, Default: "[]"},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "run_id", Type: field.TypeString},
	}
	evaluationsTable = &schema.Table{
		Name:       "evaluations",
		Columns:    evaluationsColumns,
		PrimaryKey: []*schema.Column{evaluationsColumns[8]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "evaluations_runs_evaluation",
				Columns:    []*schema.Column{evaluationsColumns[8]},
				RefColumns: []*schema.Column{runsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
	}

	llmRequestEventsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "timestamp", Type: field.TypeTime},
		{Name: "provider", Type: field.TypeString},
		{Name: "model", Type: field.TypeString},
		{Name: "purpose", Type: field.TypeString},
		{Name: "input_tokens", Type: field.TypeInt, Default: 0},
		{Name: "output_tokens", Type: field.TypeInt, Default: 0},
		{Name: "latency_ms", Type: field.TypeInt64, Default: 0},
		{Name: "success", Type: field.TypeBool},
		{Name: "error_message", Type: field.TypeString, Size: textSize, Default: ""},
		{Name: "request_body", Type: field.TypeString, Size: textSize, Default: ""},
		{Name: "response_body", Type: field.TypeString, Size: textSize, Default: ""},
	}
	llmRequestEventsTable = &schema.Table{
		Name:       "llm_request_events",
		Columns:    llmRequestEventsColumns,
		PrimaryKey: []*schema.Column{llmRequestEventsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "llmrequestevent_timestamp", Columns: []*schema.Column{llmRequestEventsColumns[1]}},
			{Name: "llmrequestevent_purpose", Columns: []*schema.Column{llmRequestEventsColumns[4]}},
			{Name: "llmrequestevent_model", Columns: []*schema.Column{llmRequestEventsColumns[3]}},
		},
	}

	tables = []*schema.Table{
		casesTable,
		runsTable,
		messagesTable,
		ordersTable,
		resultsTable,
		evaluationsTable,
		llmRequestEventsTable,
	}
)

func init() {
	runsTable.ForeignKeys[0].RefTable = casesTable
	messagesTable.ForeignKeys[0].RefTable = runsTable
	ordersTable.ForeignKeys[0].RefTable = runsTable
	resultsTable.ForeignKeys[0].RefTable = ordersTable
	evaluationsTable.ForeignKeys[0].RefTable = runsTable
}

// migrate creates missing tables, columns and indexes.
func (s *Store) migrate(ctx context.Context) error {
	m, err := schema.NewMigrate(entsql.OpenDB(s.dialect, s.db))
	if err != nil {
		return err
	}
	return m.Create(ctx, tables...)
}
