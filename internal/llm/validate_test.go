package llm

import (
	"encoding/json"
	"errors"
	"testing"
)

func replySchema() *Schema {
	return &Schema{
		Name:        "test-patient-reply",
		Description: "A patient's reply",
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"reply": map[string]any{"type": "string", "minLength": 1},
			},
			"required":             []any{"reply"},
			"additionalProperties": false,
		},
	}
}

func tagSchema() *Schema {
	return &Schema{
		Name: "test-tags",
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"tags": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string", "enum": []any{"onset", "quality", "misc"}},
				},
			},
			"required": []any{"tags"},
		},
	}
}

func TestValidateResponse(t *testing.T) {
	tests := []struct {
		name    string
		schema  *Schema
		raw     string
		wantErr bool
	}{
		{"valid reply", replySchema(), `{"reply":"About three days ago."}`, false},
		{"missing required", replySchema(), `{}`, true},
		{"empty reply", replySchema(), `{"reply":""}`, true},
		{"extra field", replySchema(), `{"reply":"Yes.","mood":"anxious"}`, true},
		{"wrong type", replySchema(), `{"reply":42}`, true},
		{"malformed JSON", replySchema(), `{not json}`, true},
		{"empty response", replySchema(), ``, true},
		{"valid tags", tagSchema(), `{"tags":["onset","quality"]}`, false},
		{"empty tags", tagSchema(), `{"tags":[]}`, false},
		{"tag outside vocabulary", tagSchema(), `{"tags":["cardiac"]}`, true},
		{"nil schema accepts anything", nil, `plain text`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateResponse(tt.schema, json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var inv *ErrInvalidResponse
				if !errors.As(err, &inv) {
					t.Fatalf("expected ErrInvalidResponse, got: %T", err)
				}
			}
		})
	}
}

func TestCompileSchema_Cached(t *testing.T) {
	s := replySchema()
	first, err := compileSchema(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := compileSchema(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatal("expected the compiled schema to be reused")
	}
}
