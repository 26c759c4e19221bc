package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/abhisek/medisim/internal/store"
)

// recordingEvents captures appended events; other EventRepo methods are
// not used by LoggingProvider.
type recordingEvents struct {
	store.EventRepo
	got []store.LLMRequestEventData
	err error
}

func (r *recordingEvents) AppendLLMRequest(_ context.Context, data store.LLMRequestEventData) error {
	r.got = append(r.got, data)
	return r.err
}

func TestLoggingProvider_RecordsSuccess(t *testing.T) {
	events := &recordingEvents{}
	mock := NewMockProvider(MockResponse{Content: []byte(`{"reply":"Yes."}`), Usage: Usage{InputTokens: 12, OutputTokens: 3}})
	p := WithLogging(mock, "openai", events, nil)

	ctx := WithPurpose(context.Background(), PurposePatientReply)
	_, err := p.Generate(ctx, Request{
		System:   "You are the patient.",
		Messages: []Message{{Role: RoleUser, Content: "Any discharge?"}},
		Schema:   replySchema(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(events.got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events.got))
	}
	e := events.got[0]
	if e.Provider != "openai" || e.Model != "mock" || e.Purpose != PurposePatientReply {
		t.Fatalf("unexpected event labels %+v", e)
	}
	if !e.Success || e.InputTokens != 12 || e.OutputTokens != 3 {
		t.Fatalf("unexpected event %+v", e)
	}
	if e.ResponseBody != `{"reply":"Yes."}` {
		t.Fatalf("unexpected response body %q", e.ResponseBody)
	}
	for _, want := range []string{"[system]", "[user]\nAny discharge?", "[schema: test-patient-reply]"} {
		if !strings.Contains(e.RequestBody, want) {
			t.Errorf("request body missing %q:\n%s", want, e.RequestBody)
		}
	}
}

func TestLoggingProvider_RecordsFailure(t *testing.T) {
	events := &recordingEvents{}
	mock := NewMockProvider(MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("connection refused")}})
	p := WithLogging(mock, "gemini", events, nil)

	_, err := p.Generate(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(events.got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events.got))
	}
	e := events.got[0]
	if e.Success || !strings.Contains(e.ErrorMessage, "connection refused") || e.Purpose != "unknown" {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestLoggingProvider_EventFailureDoesNotFailRequest(t *testing.T) {
	events := &recordingEvents{err: errors.New("disk full")}
	p := WithLogging(NewMockProvider(MockJSON(`{}`)), "mock", events, nil)

	if _, err := p.Generate(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoggingProvider_RecordsEachRetryAttempt(t *testing.T) {
	events := &recordingEvents{}
	mock := NewMockProvider(down(), MockJSON(`{}`))
	p := WithRetry(WithLogging(mock, "openai", events, nil), retryConfig(), nil)

	if _, err := p.Generate(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events.got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events.got))
	}
	if events.got[0].Success || !events.got[1].Success {
		t.Fatalf("unexpected outcomes %+v", events.got)
	}
}
