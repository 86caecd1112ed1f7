package evaluator

import (
	"context"
	"errors"
	"strings"
	"testing"

	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
	"github.com/tanpawarit/Chative-Desktop-Agent/agent/llm/llmtest"
	promptx "github.com/tanpawarit/Chative-Desktop-Agent/agent/prompt"
	statex "github.com/tanpawarit/Chative-Desktop-Agent/agent/state"
)

func newTestEvaluator(t *testing.T, replies ...llmtest.Reply) (*Evaluator, *llmtest.Oracle) {
	t.Helper()
	oracle := llmtest.New(replies...)
	ev, err := New(context.Background(), oracle, promptx.LoadPromptSet())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return ev, oracle
}

var testStep = &statex.Step{Index: 1, Description: "List emails", Tool: "list_emails"}

func TestEvaluateHeuristics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result contractx.ToolResult
		want   contractx.Verdict
	}{
		{
			name:   "gate blocked needs input",
			result: contractx.ToolResult{Output: "Which time?", Success: true, Tag: contractx.TagGateBlocked},
			want:   contractx.Verdict{NeedsInput: true},
		},
		{
			name:   "failed flag retries",
			result: contractx.ToolResult{Error: "inbox unavailable"},
			want:   contractx.Verdict{Retry: true},
		},
		{
			name:   "error marker retries",
			result: contractx.ToolResult{Output: "[ERROR] file missing", Success: true},
			want:   contractx.Verdict{Retry: true},
		},
		{
			name:   "empty output retries",
			result: contractx.ToolResult{Success: true},
			want:   contractx.Verdict{Retry: true},
		},
		{
			name:   "short clean output succeeds",
			result: contractx.ToolResult{Output: "3 emails found", Success: true},
			want:   contractx.Verdict{Success: true},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ev, oracle := newTestEvaluator(t)
			got := ev.Evaluate(context.Background(), testStep, tc.result)
			if got.Success != tc.want.Success || got.Retry != tc.want.Retry || got.NeedsInput != tc.want.NeedsInput {
				t.Fatalf("Evaluate() = %+v, want %+v", got, tc.want)
			}
			if oracle.CallCount() != 0 {
				t.Fatalf("heuristic path must not call the oracle")
			}
		})
	}
}

func TestEvaluateDelegatesAmbiguousOutput(t *testing.T) {
	t.Parallel()

	ev, oracle := newTestEvaluator(t, llmtest.Text("```json\n{\"success\": false, \"reason\": \"no match\", \"should_retry\": true}\n```"))

	got := ev.Evaluate(context.Background(), testStep, contractx.ToolResult{Output: "I could not find that email", Success: true})
	if got.Success || !got.Retry || got.Reason != "no match" {
		t.Fatalf("Evaluate() = %+v", got)
	}
	if oracle.CallCount() != 1 {
		t.Fatalf("oracle calls = %d, want 1", oracle.CallCount())
	}
}

func TestEvaluateDelegatesLongOutput(t *testing.T) {
	t.Parallel()

	ev, oracle := newTestEvaluator(t, llmtest.Text(`{"success": true, "reason": "complete"}`))

	got := ev.Evaluate(context.Background(), testStep, contractx.ToolResult{Output: strings.Repeat("line\n", 200), Success: true})
	if !got.Success || got.Retry {
		t.Fatalf("Evaluate() = %+v", got)
	}
	if oracle.CallCount() != 1 {
		t.Fatalf("oracle calls = %d, want 1", oracle.CallCount())
	}
}

func TestEvaluateOracleFailureCountsAsSuccess(t *testing.T) {
	t.Parallel()

	ev, _ := newTestEvaluator(t, llmtest.Fail(errors.New("offline")))

	got := ev.Evaluate(context.Background(), testStep, contractx.ToolResult{Output: "unclear result", Success: true})
	if !got.Success || got.Retry {
		t.Fatalf("Evaluate() = %+v, want success", got)
	}
}

func TestEvaluateMissingSuccessFieldCountsAsSuccess(t *testing.T) {
	t.Parallel()

	ev, _ := newTestEvaluator(t, llmtest.Text(`{"reason": "looks fine"}`))

	got := ev.Evaluate(context.Background(), testStep, contractx.ToolResult{Output: "cannot tell", Success: true})
	if !got.Success {
		t.Fatalf("Evaluate() = %+v, want success", got)
	}
}
