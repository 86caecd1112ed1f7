package tool

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
)

type fakeMemory struct {
	stored   []contractx.Fact
	facts    []contractx.Fact
	recalled []string
	err      error
}

func sessionCtx() context.Context {
	return contractx.WithSessionID(context.Background(), "s1")
}

func (f *fakeMemory) RecentMessages(context.Context, string, int) ([]*schema.Message, error) {
	return nil, nil
}

func (f *fakeMemory) SemanticRecall(_ context.Context, sessionID, _ string, k int) ([]contractx.Fact, error) {
	f.recalled = append(f.recalled, sessionID)
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.facts) {
		return f.facts[:k], nil
	}
	return f.facts, nil
}

func (f *fakeMemory) Store(_ context.Context, fact contractx.Fact) error {
	f.stored = append(f.stored, fact)
	return f.err
}

func TestMemoryStoreTool(t *testing.T) {
	t.Parallel()

	mem := &fakeMemory{}
	store := toolByName(t, NewMemoryTools(mem).Tools(), ToolMemoryStore)

	out, err := store.Run(sessionCtx(), map[string]any{"content": "<PERSON_1> prefers mornings"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Success || out.Output != "Fact stored in memory (source: agent)." {
		t.Fatalf("unexpected result: %+v", out)
	}
	if len(mem.stored) != 1 || mem.stored[0].Source != "agent" || mem.stored[0].SessionID != "s1" {
		t.Fatalf("unexpected stored facts: %+v", mem.stored)
	}

	out, err = store.Run(sessionCtx(), map[string]any{"content": "  "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Success {
		t.Fatal("expected blank content to fail")
	}
}

func TestMemoryRecallTool(t *testing.T) {
	t.Parallel()

	mem := &fakeMemory{facts: []contractx.Fact{
		{Content: "contract renews in March", Source: "document", Score: 0.9},
		{Content: "investor call pending", Source: "email", Score: 0.5},
	}}
	recall := toolByName(t, NewMemoryTools(mem).Tools(), ToolMemoryRecall)

	out, err := recall.Run(sessionCtx(), map[string]any{"query": "contract", "top_k": float64(1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Output != "1. contract renews in March (source: document, score: 0.90)" {
		t.Fatalf("unexpected output: %q", out.Output)
	}
	if len(mem.recalled) != 1 || mem.recalled[0] != "s1" {
		t.Fatalf("recall not scoped to the session: %v", mem.recalled)
	}

	empty := toolByName(t, NewMemoryTools(&fakeMemory{}).Tools(), ToolMemoryRecall)
	out, _ = empty.Run(sessionCtx(), map[string]any{"query": "x"})
	if !strings.Contains(out.Output, "No relevant memories") {
		t.Fatalf("unexpected empty output: %q", out.Output)
	}

	broken := toolByName(t, NewMemoryTools(&fakeMemory{err: errors.New("down")}).Tools(), ToolMemoryRecall)
	if _, err := broken.Run(sessionCtx(), map[string]any{"query": "x"}); err == nil {
		t.Fatal("expected recall error")
	}
}

func TestMemoryToolsNeedSession(t *testing.T) {
	t.Parallel()

	mem := &fakeMemory{}
	tools := NewMemoryTools(mem).Tools()
	for _, name := range []string{ToolMemoryStore, ToolMemoryRecall} {
		out, err := toolByName(t, tools, name).Run(context.Background(), map[string]any{"content": "x", "query": "x"})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if out.Success {
			t.Fatalf("%s: expected failure without a session", name)
		}
	}
	if len(mem.stored) != 0 || len(mem.recalled) != 0 {
		t.Fatalf("memory touched without a session: %+v", mem)
	}
}
