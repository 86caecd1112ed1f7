package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
)

const (
	defaultRecallK = 5
	errNoSession   = "memory is only available inside a conversation session"
)

// MemoryTools lets the executor write and query long-term memory. Content
// reaching it is already redacted, and facts stay within the turn's session.
type MemoryTools struct {
	memory contractx.Memory
}

func NewMemoryTools(memory contractx.Memory) *MemoryTools {
	return &MemoryTools{memory: memory}
}

func (m *MemoryTools) Tools() []contractx.Tool {
	return []contractx.Tool{
		New(&schema.ToolInfo{
			Name: ToolMemoryStore,
			Desc: "Store an important fact or decision in long-term memory for future recall.",
			ParamsOneOf: params(map[string]*schema.ParameterInfo{
				"content": {Type: schema.String, Desc: "The fact to remember.", Required: true},
				"source":  {Type: schema.String, Desc: "Where it came from (email, document, user, research)."},
			}),
		}, 0, m.store),
		New(&schema.ToolInfo{
			Name: ToolMemoryRecall,
			Desc: "Search long-term memory for facts related to a query.",
			ParamsOneOf: params(map[string]*schema.ParameterInfo{
				"query": {Type: schema.String, Desc: "What to look for.", Required: true},
				"top_k": {Type: schema.Integer, Desc: "Max results (default 5)."},
			}),
		}, 0, m.recall),
	}
}

func (m *MemoryTools) store(ctx context.Context, args map[string]any) (contractx.ToolResult, error) {
	sessionID := contractx.SessionIDFrom(ctx)
	if sessionID == "" {
		return failed(ToolMemoryStore, errNoSession), nil
	}
	content, bad := requireString(ToolMemoryStore, args, "content")
	if bad != nil {
		return *bad, nil
	}
	source := stringArg(args, "source")
	if source == "" {
		source = "agent"
	}
	if err := m.memory.Store(ctx, contractx.Fact{SessionID: sessionID, Content: content, Source: source}); err != nil {
		return contractx.ToolResult{}, fmt.Errorf("store fact: %w", err)
	}
	return done(ToolMemoryStore, fmt.Sprintf("Fact stored in memory (source: %s).", source)), nil
}

func (m *MemoryTools) recall(ctx context.Context, args map[string]any) (contractx.ToolResult, error) {
	sessionID := contractx.SessionIDFrom(ctx)
	if sessionID == "" {
		return failed(ToolMemoryRecall, errNoSession), nil
	}
	query, bad := requireString(ToolMemoryRecall, args, "query")
	if bad != nil {
		return *bad, nil
	}
	k := intArg(args, "top_k", defaultRecallK)
	if k <= 0 {
		k = defaultRecallK
	}
	facts, err := m.memory.SemanticRecall(ctx, sessionID, query, k)
	if err != nil {
		return contractx.ToolResult{}, fmt.Errorf("recall: %w", err)
	}
	if len(facts) == 0 {
		return done(ToolMemoryRecall, "No relevant memories found."), nil
	}
	lines := make([]string, 0, len(facts))
	for i, f := range facts {
		lines = append(lines, fmt.Sprintf("%d. %s (source: %s, score: %.2f)", i+1, f.Content, f.Source, f.Score))
	}
	return done(ToolMemoryRecall, strings.Join(lines, "\n")), nil
}
