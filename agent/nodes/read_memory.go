package orchestratornode

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
)

// ReadMemory builds the planner context from recent tasks and semantically
// related facts. Memory is advisory: lookup failures are logged and skipped.
func ReadMemory(
	ctx context.Context,
	in *GraphState,
	memory contractx.Memory,
	history contractx.History,
) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	logger := log.Ctx(ctx)

	var parts []string
	tasks, err := history.RecentTasks(ctx, in.SessionID, recentTaskLimit)
	if err != nil {
		logger.Warn().Err(err).Msg("memory: recent tasks unavailable")
	}
	if len(tasks) > 0 {
		parts = append(parts, "Recent tasks:")
		for _, t := range tasks {
			parts = append(parts, fmt.Sprintf("  - [%s] %s", t.Status, t.Goal))
		}
	}

	facts, err := memory.SemanticRecall(ctx, in.SessionID, in.Redacted, recallLimit)
	if err != nil {
		logger.Warn().Err(err).Msg("memory: semantic recall unavailable")
	}
	if len(facts) > 0 {
		parts = append(parts, "Relevant memories:")
		for _, f := range facts {
			source := f.Source
			if source == "" {
				source = "unknown"
			}
			parts = append(parts, fmt.Sprintf("  - %s (source: %s)", truncate(f.Content, 200), source))
		}
	}

	if len(parts) == 0 {
		in.Context = "(no prior context)"
	} else {
		in.Context = strings.Join(parts, "\n")
	}
	return in, nil
}
