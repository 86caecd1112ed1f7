package orchestratornode

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
)

// WriteMemory appends the redacted exchange to the history log and closes
// the task record. Failures here never fail the turn.
func WriteMemory(
	ctx context.Context,
	in *GraphState,
	history contractx.History,
) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	logger := log.Ctx(ctx)

	turns := in.Session.Buffer.Last(2)
	for _, t := range turns {
		var msg *schema.Message
		switch t.Role {
		case roleUser:
			msg = schema.UserMessage(t.Content)
		case roleAssistant:
			msg = schema.AssistantMessage(t.Content, nil)
		default:
			continue
		}
		if err := history.AddMessage(ctx, in.SessionID, msg); err != nil {
			logger.Warn().Err(err).Msg("history: add message failed")
			break
		}
	}

	if in.TaskID != 0 {
		status := in.Plan.Status()
		result := truncate(lastTurn(in), taskResultLimit)
		if err := history.UpdateTask(ctx, in.TaskID, status, result); err != nil {
			logger.Warn().Err(err).Int64("task_id", in.TaskID).Msg("history: update task failed")
		}
	}
	return in, nil
}

func lastTurn(in *GraphState) string {
	turns := in.Session.Buffer.Last(1)
	if len(turns) == 0 {
		return ""
	}
	return turns[0].Content
}
