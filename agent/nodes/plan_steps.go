package orchestratornode

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
)

// PlanSteps asks the planner for a plan. A planning failure is fatal for the
// turn but not an error: the user gets a plain explanation and no step runs.
func PlanSteps(
	ctx context.Context,
	in *GraphState,
	planner contractx.Planner,
	history contractx.History,
) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	plan, err := planner.Plan(ctx, contractx.PlanRequest{
		Goal:          in.Redacted,
		Context:       in.Context,
		TimeConfirmed: in.TimeConfirmed,
	})
	if err != nil {
		if !errors.Is(err, contractx.ErrPlanning) {
			return nil, err
		}
		log.Ctx(ctx).Warn().Err(err).Msg("orchestrator: planning failed")
		in.PlanErr = err
		in.Response = contractx.FinalResponse{Text: unableToPlan, Files: []contractx.GeneratedFile{}}
		return in, nil
	}

	log.Ctx(ctx).Info().Int("steps", len(plan.Steps)).Strs("plan", plan.Descriptions()).Msg("orchestrator: plan ready")
	in.Plan = plan

	taskID, err := history.CreateTask(ctx, in.SessionID, in.Redacted, plan)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("history: create task failed")
	}
	in.TaskID = taskID
	if taskID != 0 {
		if err := history.UpdateTask(ctx, taskID, "running", ""); err != nil {
			log.Ctx(ctx).Warn().Err(err).Int64("task_id", taskID).Msg("history: update task failed")
		}
	}
	return in, nil
}
