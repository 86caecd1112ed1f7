package orchestratornode

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
	statex "github.com/tanpawarit/Chative-Desktop-Agent/agent/state"
	metricsx "github.com/tanpawarit/Chative-Desktop-Agent/pkg/metrics"
)

type StepRunner struct {
	Executor   contractx.Executor
	Evaluator  contractx.Evaluator
	MaxRetries int
	Metrics    *metricsx.Metrics
}

// RunSteps executes the plan strictly in order. Each step is retried while
// the evaluator asks for it and the retry budget lasts; a failed step never
// aborts the steps after it.
func RunSteps(ctx context.Context, in *GraphState, runner StepRunner) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	if in.PlanErr != nil || in.Plan == nil {
		return in, nil
	}
	maxRetries := runner.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	history := append([]*schema.Message(nil), in.History...)
	history = append(history, schema.UserMessage(in.Redacted))

	in.Outcomes = make([]contractx.StepOutcome, 0, len(in.Plan.Steps))
	for _, step := range in.Plan.Steps {
		outcome, err := runner.runStep(ctx, in, step, history, maxRetries)
		if err != nil {
			return nil, err
		}
		in.Outcomes = append(in.Outcomes, outcome)
		if step.Output != "" {
			history = append(history, schema.AssistantMessage(
				fmt.Sprintf("Step %d (%s) result: %s", step.Index, step.Description, step.Output), nil))
		}
	}
	return in, nil
}

func (r StepRunner) runStep(
	ctx context.Context,
	in *GraphState,
	step *statex.Step,
	history []*schema.Message,
	maxRetries int,
) (contractx.StepOutcome, error) {
	logger := log.Ctx(ctx).With().Int("step", step.Index).Str("tool", step.Tool).Logger()

	var (
		result contractx.ToolResult
		files  []contractx.GeneratedFile
		prior  string
	)
	for {
		if err := step.Start(maxRetries); err != nil {
			return contractx.StepOutcome{}, fmt.Errorf("%w: %w", contractx.ErrValidation, err)
		}

		var err error
		result, err = r.Executor.Execute(ctx, contractx.ExecuteRequest{
			Step:          step,
			History:       history,
			Entities:      in.Session.Entities,
			TimeConfirmed: in.TimeConfirmed,
			PriorAttempt:  prior,
		})
		if err != nil {
			return contractx.StepOutcome{}, err
		}
		files = append(files, result.Files...)

		verdict := r.Evaluator.Evaluate(ctx, step, result)
		switch {
		case verdict.NeedsInput:
			err = step.NeedInput(result.Output, verdict.Reason)
		case verdict.Success:
			err = step.Succeed(result.Output)
		default:
			err = step.Fail(result.String(), verdict.Reason)
		}
		if err != nil {
			return contractx.StepOutcome{}, fmt.Errorf("%w: %w", contractx.ErrValidation, err)
		}

		logger.Info().
			Int("attempt", step.Attempts).
			Str("status", string(step.Status)).
			Str("reason", verdict.Reason).
			Msg("orchestrator: step evaluated")

		if step.Status != statex.StepFailed {
			break
		}
		if !verdict.Retry || !step.CanRetry(maxRetries) {
			if verdict.Retry {
				logger.Warn().
					Err(fmt.Errorf("%w: step %d after %d attempts", contractx.ErrEvaluationExhausted, step.Index, step.Attempts)).
					Msg("orchestrator: giving up on step")
			}
			break
		}
		if r.Metrics != nil {
			r.Metrics.StepRetriesTotal.Inc()
		}
		prior = step.Output
	}

	return contractx.StepOutcome{Step: step, Result: result, Files: files}, nil
}
