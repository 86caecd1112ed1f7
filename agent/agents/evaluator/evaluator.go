package evaluator

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
	llmx "github.com/tanpawarit/Chative-Desktop-Agent/agent/llm"
	promptx "github.com/tanpawarit/Chative-Desktop-Agent/agent/prompt"
	statex "github.com/tanpawarit/Chative-Desktop-Agent/agent/state"
)

const (
	// DefaultMaxRetries is the retry budget per step: three attempts in total.
	DefaultMaxRetries = 2

	shortOutputLimit = 500
	judgedOutputCap  = 2000
)

var ambiguityMarkers = []string{
	"not sure",
	"unclear",
	"unable to",
	"could not",
	"couldn't",
	"cannot",
	"can't",
	"no results",
	"not found",
	"[llm error",
}

var _ contractx.Evaluator = (*Evaluator)(nil)

type Evaluator struct {
	runner compose.Runnable[map[string]any, judgment]
}

// judgment leaves Success nil when the oracle omits it, which counts as success.
type judgment struct {
	Success     *bool  `json:"success"`
	Reason      string `json:"reason"`
	ShouldRetry bool   `json:"should_retry"`
}

func New(ctx context.Context, oracle contractx.Oracle, prompts promptx.PromptSet) (*Evaluator, error) {
	runner, err := llmx.CompileStructured[judgment](
		ctx,
		oracle,
		promptx.Template(prompts.System, prompts.Evaluate, false),
		llmx.ExtractJSON,
		"evaluator.judge_graph",
	)
	if err != nil {
		return nil, fmt.Errorf("%w: compile evaluator graph: %v", contractx.ErrModelInvoke, err)
	}
	return &Evaluator{runner: runner}, nil
}

// Evaluate never fails: when the oracle cannot judge, the step passes.
func (e *Evaluator) Evaluate(ctx context.Context, step *statex.Step, result contractx.ToolResult) contractx.Verdict {
	if result.GateBlocked() {
		return contractx.Verdict{NeedsInput: true, Reason: "waiting for the user to choose a date and time"}
	}

	output := strings.TrimSpace(result.Output)
	if !result.Success || strings.Contains(output, contractx.ErrorMarker) {
		reason := result.Error
		if reason == "" {
			reason = output
		}
		return contractx.Verdict{Retry: true, Reason: reason}
	}
	if output == "" {
		return contractx.Verdict{Retry: true, Reason: "step produced no output"}
	}
	if len(output) < shortOutputLimit && !ambiguous(output) {
		return contractx.Verdict{Success: true, Reason: "tool returned a result"}
	}

	if len(output) > judgedOutputCap {
		output = output[:judgedOutputCap]
	}
	var desc, tool string
	if step != nil {
		desc, tool = step.Description, step.Tool
	}
	out, err := e.runner.Invoke(ctx, map[string]any{
		"step":   desc,
		"tool":   tool,
		"result": output,
	})
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("evaluator: judgment unavailable, assuming success")
		return contractx.Verdict{Success: true, Reason: "evaluation skipped"}
	}

	success := out.Success == nil || *out.Success
	return contractx.Verdict{
		Success: success,
		Retry:   !success && out.ShouldRetry,
		Reason:  strings.TrimSpace(out.Reason),
	}
}

func ambiguous(output string) bool {
	lower := strings.ToLower(output)
	for _, m := range ambiguityMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
