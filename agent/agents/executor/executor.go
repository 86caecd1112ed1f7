package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
	llmx "github.com/tanpawarit/Chative-Desktop-Agent/agent/llm"
	privacyx "github.com/tanpawarit/Chative-Desktop-Agent/agent/privacy"
	promptx "github.com/tanpawarit/Chative-Desktop-Agent/agent/prompt"
	metricsx "github.com/tanpawarit/Chative-Desktop-Agent/pkg/metrics"
)

const (
	DefaultMaxRounds   = 5
	DefaultToolTimeout = 30 * time.Second

	blockedMessage = "BLOCKED: the user has not given a concrete date and time. " +
		"Do not call this tool again. Ask the user which date and time they want, using free slots from list_events if available."
)

type Config struct {
	MaxRounds   int
	ToolTimeout time.Duration
}

var _ contractx.Executor = (*Executor)(nil)

// Executor drives the oracle through up to MaxRounds of tool calls for one
// step. The scheduling gate and placeholder restoration are applied here,
// never left to the oracle.
type Executor struct {
	oracle   contractx.Oracle
	tools    contractx.ToolProvider
	template einoprompt.ChatTemplate
	cfg      Config
	metrics  *metricsx.Metrics
}

func New(oracle contractx.Oracle, tools contractx.ToolProvider, prompts promptx.PromptSet, cfg Config, metrics *metricsx.Metrics) (*Executor, error) {
	if oracle == nil {
		return nil, fmt.Errorf("%w: oracle is nil", contractx.ErrValidation)
	}
	if tools == nil {
		return nil, fmt.Errorf("%w: tool provider is nil", contractx.ErrValidation)
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = DefaultToolTimeout
	}
	return &Executor{
		oracle:   oracle,
		tools:    tools,
		template: promptx.Template(prompts.System, prompts.Executor, true),
		cfg:      cfg,
		metrics:  metrics,
	}, nil
}

func (e *Executor) Execute(ctx context.Context, req contractx.ExecuteRequest) (contractx.ToolResult, error) {
	if req.Step == nil {
		return contractx.ToolResult{}, fmt.Errorf("%w: step is required", contractx.ErrValidation)
	}
	logger := log.Ctx(ctx).With().Int("step", req.Step.Index).Logger()

	messages, err := e.template.Format(ctx, map[string]any{
		"history":       req.History,
		"step":          req.Step.Description,
		"tool":          req.Step.Tool,
		"prior_attempt": req.PriorAttempt,
	})
	if err != nil {
		return contractx.ToolResult{}, fmt.Errorf("%w: render executor prompt: %v", contractx.ErrValidation, err)
	}
	infos := e.tools.Infos()

	run := &stepRun{tool: req.Step.Tool}
	for round := 1; round <= e.cfg.MaxRounds; round++ {
		completion, err := e.oracle.Complete(ctx, messages, infos)
		if err != nil {
			logger.Warn().Err(err).Int("round", round).Msg("executor: oracle call failed")
			return run.oracleFailure(err), nil
		}
		if len(completion.ToolCalls) == 0 {
			return run.finish(completion.Text), nil
		}

		messages = append(messages, llmx.AssistantMessage(completion))
		for _, call := range completion.ToolCalls {
			res := e.invoke(ctx, logger, req, call)
			run.observe(res)
			messages = append(messages, schema.ToolMessage(res.String(), call.ID))
		}
	}

	logger.Warn().Int("rounds", e.cfg.MaxRounds).Msg("executor: round limit reached")
	return run.roundLimit(e.cfg.MaxRounds), nil
}

// invoke runs a single tool call. Every failure becomes an observation the
// oracle can react to.
func (e *Executor) invoke(ctx context.Context, logger zerolog.Logger, req contractx.ExecuteRequest, call contractx.ToolCall) contractx.ToolResult {
	tool, ok := e.tools.Get(call.Name)
	if !ok {
		return contractx.ToolResult{Tool: call.Name, Error: fmt.Sprintf("unknown tool %q", call.Name)}
	}
	caps := tool.Capabilities()

	if caps.Has(contractx.CapTimeCommitting) && !req.TimeConfirmed {
		blocked := contractx.ToolResult{Tool: call.Name, Output: blockedMessage, Tag: contractx.TagGateBlocked}
		logger.Warn().Err(blocked.Err()).Str("tool", call.Name).Msg("executor: time-committing call suppressed by scheduling gate")
		if e.metrics != nil {
			e.metrics.GateBlocksTotal.WithLabelValues(call.Name).Inc()
		}
		return blocked
	}

	args := call.Args
	if caps.Has(contractx.CapWrite) {
		args = restoreArgs(args, req.Entities)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ToolTimeout)
	defer cancel()

	res, err := tool.Run(callCtx, args)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", contractx.ErrToolExecution, call.Name, err)
		logger.Warn().Err(err).Str("tool", call.Name).Msg("executor: tool call failed")
		res = contractx.ToolResult{Tool: call.Name, Error: err.Error()}
		if errors.Is(err, context.DeadlineExceeded) {
			res.Error = fmt.Sprintf("%s timed out after %s", call.Name, e.cfg.ToolTimeout)
			res.Tag = contractx.TagTimeout
		}
	}
	if res.Tool == "" {
		res.Tool = call.Name
	}
	if e.metrics != nil {
		e.metrics.ObserveTool(call.Name, res.Success)
	}
	return res
}

// restoreArgs returns a copy of args with every assigned placeholder in
// string values replaced by its original value.
func restoreArgs(args map[string]any, entities *privacyx.EntityMap) map[string]any {
	if entities.Len() == 0 {
		return args
	}
	restored, ok := privacyx.RestoreValue(args, entities).(map[string]any)
	if !ok {
		return args
	}
	return restored
}

// stepRun accumulates what happened across rounds.
type stepRun struct {
	tool         string
	observations []contractx.ToolObservation
	files        []contractx.GeneratedFile
	blocked      bool
	lastFailure  contractx.ToolResult
	failures     int
}

func (r *stepRun) observe(res contractx.ToolResult) {
	blocked := res.GateBlocked()
	r.observations = append(r.observations, contractx.ToolObservation{
		Tool:    res.Tool,
		Output:  res.String(),
		Success: res.Success,
		Blocked: blocked,
	})
	if blocked {
		r.blocked = true
		return
	}
	if res.Success {
		r.files = append(r.files, res.Files...)
		return
	}
	r.failures++
	r.lastFailure = res
}

func (r *stepRun) result() contractx.ToolResult {
	return contractx.ToolResult{
		Tool:         r.tool,
		Files:        r.files,
		Observations: r.observations,
	}
}

func (r *stepRun) finish(text string) contractx.ToolResult {
	out := r.result()
	out.Output = strings.TrimSpace(text)
	if out.Output == "" && len(r.observations) > 0 {
		out.Output = r.observations[len(r.observations)-1].Output
	}

	switch {
	case r.blocked:
		out.Success = true
		out.Tag = contractx.TagGateBlocked
	case r.failures > 0 && r.failures == len(r.observations):
		out.Error = r.lastFailure.Error
		if out.Error == "" {
			out.Error = r.lastFailure.Output
		}
		out.Tag = r.lastFailure.Tag
	default:
		out.Success = true
	}
	return out
}

func (r *stepRun) oracleFailure(err error) contractx.ToolResult {
	out := r.result()
	out.Tag = contractx.TagOracleError
	out.Error = "reasoning model call failed"
	if errors.Is(err, context.DeadlineExceeded) {
		out.Tag = contractx.TagTimeout
		out.Error = "reasoning model call timed out"
	}
	return out
}

func (r *stepRun) roundLimit(rounds int) contractx.ToolResult {
	if r.blocked {
		return r.finish(blockedMessage)
	}
	out := r.result()
	out.Tag = contractx.TagRoundLimit
	out.Error = fmt.Sprintf("step did not finish within %d rounds", rounds)
	if n := len(r.observations); n > 0 {
		out.Output = r.observations[n-1].Output
	}
	return out
}
