package agents

import (
	"context"
	"fmt"

	"github.com/tanpawarit/Chative-Desktop-Agent/agent/agents/evaluator"
	"github.com/tanpawarit/Chative-Desktop-Agent/agent/agents/executor"
	"github.com/tanpawarit/Chative-Desktop-Agent/agent/agents/planner"
	"github.com/tanpawarit/Chative-Desktop-Agent/agent/agents/synthesizer"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
	llmx "github.com/tanpawarit/Chative-Desktop-Agent/agent/llm"
	promptx "github.com/tanpawarit/Chative-Desktop-Agent/agent/prompt"
	metricsx "github.com/tanpawarit/Chative-Desktop-Agent/pkg/metrics"
)

// Oracles assigns a reasoning model to each role. Roles may share one.
type Oracles struct {
	Planner     contractx.Oracle
	Executor    contractx.Oracle
	Evaluator   contractx.Oracle
	Synthesizer contractx.Oracle
}

// Shared uses one oracle for every role.
func Shared(o contractx.Oracle) Oracles {
	return Oracles{Planner: o, Executor: o, Evaluator: o, Synthesizer: o}
}

type registryImpl struct {
	planner     contractx.Planner
	executor    contractx.Executor
	evaluator   contractx.Evaluator
	synthesizer contractx.Synthesizer
}

func (r *registryImpl) Planner() contractx.Planner {
	return r.planner
}

func (r *registryImpl) Executor() contractx.Executor {
	return r.executor
}

func (r *registryImpl) Evaluator() contractx.Evaluator {
	return r.evaluator
}

func (r *registryImpl) Synthesizer() contractx.Synthesizer {
	return r.synthesizer
}

// NewRegistry builds one chat model per role from cfg.
func NewRegistry(
	ctx context.Context,
	cfg llmx.Config,
	tools contractx.ToolProvider,
	execCfg executor.Config,
	metrics *metricsx.Metrics,
) (contractx.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	oracleFor := func(role contractx.AgentType) (contractx.Oracle, error) {
		modelCfg := cfg.OpenRouterFor(role)
		model, err := modelCfg.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: create %s model: %v", contractx.ErrModelInvoke, role, err)
		}
		return llmx.NewChatOracle(model, role, llmx.WithTimeout(cfg.Timeout), llmx.WithMetrics(metrics))
	}

	var (
		oracles Oracles
		err     error
	)
	if oracles.Planner, err = oracleFor(contractx.AgentTypePlanner); err != nil {
		return nil, err
	}
	if oracles.Executor, err = oracleFor(contractx.AgentTypeExecutor); err != nil {
		return nil, err
	}
	if oracles.Evaluator, err = oracleFor(contractx.AgentTypeEvaluator); err != nil {
		return nil, err
	}
	if oracles.Synthesizer, err = oracleFor(contractx.AgentTypeSynthesizer); err != nil {
		return nil, err
	}
	return Build(ctx, oracles, tools, promptx.LoadPromptSet(), execCfg, metrics)
}

// Build wires the four roles around already constructed oracles.
func Build(
	ctx context.Context,
	oracles Oracles,
	tools contractx.ToolProvider,
	prompts promptx.PromptSet,
	execCfg executor.Config,
	metrics *metricsx.Metrics,
) (contractx.Registry, error) {
	if err := prompts.Validate(); err != nil {
		return nil, err
	}

	p, err := planner.New(ctx, oracles.Planner, prompts, tools)
	if err != nil {
		return nil, err
	}
	x, err := executor.New(oracles.Executor, tools, prompts, execCfg, metrics)
	if err != nil {
		return nil, err
	}
	e, err := evaluator.New(ctx, oracles.Evaluator, prompts)
	if err != nil {
		return nil, err
	}
	s, err := synthesizer.New(ctx, oracles.Synthesizer, prompts, metrics)
	if err != nil {
		return nil, err
	}

	return &registryImpl{
		planner:     p,
		executor:    x,
		evaluator:   e,
		synthesizer: s,
	}, nil
}
