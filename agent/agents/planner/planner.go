package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
	"github.com/tanpawarit/Chative-Desktop-Agent/agent/gate"
	llmx "github.com/tanpawarit/Chative-Desktop-Agent/agent/llm"
	promptx "github.com/tanpawarit/Chative-Desktop-Agent/agent/prompt"
	statex "github.com/tanpawarit/Chative-Desktop-Agent/agent/state"
)

const (
	checkAvailability = "Check existing calendar events for free slots"
	askForTime        = "Ask the user for a preferred date and time, suggesting free slots"
)

// timeHandling matches tool-less steps that negotiate or commit a time; the
// availability-first shape supplies its own ask step instead.
var timeHandling = regexp.MustCompile(`(?i)\b(?:ask|confirm|schedul\w*|book\w*|create|set\s+up|arrange|propose|availability|free\s+slots?)\b`)

var researchIntent = regexp.MustCompile(`(?i)\b(?:research|look\s+up|lookup|search|find\s+out|latest|news|verify|fact[- ]check|web)\b`)

var _ contractx.Planner = (*Planner)(nil)

type Planner struct {
	runner compose.Runnable[map[string]any, planOutput]
	tools  contractx.ToolProvider
	now    func() time.Time
}

type planOutput struct {
	Steps []stepOutput `json:"steps"`
}

// stepOutput accepts either a step object or a bare description string.
type stepOutput statex.StepSpec

func (s *stepOutput) UnmarshalJSON(b []byte) error {
	var text string
	if err := json.Unmarshal(b, &text); err == nil {
		*s = stepOutput{Description: text}
		return nil
	}
	var spec statex.StepSpec
	if err := json.Unmarshal(b, &spec); err != nil {
		return err
	}
	*s = stepOutput(spec)
	return nil
}

func New(ctx context.Context, oracle contractx.Oracle, prompts promptx.PromptSet, tools contractx.ToolProvider) (*Planner, error) {
	if tools == nil {
		return nil, fmt.Errorf("%w: tool provider is nil", contractx.ErrValidation)
	}
	runner, err := llmx.CompileStructured[planOutput](
		ctx,
		oracle,
		promptx.Template(prompts.System, prompts.Planner, false),
		normalizeReply,
		"planner.plan_graph",
	)
	if err != nil {
		return nil, fmt.Errorf("%w: compile planner graph: %v", contractx.ErrModelInvoke, err)
	}
	return &Planner{runner: runner, tools: tools, now: time.Now}, nil
}

func (p *Planner) Plan(ctx context.Context, req contractx.PlanRequest) (*statex.Plan, error) {
	goal := strings.TrimSpace(req.Goal)
	if goal == "" {
		return nil, fmt.Errorf("%w: goal is required", contractx.ErrValidation)
	}

	infos := req.Tools
	if len(infos) == 0 {
		infos = p.tools.Infos()
	}
	planContext := strings.TrimSpace(req.Context)
	if planContext == "" {
		planContext = "(none)"
	}

	out, err := p.runner.Invoke(ctx, map[string]any{
		"max_steps":      statex.MaxPlanSteps,
		"time_confirmed": req.TimeConfirmed,
		"tools":          toolNames(infos),
		"goal":           goal,
		"context":        planContext,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", contractx.ErrPlanning, err)
	}

	specs := make([]statex.StepSpec, 0, len(out.Steps))
	for _, s := range out.Steps {
		specs = append(specs, statex.StepSpec(s))
	}
	specs, err = p.refine(ctx, goal, req.TimeConfirmed, specs)
	if err != nil {
		return nil, err
	}

	plan, err := statex.NewPlan(goal, specs, p.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", contractx.ErrPlanning, err)
	}
	return plan, nil
}

// refine enforces the planning constraints on whatever the oracle proposed.
func (p *Planner) refine(ctx context.Context, goal string, timeConfirmed bool, specs []statex.StepSpec) ([]statex.StepSpec, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: oracle returned no steps", contractx.ErrPlanning)
	}
	if len(specs) > statex.MaxPlanSteps {
		return nil, fmt.Errorf("%w: %d steps exceed limit of %d", contractx.ErrPlanning, len(specs), statex.MaxPlanSteps)
	}

	logger := log.Ctx(ctx)
	wantsResearch := researchIntent.MatchString(goal)
	scheduling := gate.IsSchedulingRequest(goal)

	kept := make([]statex.StepSpec, 0, len(specs))
	for _, s := range specs {
		s.Description = strings.TrimSpace(s.Description)
		s.Tool = strings.TrimSpace(s.Tool)
		if s.Description == "" {
			continue
		}

		var caps contractx.Capability
		if s.Tool != "" {
			tool, ok := p.tools.Get(s.Tool)
			if !ok {
				logger.Debug().Str("tool", s.Tool).Msg("planner: clearing unknown tool hint")
				s.Tool = ""
			} else {
				caps = tool.Capabilities()
			}
		}

		if caps.Has(contractx.CapExternal) && !wantsResearch {
			logger.Info().Str("tool", s.Tool).Msg("planner: dropping research step without research intent")
			continue
		}
		if caps.Has(contractx.CapTimeCommitting) && scheduling && !timeConfirmed {
			logger.Info().Str("tool", s.Tool).Msg("planner: dropping time-committing step without a concrete time")
			continue
		}
		kept = append(kept, s)
	}

	if scheduling && !timeConfirmed {
		kept = p.availabilityFirst(ctx, kept)
	}
	if len(kept) == 0 {
		kept = []statex.StepSpec{{Description: goal}}
	}
	return kept, nil
}

// availabilityFirst reshapes a scheduling plan into: list events, the other
// steps in order, then ask the user for a time. Tool-less steps that only
// negotiate a time are replaced by the final ask.
func (p *Planner) availabilityFirst(ctx context.Context, specs []statex.StepSpec) []statex.StepSpec {
	out := make([]statex.StepSpec, 0, len(specs)+2)

	listing := statex.StepSpec{Description: checkAvailability, Tool: contractx.ToolListEvents}
	for _, s := range specs {
		if s.Tool == contractx.ToolListEvents {
			listing = s
			break
		}
	}
	if _, ok := p.tools.Get(contractx.ToolListEvents); ok {
		out = append(out, listing)
	}

	for _, s := range specs {
		if s.Tool == contractx.ToolListEvents {
			continue
		}
		if s.Tool == "" && timeHandling.MatchString(s.Description) {
			log.Ctx(ctx).Info().Str("step", s.Description).Msg("planner: replacing time negotiation step with the ask step")
			continue
		}
		if len(out) == statex.MaxPlanSteps-1 {
			log.Ctx(ctx).Warn().Str("step", s.Description).Msg("planner: dropping step beyond plan limit")
			continue
		}
		out = append(out, s)
	}
	return append(out, statex.StepSpec{Description: askForTime})
}

// normalizeReply strips prose and fences and wraps a bare step array.
func normalizeReply(raw string) string {
	s := llmx.ExtractJSON(raw)
	if strings.HasPrefix(s, "[") {
		return `{"steps":` + s + `}`
	}
	return s
}

func toolNames(infos []*schema.ToolInfo) string {
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if info == nil || strings.TrimSpace(info.Name) == "" {
			continue
		}
		names = append(names, info.Name)
	}
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ", ")
}
