package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
	metricsx "github.com/tanpawarit/Chative-Desktop-Agent/pkg/metrics"
)

const defaultOracleTimeout = 60 * time.Second

var _ contractx.Oracle = (*ChatOracle)(nil)

// ChatOracle adapts an eino tool-calling chat model to contract.Oracle.
type ChatOracle struct {
	model   einomodel.ToolCallingChatModel
	role    contractx.AgentType
	timeout time.Duration
	metrics *metricsx.Metrics
}

type OracleOption func(*ChatOracle)

func WithTimeout(d time.Duration) OracleOption {
	return func(o *ChatOracle) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithMetrics(m *metricsx.Metrics) OracleOption {
	return func(o *ChatOracle) {
		o.metrics = m
	}
}

func NewChatOracle(model einomodel.ToolCallingChatModel, role contractx.AgentType, opts ...OracleOption) (*ChatOracle, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: chat model is nil", contractx.ErrValidation)
	}
	o := &ChatOracle{model: model, role: role, timeout: defaultOracleTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o, nil
}

func (o *ChatOracle) Complete(ctx context.Context, messages []*schema.Message, tools []*schema.ToolInfo) (contractx.Completion, error) {
	chatModel := o.model
	if len(tools) > 0 {
		bound, err := o.model.WithTools(tools)
		if err != nil {
			return contractx.Completion{}, fmt.Errorf("%w: bind tools: %v", contractx.ErrModelInvoke, err)
		}
		chatModel = bound
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	started := time.Now()
	msg, err := chatModel.Generate(callCtx, messages)
	if o.metrics != nil {
		o.metrics.ObserveOracle(string(o.role), started, err)
	}
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("role", string(o.role)).Msg("oracle call failed")
		return contractx.Completion{}, fmt.Errorf("%w: %w", contractx.ErrModelInvoke, err)
	}
	if msg == nil {
		return contractx.Completion{}, fmt.Errorf("%w: empty model response", contractx.ErrSchemaViolation)
	}

	calls, err := toToolCalls(msg.ToolCalls)
	if err != nil {
		return contractx.Completion{}, err
	}
	return contractx.Completion{
		Text:      strings.TrimSpace(msg.Content),
		ToolCalls: calls,
	}, nil
}

func toToolCalls(calls []schema.ToolCall) ([]contractx.ToolCall, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	out := make([]contractx.ToolCall, 0, len(calls))
	for _, call := range calls {
		name := strings.TrimSpace(call.Function.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: tool call name is empty", contractx.ErrSchemaViolation)
		}

		args := map[string]any{}
		if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return nil, fmt.Errorf("%w: invalid tool args for tool=%s: %v", contractx.ErrSchemaViolation, name, err)
			}
		}
		out = append(out, contractx.ToolCall{ID: call.ID, Name: name, Args: args})
	}
	return out, nil
}

// AssistantMessage renders a completion back into the conversation so tool
// results can reference its call ids.
func AssistantMessage(c contractx.Completion) *schema.Message {
	if len(c.ToolCalls) == 0 {
		return schema.AssistantMessage(c.Text, nil)
	}
	calls := make([]schema.ToolCall, 0, len(c.ToolCalls))
	for _, tc := range c.ToolCalls {
		raw, err := json.Marshal(tc.Args)
		if err != nil {
			raw = []byte("{}")
		}
		calls = append(calls, schema.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: schema.FunctionCall{
				Name:      tc.Name,
				Arguments: string(raw),
			},
		})
	}
	return schema.AssistantMessage(c.Text, calls)
}
