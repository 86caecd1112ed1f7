package contract

import (
	"context"

	"github.com/cloudwego/eino/schema"
	statex "github.com/tanpawarit/Chative-Desktop-Agent/agent/state"
)

// Oracle is the reasoning model. Implementations may be local or remote.
type Oracle interface {
	Complete(ctx context.Context, messages []*schema.Message, tools []*schema.ToolInfo) (Completion, error)
}

type Tool interface {
	Info() *schema.ToolInfo
	Capabilities() Capability
	Run(ctx context.Context, args map[string]any) (ToolResult, error)
}

type ToolProvider interface {
	Get(name string) (Tool, bool)
	Infos() []*schema.ToolInfo
}

type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (*statex.Plan, error)
}

type Executor interface {
	Execute(ctx context.Context, req ExecuteRequest) (ToolResult, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, step *statex.Step, result ToolResult) Verdict
}

type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (FinalResponse, error)
}

type Registry interface {
	Planner() Planner
	Executor() Executor
	Evaluator() Evaluator
	Synthesizer() Synthesizer
}

// Memory is the long-term context handle. Only redacted text is stored.
type Memory interface {
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]*schema.Message, error)
	SemanticRecall(ctx context.Context, sessionID, query string, k int) ([]Fact, error)
	Store(ctx context.Context, fact Fact) error
}

// History records turns and tasks for later context building.
type History interface {
	AddMessage(ctx context.Context, sessionID string, msg *schema.Message) error
	CreateTask(ctx context.Context, sessionID, goal string, plan *statex.Plan) (int64, error)
	UpdateTask(ctx context.Context, taskID int64, status, result string) error
	RecentTasks(ctx context.Context, sessionID string, limit int) ([]TaskRecord, error)
}
