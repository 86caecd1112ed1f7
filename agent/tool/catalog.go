package tool

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
)

// Tool names exposed to the oracle.
const (
	ToolListEvents     = contractx.ToolListEvents
	ToolCreateEvent    = contractx.ToolCreateEvent
	ToolCreateReminder = "create_reminder"
	ToolListEmails     = "list_emails"
	ToolReadEmail      = "read_email"
	ToolDraftReply     = "draft_reply"
	ToolListDocuments  = "list_documents"
	ToolReadDocument   = "read_document"
	ToolWebResearch    = "web_research"
	ToolMemoryStore    = "memory_store"
	ToolMemoryRecall   = "memory_recall"
)

var ErrDuplicateTool = errors.New("duplicate tool name")

// Func runs one tool call. Adapter problems the oracle can correct (bad or
// missing arguments) are reported as a failed ToolResult, not an error.
type Func func(ctx context.Context, args map[string]any) (contractx.ToolResult, error)

type funcTool struct {
	info *schema.ToolInfo
	caps contractx.Capability
	run  Func
}

// New wraps a function as a contract.Tool.
func New(info *schema.ToolInfo, caps contractx.Capability, run Func) contractx.Tool {
	return &funcTool{info: info, caps: caps, run: run}
}

func (t *funcTool) Info() *schema.ToolInfo             { return t.info }
func (t *funcTool) Capabilities() contractx.Capability { return t.caps }

func (t *funcTool) Run(ctx context.Context, args map[string]any) (contractx.ToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	out, err := t.run(ctx, args)
	if out.Tool == "" {
		out.Tool = t.info.Name
	}
	return out, err
}

var _ contractx.ToolProvider = (*Registry)(nil)

// Registry is the process-wide tool catalog. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]contractx.Tool
}

func NewRegistry(tools ...contractx.Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]contractx.Tool, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(t contractx.Tool) error {
	if t == nil || t.Info() == nil || strings.TrimSpace(t.Info().Name) == "" {
		return fmt.Errorf("%w: tool must have a name", contractx.ErrValidation)
	}
	name := t.Info().Name

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = t
	return nil
}

func (r *Registry) Get(name string) (contractx.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[strings.TrimSpace(name)]
	return t, ok
}

// Infos returns tool schemas sorted by name.
func (r *Registry) Infos() []*schema.ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]*schema.ToolInfo, 0, len(r.tools))
	for _, t := range r.tools {
		infos = append(infos, t.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

func failed(tool, msg string) contractx.ToolResult {
	return contractx.ToolResult{Tool: tool, Error: msg}
}

func done(tool, output string, files ...contractx.GeneratedFile) contractx.ToolResult {
	return contractx.ToolResult{Tool: tool, Output: output, Success: true, Files: files}
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

// intArg reads a JSON number or numeric string, falling back to def.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			return int(v)
		}
	case int:
		return v
	case string:
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d", &n); err == nil {
			return n
		}
	}
	return def
}

func requireString(tool string, args map[string]any, key string) (string, *contractx.ToolResult) {
	v := stringArg(args, key)
	if v == "" {
		res := failed(tool, key+" is required")
		return "", &res
	}
	return v, nil
}

func params(p map[string]*schema.ParameterInfo) *schema.ParamsOneOf {
	return schema.NewParamsOneOfByParams(p)
}
