package contract

import (
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	privacyx "github.com/tanpawarit/Chative-Desktop-Agent/agent/privacy"
	statex "github.com/tanpawarit/Chative-Desktop-Agent/agent/state"
)

type AgentType string

const (
	AgentTypeOrchestrator AgentType = "orchestrator"
	AgentTypePlanner      AgentType = "planner"
	AgentTypeExecutor     AgentType = "executor"
	AgentTypeEvaluator    AgentType = "evaluator"
	AgentTypeSynthesizer  AgentType = "synthesizer"
)

// Capability tags a tool with the side effects the orchestrator must police.
type Capability uint8

const (
	// CapWrite marks tools that persist user-visible artifacts. Their string
	// arguments are restored to real values before the call.
	CapWrite Capability = 1 << iota
	// CapTimeCommitting marks event/reminder creation. Calls are gated on the
	// user having typed a concrete date and time.
	CapTimeCommitting
	// CapExternal marks tools that leave the machine. Plans only keep them when
	// the user asked for outside information.
	CapExternal
)

func (c Capability) Has(flag Capability) bool {
	return c&flag != 0
}

func (c Capability) Names() []string {
	names := []string{}
	if c.Has(CapWrite) {
		names = append(names, "write")
	}
	if c.Has(CapTimeCommitting) {
		names = append(names, "time_committing")
	}
	if c.Has(CapExternal) {
		names = append(names, "external")
	}
	return names
}

const (
	FileTypeCalendar = "ics"
	FileTypeMail     = "mailto"
)

// Calendar tools the planner and synthesizer reason about. ToolListEvents is
// the availability listing used when a scheduling request has no concrete time.
const (
	ToolListEvents  = "list_events"
	ToolCreateEvent = "create_event"
)

// Result tags.
const (
	TagRoundLimit  = "round-limit"
	TagGateBlocked = "gate-blocked"
	TagTimeout     = "timeout"
	TagOracleError = "oracle-error"
)

// ErrorMarker prefixes failed tool observations and failed step outputs.
const ErrorMarker = "[ERROR]"

type GeneratedFile struct {
	Type   string            `json:"type"`
	Path   string            `json:"path"`
	Label  string            `json:"label"`
	Fields map[string]string `json:"fields,omitempty"`
}

// ToolObservation is one adapter invocation made while executing a step.
type ToolObservation struct {
	Tool    string `json:"tool"`
	Output  string `json:"output"`
	Success bool   `json:"success"`
	Blocked bool   `json:"blocked,omitempty"`
}

type ToolResult struct {
	Tool         string            `json:"tool,omitempty"`
	Output       string            `json:"output"`
	Success      bool              `json:"success"`
	Error        string            `json:"error,omitempty"`
	Tag          string            `json:"tag,omitempty"`
	Files        []GeneratedFile   `json:"files,omitempty"`
	Observations []ToolObservation `json:"observations,omitempty"`
}

// GateBlocked reports whether a time-committing call was suppressed.
func (r ToolResult) GateBlocked() bool {
	return r.Tag == TagGateBlocked
}

// Err classifies the result: ErrGateBlocked for a suppressed call,
// ErrToolExecution for a failure, nil on success.
func (r ToolResult) Err() error {
	switch {
	case r.GateBlocked():
		return fmt.Errorf("%w: %s suppressed", ErrGateBlocked, r.Tool)
	case r.Success:
		return nil
	case r.Error != "":
		return fmt.Errorf("%w: %s", ErrToolExecution, r.Error)
	default:
		return ErrToolExecution
	}
}

// String renders the result the way it is fed back to the oracle.
func (r ToolResult) String() string {
	if r.Success || r.GateBlocked() {
		return r.Output
	}
	msg := r.Error
	if msg == "" {
		msg = r.Output
	}
	return ErrorMarker + " " + msg
}

type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Completion is the structured answer of the reasoning oracle: either tool
// calls, a terminal text answer, or both.
type Completion struct {
	Text      string     `json:"text,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Attachment is a file sent along with a message. Text holds the extracted
// content, or a bracketed note when the file could not be read.
type Attachment struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Fact is a redacted long-term memory entry. Its placeholders only mean
// something inside SessionID, so recall never crosses sessions.
type Fact struct {
	ID        string    `json:"id,omitempty"`
	SessionID string    `json:"session_id"`
	Content   string    `json:"content"`
	Source    string    `json:"source,omitempty"`
	Score     float32   `json:"score,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type TaskRecord struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Goal      string    `json:"goal"`
	Status    string    `json:"status"`
	Result    string    `json:"result,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type PlanRequest struct {
	Goal          string             `json:"goal"`
	Context       string             `json:"context"`
	TimeConfirmed bool               `json:"time_confirmed"`
	Tools         []*schema.ToolInfo `json:"-"`
}

type ExecuteRequest struct {
	Step          *statex.Step
	History       []*schema.Message
	Entities      *privacyx.EntityMap
	TimeConfirmed bool
	// PriorAttempt holds the failed output of the previous attempt, if any.
	PriorAttempt string
}

type Verdict struct {
	Success    bool   `json:"success"`
	Retry      bool   `json:"should_retry"`
	NeedsInput bool   `json:"needs_input,omitempty"`
	Reason     string `json:"reason"`
}

// StepOutcome pairs a finished step with the result of its last attempt and
// every artifact produced across attempts.
type StepOutcome struct {
	Step   *statex.Step
	Result ToolResult
	Files  []GeneratedFile
}

type SynthesisRequest struct {
	Goal          string
	OriginalText  string
	Plan          *statex.Plan
	Outcomes      []StepOutcome
	Entities      *privacyx.EntityMap
	TimeConfirmed bool
}

type FinalResponse struct {
	Text          string          `json:"text"`
	Files         []GeneratedFile `json:"generated_files"`
	Corrections   []string        `json:"corrections,omitempty"`
	RedactedInput string          `json:"redacted_input,omitempty"`
}
