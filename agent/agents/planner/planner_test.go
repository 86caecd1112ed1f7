package planner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
	"github.com/tanpawarit/Chative-Desktop-Agent/agent/llm/llmtest"
	promptx "github.com/tanpawarit/Chative-Desktop-Agent/agent/prompt"
	statex "github.com/tanpawarit/Chative-Desktop-Agent/agent/state"
	toolx "github.com/tanpawarit/Chative-Desktop-Agent/agent/tool"
)

func noop(context.Context, map[string]any) (contractx.ToolResult, error) {
	return contractx.ToolResult{Success: true}, nil
}

func testTools(t *testing.T) *toolx.Registry {
	t.Helper()
	reg, err := toolx.NewRegistry(
		toolx.New(&schema.ToolInfo{Name: toolx.ToolListEvents}, 0, noop),
		toolx.New(&schema.ToolInfo{Name: toolx.ToolCreateEvent}, contractx.CapWrite|contractx.CapTimeCommitting, noop),
		toolx.New(&schema.ToolInfo{Name: toolx.ToolListEmails}, 0, noop),
		toolx.New(&schema.ToolInfo{Name: toolx.ToolDraftReply}, contractx.CapWrite, noop),
		toolx.New(&schema.ToolInfo{Name: toolx.ToolWebResearch}, contractx.CapExternal, noop),
	)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return reg
}

func newTestPlanner(t *testing.T, replies ...llmtest.Reply) (*Planner, *llmtest.Oracle) {
	t.Helper()
	oracle := llmtest.New(replies...)
	p, err := New(context.Background(), oracle, promptx.LoadPromptSet(), testTools(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p, oracle
}

func tools(plan *statex.Plan) []string {
	out := make([]string, len(plan.Steps))
	for i, s := range plan.Steps {
		out[i] = s.Tool
	}
	return out
}

func TestPlanParsesSteps(t *testing.T) {
	t.Parallel()

	p, oracle := newTestPlanner(t, llmtest.Text("```json\n"+
		`{"steps":[{"description":"Read the latest emails","tool":"list_emails"},{"description":"Draft a reply","tool":"draft_reply"}]}`+
		"\n```"))

	plan, err := p.Plan(context.Background(), contractx.PlanRequest{Goal: "Reply to <PERSON_1>'s last email"})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if got := tools(plan); len(got) != 2 || got[0] != "list_emails" || got[1] != "draft_reply" {
		t.Fatalf("unexpected tools: %v", got)
	}
	for _, s := range plan.Steps {
		if s.Status != statex.StepPending {
			t.Fatalf("step %d status = %s, want pending", s.Index, s.Status)
		}
	}
	if oracle.CallCount() != 1 {
		t.Fatalf("oracle calls = %d, want 1", oracle.CallCount())
	}
}

func TestPlanAcceptsBareStringArray(t *testing.T) {
	t.Parallel()

	p, _ := newTestPlanner(t, llmtest.Text(`Here is the plan: ["List my emails", "Summarise them"]`))

	plan, err := p.Plan(context.Background(), contractx.PlanRequest{Goal: "Summarise my inbox"})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(plan.Steps) != 2 || plan.Steps[1].Description != "Summarise them" {
		t.Fatalf("unexpected plan: %+v", plan.Descriptions())
	}
}

func TestPlanFailures(t *testing.T) {
	t.Parallel()

	tooLong := `["1","2","3","4","5","6","7","8","9","10","11"]`
	tests := map[string]llmtest.Reply{
		"unparsable":   llmtest.Text("I cannot help with that"),
		"empty":        llmtest.Text(`{"steps":[]}`),
		"too long":     llmtest.Text(tooLong),
		"oracle error": llmtest.Fail(errors.New("boom")),
	}
	for name, reply := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			p, _ := newTestPlanner(t, reply)
			_, err := p.Plan(context.Background(), contractx.PlanRequest{Goal: "do something"})
			if !errors.Is(err, contractx.ErrPlanning) {
				t.Fatalf("Plan() error = %v, want ErrPlanning", err)
			}
		})
	}
}

func TestPlanClearsUnknownToolHints(t *testing.T) {
	t.Parallel()

	p, _ := newTestPlanner(t, llmtest.Text(`{"steps":[{"description":"Open the spreadsheet","tool":"excel"}]}`))

	plan, err := p.Plan(context.Background(), contractx.PlanRequest{Goal: "Open the budget"})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if plan.Steps[0].Tool != "" {
		t.Fatalf("tool hint = %q, want cleared", plan.Steps[0].Tool)
	}
}

func TestPlanDropsResearchWithoutIntent(t *testing.T) {
	t.Parallel()

	reply := `{"steps":[{"description":"Search the web for Acme","tool":"web_research"},{"description":"List emails from Acme","tool":"list_emails"}]}`

	p, _ := newTestPlanner(t, llmtest.Text(reply))
	plan, err := p.Plan(context.Background(), contractx.PlanRequest{Goal: "Show emails from Acme"})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if got := tools(plan); len(got) != 1 || got[0] != "list_emails" {
		t.Fatalf("unexpected tools: %v", got)
	}

	p, _ = newTestPlanner(t, llmtest.Text(reply))
	plan, err = p.Plan(context.Background(), contractx.PlanRequest{Goal: "Research Acme and show their emails"})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if got := tools(plan); len(got) != 2 || got[0] != "web_research" {
		t.Fatalf("unexpected tools with research intent: %v", got)
	}
}

func TestPlanSchedulingWithoutTimeChecksAvailabilityThenAsks(t *testing.T) {
	t.Parallel()

	p, _ := newTestPlanner(t, llmtest.Text(`{"steps":[{"description":"Create the meeting","tool":"create_event"}]}`))

	plan, err := p.Plan(context.Background(), contractx.PlanRequest{Goal: "Schedule a meeting with <PERSON_1>"})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	got := tools(plan)
	if len(got) != 2 || got[0] != toolx.ToolListEvents || got[1] != "" {
		t.Fatalf("unexpected tools: %v", got)
	}
	if plan.Steps[1].Description != askForTime {
		t.Fatalf("last step = %q, want the clarification step", plan.Steps[1].Description)
	}
}

func TestPlanSchedulingWithTimeKeepsCreation(t *testing.T) {
	t.Parallel()

	p, oracle := newTestPlanner(t, llmtest.Text(`{"steps":[{"description":"Create Project Sync tomorrow at 3pm","tool":"create_event"}]}`))

	plan, err := p.Plan(context.Background(), contractx.PlanRequest{
		Goal:          "Create a meeting for tomorrow at 3pm called Project Sync",
		TimeConfirmed: true,
	})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if got := tools(plan); len(got) != 1 || got[0] != toolx.ToolCreateEvent {
		t.Fatalf("unexpected tools: %v", got)
	}

	user := oracle.Calls[0].Messages[len(oracle.Calls[0].Messages)-1]
	if user.Role != schema.User {
		t.Fatalf("last prompt message role = %s", user.Role)
	}
}

func TestPlanSchedulingWithoutTimeKeepsOtherWork(t *testing.T) {
	t.Parallel()

	p, _ := newTestPlanner(t, llmtest.Text(`{"steps":[
		{"description":"Summarise the agenda for the meeting"},
		{"description":"Create the meeting","tool":"create_event"},
		{"description":"Ask the user which time suits them"}
	]}`))

	plan, err := p.Plan(context.Background(), contractx.PlanRequest{Goal: "Schedule a meeting with <PERSON_1> and summarise the agenda"})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	got := plan.Descriptions()
	want := []string{checkAvailability, "Summarise the agenda for the meeting", askForTime}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("steps = %q, want %q", got, want)
	}
}
