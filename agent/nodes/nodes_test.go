package orchestratornode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
	privacyx "github.com/tanpawarit/Chative-Desktop-Agent/agent/privacy"
	statex "github.com/tanpawarit/Chative-Desktop-Agent/agent/state"
)

var testNow = time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC)

type stubMemory struct {
	facts []contractx.Fact
	err   error
}

func (m stubMemory) RecentMessages(context.Context, string, int) ([]*schema.Message, error) {
	return nil, nil
}

func (m stubMemory) SemanticRecall(context.Context, string, string, int) ([]contractx.Fact, error) {
	return m.facts, m.err
}

func (m stubMemory) Store(context.Context, contractx.Fact) error { return nil }

type stubHistory struct {
	tasks   []contractx.TaskRecord
	err     error
	created int
	updates []string
}

func (h *stubHistory) AddMessage(context.Context, string, *schema.Message) error { return nil }

func (h *stubHistory) CreateTask(context.Context, string, string, *statex.Plan) (int64, error) {
	h.created++
	return int64(h.created), nil
}

func (h *stubHistory) UpdateTask(_ context.Context, id int64, status, _ string) error {
	h.updates = append(h.updates, fmt.Sprintf("%d:%s", id, status))
	return nil
}

func (h *stubHistory) RecentTasks(context.Context, string, int) ([]contractx.TaskRecord, error) {
	return h.tasks, h.err
}

type stubPlanner struct {
	plan *statex.Plan
	err  error
}

func (p stubPlanner) Plan(context.Context, contractx.PlanRequest) (*statex.Plan, error) {
	return p.plan, p.err
}

func newState(privacy bool) *GraphState {
	return &GraphState{
		SessionID: "s1",
		Now:       testNow,
		Session:   statex.NewSessionState("s1", 10, privacy, testNow),
		Redacted:  "Schedule a meeting with <PERSON_1>",
	}
}

func TestValidateAndSaveStateScrubsLeakedValues(t *testing.T) {
	t.Parallel()

	in := newState(true)
	person := in.Session.Entities.Assign(privacyx.CategoryPerson, "Raj")
	email := in.Session.Entities.Assign(privacyx.CategoryEmail, "raj@example.com")
	in.Session.Remember(roleUser, "Met Raj today, mail raj@example.com", testNow)
	in.Session.Remember(roleAssistant, "Rajesh already replied.", testNow)

	store := statex.NewMemoryStore()
	if _, err := ValidateAndSaveState(context.Background(), in, store); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	saved, err := store.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := "Met " + person + " today, mail " + email
	if got := saved.Buffer.Turns[0].Content; got != want {
		t.Fatalf("buffer not scrubbed: got %q want %q", got, want)
	}
	if got := saved.Buffer.Turns[1].Content; got != "Rajesh already replied." {
		t.Fatalf("partial word replaced: %q", got)
	}
}

func TestValidateAndSaveStateKeepsRawTextWithPrivacyOff(t *testing.T) {
	t.Parallel()

	in := newState(false)
	in.Session.Entities.Assign(privacyx.CategoryPerson, "Raj")
	in.Session.Remember(roleUser, "Met Raj today", testNow)

	if _, err := ValidateAndSaveState(context.Background(), in, statex.NewMemoryStore()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := in.Session.Buffer.Turns[0].Content; got != "Met Raj today" {
		t.Fatalf("unexpected rewrite: %q", got)
	}
}

func TestReadMemoryBuildsPlannerContext(t *testing.T) {
	t.Parallel()

	in := newState(true)
	hist := &stubHistory{tasks: []contractx.TaskRecord{{Goal: "Draft a reply to <PERSON_2>", Status: "completed"}}}
	mem := stubMemory{facts: []contractx.Fact{{Content: "<PERSON_1> prefers mornings"}}}

	out, err := ReadMemory(context.Background(), in, mem, hist)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := strings.Join([]string{
		"Recent tasks:",
		"  - [completed] Draft a reply to <PERSON_2>",
		"Relevant memories:",
		"  - <PERSON_1> prefers mornings (source: unknown)",
	}, "\n")
	if out.Context != want {
		t.Fatalf("unexpected context:\n%s", out.Context)
	}
}

func TestReadMemoryToleratesFailures(t *testing.T) {
	t.Parallel()

	out, err := ReadMemory(context.Background(), newState(true),
		stubMemory{err: errors.New("vector store down")},
		&stubHistory{err: errors.New("db down")})
	if err != nil {
		t.Fatalf("memory failures must not fail the turn: %v", err)
	}
	if out.Context != "(no prior context)" {
		t.Fatalf("unexpected context: %q", out.Context)
	}
}

func TestPlanStepsRecordsTask(t *testing.T) {
	t.Parallel()

	plan, err := statex.NewPlan("goal", []statex.StepSpec{{Description: "List events", Tool: "list_events"}}, testNow)
	if err != nil {
		t.Fatalf("new plan: %v", err)
	}
	hist := &stubHistory{}
	out, err := PlanSteps(context.Background(), newState(true), stubPlanner{plan: plan}, hist)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Plan != plan || out.TaskID != 1 {
		t.Fatalf("unexpected state: plan=%v task=%d", out.Plan, out.TaskID)
	}
	if len(hist.updates) != 1 || hist.updates[0] != "1:running" {
		t.Fatalf("unexpected task updates: %v", hist.updates)
	}
}

func TestPlanStepsPlanningFailure(t *testing.T) {
	t.Parallel()

	out, err := PlanSteps(context.Background(), newState(true),
		stubPlanner{err: fmt.Errorf("%w: no steps", contractx.ErrPlanning)}, &stubHistory{})
	if err != nil {
		t.Fatalf("planning failure should be absorbed: %v", err)
	}
	if out.PlanErr == nil || out.Response.Text != unableToPlan || out.Response.Files == nil {
		t.Fatalf("unexpected state: %+v", out.Response)
	}

	runOut, err := RunSteps(context.Background(), out, StepRunner{})
	if err != nil || len(runOut.Outcomes) != 0 {
		t.Fatalf("no step may run after a planning failure: %v %v", runOut.Outcomes, err)
	}

	boom := errors.New("store exploded")
	if _, err := PlanSteps(context.Background(), newState(true), stubPlanner{err: boom}, &stubHistory{}); !errors.Is(err, boom) {
		t.Fatalf("expected other errors to propagate, got %v", err)
	}
}

func TestFinalizeReplyRejectsEmptyText(t *testing.T) {
	t.Parallel()

	in := newState(true)
	in.Response.Text = "   "
	if _, err := FinalizeReply(in); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	in.Response.Text = "  Done.  "
	out, err := FinalizeReply(in)
	if err != nil || out.Response.Text != "Done." || out.SessionID != "s1" {
		t.Fatalf("unexpected output: %+v %v", out, err)
	}
}

func TestScrubBufferPrefersLongestValue(t *testing.T) {
	t.Parallel()

	for i := 0; i < 20; i++ {
		st := statex.NewSessionState("s1", 4, true, testNow)
		short := st.Entities.Assign(privacyx.CategoryPerson, "Raj")
		full := st.Entities.Assign(privacyx.CategoryPerson, "Raj Patel")
		st.Remember(roleUser, "Ask Raj Patel, then Raj.", testNow)

		if n := scrubBuffer(st); n != 2 {
			t.Fatalf("replacements = %d, want 2", n)
		}
		want := "Ask " + full + ", then " + short + "."
		if got := st.Buffer.Turns[0].Content; got != want {
			t.Fatalf("got %q want %q", got, want)
		}
	}
}

func TestRedactInputAppendsAttachmentsBeforeRedaction(t *testing.T) {
	t.Parallel()

	in := newState(true)
	in.Text = "Summarise the notes"
	in.Attachments = []contractx.Attachment{
		{Name: "notes.txt", Text: "Mail raj@example.com about the sync tomorrow at 3pm"},
		{Name: "long.md", Text: strings.Repeat("a", attachmentMaxChars+10)},
	}

	out, err := RedactInput(context.Background(), in, privacyx.NewRedactor(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.TimeConfirmed {
		t.Fatal("a time inside an attachment must not confirm the slot")
	}
	if strings.Contains(out.Redacted, "raj@example.com") {
		t.Fatalf("attachment text reached the oracle unredacted: %q", out.Redacted)
	}
	for _, want := range []string{
		"Summarise the notes\n\n" + attachmentHeader + "\n--- notes.txt ---\n",
		"\n\n--- long.md ---\n" + strings.Repeat("a", attachmentMaxChars) + "\n[...truncated]",
	} {
		if !strings.Contains(out.Redacted, want) {
			t.Fatalf("redacted goal missing %q:\n%s", want, out.Redacted)
		}
	}
}
