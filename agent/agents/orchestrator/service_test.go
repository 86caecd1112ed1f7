package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/tanpawarit/Chative-Desktop-Agent/agent/agents"
	"github.com/tanpawarit/Chative-Desktop-Agent/agent/agents/executor"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
	"github.com/tanpawarit/Chative-Desktop-Agent/agent/llm/llmtest"
	promptx "github.com/tanpawarit/Chative-Desktop-Agent/agent/prompt"
	statex "github.com/tanpawarit/Chative-Desktop-Agent/agent/state"
	toolx "github.com/tanpawarit/Chative-Desktop-Agent/agent/tool"
)

type countingTool struct {
	mu    sync.Mutex
	calls []map[string]any
	run   toolx.Func
}

func (c *countingTool) fn(ctx context.Context, args map[string]any) (contractx.ToolResult, error) {
	c.mu.Lock()
	c.calls = append(c.calls, args)
	c.mu.Unlock()
	if c.run != nil {
		return c.run(ctx, args)
	}
	return contractx.ToolResult{Output: "ok", Success: true}, nil
}

func (c *countingTool) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type harness struct {
	listEvents *countingTool
	createEvt  *countingTool
	listDocs   *countingTool

	planner     *llmtest.Oracle
	executor    *llmtest.Oracle
	evaluator   *llmtest.Oracle
	synthesizer *llmtest.Oracle

	store   *statex.MemoryStore
	history *fakeHistory
	orch    *Orchestrator
}

func newHarness(t *testing.T, planner, exec, synth []llmtest.Reply) *harness {
	t.Helper()

	h := &harness{
		listEvents: &countingTool{run: func(context.Context, map[string]any) (contractx.ToolResult, error) {
			return contractx.ToolResult{
				Output:  "BUSY: Tue 09:00-10:00 Standup\nFREE: Tue 10:00-11:00\nFREE: Wed 14:00-15:00",
				Success: true,
			}, nil
		}},
		createEvt: &countingTool{},
		listDocs: &countingTool{run: func(context.Context, map[string]any) (contractx.ToolResult, error) {
			return contractx.ToolResult{}, errors.New("documents folder unreadable")
		}},
		planner:     llmtest.New(planner...),
		executor:    llmtest.New(exec...),
		evaluator:   llmtest.New(),
		synthesizer: llmtest.New(synth...),
		store:       statex.NewMemoryStore(),
		history:     &fakeHistory{},
	}
	var created int
	var mu sync.Mutex
	h.createEvt.run = func(_ context.Context, args map[string]any) (contractx.ToolResult, error) {
		mu.Lock()
		created++
		path := "/tmp/event-" + string(rune('0'+created)) + ".ics"
		mu.Unlock()
		title, _ := args["title"].(string)
		return contractx.ToolResult{
			Output:  "Event created: " + title,
			Success: true,
			Files:   []contractx.GeneratedFile{{Type: contractx.FileTypeCalendar, Path: path, Label: title}},
		}, nil
	}

	reg, err := toolx.NewRegistry(
		toolx.New(&schema.ToolInfo{Name: toolx.ToolListEvents, Desc: "list events"}, 0, h.listEvents.fn),
		toolx.New(&schema.ToolInfo{Name: toolx.ToolCreateEvent, Desc: "create event"},
			contractx.CapWrite|contractx.CapTimeCommitting, h.createEvt.fn),
		toolx.New(&schema.ToolInfo{Name: toolx.ToolListDocuments, Desc: "list documents"}, 0, h.listDocs.fn),
	)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	ctx := context.Background()
	registry, err := agents.Build(ctx, agents.Oracles{
		Planner:     h.planner,
		Executor:    h.executor,
		Evaluator:   h.evaluator,
		Synthesizer: h.synthesizer,
	}, reg, promptx.LoadPromptSet(), executor.Config{}, nil)
	if err != nil {
		t.Fatalf("agents.Build() error = %v", err)
	}

	h.orch, err = New(h.store, registry, Config{PrivacyEnabled: true}, Options{History: h.history})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return h
}

type fakeHistory struct {
	mu       sync.Mutex
	messages []*schema.Message
	tasks    []contractx.TaskRecord
}

func (f *fakeHistory) AddMessage(_ context.Context, _ string, msg *schema.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeHistory) CreateTask(_ context.Context, sessionID, goal string, _ *statex.Plan) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := int64(len(f.tasks) + 1)
	f.tasks = append(f.tasks, contractx.TaskRecord{ID: id, SessionID: sessionID, Goal: goal, Status: "pending"})
	return id, nil
}

func (f *fakeHistory) UpdateTask(_ context.Context, id int64, status, result string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks[i].Status = status
			f.tasks[i].Result = result
		}
	}
	return nil
}

func (f *fakeHistory) RecentTasks(context.Context, string, int) ([]contractx.TaskRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]contractx.TaskRecord(nil), f.tasks...), nil
}

func messagesText(calls []llmtest.Call) string {
	var b strings.Builder
	for _, c := range calls {
		for _, m := range c.Messages {
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func TestHandleMessageInvalidInput(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, nil, nil)

	_, err := h.orch.HandleMessage(context.Background(), "   ", "hello")
	if !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}

	_, err = h.orch.HandleMessage(context.Background(), "s1", "    ")
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
	if h.planner.CallCount() != 0 {
		t.Fatalf("planner called %d times for invalid input", h.planner.CallCount())
	}
}

func TestHandleMessageSchedulingWithoutTimeAsksForSlot(t *testing.T) {
	t.Parallel()

	h := newHarness(t,
		[]llmtest.Reply{llmtest.Text(`{"steps":[{"description":"Create the meeting","tool":"create_event"}]}`)},
		[]llmtest.Reply{
			llmtest.ToolCall("c1", toolx.ToolListEvents, nil),
			llmtest.Text("Your calendar has openings on Tuesday and Wednesday."),
			llmtest.Text("Which date and time would you like?"),
		},
		[]llmtest.Reply{llmtest.Text("I've scheduled the meeting with <PERSON_1>. Let me know if anything changes.")},
	)

	resp, err := h.orch.HandleMessage(context.Background(), "s1", "Schedule a meeting with raj")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if h.createEvt.count() != 0 {
		t.Fatalf("create_event called %d times without a confirmed time", h.createEvt.count())
	}
	if h.listEvents.count() != 1 {
		t.Fatalf("list_events called %d times, want 1", h.listEvents.count())
	}
	for _, f := range resp.Files {
		if f.Type == contractx.FileTypeCalendar {
			t.Fatalf("unexpected calendar file %+v", f)
		}
	}
	if strings.Contains(strings.ToLower(resp.Text), "i've scheduled") {
		t.Fatalf("unbacked claim kept: %q", resp.Text)
	}
	if !strings.Contains(resp.Text, "Tue 10:00-11:00") || !strings.Contains(resp.Text, "Wed 14:00-15:00") {
		t.Fatalf("free slots missing from %q", resp.Text)
	}
	if len(resp.Corrections) == 0 {
		t.Fatal("expected an integrity correction")
	}
	if resp.RedactedInput != "Schedule a meeting with <PERSON_1>" {
		t.Fatalf("RedactedInput = %q", resp.RedactedInput)
	}

	seen := messagesText(h.planner.Calls) + messagesText(h.executor.Calls) + messagesText(h.synthesizer.Calls)
	if strings.Contains(strings.ToLower(seen), " raj") {
		t.Fatalf("raw name reached the oracle:\n%s", seen)
	}
}

func TestHandleMessageConfirmedTimeCreatesOneEvent(t *testing.T) {
	t.Parallel()

	h := newHarness(t,
		[]llmtest.Reply{llmtest.Text(`{"steps":[{"description":"Create the Project Sync event","tool":"create_event"}]}`)},
		[]llmtest.Reply{
			llmtest.ToolCall("c1", toolx.ToolCreateEvent, map[string]any{"title": "Project Sync", "start": "tomorrow 15:00"}),
			llmtest.Text("Project Sync has been added to your calendar."),
		},
		nil,
	)

	resp, err := h.orch.HandleMessage(context.Background(), "s1", "Create a meeting for tomorrow at 3pm called Project Sync")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if h.createEvt.count() != 1 {
		t.Fatalf("create_event called %d times, want 1", h.createEvt.count())
	}
	if len(resp.Files) != 1 || resp.Files[0].Type != contractx.FileTypeCalendar {
		t.Fatalf("files = %+v, want one ics", resp.Files)
	}
	if !strings.Contains(resp.Text, "added to your calendar") {
		t.Fatalf("backed claim removed: %q", resp.Text)
	}
	if len(resp.Corrections) != 0 {
		t.Fatalf("unexpected corrections %v", resp.Corrections)
	}
	if h.synthesizer.CallCount() != 0 {
		t.Fatalf("single-step answer should not call the synthesizer oracle")
	}
}

func TestHandleMessageRetriesAreBounded(t *testing.T) {
	t.Parallel()

	attempt := []llmtest.Reply{
		llmtest.ToolCall("c1", toolx.ToolListDocuments, nil),
		llmtest.Text(""),
	}
	var exec []llmtest.Reply
	for i := 0; i < 4; i++ {
		exec = append(exec, attempt...)
	}

	h := newHarness(t,
		[]llmtest.Reply{llmtest.Text(`{"steps":[{"description":"List my documents","tool":"list_documents"}]}`)},
		exec,
		nil,
	)

	resp, err := h.orch.HandleMessage(context.Background(), "s1", "Show my documents")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if got := h.listDocs.count(); got != 3 {
		t.Fatalf("list_documents attempts = %d, want 3", got)
	}
	if got := h.executor.CallCount(); got != 6 {
		t.Fatalf("executor oracle calls = %d, want 6", got)
	}
	if strings.Contains(resp.Text, "unreadable") || strings.Contains(resp.Text, contractx.ErrorMarker) {
		t.Fatalf("internal error leaked: %q", resp.Text)
	}
	if !strings.Contains(resp.Text, "couldn't complete") {
		t.Fatalf("expected a failure explanation, got %q", resp.Text)
	}

	h.history.mu.Lock()
	defer h.history.mu.Unlock()
	if len(h.history.tasks) != 1 || h.history.tasks[0].Status != "failed" {
		t.Fatalf("tasks = %+v, want one failed task", h.history.tasks)
	}
}

func TestHandleMessageDedupesCalendarFiles(t *testing.T) {
	t.Parallel()

	h := newHarness(t,
		[]llmtest.Reply{llmtest.Text(`{"steps":[
			{"description":"Create the first event","tool":"create_event"},
			{"description":"Create the second event","tool":"create_event"}
		]}`)},
		[]llmtest.Reply{
			llmtest.ToolCall("c1", toolx.ToolCreateEvent, map[string]any{"title": "Kickoff"}),
			llmtest.Text("Kickoff created."),
			llmtest.ToolCall("c2", toolx.ToolCreateEvent, map[string]any{"title": "Review"}),
			llmtest.Text("Review created."),
		},
		[]llmtest.Reply{llmtest.Text("Both events have been added to your calendar.")},
	)

	resp, err := h.orch.HandleMessage(context.Background(), "s1", "Create a kickoff tomorrow at 9am and a review tomorrow at 4pm")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if h.createEvt.count() != 2 {
		t.Fatalf("create_event called %d times, want 2", h.createEvt.count())
	}
	if len(resp.Files) != 1 {
		t.Fatalf("files = %+v, want a single ics", resp.Files)
	}
	if resp.Files[0].Path != "/tmp/event-2.ics" {
		t.Fatalf("kept %q, want the latest file", resp.Files[0].Path)
	}
}

func TestHandleMessagePlanningFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t,
		[]llmtest.Reply{llmtest.Text("I am not able to produce steps.")},
		nil,
		nil,
	)

	resp, err := h.orch.HandleMessage(context.Background(), "s1", "Do the thing")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if !strings.Contains(resp.Text, "unable to form a plan") {
		t.Fatalf("Text = %q", resp.Text)
	}
	if h.executor.CallCount() != 0 {
		t.Fatalf("executor ran after a planning failure")
	}
	if resp.Files == nil {
		t.Fatal("Files must be an empty list, not nil")
	}
}

func TestHandleMessagePersistsRedactedBuffer(t *testing.T) {
	t.Parallel()

	h := newHarness(t,
		[]llmtest.Reply{llmtest.Text(`{"steps":[{"description":"Answer the question"}]}`)},
		[]llmtest.Reply{llmtest.Text("Sure, I noted that <PERSON_1> is your analyst.")},
		nil,
	)

	resp, err := h.orch.HandleMessage(context.Background(), "s1", "Loop in Priya, our analyst")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if !strings.Contains(resp.Text, "Priya") {
		t.Fatalf("reply not restored: %q", resp.Text)
	}

	st, err := h.orch.Session(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	turns := st.Buffer.Last(0)
	if len(turns) != 2 {
		t.Fatalf("buffer has %d turns, want 2", len(turns))
	}
	for _, turn := range turns {
		if strings.Contains(turn.Content, "Priya") {
			t.Fatalf("buffer stored a raw value: %+v", turn)
		}
	}
	if v, ok := st.Entities.Lookup("<PERSON_1>"); !ok || v != "Priya" {
		t.Fatalf("entity map lost <PERSON_1>: %q, %v", v, ok)
	}
}

func TestSetPrivacyDisablesRedaction(t *testing.T) {
	t.Parallel()

	h := newHarness(t,
		[]llmtest.Reply{llmtest.Text(`{"steps":[{"description":"Answer"}]}`)},
		[]llmtest.Reply{llmtest.Text("Done.")},
		nil,
	)
	ctx := context.Background()

	if _, err := h.orch.SetPrivacy(ctx, "s1", false); err != nil {
		t.Fatalf("SetPrivacy() error = %v", err)
	}
	resp, err := h.orch.HandleMessage(ctx, "s1", "Loop in Priya, our analyst")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if resp.RedactedInput != "Loop in Priya, our analyst" {
		t.Fatalf("RedactedInput = %q, want the raw text", resp.RedactedInput)
	}
}
