package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
)

const (
	displayLayout = "2006-01-02 15:04"
	demoMarker    = ".demo_seeded"

	defaultDaysAhead = 7
	freeSlotDays     = 3
	reminderLength   = 15 * time.Minute
)

// freeSlotHours are the candidate meeting starts offered on working days.
var freeSlotHours = []int{10, 14, 16}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"01/02/2006 15:04",
	"2006-01-02",
	"01/02/2006",
}

type CalendarConfig struct {
	Dir      string `envconfig:"DIR" default:"data/calendars"`
	SeedDemo bool   `envconfig:"SEED_DEMO" default:"true"`
}

// ReminderScheduler arranges for a reminder to fire later. Only the file
// path and time are handed over, never the reminder text.
type ReminderScheduler interface {
	ScheduleReminder(ctx context.Context, path string, at time.Time) error
}

type CalendarOption func(*Calendar)

func WithReminderScheduler(s ReminderScheduler) CalendarOption {
	return func(c *Calendar) {
		c.reminders = s
	}
}

// Calendar reads and writes events as .ics files in one directory.
type Calendar struct {
	dir       string
	loc       *time.Location
	now       func() time.Time
	reminders ReminderScheduler
}

type calendarEvent struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Path        string
}

func NewCalendar(cfg CalendarConfig, opts ...CalendarOption) (*Calendar, error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		return nil, fmt.Errorf("%w: calendar dir is required", contractx.ErrValidation)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create calendar dir: %w", err)
	}
	c := &Calendar{dir: dir, loc: time.Local, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if cfg.SeedDemo {
		if err := c.seedDemo(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Calendar) Tools() []contractx.Tool {
	return []contractx.Tool{
		New(&schema.ToolInfo{
			Name: ToolListEvents,
			Desc: "List upcoming calendar events with busy times and suggested free slots.",
			ParamsOneOf: params(map[string]*schema.ParameterInfo{
				"days_ahead": {Type: schema.Integer, Desc: "Days to look ahead (default 7)."},
			}),
		}, 0, c.listEvents),
		New(&schema.ToolInfo{
			Name: ToolCreateEvent,
			Desc: "Create a calendar event saved as a downloadable .ics file. Only call with a specific date and time.",
			ParamsOneOf: params(map[string]*schema.ParameterInfo{
				"summary":     {Type: schema.String, Desc: "Event title.", Required: true},
				"start":       {Type: schema.String, Desc: "Start, ISO format such as 2026-02-10T14:00:00.", Required: true},
				"end":         {Type: schema.String, Desc: "End; defaults to one hour after start."},
				"description": {Type: schema.String, Desc: "Event description."},
				"location":    {Type: schema.String, Desc: "Event location."},
			}),
		}, contractx.CapWrite|contractx.CapTimeCommitting, c.createEvent),
		New(&schema.ToolInfo{
			Name: ToolCreateReminder,
			Desc: "Create a reminder saved as a short .ics event. Only call with a specific date and time.",
			ParamsOneOf: params(map[string]*schema.ParameterInfo{
				"title": {Type: schema.String, Desc: "Reminder title.", Required: true},
				"when":  {Type: schema.String, Desc: "When to remind, ISO format.", Required: true},
			}),
		}, contractx.CapWrite|contractx.CapTimeCommitting, c.createReminder),
	}
}

func (c *Calendar) listEvents(_ context.Context, args map[string]any) (contractx.ToolResult, error) {
	days := intArg(args, "days_ahead", defaultDaysAhead)
	if days <= 0 {
		days = defaultDaysAhead
	}

	events, err := c.events()
	if err != nil {
		return contractx.ToolResult{}, err
	}
	now := c.now().In(c.loc)
	horizon := now.AddDate(0, 0, days)

	var b strings.Builder
	upcoming := 0
	for _, e := range events {
		if e.End.Before(now) || e.Start.After(horizon) {
			continue
		}
		if upcoming == 0 {
			b.WriteString("EXISTING EVENTS (busy, do not suggest these):\n")
		}
		upcoming++
		fmt.Fprintf(&b, "  BUSY: %s - %s %s\n", e.Start.Format(displayLayout), e.End.Format("15:04"), e.Summary)
	}
	if upcoming == 0 {
		fmt.Fprintf(&b, "No events in the next %d days.\n", days)
	}

	b.WriteString("\nSUGGESTED FREE TIMES:\n")
	for _, slot := range freeSlots(now, events) {
		fmt.Fprintf(&b, "  FREE: %s %s at %s\n", slot.Weekday(), slot.Format("2006-01-02"), slot.Format("15:04"))
	}
	return done(ToolListEvents, strings.TrimRight(b.String(), "\n")), nil
}

// freeSlots offers the standard hours of the next working days that do not
// overlap an existing event.
func freeSlots(now time.Time, events []calendarEvent) []time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var out []time.Time
	for offset := 1; offset <= freeSlotDays; offset++ {
		day := today.AddDate(0, 0, offset)
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		for _, h := range freeSlotHours {
			start := day.Add(time.Duration(h) * time.Hour)
			end := start.Add(time.Hour)
			if !overlapsAny(start, end, events) {
				out = append(out, start)
			}
		}
	}
	return out
}

func overlapsAny(start, end time.Time, events []calendarEvent) bool {
	for _, e := range events {
		if e.Start.Before(end) && start.Before(e.End) {
			return true
		}
	}
	return false
}

func (c *Calendar) createEvent(_ context.Context, args map[string]any) (contractx.ToolResult, error) {
	summary := stringArg(args, "summary")
	if summary == "" {
		summary = stringArg(args, "title")
	}
	if summary == "" {
		return failed(ToolCreateEvent, "missing event title"), nil
	}
	startRaw, bad := requireString(ToolCreateEvent, args, "start")
	if bad != nil {
		bad.Error = "missing start time; ask the user for a specific date and time"
		return *bad, nil
	}
	start, ok := c.parseTime(startRaw)
	if !ok {
		return failed(ToolCreateEvent, fmt.Sprintf("could not parse start time %q; use ISO format like 2026-02-10T14:00:00", startRaw)), nil
	}
	end := start.Add(time.Hour)
	if raw := stringArg(args, "end"); raw != "" {
		if t, ok := c.parseTime(raw); ok && t.After(start) {
			end = t
		}
	}

	ev := calendarEvent{
		Summary:     summary,
		Description: stringArg(args, "description"),
		Location:    stringArg(args, "location"),
		Start:       start,
		End:         end,
	}
	path, err := c.write("event", ev)
	if err != nil {
		return contractx.ToolResult{}, err
	}
	log.Info().Str("path", path).Msg("calendar: event created")

	out := fmt.Sprintf("Event %q created for %s - %s.", summary, start.Format(displayLayout), end.Format("15:04"))
	if ev.Location != "" {
		out += " Location: " + ev.Location + "."
	}
	return done(ToolCreateEvent, out, contractx.GeneratedFile{
		Type:  contractx.FileTypeCalendar,
		Path:  path,
		Label: summary,
		Fields: map[string]string{
			"start":    start.Format(displayLayout),
			"end":      end.Format(displayLayout),
			"location": ev.Location,
		},
	}), nil
}

func (c *Calendar) createReminder(ctx context.Context, args map[string]any) (contractx.ToolResult, error) {
	title, bad := requireString(ToolCreateReminder, args, "title")
	if bad != nil {
		return *bad, nil
	}
	whenRaw, bad := requireString(ToolCreateReminder, args, "when")
	if bad != nil {
		bad.Error = "missing time; ask the user when they want to be reminded"
		return *bad, nil
	}
	when, ok := c.parseTime(whenRaw)
	if !ok {
		return failed(ToolCreateReminder, fmt.Sprintf("could not parse time %q; use ISO format", whenRaw)), nil
	}

	ev := calendarEvent{
		Summary:     "Reminder: " + title,
		Description: "Reminder created by the desktop agent",
		Start:       when,
		End:         when.Add(reminderLength),
	}
	path, err := c.write("reminder", ev)
	if err != nil {
		return contractx.ToolResult{}, err
	}
	if c.reminders != nil && when.After(c.now()) {
		if err := c.reminders.ScheduleReminder(ctx, path, when); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("path", path).Msg("calendar: reminder not scheduled")
		}
	}
	return done(ToolCreateReminder,
		fmt.Sprintf("Reminder %q set for %s.", title, when.Format(displayLayout)),
		contractx.GeneratedFile{
			Type:   contractx.FileTypeCalendar,
			Path:   path,
			Label:  title,
			Fields: map[string]string{"start": when.Format(displayLayout)},
		}), nil
}

func (c *Calendar) parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, c.loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (c *Calendar) write(prefix string, ev calendarEvent) (string, error) {
	if ev.UID == "" {
		ev.UID = uuid.NewString()
	}
	name := fmt.Sprintf("%s_%s_%s.ics", prefix, c.now().Format("20060102_150405"), ev.UID[:8])
	path := filepath.Join(c.dir, name)
	if err := os.WriteFile(path, []byte(encodeICS(ev, c.now())), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return path, nil
}

// events reads every .ics file in the directory, sorted by start.
func (c *Calendar) events() ([]calendarEvent, error) {
	paths, err := filepath.Glob(filepath.Join(c.dir, "*.ics"))
	if err != nil {
		return nil, err
	}
	var out []calendarEvent
	for _, p := range paths {
		evs, err := c.readICS(p)
		if err != nil {
			log.Warn().Err(err).Str("path", p).Msg("calendar: skipping unreadable file")
			continue
		}
		out = append(out, evs...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (c *Calendar) seedDemo() error {
	marker := filepath.Join(c.dir, demoMarker)
	if _, err := os.Stat(marker); err == nil {
		return nil
	}
	now := c.now().In(c.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.loc)
	at := func(days int, h, m int) time.Time {
		return today.AddDate(0, 0, days).Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
	}
	demos := []calendarEvent{
		{Summary: "Daily Standup", Description: "Quick sync with the team", Location: "Zoom", Start: at(1, 9, 30), End: at(1, 9, 45)},
		{Summary: "Lunch with Marketing Team", Description: "Discuss Q1 campaign results", Location: "Cafeteria", Start: at(1, 12, 0), End: at(1, 13, 0)},
		{Summary: "Project Review", Description: "Sprint retrospective and planning", Location: "Conference Room B", Start: at(2, 14, 0), End: at(2, 15, 0)},
		{Summary: "Focus Time", Description: "Deep work block", Start: at(3, 14, 0), End: at(3, 17, 0)},
	}
	for _, ev := range demos {
		if _, err := c.write("demo", ev); err != nil {
			return err
		}
	}
	return os.WriteFile(marker, []byte("demo events created\n"), 0o644)
}

func encodeICS(ev calendarEvent, stamp time.Time) string {
	cal := ics.NewCalendarFor("Desktop Agent")
	cal.SetMethod(ics.MethodPublish)
	e := cal.AddEvent(ev.UID)
	e.SetDtStampTime(stamp)
	e.SetStartAt(ev.Start)
	e.SetEndAt(ev.End)
	e.SetSummary(ev.Summary)
	if ev.Description != "" {
		e.SetDescription(ev.Description)
	}
	if ev.Location != "" {
		e.SetLocation(ev.Location)
	}
	return cal.Serialize(ics.WithNewLineWindows)
}

func (c *Calendar) readICS(path string) ([]calendarEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cal, err := ics.ParseCalendar(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	var out []calendarEvent
	for _, e := range cal.Events() {
		start := c.eventTime(e, ics.ComponentPropertyDtStart)
		if start.IsZero() {
			continue
		}
		end := c.eventTime(e, ics.ComponentPropertyDtEnd)
		if end.IsZero() {
			end = start.Add(time.Hour)
		}
		ev := calendarEvent{
			UID:         e.Id(),
			Summary:     propertyText(e, ics.ComponentPropertySummary),
			Description: propertyText(e, ics.ComponentPropertyDescription),
			Location:    propertyText(e, ics.ComponentPropertyLocation),
			Start:       start,
			End:         end,
			Path:        path,
		}
		if ev.Summary == "" {
			ev.Summary = "(no title)"
		}
		out = append(out, ev)
	}
	return out, nil
}

// eventTime reads DTSTART or DTEND. Floating times carry no zone and are
// read as wall clock in the calendar's location.
func (c *Calendar) eventTime(e *ics.VEvent, prop ics.ComponentProperty) time.Time {
	get := e.GetStartAt
	if prop == ics.ComponentPropertyDtEnd {
		get = e.GetEndAt
	}
	t, err := get()
	if err != nil {
		return time.Time{}
	}
	p := e.GetProperty(prop)
	if _, zoned := p.ICalParameters["TZID"]; !zoned && !strings.HasSuffix(p.Value, "Z") {
		t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, c.loc)
	}
	return t.In(c.loc)
}

func propertyText(e *ics.VEvent, prop ics.ComponentProperty) string {
	if p := e.GetProperty(prop); p != nil {
		return p.Value
	}
	return ""
}
