package synthesizer

import (
	"strings"

	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
)

const (
	kindSchedule = "schedule"
	kindMail     = "mail"

	maxFreeSlots = 5
)

// Phrases asserting a committed action. Matching is case-insensitive.
var (
	scheduleClaims = []string{
		"has been added to your calendar",
		"added to your calendar",
		"added to calendar",
		"on your calendar",
		"has been scheduled",
		"is scheduled",
		"scheduled for",
		"have scheduled",
		"i've scheduled",
		"i scheduled",
		"meeting scheduled",
		"event scheduled",
		"event has been created",
		"meeting has been created",
		"created a calendar event",
		"event created",
		"booked",
		"reminder has been set",
		"reminder set",
	}
	mailClaims = []string{
		"email has been sent",
		"email sent",
		"i've sent",
		"i have sent",
		"has been sent",
		"reply has been drafted",
		"i've drafted",
		"i have drafted",
		"drafted a reply",
		"draft has been saved",
		"draft saved",
	}
)

// claimKinds lists the artifact types a response may claim, with the file
// type that must back each claim.
var claimKinds = []struct {
	kind     string
	fileType string
	phrases  []string
}{
	{kind: kindSchedule, fileType: contractx.FileTypeCalendar, phrases: scheduleClaims},
	{kind: kindMail, fileType: contractx.FileTypeMail, phrases: mailClaims},
}

type correction struct {
	kind     string
	sentence string
}

// stripUnbackedClaims removes every sentence claiming an action whose
// artifact type is absent from files.
func stripUnbackedClaims(text string, files []contractx.GeneratedFile) (string, []correction) {
	have := make(map[string]bool, len(files))
	for _, f := range files {
		have[f.Type] = true
	}

	var fixes []correction
	sentences := splitSentences(text)
	kept := sentences[:0]
	for _, s := range sentences {
		if kind, ok := claimIn(s, have); ok {
			fixes = append(fixes, correction{kind: kind, sentence: strings.TrimSpace(s)})
			continue
		}
		kept = append(kept, s)
	}
	if len(fixes) == 0 {
		return text, nil
	}
	return strings.TrimSpace(strings.Join(kept, "")), fixes
}

func claimIn(sentence string, have map[string]bool) (string, bool) {
	lower := strings.ToLower(sentence)
	for _, c := range claimKinds {
		if have[c.fileType] {
			continue
		}
		for _, p := range c.phrases {
			if strings.Contains(lower, p) {
				return c.kind, true
			}
		}
	}
	return "", false
}

// splitSentences cuts text after sentence punctuation followed by whitespace
// and at line breaks. Each piece keeps its trailing whitespace so joining
// the pieces restores the text.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		end := -1
		switch {
		case c == '\n':
			end = i + 1
		case (c == '.' || c == '!' || c == '?') && i+1 < len(text) && isSpace(text[i+1]):
			end = i + 1
		}
		if end < 0 {
			continue
		}
		for end < len(text) && isSpace(text[end]) {
			end++
		}
		out = append(out, text[start:end])
		start = end
		i = end - 1
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r'
}

// freeSlots collects "FREE:" lines reported by calendar listings.
func freeSlots(outcomes []contractx.StepOutcome) []string {
	var slots []string
	seen := map[string]bool{}
	add := func(text string) {
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "FREE:") {
				continue
			}
			slot := strings.TrimSpace(strings.TrimPrefix(line, "FREE:"))
			if slot == "" || seen[slot] || len(slots) >= maxFreeSlots {
				continue
			}
			seen[slot] = true
			slots = append(slots, slot)
		}
	}
	for _, o := range outcomes {
		for _, obs := range o.Result.Observations {
			if obs.Tool == contractx.ToolListEvents && obs.Success {
				add(obs.Output)
			}
		}
		if o.Result.Tool == contractx.ToolListEvents && o.Result.Success {
			add(o.Result.Output)
		}
	}
	return slots
}

// createFailed reports whether a create_event call ran and failed.
func createFailed(outcomes []contractx.StepOutcome) bool {
	for _, o := range outcomes {
		for _, obs := range o.Result.Observations {
			if obs.Tool == contractx.ToolCreateEvent && !obs.Success && !obs.Blocked {
				return true
			}
		}
		if o.Result.Tool == contractx.ToolCreateEvent && !o.Result.Success && !o.Result.GateBlocked() {
			return true
		}
	}
	return false
}

func notCreatedNote(attempted bool) string {
	if attempted {
		return "The calendar event could not be created, so nothing was added to your calendar."
	}
	return "No calendar event was created."
}

func schedulingQuestion(slots []string) string {
	if len(slots) == 0 {
		return "To schedule the meeting, what date and time work for you?"
	}
	var b strings.Builder
	b.WriteString("To schedule the meeting, when works best for you? Based on your calendar, these times are free:\n")
	for _, s := range slots {
		b.WriteString("  • ")
		b.WriteString(s)
		b.WriteString("\n")
	}
	b.WriteString("\nJust reply with your preferred date and time.")
	return b.String()
}

// dedupeFiles keeps the most recent file of each type, ordered by the first
// appearance of that type.
func dedupeFiles(files []contractx.GeneratedFile) []contractx.GeneratedFile {
	if len(files) == 0 {
		return []contractx.GeneratedFile{}
	}
	order := make([]string, 0, len(files))
	latest := make(map[string]contractx.GeneratedFile, len(files))
	for _, f := range files {
		if _, ok := latest[f.Type]; !ok {
			order = append(order, f.Type)
		}
		latest[f.Type] = f
	}
	out := make([]contractx.GeneratedFile, 0, len(order))
	for _, t := range order {
		out = append(out, latest[t])
	}
	return out
}
