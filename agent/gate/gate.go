// Package gate decides whether a turn may commit calendar time.
//
// The decision is made over the unredacted user message and is authoritative:
// oracle output cannot override it.
package gate

import (
	"regexp"
	"strings"
)

const weekdays = `monday|tuesday|wednesday|thursday|friday|saturday|sunday`

var specificTime = regexp.MustCompile(`(?i)` + strings.Join([]string{
	`\b\d{1,2}:\d{2}\b`,                              // 14:00, 2:30
	`\b\d{1,2}\s*(?:am|pm)\b`,                        // 2pm, 10 am
	`(?:\bat|@)\s*\d{1,2}(?::\d{2})?\s*(?:am|pm)?\b`, // at 2pm, @ 3:00
	`\b\d{4}-\d{2}-\d{2}\b`,                          // 2026-02-10
	`\b\d{1,2}/\d{1,2}/\d{2,4}\b`,                    // 02/10/2026
	`\b(?:tomorrow|today|tonight)\s+(?:at\s+)?\d{1,2}`,
	`\b(?:` + weekdays + `)\s+(?:at\s+)?\d{1,2}`,
	`\b(?:today|tomorrow|tonight|` + weekdays + `)\s+(?:at\s+)?(?:noon|midnight)\b`,
}, "|"))

var schedulingWords = []string{"schedule", "meeting", "calendar", "event", "remind"}

// HasSpecificTime reports whether text names a concrete date or time of day.
func HasSpecificTime(text string) bool {
	return specificTime.MatchString(text)
}

// IsSchedulingRequest reports whether text asks for calendar work.
func IsSchedulingRequest(text string) bool {
	lower := strings.ToLower(text)
	for _, w := range schedulingWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
