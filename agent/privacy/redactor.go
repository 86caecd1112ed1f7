package privacy

import (
	"regexp"
	"sort"
	"strings"
)

// Redacted is the text the oracle may see, paired with the map version used
// to produce it.
type Redacted struct {
	Text     string `json:"text"`
	Version  int    `json:"version"`
	Replaced int    `json:"replaced"`
}

type detector int

// Detection order, used to break ties between equally long spans.
const (
	detectKeywordName detector = iota
	detectNameRole
	detectNameWhoIs
	detectStructured
	detectKnownValue
)

type span struct {
	start, end int
	cat        Category
	by         detector
}

func (s span) len() int { return s.end - s.start }

func (s span) overlaps(o span) bool {
	return s.start < o.end && o.start < s.end
}

var structuredDetectors = []struct {
	cat Category
	re  *regexp.Regexp
}{
	{CategoryEmail, emailPattern},
	{CategoryPhone, phonePattern},
	{CategorySSN, ssnPattern},
	{CategoryCreditCard, creditCardPattern},
	{CategoryIPAddress, ipAddressPattern},
}

// orgFollowers after a candidate mean it names a group, not a person.
var orgFollowers = setOf("team", "department", "group", "company", "committee", "board", "office", "channel", "squad", "org")

// Redactor replaces person names and structured identifiers with stable
// session placeholders. Organisations, dates, locations and roles are kept.
type Redactor struct{}

func NewRedactor() *Redactor {
	return &Redactor{}
}

// Redact substitutes every detected span in text and records new values in m.
// Overlapping detections resolve longest-match-wins, then by detector order,
// then by position. New entities are numbered in order of appearance.
func (r *Redactor) Redact(text string, m *EntityMap) Redacted {
	if m == nil || strings.TrimSpace(text) == "" {
		return Redacted{Text: text, Version: m.Len()}
	}

	candidates := r.detect(text, m)
	reserved := placeholderPattern.FindAllStringIndex(text, -1)
	accepted := resolveOverlaps(candidates, reserved)

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, s := range accepted {
		b.WriteString(text[last:s.start])
		b.WriteString(m.Assign(s.cat, text[s.start:s.end]))
		last = s.end
	}
	b.WriteString(text[last:])

	return Redacted{Text: b.String(), Version: m.Len(), Replaced: len(accepted)}
}

func (r *Redactor) detect(text string, m *EntityMap) []span {
	var out []span
	out = append(out, nameSpans(text, keywordNamePattern, detectKeywordName)...)
	out = append(out, nameSpans(text, nameRolePattern, detectNameRole)...)
	out = append(out, nameSpans(text, nameWhoIsPattern, detectNameWhoIs)...)

	for _, d := range structuredDetectors {
		for _, loc := range d.re.FindAllStringIndex(text, -1) {
			out = append(out, span{start: loc[0], end: loc[1], cat: d.cat, by: detectStructured})
		}
	}

	// Values assigned in earlier turns are redacted wherever they reappear.
	for _, e := range m.values() {
		re, err := regexp.Compile(`(?i)` + boundary(e.Value, true) + regexp.QuoteMeta(e.Value) + boundary(e.Value, false))
		if err != nil {
			continue
		}
		for _, loc := range re.FindAllStringIndex(text, -1) {
			out = append(out, span{start: loc[0], end: loc[1], cat: e.Category, by: detectKnownValue})
		}
	}
	return out
}

// nameSpans scans for person candidates. Keyword matches resume right after
// the keyword so a rejected candidate does not hide a later keyword.
func nameSpans(text string, re *regexp.Regexp, by detector) []span {
	var out []span
	for pos := 0; pos < len(text); {
		loc := re.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		ms, me, gs, ge := pos+loc[0], pos+loc[1], pos+loc[2], pos+loc[3]
		pos = me
		if by == detectKeywordName && gs > ms {
			pos = gs
		}

		if by == detectKeywordName && precedesPlace(text, ms, gs) {
			continue
		}
		s, ok := trimName(text, gs, ge)
		if !ok {
			continue
		}
		s.by = by
		out = append(out, s)
	}
	return out
}

// trimName strips function words around a candidate and keeps the first run
// of name words.
func trimName(text string, gs, ge int) (span, bool) {
	words := wordPattern.FindAllStringIndex(text[gs:ge], -1)
	i := 0
	for i < len(words) && isNonName(text[gs+words[i][0]:gs+words[i][1]]) {
		i++
	}
	if i == len(words) {
		return span{}, false
	}
	j := i
	for j+1 < len(words) && !isNonName(text[gs+words[j+1][0]:gs+words[j+1][1]]) {
		j++
	}

	start, end := gs+words[i][0], gs+words[j][1]
	name := text[start:end]
	if len(name) < 3 || isOrganisation(text, start, end) {
		return span{}, false
	}
	return span{start: start, end: end, cat: CategoryPerson}, true
}

// precedesPlace reports whether a "to"/"from" keyword follows a travel word,
// as in "flying to Paris".
func precedesPlace(text string, kwStart, kwEnd int) bool {
	kw := strings.ToLower(strings.TrimSpace(text[kwStart:kwEnd]))
	if kw != "to" && kw != "from" {
		return false
	}
	before := strings.Fields(strings.ToLower(text[:kwStart]))
	if len(before) == 0 {
		return false
	}
	_, ok := travelWords[strings.Trim(before[len(before)-1], ".,;:!?")]
	return ok
}

func isNonName(w string) bool {
	return isStopWord(w) || isRoleWord(w)
}

func isOrganisation(text string, start, end int) bool {
	for _, w := range strings.Fields(strings.ToLower(text[start:end])) {
		if _, ok := orgSuffixes[w]; ok {
			return true
		}
	}

	rest := strings.Fields(strings.ToLower(text[end:]))
	if len(rest) > 0 {
		next := strings.Trim(rest[0], ".,;:!?")
		if _, ok := orgSuffixes[next]; ok {
			return true
		}
		if _, ok := orgFollowers[next]; ok {
			return true
		}
	}

	lo, hi := max(0, start-25), min(len(text), end+25)
	for _, w := range strings.Fields(strings.ToLower(text[lo:hi])) {
		w = strings.Trim(w, ".,;:!?'\"()")
		for _, sig := range orgSignals {
			if w == sig || w == sig+"s" {
				return true
			}
		}
	}
	return false
}

func resolveOverlaps(candidates []span, reserved [][]int) []span {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.len() != b.len() {
			return a.len() > b.len()
		}
		if a.by != b.by {
			return a.by < b.by
		}
		return a.start < b.start
	})

	blocked := make([]span, 0, len(reserved)+len(candidates))
	for _, loc := range reserved {
		blocked = append(blocked, span{start: loc[0], end: loc[1]})
	}

	var accepted []span
	for _, c := range candidates {
		clash := false
		for _, b := range blocked {
			if c.overlaps(b) {
				clash = true
				break
			}
		}
		if clash {
			continue
		}
		blocked = append(blocked, c)
		accepted = append(accepted, c)
	}

	sort.Slice(accepted, func(i, j int) bool {
		return accepted[i].start < accepted[j].start
	})
	return accepted
}

func boundary(value string, leading bool) string {
	if value == "" {
		return ""
	}
	c := value[len(value)-1]
	if leading {
		c = value[0]
	}
	if isWordByte(c) {
		return `\b`
	}
	return ""
}

func isWordByte(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// Restore replaces assigned placeholders with their original values.
// Placeholders never assigned in the session pass through unchanged.
func Restore(text string, m *EntityMap) string {
	if m.Len() == 0 || !strings.Contains(text, "<") {
		return text
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(ph string) string {
		if v, ok := m.Lookup(ph); ok {
			return v
		}
		return ph
	})
}

// RestoreValue restores every string inside v, descending into maps and slices.
func RestoreValue(v any, m *EntityMap) any {
	switch t := v.(type) {
	case string:
		return Restore(t, m)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = RestoreValue(val, m)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = RestoreValue(val, m)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, val := range t {
			out[i] = Restore(val, m)
		}
		return out
	default:
		return v
	}
}

// ContainsAssigned reports whether s still embeds an assigned placeholder.
func ContainsAssigned(s string, m *EntityMap) bool {
	for _, ph := range placeholderPattern.FindAllString(s, -1) {
		if _, ok := m.Lookup(ph); ok {
			return true
		}
	}
	return false
}
