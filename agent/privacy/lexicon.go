package privacy

import (
	"regexp"
	"sort"
	"strings"
)

// roleWords mark the neighbouring words as a person reference.
var roleWords = []string{
	"cfo", "ceo", "cto", "coo", "cpo", "cmo", "vp", "svp", "evp", "avp",
	"president", "director", "manager", "lead", "head", "chief",
	"boss", "supervisor", "colleague", "coworker", "assistant",
	"secretary", "analyst", "engineer", "developer", "designer",
	"accountant", "lawyer", "attorney", "doctor", "professor",
	"advisor", "consultant", "partner", "associate", "intern",
	"friend", "brother", "sister", "mom", "dad", "wife", "husband",
	"uncle", "aunt", "cousin", "neighbor", "roommate",
}

// preNameKeywords precede a person name ("email to X", "meeting with X").
var preNameKeywords = []string{
	"to", "from", "with", "tell", "ask", "email", "message",
	"contact", "call", "notify", "invite", "cc", "bcc",
	"remind", "meet", "ping", "text", "reply to",
	"schedule with", "meeting with", "call with",
}

var possessives = `(?:my|our|the|his|her|their|your)`

var orgSuffixes = setOf(
	"corp", "corporation", "inc", "llc", "ltd", "company",
	"enterprises", "technologies", "tech", "labs", "studios",
	"solutions", "partners", "capital", "ventures", "group",
	"foundation", "institute", "university", "bank",
)

var orgSignals = []string{"company", "firm", "startup", "corporation", "organization", "companies"}

// travelWords before "to"/"from" mean a place follows, not a person.
var travelWords = setOf(
	"go", "going", "went", "travel", "traveling", "travelling", "fly", "flying",
	"flight", "flights", "trip", "drive", "driving", "move", "moving", "head",
	"heading", "return", "returning", "commute", "route", "ticket", "tickets",
	"train", "bus", "relocate", "relocating",
)

// stopWords are never person names. Temporal words are included so dates and
// times always survive redaction.
var stopWords = setOf(
	// days, months, relative time
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	"january", "february", "march", "april", "may", "june", "july",
	"august", "september", "october", "november", "december",
	"jan", "feb", "mar", "apr", "jun", "jul", "aug", "sep", "sept", "oct", "nov", "dec",
	"today", "tomorrow", "tonight", "yesterday", "morning", "afternoon", "evening",
	"night", "noon", "midnight", "week", "weekend", "month", "year", "day", "hour",
	"am", "pm", "now", "soon", "later",
	// task words and verbs
	"email", "message", "meeting", "report", "document", "file", "project",
	"team", "department", "company", "group", "schedule", "calendar",
	"draft", "reply", "send", "create", "list", "read", "summarize",
	"research", "search", "find", "check", "verify", "prepare",
	"reminder", "event", "task", "note", "memo", "letter", "invoice",
	"add", "remove", "delete", "update", "edit", "change", "move", "copy",
	"set", "put", "run", "open", "close", "start", "stop", "cancel",
	"save", "load", "show", "hide", "view", "print", "export", "import",
	"share", "forward", "attach", "upload", "download", "sync",
	"book", "reserve", "confirm", "accept", "decline", "approve", "reject",
	"assign", "complete", "finish", "submit", "review", "sign", "mark",
	"write", "compose", "type", "enter", "fill", "format", "clean",
	"sort", "filter", "merge", "split", "combine", "compare", "convert",
	"track", "monitor", "follow", "watch", "log", "record", "count",
	"help", "fix", "resolve", "handle", "process", "manage", "organize",
	"plan", "setup", "configure", "install", "test", "debug", "deploy",
	"look", "see", "try", "use", "take", "give", "tell", "say", "go",
	"needed", "wanted", "asked", "called", "named", "based", "related",
	"included", "attached", "mentioned", "discussed", "scheduled",
	"reach", "reached", "include", "inform", "informed", "call", "meet",
	"sync", "catch", "discuss", "talk", "chat",
	// adjectives and modifiers
	"shared", "private", "public", "personal", "important", "urgent",
	"available", "free", "busy", "closed", "pending", "done",
	"old", "good", "bad", "big", "small", "long", "short", "full", "empty",
	"first", "second", "third", "other", "same", "different", "main",
	"whole", "entire", "current", "previous", "original", "final",
	"quick", "fast", "slow", "early", "late", "ready", "sure", "right",
	// organisation suffixes
	"corp", "corporation", "inc", "llc", "ltd", "enterprises",
	"technologies", "tech", "labs", "studio", "studios", "solutions",
	"partners", "capital", "ventures", "foundation", "institute",
	"university", "bank", "global", "international",
	// pronouns and function words
	"me", "my", "him", "her", "his", "them", "their", "the", "a", "an",
	"this", "that", "it", "about", "and", "for", "with", "from", "who",
	"is", "are", "was", "were", "be", "been", "being", "have", "has",
	"he", "she", "we", "they", "us", "our", "its", "you", "your",
	"i", "had", "having", "what", "when", "where", "how", "why",
	"to", "in", "on", "at", "by", "of", "up", "out", "off", "into",
	"over", "after", "before", "between", "through", "during", "until",
	"or", "but", "so", "yet", "nor", "if", "then", "also", "just",
	"not", "no", "all", "any", "some", "each", "every", "both",
	"please", "can", "could", "would", "should", "will", "shall",
	"do", "does", "did", "get", "got", "let", "make", "know", "need",
	"want", "like", "new", "latest", "recent", "last", "next", "upcoming",
	"everyone", "someone", "anyone", "somebody", "everybody",
	"again", "asap", "too", "as", "well", "here", "there", "regarding", "re",
	"saying", "quickly", "immediately", "back", "than", "via",
	// apps and services
	"whatsapp", "slack", "gmail", "outlook", "google", "microsoft",
	"zoom", "teams", "skype", "discord", "telegram",
	"linkup", "acme", "inbox", "folder",
)

// Structured identifiers.
var (
	emailPattern      = regexp.MustCompile(`\b[\w.-]+@[\w.-]+\.\w+\b`)
	phonePattern      = regexp.MustCompile(`(?:\+\d{1,3}[-.\s]?\(?|\b\d{1,3}[-.\s]?\(?|\(|\b)\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)
	ssnPattern        = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	creditCardPattern = regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`)
	ipAddressPattern  = regexp.MustCompile(`\b(?:25[0-5]|2[0-4]\d|[01]?\d\d?)(?:\.(?:25[0-5]|2[0-4]\d|[01]?\d\d?)){3}\b`)
)

const nameWord = `[a-zA-Z][a-zA-Z'-]*`

var (
	keywordNamePattern = regexp.MustCompile(
		`(?i)\b(?:` + alternation(preNameKeywords) + `)\s+(` + nameWord + `(?:\s+` + nameWord + `){0,2})(?:\s|$|[,.!?;:])`)
	nameRolePattern = regexp.MustCompile(
		`(?i)\b(` + nameWord + `(?:\s+` + nameWord + `)?)\s*,?\s+` + possessives + `\s+(?:` + alternation(roleWords) + `)\b`)
	nameWhoIsPattern = regexp.MustCompile(
		`(?i)\b(` + nameWord + `(?:\s+` + nameWord + `)?)\s+who\s+is\s+(?:` + possessives + `\s+)?(?:` + alternation(roleWords) + `)\b`)
	wordPattern = regexp.MustCompile(nameWord)
)

// alternation builds a regexp alternation, longest literal first so that
// "meeting with" is preferred over "meet".
func alternation(words []string) string {
	sorted := append([]string(nil), words...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i]) > len(sorted[j])
	})
	quoted := make([]string, len(sorted))
	for i, w := range sorted {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(w), " ", `\s+`)
	}
	return strings.Join(quoted, "|")
}

func setOf(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

func isStopWord(w string) bool {
	_, ok := stopWords[strings.ToLower(w)]
	return ok
}

func isRoleWord(w string) bool {
	lw := strings.ToLower(w)
	for _, r := range roleWords {
		if r == lw {
			return true
		}
	}
	return false
}
