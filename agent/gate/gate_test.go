package gate

import "testing"

func TestHasSpecificTimeRegressionSet(t *testing.T) {
	t.Parallel()

	confirmed := []string{
		"11th Feb at 10:00",
		"tomorrow at 3pm",
		"Create a meeting for tomorrow at 3pm called Project Sync",
		"book it for 2026-02-10",
		"how about 02/10/2026",
		"tuesday at 2",
		"let's do friday noon",
		"remind me @ 9",
		"call at 10 am",
		"14:30 works",
		"today 4",
	}
	for _, in := range confirmed {
		if !HasSpecificTime(in) {
			t.Fatalf("HasSpecificTime(%q) = false, want true", in)
		}
	}
}

func TestHasSpecificTimeRejectsVagueRequests(t *testing.T) {
	t.Parallel()

	vague := []string{
		"Schedule a meeting with raj",
		"set up a call next week",
		"find time with the team sometime soon",
		"remind me about the report",
		"what's on my calendar",
		"",
	}
	for _, in := range vague {
		if HasSpecificTime(in) {
			t.Fatalf("HasSpecificTime(%q) = true, want false", in)
		}
	}
}

func TestIsSchedulingRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{"Schedule a meeting with raj", true},
		{"Remind me to pay rent", true},
		{"what's on my Calendar", true},
		{"summarize my inbox", false},
	}
	for _, tt := range tests {
		if got := IsSchedulingRequest(tt.in); got != tt.want {
			t.Fatalf("IsSchedulingRequest(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
