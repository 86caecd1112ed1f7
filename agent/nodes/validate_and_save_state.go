package orchestratornode

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
	statex "github.com/tanpawarit/Chative-Desktop-Agent/agent/state"
)

// ValidateAndSaveState persists the session once the turn is complete. With
// privacy on, any real entity value that slipped into the buffer is replaced
// by its placeholder first, so stored history stays redacted.
func ValidateAndSaveState(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	if in.Session.PrivacyEnabled {
		if n := scrubBuffer(in.Session); n > 0 {
			log.Ctx(ctx).Warn().
				Err(contractx.ErrIntegrityViolation).
				Int("replacements", n).
				Msg("orchestrator: raw entity values removed from buffer")
		}
	}

	in.Session.Touch(in.Now)
	if err := in.Session.Validate(); err != nil {
		return nil, fmt.Errorf("state validation failed: %w", err)
	}
	if err := store.Save(ctx, in.Session); err != nil {
		return nil, err
	}
	return in, nil
}

type scrubRule struct {
	placeholder string
	value       string
	re          *regexp.Regexp
}

// scrubBuffer rewrites raw entity values in the buffer. Longer values go
// first so "Raj Patel" wins over "Raj", as in redaction.
func scrubBuffer(st *statex.SessionState) int {
	if st.Entities.Len() == 0 {
		return 0
	}
	rules := make([]scrubRule, 0, st.Entities.Len())
	for _, e := range st.Entities.Entities {
		if e.Value == "" {
			continue
		}
		rules = append(rules, scrubRule{placeholder: e.Placeholder, value: e.Value, re: valuePattern(e.Value)})
	}
	sort.SliceStable(rules, func(i, j int) bool {
		return len(rules[i].value) > len(rules[j].value)
	})

	replaced := 0
	for i := range st.Buffer.Turns {
		content := st.Buffer.Turns[i].Content
		for _, r := range rules {
			hits := len(r.re.FindAllStringIndex(content, -1))
			if hits == 0 {
				continue
			}
			replaced += hits
			content = r.re.ReplaceAllLiteralString(content, r.placeholder)
		}
		st.Buffer.Turns[i].Content = content
	}
	return replaced
}

// valuePattern matches value exactly, bounded by word edges where
// the value itself starts or ends with a word character.
func valuePattern(value string) *regexp.Regexp {
	expr := regexp.QuoteMeta(value)
	if r, _ := utf8.DecodeRuneInString(value); isWordRune(r) {
		expr = `\b` + expr
	}
	if r, _ := utf8.DecodeLastRuneInString(value); isWordRune(r) {
		expr += `\b`
	}
	return regexp.MustCompile(expr)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
