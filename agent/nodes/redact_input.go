package orchestratornode

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
	"github.com/tanpawarit/Chative-Desktop-Agent/agent/gate"
	privacyx "github.com/tanpawarit/Chative-Desktop-Agent/agent/privacy"
	metricsx "github.com/tanpawarit/Chative-Desktop-Agent/pkg/metrics"
)

const (
	attachmentMaxChars = 4000
	attachmentHeader   = "[Attached files context]"
)

// RedactInput produces the text the oracle may see and evaluates the
// scheduling gate over the original message. Attachment text joins the goal
// before redaction but never confirms a time.
func RedactInput(
	ctx context.Context,
	in *GraphState,
	redactor *privacyx.Redactor,
	metrics *metricsx.Metrics,
) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	in.TimeConfirmed = gate.HasSpecificTime(in.Text)
	in.History = turnsToMessages(in.Session.Buffer.Last(0))

	goal := withAttachments(in.Text, in.Attachments)
	in.Redacted = goal
	if in.Session.PrivacyEnabled {
		in.Session.EnsureEntities()
		before := snapshotCounters(in.Session.Entities)
		red := redactor.Redact(goal, in.Session.Entities)
		in.Redacted = red.Text

		if red.Replaced > 0 {
			log.Ctx(ctx).Info().
				Int("replaced", red.Replaced).
				Int("session_total", in.Session.Entities.Len()).
				Msg("privacy: redacted input")
		}
		if metrics != nil {
			for cat, n := range in.Session.Entities.Counters {
				if added := n - before[cat]; added > 0 {
					metrics.EntitiesRedacted.WithLabelValues(string(cat)).Add(float64(added))
				}
			}
		}
	}

	in.Session.LastRedactedInput = in.Redacted
	in.Session.Remember(roleUser, in.Redacted, in.Now)
	return in, nil
}

func snapshotCounters(m *privacyx.EntityMap) map[privacyx.Category]int {
	out := make(map[privacyx.Category]int, len(m.Counters))
	for k, v := range m.Counters {
		out[k] = v
	}
	return out
}

// withAttachments appends each attachment as a named section, truncated to
// attachmentMaxChars runes.
func withAttachments(text string, atts []contractx.Attachment) string {
	if len(atts) == 0 {
		return text
	}
	parts := make([]string, 0, len(atts))
	for _, a := range atts {
		body := []rune(a.Text)
		content := a.Text
		if len(body) > attachmentMaxChars {
			content = string(body[:attachmentMaxChars]) + "\n[...truncated]"
		}
		parts = append(parts, "--- "+a.Name+" ---\n"+content)
	}
	return text + "\n\n" + attachmentHeader + "\n" + strings.Join(parts, "\n\n")
}
