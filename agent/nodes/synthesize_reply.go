package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
	privacyx "github.com/tanpawarit/Chative-Desktop-Agent/agent/privacy"
)

// SynthesizeReply turns the step outcomes into the user-facing answer. The
// buffer only ever keeps the redacted form of that answer.
func SynthesizeReply(
	ctx context.Context,
	in *GraphState,
	synth contractx.Synthesizer,
	redactor *privacyx.Redactor,
) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	if in.PlanErr == nil {
		resp, err := synth.Synthesize(ctx, contractx.SynthesisRequest{
			Goal:          in.Redacted,
			OriginalText:  in.Text,
			Plan:          in.Plan,
			Outcomes:      in.Outcomes,
			Entities:      in.Session.Entities,
			TimeConfirmed: in.TimeConfirmed,
		})
		if err != nil {
			return nil, err
		}
		in.Response = resp
	}
	if in.Response.Files == nil {
		in.Response.Files = []contractx.GeneratedFile{}
	}
	in.Response.RedactedInput = in.Redacted

	stored := in.Response.Text
	if in.Session.PrivacyEnabled {
		stored = redactor.Redact(stored, in.Session.Entities).Text
	}
	in.Session.Remember(roleAssistant, stored, in.Now)
	in.Session.Turns++

	log.Ctx(ctx).Info().
		Int("files", len(in.Response.Files)).
		Int("corrections", len(in.Response.Corrections)).
		Msg("orchestrator: reply ready")
	return in, nil
}
