package synthesizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
	"github.com/tanpawarit/Chative-Desktop-Agent/agent/gate"
	llmx "github.com/tanpawarit/Chative-Desktop-Agent/agent/llm"
	privacyx "github.com/tanpawarit/Chative-Desktop-Agent/agent/privacy"
	promptx "github.com/tanpawarit/Chative-Desktop-Agent/agent/prompt"
	metricsx "github.com/tanpawarit/Chative-Desktop-Agent/pkg/metrics"
)

const noResult = "I wasn't able to complete the task."

var _ contractx.Synthesizer = (*Synthesizer)(nil)

// Synthesizer writes the final answer. It never trusts the oracle's account
// of what happened: claims are checked against the artifacts actually
// produced.
type Synthesizer struct {
	runner  compose.Runnable[map[string]any, *schema.Message]
	metrics *metricsx.Metrics
}

func New(ctx context.Context, oracle contractx.Oracle, prompts promptx.PromptSet, metrics *metricsx.Metrics) (*Synthesizer, error) {
	runner, err := llmx.CompileText(ctx, oracle, promptx.Template(prompts.System, prompts.Synthesize, false), "synthesizer.compose_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile synthesizer graph: %v", contractx.ErrModelInvoke, err)
	}
	return &Synthesizer{runner: runner, metrics: metrics}, nil
}

func (s *Synthesizer) Synthesize(ctx context.Context, req contractx.SynthesisRequest) (contractx.FinalResponse, error) {
	var files []contractx.GeneratedFile
	for _, o := range req.Outcomes {
		files = append(files, o.Files...)
	}

	text := s.compose(ctx, req)

	text, fixes := stripUnbackedClaims(text, files)
	for _, fix := range fixes {
		s.report(ctx, fix)
	}

	corrected := false
	for _, fix := range fixes {
		if fix.kind == kindSchedule {
			corrected = true
		}
	}
	request := req.OriginalText
	if request == "" {
		request = req.Goal
	}
	if !hasType(files, contractx.FileTypeCalendar) {
		switch {
		case !req.TimeConfirmed && (corrected || gate.IsSchedulingRequest(request)):
			text = appendParagraph(text, schedulingQuestion(freeSlots(req.Outcomes)))
		case req.TimeConfirmed && corrected:
			text = appendParagraph(text, notCreatedNote(createFailed(req.Outcomes)))
		}
	}
	if strings.TrimSpace(text) == "" {
		text = noResult
	}

	corrections := make([]string, 0, len(fixes))
	for _, fix := range fixes {
		corrections = append(corrections, fix.kind+": "+fix.sentence)
	}

	return contractx.FinalResponse{
		Text:        privacyx.Restore(text, req.Entities),
		Files:       dedupeFiles(restoreFiles(files, req.Entities)),
		Corrections: corrections,
	}, nil
}

// compose asks the oracle for the answer. A single step answers for itself
// and an unavailable oracle falls back to the step texts.
func (s *Synthesizer) compose(ctx context.Context, req contractx.SynthesisRequest) string {
	texts := make([]string, 0, len(req.Outcomes))
	for _, o := range req.Outcomes {
		if t := stepText(o); t != "" {
			texts = append(texts, t)
		}
	}
	switch len(req.Outcomes) {
	case 0:
		return noResult
	case 1:
		if len(texts) == 0 {
			return noResult
		}
		return texts[0]
	}

	var results strings.Builder
	for i, t := range texts {
		if i > 0 {
			results.WriteString("\n---\n")
		}
		fmt.Fprintf(&results, "Step result %d:\n%s", i+1, t)
	}

	msg, err := s.runner.Invoke(ctx, map[string]any{
		"goal":    req.Goal,
		"results": results.String(),
	})
	if err != nil || msg == nil || strings.TrimSpace(msg.Content) == "" {
		log.Ctx(ctx).Warn().Err(err).Msg("synthesizer: composition unavailable, joining step results")
		return strings.Join(texts, "\n\n")
	}
	return strings.TrimSpace(msg.Content)
}

func (s *Synthesizer) report(ctx context.Context, fix correction) {
	err := fmt.Errorf("%w: unbacked %s claim removed", contractx.ErrIntegrityViolation, fix.kind)
	log.Ctx(ctx).Warn().Err(err).Str("kind", fix.kind).Str("sentence", fix.sentence).Msg("synthesizer: corrected final answer")
	if s.metrics != nil {
		s.metrics.IntegrityFixTotal.WithLabelValues(fix.kind).Inc()
	}
}

// stepText is what a step contributes to the answer. Internal errors are
// never shown to the user.
func stepText(o contractx.StepOutcome) string {
	if o.Result.Success || o.Result.GateBlocked() {
		return strings.TrimSpace(o.Result.Output)
	}
	if o.Step != nil {
		return fmt.Sprintf("I couldn't complete this step: %s.", strings.TrimRight(o.Step.Description, "."))
	}
	return ""
}

func restoreFiles(files []contractx.GeneratedFile, m *privacyx.EntityMap) []contractx.GeneratedFile {
	out := make([]contractx.GeneratedFile, len(files))
	for i, f := range files {
		f.Label = privacyx.Restore(f.Label, m)
		if len(f.Fields) > 0 {
			fields := make(map[string]string, len(f.Fields))
			for k, v := range f.Fields {
				fields[k] = privacyx.Restore(v, m)
			}
			f.Fields = fields
		}
		out[i] = f
	}
	return out
}

func hasType(files []contractx.GeneratedFile, fileType string) bool {
	for _, f := range files {
		if f.Type == fileType {
			return true
		}
	}
	return false
}

func appendParagraph(text, para string) string {
	text = strings.TrimRight(text, " \n")
	if text == "" {
		return para
	}
	return text + "\n\n" + para
}
