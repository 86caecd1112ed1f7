package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
)

var (
	//go:embed template/system.txt
	systemRaw string

	//go:embed template/planner.txt
	plannerRaw string

	//go:embed template/executor.txt
	executorRaw string

	//go:embed template/evaluate.txt
	evaluateRaw string

	//go:embed template/synthesize.txt
	synthesizeRaw string
)

// PromptSet holds loaded prompt content. Every field but System is a Go
// template rendered by the eino chat template.
type PromptSet struct {
	System     string
	Planner    string
	Executor   string
	Evaluate   string
	Synthesize string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		System:     strings.TrimSpace(systemRaw),
		Planner:    strings.TrimSpace(plannerRaw),
		Executor:   strings.TrimSpace(executorRaw),
		Evaluate:   strings.TrimSpace(evaluateRaw),
		Synthesize: strings.TrimSpace(synthesizeRaw),
	}
}

func (p PromptSet) Validate() error {
	for name, v := range map[string]string{
		"system":     p.System,
		"planner":    p.Planner,
		"executor":   p.Executor,
		"evaluate":   p.Evaluate,
		"synthesize": p.Synthesize,
	} {
		if v == "" {
			return fmt.Errorf("%w: %s", contractx.ErrPromptMissing, name)
		}
	}
	return nil
}

// Template builds a system + user chat template. The optional history
// placeholder is filled from the "history" variable.
func Template(system, user string, withHistory bool) einoprompt.ChatTemplate {
	msgs := []schema.MessagesTemplate{schema.SystemMessage(system)}
	if withHistory {
		msgs = append(msgs, schema.MessagesPlaceholder("history", true))
	}
	msgs = append(msgs, schema.UserMessage(user))
	return einoprompt.FromMessages(schema.GoTemplate, msgs...)
}
