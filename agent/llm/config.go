package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
	openrouterx "github.com/tanpawarit/Chative-Desktop-Agent/pkg/openrouter"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.2"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"60s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	PlannerModel           string  `envconfig:"PLANNER_MODEL" split_words:"true"`
	ExecutorModel          string  `envconfig:"EXECUTOR_MODEL" split_words:"true"`
	EvaluatorModel         string  `envconfig:"EVALUATOR_MODEL" split_words:"true"`
	SynthesizerModel       string  `envconfig:"SYNTHESIZER_MODEL" split_words:"true"`
	PlannerTemperature     float32 `envconfig:"PLANNER_TEMPERATURE" split_words:"true" default:"-1"`
	ExecutorTemperature    float32 `envconfig:"EXECUTOR_TEMPERATURE" split_words:"true" default:"-1"`
	EvaluatorTemperature   float32 `envconfig:"EVALUATOR_TEMPERATURE" split_words:"true" default:"0"`
	SynthesizerTemperature float32 `envconfig:"SYNTHESIZER_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: llm api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

func (c Config) OpenRouterFor(agentType contractx.AgentType) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	override := func(m string, t float32) {
		if v := strings.TrimSpace(m); v != "" {
			modelName = v
		}
		if t >= 0 {
			temp = t
		}
	}

	switch agentType {
	case contractx.AgentTypePlanner:
		override(c.PlannerModel, c.PlannerTemperature)
	case contractx.AgentTypeExecutor:
		override(c.ExecutorModel, c.ExecutorTemperature)
	case contractx.AgentTypeEvaluator:
		override(c.EvaluatorModel, c.EvaluatorTemperature)
	case contractx.AgentTypeSynthesizer:
		override(c.SynthesizerModel, c.SynthesizerTemperature)
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
