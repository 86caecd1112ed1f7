package state

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxPlanSteps bounds every plan.
const MaxPlanSteps = 10

var (
	ErrInvalidTransition = errors.New("invalid step transition")
	ErrPlanTooLong       = errors.New("plan exceeds step limit")
	ErrEmptyPlan         = errors.New("plan has no steps")
)

type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepRunning    StepStatus = "running"
	StepSuccess    StepStatus = "success"
	StepFailed     StepStatus = "failed"
	StepSkipped    StepStatus = "skipped"
	StepNeedsInput StepStatus = "needs_input"
)

// Step is one unit of a plan. Description, Tool and Args are fixed once the
// plan starts; only status bookkeeping changes afterwards.
type Step struct {
	Index       int            `json:"index"`
	Description string         `json:"description"`
	Tool        string         `json:"tool,omitempty"`
	Args        map[string]any `json:"args,omitempty"`

	Status    StepStatus `json:"status"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"last_error,omitempty"`
	Output    string     `json:"output,omitempty"`
}

// Start moves the step to running. A failed step may restart only while
// its retries (attempts beyond the first) stay within maxRetries.
func (s *Step) Start(maxRetries int) error {
	switch s.Status {
	case StepPending:
	case StepFailed:
		if !s.CanRetry(maxRetries) {
			return fmt.Errorf("%w: step %d exhausted %d retries", ErrInvalidTransition, s.Index, maxRetries)
		}
	default:
		return s.badTransition(StepRunning)
	}
	s.Status = StepRunning
	s.Attempts++
	return nil
}

func (s *Step) Succeed(output string) error {
	if s.Status != StepRunning {
		return s.badTransition(StepSuccess)
	}
	s.Status = StepSuccess
	s.Output = output
	s.LastError = ""
	return nil
}

func (s *Step) Fail(output, reason string) error {
	if s.Status != StepRunning {
		return s.badTransition(StepFailed)
	}
	s.Status = StepFailed
	s.Output = output
	s.LastError = reason
	return nil
}

// NeedInput parks a running step until the user answers. It is not a failure.
func (s *Step) NeedInput(output, reason string) error {
	if s.Status != StepRunning {
		return s.badTransition(StepNeedsInput)
	}
	s.Status = StepNeedsInput
	s.Output = output
	s.LastError = reason
	return nil
}

func (s *Step) Skip(reason string) error {
	if s.Status != StepPending {
		return s.badTransition(StepSkipped)
	}
	s.Status = StepSkipped
	s.LastError = reason
	return nil
}

// CanRetry reports whether a failed step has budget for another attempt.
func (s *Step) CanRetry(maxRetries int) bool {
	return s.Status == StepFailed && s.Attempts <= maxRetries
}

func (s *Step) Terminal() bool {
	switch s.Status {
	case StepSuccess, StepSkipped, StepNeedsInput:
		return true
	}
	return false
}

func (s *Step) badTransition(to StepStatus) error {
	return fmt.Errorf("%w: step %d %s -> %s", ErrInvalidTransition, s.Index, s.Status, to)
}

type Plan struct {
	Goal      string    `json:"goal"`
	Steps     []*Step   `json:"steps"`
	CreatedAt time.Time `json:"created_at"`
}

// StepSpec is a step as proposed, before it is numbered.
type StepSpec struct {
	Description string         `json:"description"`
	Tool        string         `json:"tool,omitempty"`
	Args        map[string]any `json:"args,omitempty"`
}

func NewPlan(goal string, specs []StepSpec, now time.Time) (*Plan, error) {
	if len(specs) == 0 {
		return nil, ErrEmptyPlan
	}
	if len(specs) > MaxPlanSteps {
		return nil, fmt.Errorf("%w: %d > %d", ErrPlanTooLong, len(specs), MaxPlanSteps)
	}

	steps := make([]*Step, 0, len(specs))
	for i, spec := range specs {
		desc := strings.TrimSpace(spec.Description)
		if desc == "" {
			return nil, fmt.Errorf("step %d has no description", i+1)
		}
		steps = append(steps, &Step{
			Index:       i + 1,
			Description: desc,
			Tool:        strings.TrimSpace(spec.Tool),
			Args:        spec.Args,
			Status:      StepPending,
		})
	}
	return &Plan{Goal: goal, Steps: steps, CreatedAt: now.UTC()}, nil
}

// Status summarises the plan for the task log.
func (p *Plan) Status() string {
	if p == nil || len(p.Steps) == 0 {
		return "failed"
	}
	var failed, waiting int
	for _, s := range p.Steps {
		switch s.Status {
		case StepFailed:
			failed++
		case StepNeedsInput:
			waiting++
		}
	}
	switch {
	case failed == len(p.Steps):
		return "failed"
	case failed > 0:
		return "partial"
	case waiting > 0:
		return "waiting"
	default:
		return "completed"
	}
}

// Descriptions lists step descriptions in order.
func (p *Plan) Descriptions() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Description
	}
	return out
}
