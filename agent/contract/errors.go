package contract

import "errors"

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")
	ErrValidation      = errors.New("validation failed")

	// ErrPlanning is the only turn-fatal error: no step runs when planning fails.
	ErrPlanning            = errors.New("unable to form a plan")
	ErrToolExecution       = errors.New("tool execution failed")
	ErrGateBlocked         = errors.New("scheduling requires a confirmed date and time")
	ErrEvaluationExhausted = errors.New("retry budget exhausted")
	ErrIntegrityViolation  = errors.New("response claims an action that did not happen")
)
