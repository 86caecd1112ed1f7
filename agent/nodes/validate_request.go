package orchestratornode

import (
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
	statex "github.com/tanpawarit/Chative-Desktop-Agent/agent/state"
)

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrInvalidSession = errors.New("session id is empty")
)

type GraphInput struct {
	SessionID   string
	Text        string
	Attachments []contractx.Attachment
}

type GraphOutput struct {
	SessionID string
	Response  contractx.FinalResponse
}

// GraphState is threaded through every node of one turn.
type GraphState struct {
	SessionID   string
	Text        string
	Attachments []contractx.Attachment
	Now         time.Time

	Session       *statex.SessionState
	Redacted      string
	TimeConfirmed bool
	History       []*schema.Message
	Context       string

	Plan     *statex.Plan
	PlanErr  error
	TaskID   int64
	Outcomes []contractx.StepOutcome

	Response contractx.FinalResponse
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	return &GraphState{
		SessionID:   sessionID,
		Text:        text,
		Attachments: in.Attachments,
		Now:         nowFn().UTC(),
	}, nil
}
