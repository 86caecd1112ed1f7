package state

import (
	"errors"
	"fmt"
	"time"

	privacyx "github.com/tanpawarit/Chative-Desktop-Agent/agent/privacy"
)

const DefaultBufferSize = 20

var ErrBufferCapacity = errors.New("buffer capacity must be > 0")

// SessionState is the persisted per-session record: the cumulative entity
// map, the short-term conversation buffer and the privacy toggle.
type SessionState struct {
	SessionID string `json:"session_id"`

	Entities       *privacyx.EntityMap `json:"entities"`
	Buffer         Buffer              `json:"buffer"`
	PrivacyEnabled bool                `json:"privacy_enabled"`

	// LastRedactedInput is what the oracle saw on the previous turn.
	LastRedactedInput string `json:"last_redacted_input,omitempty"`
	Turns             int    `json:"turns"`

	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Turn is one redacted conversation message.
type Turn struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Buffer keeps the most recent turns; the oldest is evicted when full.
type Buffer struct {
	Capacity int    `json:"capacity"`
	Turns    []Turn `json:"turns,omitempty"`
}

func NewBuffer(capacity int) Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return Buffer{Capacity: capacity, Turns: make([]Turn, 0, capacity)}
}

func (b *Buffer) Push(t Turn) {
	if b.Capacity <= 0 {
		b.Capacity = DefaultBufferSize
	}
	b.Turns = append(b.Turns, t)
	if over := len(b.Turns) - b.Capacity; over > 0 {
		b.Turns = append(b.Turns[:0:0], b.Turns[over:]...)
	}
}

// Last returns up to n most recent turns, oldest first.
func (b *Buffer) Last(n int) []Turn {
	if n <= 0 || n >= len(b.Turns) {
		return append([]Turn(nil), b.Turns...)
	}
	return append([]Turn(nil), b.Turns[len(b.Turns)-n:]...)
}

func NewSessionState(sessionID string, bufferSize int, privacyEnabled bool, now time.Time) *SessionState {
	return &SessionState{
		SessionID:      sessionID,
		Entities:       privacyx.NewEntityMap(),
		Buffer:         NewBuffer(bufferSize),
		PrivacyEnabled: privacyEnabled,
		Version:        1,
		UpdatedAt:      now.UTC(),
	}
}

func (s *SessionState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// EnsureEntities makes sure s.Entities is initialized.
func (s *SessionState) EnsureEntities() {
	if s.Entities == nil {
		s.Entities = privacyx.NewEntityMap()
	}
}

// Remember appends a user/assistant exchange to the buffer.
func (s *SessionState) Remember(role, content string, now time.Time) {
	s.Buffer.Push(Turn{Role: role, Content: content, At: now.UTC()})
}

func (s *SessionState) Validate() error {
	if s.SessionID == "" {
		return ErrInvalidSession
	}
	if s.Buffer.Capacity <= 0 {
		return ErrBufferCapacity
	}
	if len(s.Buffer.Turns) > s.Buffer.Capacity {
		return fmt.Errorf("buffer holds %d turns, capacity %d", len(s.Buffer.Turns), s.Buffer.Capacity)
	}
	if err := s.Entities.Validate(); err != nil {
		return fmt.Errorf("entity map: %w", err)
	}
	return nil
}
