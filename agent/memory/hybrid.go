package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
)

var _ contractx.Memory = (*Hybrid)(nil)

// Hybrid answers recall from the vector index and falls back to keyword
// search over the log when the index is missing or failing.
type Hybrid struct {
	log     Log
	vectors *VectorStore
	now     func() time.Time
}

// NewHybrid builds the memory handle. vectors may be nil.
func NewHybrid(l Log, vectors *VectorStore) (*Hybrid, error) {
	if l == nil {
		return nil, fmt.Errorf("%w: history log is nil", contractx.ErrValidation)
	}
	return &Hybrid{log: l, vectors: vectors, now: time.Now}, nil
}

func (m *Hybrid) RecentMessages(ctx context.Context, sessionID string, limit int) ([]*schema.Message, error) {
	return m.log.RecentMessages(ctx, sessionID, limit)
}

// SemanticRecall searches the facts of one session only.
func (m *Hybrid) SemanticRecall(ctx context.Context, sessionID, query string, k int) ([]contractx.Fact, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: recall needs a session id", contractx.ErrValidation)
	}
	if strings.TrimSpace(query) == "" || k <= 0 {
		return nil, nil
	}
	if m.vectors != nil {
		facts, err := m.vectors.Query(ctx, sessionID, query, k)
		if err == nil {
			return facts, nil
		}
		log.Ctx(ctx).Warn().Err(err).Msg("memory: vector recall failed, using keyword search")
	}
	return m.log.SearchFacts(ctx, sessionID, query, k)
}

// Store records a fact. Content must already be redacted.
func (m *Hybrid) Store(ctx context.Context, fact contractx.Fact) error {
	if strings.TrimSpace(fact.SessionID) == "" {
		return fmt.Errorf("%w: fact has no session id", contractx.ErrValidation)
	}
	fact.Content = strings.TrimSpace(fact.Content)
	if fact.Content == "" {
		return fmt.Errorf("%w: fact content is empty", contractx.ErrValidation)
	}
	if fact.ID == "" {
		fact.ID = uuid.NewString()
	}
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = m.now().UTC()
	}

	if err := m.log.AddFact(ctx, fact); err != nil {
		return err
	}
	if m.vectors != nil {
		if err := m.vectors.Add(ctx, fact); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("fact_id", fact.ID).Msg("memory: fact not indexed")
		}
	}
	return nil
}
