// Package memory provides the long-term context of the agent: a history log
// of redacted turns and tasks, and a fact store with semantic recall.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
	statex "github.com/tanpawarit/Chative-Desktop-Agent/agent/state"
)

// Log is a History that can also hold facts for keyword recall.
type Log interface {
	contractx.History
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]*schema.Message, error)
	AddFact(ctx context.Context, fact contractx.Fact) error
	SearchFacts(ctx context.Context, sessionID, query string, k int) ([]contractx.Fact, error)
}

var _ Log = (*LocalHistory)(nil)

type storedMessage struct {
	sessionID string
	msg       *schema.Message
}

// LocalHistory keeps the log in process memory.
type LocalHistory struct {
	mu       sync.RWMutex
	messages []storedMessage
	tasks    []contractx.TaskRecord
	facts    []contractx.Fact
	now      func() time.Time
}

func NewLocalHistory() *LocalHistory {
	return &LocalHistory{now: time.Now}
}

func (h *LocalHistory) AddMessage(_ context.Context, sessionID string, msg *schema.Message) error {
	if msg == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, storedMessage{sessionID: sessionID, msg: &schema.Message{Role: msg.Role, Content: msg.Content}})
	return nil
}

func (h *LocalHistory) RecentMessages(_ context.Context, sessionID string, limit int) ([]*schema.Message, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*schema.Message
	for i := len(h.messages) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if h.messages[i].sessionID == sessionID {
			out = append(out, h.messages[i].msg)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (h *LocalHistory) CreateTask(_ context.Context, sessionID, goal string, _ *statex.Plan) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := int64(len(h.tasks) + 1)
	h.tasks = append(h.tasks, contractx.TaskRecord{
		ID:        id,
		SessionID: sessionID,
		Goal:      goal,
		Status:    "pending",
		CreatedAt: h.now().UTC(),
	})
	return id, nil
}

func (h *LocalHistory) UpdateTask(_ context.Context, taskID int64, status, result string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if taskID <= 0 || int(taskID) > len(h.tasks) {
		return ErrTaskNotFound
	}
	t := &h.tasks[taskID-1]
	t.Status = status
	t.Result = result
	return nil
}

func (h *LocalHistory) RecentTasks(_ context.Context, sessionID string, limit int) ([]contractx.TaskRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []contractx.TaskRecord
	for i := len(h.tasks) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if h.tasks[i].SessionID == sessionID {
			out = append(out, h.tasks[i])
		}
	}
	return out, nil
}

func (h *LocalHistory) AddFact(_ context.Context, fact contractx.Fact) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, f := range h.facts {
		if f.ID == fact.ID {
			return nil
		}
	}
	h.facts = append(h.facts, fact)
	return nil
}

// SearchFacts ranks the session's facts by how many query keywords they contain.
func (h *LocalHistory) SearchFacts(_ context.Context, sessionID, query string, k int) ([]contractx.Fact, error) {
	terms := keywords(query)
	if len(terms) == 0 {
		return nil, nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	type hit struct {
		fact  contractx.Fact
		score int
		order int
	}
	var hits []hit
	for i, f := range h.facts {
		if f.SessionID != sessionID {
			continue
		}
		lower := strings.ToLower(f.Content)
		score := 0
		for _, t := range terms {
			if strings.Contains(lower, t) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, hit{fact: f, score: score, order: i})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].order > hits[j].order
	})

	out := make([]contractx.Fact, 0, k)
	for _, x := range hits {
		if k > 0 && len(out) >= k {
			break
		}
		f := x.fact
		f.Score = float32(x.score) / float32(len(terms))
		out = append(out, f)
	}
	return out, nil
}

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "to": {}, "of": {}, "for": {},
	"in": {}, "on": {}, "at": {}, "with": {}, "my": {}, "me": {}, "is": {}, "are": {},
	"what": {}, "about": {}, "please": {}, "can": {}, "you": {}, "i": {},
}

// keywords lower-cases query terms of three or more letters, minus stop words.
func keywords(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '<' || r == '>' || r == '_')
	})
	seen := map[string]bool{}
	var out []string
	for _, f := range fields {
		if len(f) < 3 || seen[f] {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
