package memory

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
)

const (
	defaultCollection = "facts"
	metaSession       = "session_id"
)

// VectorStore indexes facts for semantic recall. It is backed by chromem,
// persisted on disk when a path is given.
type VectorStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   Embedder
}

func NewVectorStore(path string, embedder Embedder) (*VectorStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is nil", contractx.ErrValidation)
	}

	var db *chromem.DB
	if path = strings.TrimSpace(path); path != "" {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("create vector dir %s: %w", path, err)
		}
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open vector db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	s := &VectorStore{db: db, embedder: embedder}
	col, err := db.GetOrCreateCollection(defaultCollection, nil, s.embedQuery)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", defaultCollection, err)
	}
	s.collection = col
	return s, nil
}

func (s *VectorStore) embedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: no vector returned", ErrEmbedding)
	}
	return vecs[0], nil
}

func (s *VectorStore) Add(ctx context.Context, facts ...contractx.Fact) error {
	if len(facts) == 0 {
		return nil
	}
	texts := make([]string, len(facts))
	for i, f := range facts {
		texts[i] = f.Content
	}
	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, len(facts))
	for i, f := range facts {
		docs[i] = chromem.Document{
			ID:      f.ID,
			Content: f.Content,
			Metadata: map[string]string{
				metaSession: f.SessionID,
				"source":     f.Source,
				"created_at": f.CreatedAt.UTC().Format(time.RFC3339),
			},
			Embedding: vecs[i],
		}
	}
	if err := s.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	return nil
}

// Query returns up to k facts of one session ordered by similarity.
func (s *VectorStore) Query(ctx context.Context, sessionID, query string, k int) ([]contractx.Fact, error) {
	if strings.TrimSpace(query) == "" || k <= 0 {
		return nil, nil
	}
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := s.collection.Query(ctx, query, k, map[string]string{metaSession: sessionID}, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}
	out := make([]contractx.Fact, 0, len(results))
	for _, r := range results {
		created, _ := time.Parse(time.RFC3339, r.Metadata["created_at"])
		out = append(out, contractx.Fact{
			ID:        r.ID,
			SessionID: r.Metadata[metaSession],
			Content:   r.Content,
			Source:    r.Metadata["source"],
			Score:     r.Similarity,
			CreatedAt: created,
		})
	}
	return out, nil
}

func (s *VectorStore) Len() int {
	return s.collection.Count()
}
