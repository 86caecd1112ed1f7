package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	ErrStateNotFound   = errors.New("session state not found")
	ErrNilSessionState = errors.New("session state is nil")
	ErrInvalidSession  = errors.New("session id is empty")
)

const (
	defaultStoreKeyPrefix = "agent:session:"
	defaultStoreTTL       = 24 * time.Hour
)

// Store persists SessionState between turns.
type Store interface {
	Load(ctx context.Context, sessionID string) (*SessionState, error)
	Save(ctx context.Context, st *SessionState) error
	Delete(ctx context.Context, sessionID string) error
}

// storeSettings are shared by every Store implementation.
type storeSettings struct {
	keyPrefix  string
	ttl        time.Duration
	httpClient *http.Client
}

// StoreOption customizes a Store.
type StoreOption func(*storeSettings)

func WithKeyPrefix(prefix string) StoreOption {
	return func(s *storeSettings) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithTTL(ttl time.Duration) StoreOption {
	return func(s *storeSettings) {
		s.ttl = ttl
	}
}

// WithHTTPClient only applies to UpstashRedisStore.
func WithHTTPClient(client *http.Client) StoreOption {
	return func(s *storeSettings) {
		if client != nil {
			s.httpClient = client
		}
	}
}

func applyStoreOptions(opts []StoreOption) storeSettings {
	settings := storeSettings{keyPrefix: defaultStoreKeyPrefix, ttl: defaultStoreTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}
	return settings
}

func sessionKey(prefix, sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", ErrInvalidSession
	}
	return strings.TrimSpace(prefix) + sessionID, nil
}

// encodeState stamps and marshals st for storage.
func encodeState(st *SessionState) ([]byte, error) {
	if st == nil {
		return nil, ErrNilSessionState
	}
	if strings.TrimSpace(st.SessionID) == "" {
		return nil, ErrInvalidSession
	}
	if st.Version <= 0 {
		st.Version = 1
	}
	st.EnsureEntities()
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	} else {
		st.UpdatedAt = st.UpdatedAt.UTC()
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal session state: %w", err)
	}
	return payload, nil
}

func decodeState(raw []byte) (*SessionState, error) {
	var st SessionState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("unmarshal session state: %w", err)
	}
	st.EnsureEntities()
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session state loaded from store: %w", err)
	}
	return &st, nil
}
