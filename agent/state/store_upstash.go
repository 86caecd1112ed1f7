package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxRESTResponseBytes = 2 << 20

type UpstashRedisConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// RESTError is an error reported by the Upstash REST endpoint, either as a
// non-2xx status or as the "error" field of the reply.
type RESTError struct {
	Status  int
	Message string
}

func (e *RESTError) Error() string {
	if e.Status != 0 && e.Status != http.StatusOK {
		return fmt.Sprintf("upstash: status %d: %s", e.Status, e.Message)
	}
	return "upstash: " + e.Message
}

// UpstashRedisStore persists SessionState in Upstash Redis over its REST API.
// Each command is one POST carrying the command as a JSON array.
type UpstashRedisStore struct {
	endpoint string
	token    string
	client   *http.Client
	settings storeSettings
}

func NewUpstashRedisStore(cfg UpstashRedisConfig, opts ...StoreOption) (*UpstashRedisStore, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if endpoint == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid upstash redis url: %w", err)
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	settings := applyStoreOptions(opts)
	if settings.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}
	client := settings.httpClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &UpstashRedisStore{endpoint: endpoint, token: token, client: client, settings: settings}, nil
}

func (s *UpstashRedisStore) Load(ctx context.Context, sessionID string) (*SessionState, error) {
	key, err := sessionKey(s.settings.keyPrefix, sessionID)
	if err != nil {
		return nil, err
	}
	result, err := s.call(ctx, "GET", key)
	if err != nil {
		return nil, err
	}

	var payload *string
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("decode session payload: %w", err)
	}
	if payload == nil {
		return nil, ErrStateNotFound
	}
	return decodeState([]byte(*payload))
}

func (s *UpstashRedisStore) Save(ctx context.Context, st *SessionState) error {
	payload, err := encodeState(st)
	if err != nil {
		return err
	}
	key, err := sessionKey(s.settings.keyPrefix, st.SessionID)
	if err != nil {
		return err
	}

	args := []any{"SET", key, string(payload)}
	if ms := s.settings.ttl.Milliseconds(); ms > 0 {
		args = append(args, "PX", ms)
	}
	_, err = s.call(ctx, args...)
	return err
}

func (s *UpstashRedisStore) Delete(ctx context.Context, sessionID string) error {
	key, err := sessionKey(s.settings.keyPrefix, sessionID)
	if err != nil {
		return err
	}
	_, err = s.call(ctx, "DEL", key)
	return err
}

// call runs one Redis command and returns the raw "result" field.
func (s *UpstashRedisStore) call(ctx context.Context, args ...any) (json.RawMessage, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode %v command: %w", args[0], err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstash %v: %w", args[0], err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxRESTResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read upstash reply: %w", err)
	}

	var reply struct {
		Result json.RawMessage `json:"result"`
		Error  string          `json:"error"`
	}
	decodeErr := json.Unmarshal(raw, &reply)
	switch {
	case reply.Error != "":
		return nil, &RESTError{Status: resp.StatusCode, Message: reply.Error}
	case resp.StatusCode/100 != 2:
		return nil, &RESTError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	case decodeErr != nil:
		return nil, fmt.Errorf("decode upstash reply: %w", decodeErr)
	}
	if len(reply.Result) == 0 {
		return json.RawMessage("null"), nil
	}
	return reply.Result, nil
}
