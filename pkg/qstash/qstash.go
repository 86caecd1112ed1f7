package qstash

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const signatureIssuer = "Upstash"

var ErrInvalidSignature = errors.New("qstash: invalid signature")

type Config struct {
	URL               string        `split_words:"true" default:"https://qstash.upstash.io"`
	Token             string        `split_words:"true"`
	CurrentSigningKey string        `split_words:"true"`
	NextSigningKey    string        `split_words:"true"`
	Timeout           time.Duration `split_words:"true" default:"10s"`
}

// Client publishes delayed messages and verifies the signed deliveries that
// QStash posts back.
type Client struct {
	baseURL           string
	token             string
	currentSigningKey string
	nextSigningKey    string
	httpClient        *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("qstash url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("qstash token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:           strings.TrimRight(baseURL, "/"),
		token:             strings.TrimSpace(cfg.Token),
		currentSigningKey: strings.TrimSpace(cfg.CurrentSigningKey),
		nextSigningKey:    strings.TrimSpace(cfg.NextSigningKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

type publishResponse struct {
	MessageID string `json:"messageId"`
}

// Publish schedules body for delivery to destination no earlier than notBefore.
func (c *Client) Publish(ctx context.Context, destination string, body []byte, notBefore time.Time) (string, error) {
	if _, err := url.ParseRequestURI(destination); err != nil {
		return "", fmt.Errorf("qstash: bad destination: %w", err)
	}
	endpoint := c.baseURL + "/v2/publish/" + destination
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	if !notBefore.IsZero() {
		req.Header.Set("Upstash-Not-Before", strconv.FormatInt(notBefore.Unix(), 10))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("qstash: publish: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("qstash: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("qstash: publish returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out publishResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("qstash: decode response: %w", err)
	}
	return out.MessageID, nil
}

type signatureClaims struct {
	jwt.RegisteredClaims
	Body string `json:"body"`
}

// Verify checks an Upstash-Signature header against the current key and then
// the next key, so deliveries keep verifying across a key rotation.
func (c *Client) Verify(signature string, body []byte, destination string) error {
	if strings.TrimSpace(signature) == "" {
		return fmt.Errorf("%w: missing", ErrInvalidSignature)
	}
	var lastErr error
	for _, key := range []string{c.currentSigningKey, c.nextSigningKey} {
		if key == "" {
			continue
		}
		if lastErr = verifyWithKey(signature, body, destination, key); lastErr == nil {
			return nil
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no signing keys configured")
	}
	return fmt.Errorf("%w: %w", ErrInvalidSignature, lastErr)
}

func verifyWithKey(signature string, body []byte, destination, key string) error {
	var claims signatureClaims
	_, err := jwt.ParseWithClaims(signature, &claims, func(*jwt.Token) (any, error) {
		return []byte(key), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return err
	}
	if claims.Issuer != signatureIssuer {
		return fmt.Errorf("unexpected issuer %q", claims.Issuer)
	}
	if destination != "" && claims.Subject != destination {
		return fmt.Errorf("unexpected subject %q", claims.Subject)
	}
	sum := sha256.Sum256(body)
	want := base64.RawURLEncoding.EncodeToString(sum[:])
	if strings.TrimRight(claims.Body, "=") != want {
		return errors.New("body hash mismatch")
	}
	return nil
}
