package qstash

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, key, subject string, body []byte) string {
	t.Helper()
	sum := sha256.Sum256(body)
	claims := signatureClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    signatureIssuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
			NotBefore: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		Body: base64.URLEncoding.EncodeToString(sum[:]),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func TestVerifyAcceptsCurrentAndNextKeys(t *testing.T) {
	t.Parallel()

	c := MustNew(Config{Token: "tok", CurrentSigningKey: "cur", NextSigningKey: "next", URL: "https://qstash.example"})
	body := []byte(`{"path":"data/calendars/reminder.ics"}`)
	dest := "https://agent.example/api/reminders/fire"

	require.NoError(t, c.Verify(sign(t, "cur", dest, body), body, dest))
	require.NoError(t, c.Verify(sign(t, "next", dest, body), body, dest))

	err := c.Verify(sign(t, "other", dest, body), body, dest)
	require.True(t, errors.Is(err, ErrInvalidSignature))

	err = c.Verify(sign(t, "cur", dest, body), []byte(`{"path":"tampered"}`), dest)
	require.ErrorIs(t, err, ErrInvalidSignature)

	err = c.Verify(sign(t, "cur", "https://elsewhere.example", body), body, dest)
	require.ErrorIs(t, err, ErrInvalidSignature)

	require.ErrorIs(t, c.Verify("", body, dest), ErrInvalidSignature)
}

func TestPublishSendsNotBefore(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 2, 11, 9, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/publish/https://agent.example/api/reminders/fire" {
			http.Error(w, "bad path "+r.URL.Path, http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" || r.Header.Get("Upstash-Not-Before") != "1770800400" {
			http.Error(w, "bad headers", http.StatusBadRequest)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		if string(raw) != `{"path":"x.ics"}` {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"messageId":"msg_1"}`))
	}))
	t.Cleanup(srv.Close)

	c := MustNew(Config{URL: srv.URL, Token: "tok"})
	id, err := c.Publish(context.Background(), "https://agent.example/api/reminders/fire", []byte(`{"path":"x.ics"}`), at)
	require.NoError(t, err)
	require.Equal(t, "msg_1", id)

	_, err = c.Publish(context.Background(), "not a url", nil, at)
	require.Error(t, err)
}

func TestNewClientRequiresToken(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{URL: "https://qstash.example"})
	require.Error(t, err)
}
