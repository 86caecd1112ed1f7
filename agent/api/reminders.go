package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const signatureHeader = "Upstash-Signature"

// Publisher sends a delayed message to destination.
type Publisher interface {
	Publish(ctx context.Context, destination string, body []byte, notBefore time.Time) (string, error)
}

type reminderPayload struct {
	Path string    `json:"path"`
	At   time.Time `json:"at"`
}

// ReminderDispatcher schedules reminder callbacks to this server's
// /api/reminders/fire route through a delayed-message queue.
type ReminderDispatcher struct {
	publisher   Publisher
	callbackURL string
}

func NewReminderDispatcher(publisher Publisher, callbackURL string) (*ReminderDispatcher, error) {
	if publisher == nil {
		return nil, errors.New("reminder publisher is required")
	}
	if strings.TrimSpace(callbackURL) == "" {
		return nil, errors.New("reminder callback url is required")
	}
	return &ReminderDispatcher{publisher: publisher, callbackURL: strings.TrimSpace(callbackURL)}, nil
}

func (d *ReminderDispatcher) ScheduleReminder(ctx context.Context, path string, at time.Time) error {
	body, err := json.Marshal(reminderPayload{Path: path, At: at})
	if err != nil {
		return err
	}
	id, err := d.publisher.Publish(ctx, d.callbackURL, body, at)
	if err != nil {
		return fmt.Errorf("schedule reminder: %w", err)
	}
	log.Ctx(ctx).Info().Str("message_id", id).Time("at", at).Msg("reminder scheduled")
	return nil
}

func (s *Server) handleReminderFire(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}
	if err := s.reminders.Verify(c.Request().Header.Get(signatureHeader), body, s.config.ReminderURL); err != nil {
		log.Ctx(c.Request().Context()).Warn().Err(err).Msg("api: rejected reminder delivery")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
	}

	var p reminderPayload
	if err := json.Unmarshal(body, &p); err != nil || p.Path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid reminder payload")
	}
	log.Ctx(c.Request().Context()).Info().Str("path", p.Path).Time("at", p.At).Msg("reminder due")
	return c.NoContent(http.StatusNoContent)
}
