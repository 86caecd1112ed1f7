package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
	statex "github.com/tanpawarit/Chative-Desktop-Agent/agent/state"
)

// ChatRequest is sent as JSON, or as multipart/form-data when files are
// attached.
type ChatRequest struct {
	Message   string `json:"message" form:"message"`
	SessionID string `json:"session_id" form:"session_id"`
}

type ChatResponse struct {
	SessionID      string                    `json:"session_id"`
	Response       string                    `json:"response"`
	GeneratedFiles []contractx.GeneratedFile `json:"generated_files"`
	Corrections    []string                  `json:"corrections,omitempty"`
	RedactedInput  string                    `json:"redacted_input,omitempty"`
	Attachments    []string                  `json:"attachments,omitempty"`
}

type ToolResponse struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
}

// SessionResponse never includes entity values, only how many are held.
type SessionResponse struct {
	SessionID       string        `json:"session_id"`
	PrivacyEnabled  bool          `json:"privacy_enabled"`
	Turns           int           `json:"turns"`
	EntityCount     int           `json:"entity_count"`
	LastRedacted    string        `json:"last_redacted_input,omitempty"`
	RecentMessages  []statex.Turn `json:"recent_messages"`
	UpdatedAtMillis int64         `json:"updated_at_ms"`
}

type PrivacyRequest struct {
	Enabled *bool `json:"enabled"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	var saved []UploadedFile
	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid multipart form")
		}
		if saved, err = s.saveUploads(form.File[formFiles]); err != nil {
			log.Ctx(c.Request().Context()).Error().Err(err).Msg("api: upload failed")
			return echo.NewHTTPError(http.StatusInternalServerError, "the upload could not be saved")
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.config.TurnTimeout)
	defer cancel()

	resp, err := s.agent.HandleMessage(ctx, sessionID, req.Message, readAttachments(saved)...)
	if err != nil {
		if errors.Is(err, contractx.ErrValidation) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		log.Ctx(ctx).Error().Err(err).Str("session_id", sessionID).Msg("api: turn failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "the request could not be completed")
	}

	files := resp.Files
	if files == nil {
		files = []contractx.GeneratedFile{}
	}
	names := make([]string, 0, len(saved))
	for _, f := range saved {
		names = append(names, f.Name)
	}
	return c.JSON(http.StatusOK, ChatResponse{
		SessionID:      sessionID,
		Response:       resp.Text,
		GeneratedFiles: files,
		Corrections:    resp.Corrections,
		RedactedInput:  resp.RedactedInput,
		Attachments:    names,
	})
}

func (s *Server) handleTools(c echo.Context) error {
	infos := s.tools.Infos()
	out := make([]ToolResponse, 0, len(infos))
	for _, info := range infos {
		var caps contractx.Capability
		if t, ok := s.tools.Get(info.Name); ok {
			caps = t.Capabilities()
		}
		out = append(out, ToolResponse{Name: info.Name, Description: info.Desc, Capabilities: caps.Names()})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleSession(c echo.Context) error {
	st, err := s.agent.Session(c.Request().Context(), c.Param("id"))
	if err != nil {
		return sessionError(err)
	}
	return c.JSON(http.StatusOK, sessionResponse(st))
}

func (s *Server) handlePrivacy(c echo.Context) error {
	var req PrivacyRequest
	if err := c.Bind(&req); err != nil || req.Enabled == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "enabled is required")
	}
	st, err := s.agent.SetPrivacy(c.Request().Context(), c.Param("id"), *req.Enabled)
	if err != nil {
		return sessionError(err)
	}
	return c.JSON(http.StatusOK, sessionResponse(st))
}

func (s *Server) handleReset(c echo.Context) error {
	if err := s.agent.ResetSession(c.Request().Context(), c.Param("id")); err != nil {
		return sessionError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// handleDownload serves generated files, but only from the configured
// artifact directories.
func (s *Server) handleDownload(c echo.Context) error {
	raw := strings.TrimSpace(c.QueryParam("path"))
	if raw == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "path is required")
	}
	abs, err := filepath.Abs(raw)
	if err != nil || !s.downloadAllowed(abs) {
		return echo.NewHTTPError(http.StatusForbidden, "access denied")
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return echo.NewHTTPError(http.StatusNotFound, "file not found")
	}
	return c.Attachment(abs, filepath.Base(abs))
}

func (s *Server) downloadAllowed(abs string) bool {
	for _, root := range s.downloads {
		if strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func sessionResponse(st *statex.SessionState) SessionResponse {
	resp := SessionResponse{
		SessionID:       st.SessionID,
		PrivacyEnabled:  st.PrivacyEnabled,
		Turns:           st.Turns,
		LastRedacted:    st.LastRedactedInput,
		RecentMessages:  st.Buffer.Last(len(st.Buffer.Turns)),
		UpdatedAtMillis: st.UpdatedAt.UnixMilli(),
	}
	if st.Entities != nil {
		resp.EntityCount = st.Entities.Len()
	}
	if resp.RecentMessages == nil {
		resp.RecentMessages = []statex.Turn{}
	}
	return resp
}

func sessionError(err error) error {
	switch {
	case errors.Is(err, statex.ErrStateNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	case errors.Is(err, statex.ErrInvalidSession):
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "session store unavailable")
	}
}
