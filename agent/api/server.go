// Package api serves the orchestrator over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
	statex "github.com/tanpawarit/Chative-Desktop-Agent/agent/state"
)

// Agent is the conversational surface the server exposes.
type Agent interface {
	HandleMessage(ctx context.Context, sessionID, text string, attachments ...contractx.Attachment) (contractx.FinalResponse, error)
	Session(ctx context.Context, sessionID string) (*statex.SessionState, error)
	SetPrivacy(ctx context.Context, sessionID string, enabled bool) (*statex.SessionState, error)
	ResetSession(ctx context.Context, sessionID string) error
}

// SignatureVerifier checks signed reminder deliveries.
type SignatureVerifier interface {
	Verify(signature string, body []byte, destination string) error
}

type Config struct {
	Addr         string        `envconfig:"ADDR" default:":8000"`
	TurnTimeout  time.Duration `envconfig:"TURN_TIMEOUT" default:"180s"`
	BodyLimit    string        `envconfig:"BODY_LIMIT" default:"10M"`
	ReminderURL  string        `envconfig:"REMINDER_URL"`
	UploadDir    string        `envconfig:"UPLOAD_DIR" default:"data/uploads"`
	DownloadDirs []string      `envconfig:"DOWNLOAD_DIRS"`
}

type Server struct {
	echo      *echo.Echo
	agent     Agent
	tools     contractx.ToolProvider
	reminders SignatureVerifier
	uploads   string
	downloads []string
	config    Config
}

// NewServer wires routes. reminders may be nil, which disables the reminder
// callback route.
func NewServer(agent Agent, tools contractx.ToolProvider, reminders SignatureVerifier, cfg Config) (*Server, error) {
	if agent == nil {
		return nil, fmt.Errorf("%w: agent is required", contractx.ErrValidation)
	}
	if tools == nil {
		return nil, fmt.Errorf("%w: tool provider is required", contractx.ErrValidation)
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 180 * time.Second
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "10M"
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "data/uploads"
	}
	uploads, err := filepath.Abs(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("upload dir %q: %w", cfg.UploadDir, err)
	}
	if err := os.MkdirAll(uploads, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	downloads := make([]string, 0, len(cfg.DownloadDirs))
	for _, d := range cfg.DownloadDirs {
		abs, err := filepath.Abs(d)
		if err != nil {
			return nil, fmt.Errorf("download dir %q: %w", d, err)
		}
		downloads = append(downloads, abs)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(requestLogger)

	s := &Server{
		echo:      e,
		agent:     agent,
		tools:     tools,
		reminders: reminders,
		uploads:   uploads,
		downloads: downloads,
		config:    cfg,
	}
	s.registerRoutes()
	return s, nil
}

func requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		reqID := c.Response().Header().Get(echo.HeaderXRequestID)
		ctx := log.Ctx(c.Request().Context()).With().Str("request_id", reqID).Logger().WithContext(c.Request().Context())
		c.SetRequest(c.Request().WithContext(ctx))

		err := next(c)
		if err != nil {
			c.Error(err)
		}
		log.Ctx(ctx).Info().
			Str("method", c.Request().Method).
			Str("uri", c.Request().RequestURI).
			Int("status", c.Response().Status).
			Dur("duration", time.Since(start)).
			Msg("http request")
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v := s.echo.Group("/api")
	v.POST("/chat", s.handleChat)
	v.POST("/upload", s.handleUpload)
	v.GET("/tools", s.handleTools)
	v.GET("/session/:id", s.handleSession)
	v.PUT("/session/:id/privacy", s.handlePrivacy)
	v.DELETE("/session/:id", s.handleReset)
	v.GET("/download", s.handleDownload)
	if s.reminders != nil {
		v.POST("/reminders/fire", s.handleReminderFire)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	log.Info().Str("addr", s.config.Addr).Msg("starting http server")
	return s.echo.Start(s.config.Addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down http server")
	return s.echo.Shutdown(ctx)
}
