package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanpawarit/Chative-Desktop-Agent/agent/agents"
	"github.com/tanpawarit/Chative-Desktop-Agent/agent/agents/executor"
	"github.com/tanpawarit/Chative-Desktop-Agent/agent/agents/orchestrator"
	"github.com/tanpawarit/Chative-Desktop-Agent/agent/api"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
	llmx "github.com/tanpawarit/Chative-Desktop-Agent/agent/llm"
	"github.com/tanpawarit/Chative-Desktop-Agent/agent/memory"
	statex "github.com/tanpawarit/Chative-Desktop-Agent/agent/state"
	toolx "github.com/tanpawarit/Chative-Desktop-Agent/agent/tool"
	configx "github.com/tanpawarit/Chative-Desktop-Agent/pkg/config"
	metricsx "github.com/tanpawarit/Chative-Desktop-Agent/pkg/metrics"
	qstashx "github.com/tanpawarit/Chative-Desktop-Agent/pkg/qstash"
)

type AgentConfig struct {
	BufferSize     int           `envconfig:"BUFFER_SIZE" default:"20"`
	PrivacyEnabled bool          `envconfig:"PRIVACY_ENABLED" default:"true"`
	MaxRetries     int           `envconfig:"MAX_RETRIES" default:"2"`
	MaxRounds      int           `envconfig:"MAX_ROUNDS" default:"5"`
	ToolTimeout    time.Duration `envconfig:"TOOL_TIMEOUT" default:"30s"`
	VectorPath     string        `envconfig:"VECTOR_PATH" default:"data/vectors"`
}

type StateConfig struct {
	Backend   string        `envconfig:"BACKEND" default:"memory"`
	KeyPrefix string        `envconfig:"KEY_PREFIX" default:"agent:session:"`
	TTL       time.Duration `envconfig:"TTL" default:"24h"`
}

type app struct {
	orchestrator *orchestrator.Orchestrator
	tools        *toolx.Registry
	reminders    api.SignatureVerifier
	downloads    []string
	closers      []func() error
}

func newApp(ctx context.Context) (*app, error) {
	agentCfg, err := configx.New[AgentConfig]("AGENT")
	if err != nil {
		return nil, fmt.Errorf("load agent config: %w", err)
	}
	metrics := metricsx.Default()
	a := &app{}

	store, err := a.stateStore(ctx)
	if err != nil {
		return nil, a.fail(err)
	}

	history, err := a.history(ctx)
	if err != nil {
		return nil, a.fail(err)
	}
	vectors, err := vectorStore(agentCfg.VectorPath)
	if err != nil {
		return nil, a.fail(err)
	}
	mem, err := memory.NewHybrid(history, vectors)
	if err != nil {
		return nil, a.fail(err)
	}

	tools, err := a.toolRegistry(mem, metrics)
	if err != nil {
		return nil, a.fail(err)
	}
	a.tools = tools

	llmCfg, err := configx.New[llmx.Config]("LLM")
	if err != nil {
		return nil, a.fail(fmt.Errorf("load llm config: %w", err))
	}
	registry, err := agents.NewRegistry(ctx, *llmCfg, tools, executor.Config{
		MaxRounds:   agentCfg.MaxRounds,
		ToolTimeout: agentCfg.ToolTimeout,
	}, metrics)
	if err != nil {
		return nil, a.fail(err)
	}

	a.orchestrator, err = orchestrator.New(store, registry, orchestrator.Config{
		BufferSize:     agentCfg.BufferSize,
		PrivacyEnabled: agentCfg.PrivacyEnabled,
		MaxRetries:     agentCfg.MaxRetries,
	}, orchestrator.Options{
		Memory:  mem,
		History: history,
		Metrics: metrics,
	})
	if err != nil {
		return nil, a.fail(err)
	}
	return a, nil
}

func (a *app) stateStore(ctx context.Context) (statex.Store, error) {
	cfg, err := configx.New[StateConfig]("STATE")
	if err != nil {
		return nil, fmt.Errorf("load state config: %w", err)
	}
	opts := []statex.StoreOption{statex.WithKeyPrefix(cfg.KeyPrefix), statex.WithTTL(cfg.TTL)}

	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return statex.NewMemoryStore(), nil
	case "upstash":
		upCfg, err := configx.New[statex.UpstashRedisConfig]("STATE_UPSTASH")
		if err != nil {
			return nil, fmt.Errorf("load upstash config: %w", err)
		}
		return statex.NewUpstashRedisStore(*upCfg, opts...)
	case "redis":
		redisCfg, err := configx.New[statex.RedisConfig]("STATE_REDIS")
		if err != nil {
			return nil, fmt.Errorf("load redis config: %w", err)
		}
		store, err := statex.NewRedisStore(ctx, *redisCfg, opts...)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown state backend %q", contractx.ErrValidation, cfg.Backend)
	}
}

func (a *app) history(ctx context.Context) (memory.Log, error) {
	cfg, err := configx.New[memory.PostgresConfig]("DB")
	if err != nil {
		return nil, fmt.Errorf("load db config: %w", err)
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		log.Info().Msg("history: no DB_DSN, keeping task log in memory")
		return memory.NewLocalHistory(), nil
	}
	h, err := memory.NewPostgresHistory(ctx, *cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, h.Close)
	return h, nil
}

// vectorStore returns nil when no embedding key is configured; recall then
// falls back to keyword search over the history store.
func vectorStore(path string) (*memory.VectorStore, error) {
	cfg, err := configx.New[memory.EmbedderConfig]("EMBED")
	if err != nil {
		return nil, fmt.Errorf("load embed config: %w", err)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		log.Info().Msg("memory: no EMBED_API_KEY, semantic recall uses keyword search")
		return nil, nil
	}
	embedder, err := memory.NewOpenAIEmbedder(*cfg)
	if err != nil {
		return nil, err
	}
	return memory.NewVectorStore(path, embedder)
}

func (a *app) toolRegistry(mem contractx.Memory, metrics *metricsx.Metrics) (*toolx.Registry, error) {
	calCfg, err := configx.New[toolx.CalendarConfig]("CALENDAR")
	if err != nil {
		return nil, fmt.Errorf("load calendar config: %w", err)
	}
	mailCfg, err := configx.New[toolx.MailboxConfig]("MAILBOX")
	if err != nil {
		return nil, fmt.Errorf("load mailbox config: %w", err)
	}
	docCfg, err := configx.New[toolx.DocumentsConfig]("DOCUMENTS")
	if err != nil {
		return nil, fmt.Errorf("load documents config: %w", err)
	}
	researchCfg, err := configx.New[toolx.ResearchConfig]("LINKUP")
	if err != nil {
		return nil, fmt.Errorf("load linkup config: %w", err)
	}

	calOpts, err := a.reminderScheduling()
	if err != nil {
		return nil, err
	}
	calendar, err := toolx.NewCalendar(*calCfg, calOpts...)
	if err != nil {
		return nil, err
	}
	mailbox, err := toolx.NewMailbox(*mailCfg)
	if err != nil {
		return nil, err
	}
	docs, err := toolx.NewDocuments(*docCfg)
	if err != nil {
		return nil, err
	}
	a.downloads = []string{calCfg.Dir, mailCfg.DraftDir}

	var all []contractx.Tool
	all = append(all, calendar.Tools()...)
	all = append(all, mailbox.Tools()...)
	all = append(all, docs.Tools()...)
	all = append(all, toolx.NewResearch(*researchCfg, metrics).Tools()...)
	all = append(all, toolx.NewMemoryTools(mem).Tools()...)
	return toolx.NewRegistry(all...)
}

// reminderScheduling enables delayed reminder callbacks when both a queue
// token and a public callback URL are configured.
func (a *app) reminderScheduling() ([]toolx.CalendarOption, error) {
	qCfg, err := configx.New[qstashx.Config]("QSTASH")
	if err != nil {
		return nil, fmt.Errorf("load qstash config: %w", err)
	}
	httpCfg, err := configx.New[api.Config]("HTTP")
	if err != nil {
		return nil, fmt.Errorf("load http config: %w", err)
	}
	if strings.TrimSpace(qCfg.Token) == "" || strings.TrimSpace(httpCfg.ReminderURL) == "" {
		return nil, nil
	}
	client, err := qstashx.NewClient(*qCfg)
	if err != nil {
		return nil, err
	}
	dispatcher, err := api.NewReminderDispatcher(client, httpCfg.ReminderURL)
	if err != nil {
		return nil, err
	}
	a.reminders = client
	return []toolx.CalendarOption{toolx.WithReminderScheduler(dispatcher)}, nil
}

func (a *app) server() (*api.Server, error) {
	cfg, err := configx.New[api.Config]("HTTP")
	if err != nil {
		return nil, fmt.Errorf("load http config: %w", err)
	}
	if len(cfg.DownloadDirs) == 0 {
		for _, d := range a.downloads {
			cfg.DownloadDirs = append(cfg.DownloadDirs, filepath.Clean(d))
		}
	}
	return api.NewServer(a.orchestrator, a.tools, a.reminders, *cfg)
}

func (a *app) fail(err error) error {
	return errors.Join(err, a.Close())
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
