package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
	nodex "github.com/tanpawarit/Chative-Desktop-Agent/agent/nodes"
	privacyx "github.com/tanpawarit/Chative-Desktop-Agent/agent/privacy"
	statex "github.com/tanpawarit/Chative-Desktop-Agent/agent/state"
	logx "github.com/tanpawarit/Chative-Desktop-Agent/pkg/logger"
	metricsx "github.com/tanpawarit/Chative-Desktop-Agent/pkg/metrics"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidSession = nodex.ErrInvalidSession
)

type Config struct {
	BufferSize     int
	PrivacyEnabled bool
	MaxRetries     int
}

// Options carries the optional collaborators. Nil fields fall back to
// no-op implementations.
type Options struct {
	Memory   contractx.Memory
	History  contractx.History
	Redactor *privacyx.Redactor
	Locker   *statex.Locker
	Metrics  *metricsx.Metrics
}

type Orchestrator struct {
	store    statex.Store
	agents   contractx.Registry
	memory   contractx.Memory
	history  contractx.History
	redactor *privacyx.Redactor
	locker   *statex.Locker
	metrics  *metricsx.Metrics

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	sessionDefaults nodex.SessionDefaults
	maxRetries      int

	now func() time.Time
}

func New(
	store statex.Store,
	agents contractx.Registry,
	cfg Config,
	opts Options,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if agents == nil {
		return nil, errors.New("agent registry is required")
	}
	if opts.Memory == nil {
		opts.Memory = noopMemory{}
	}
	if opts.History == nil {
		opts.History = noopHistory{}
	}
	if opts.Redactor == nil {
		opts.Redactor = privacyx.NewRedactor()
	}
	if opts.Locker == nil {
		opts.Locker = statex.NewLocker()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = statex.DefaultBufferSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = nodex.DefaultMaxRetries
	}

	o := &Orchestrator{
		store:    store,
		agents:   agents,
		memory:   opts.Memory,
		history:  opts.History,
		redactor: opts.Redactor,
		locker:   opts.Locker,
		metrics:  opts.Metrics,
		sessionDefaults: nodex.SessionDefaults{
			BufferSize:     cfg.BufferSize,
			PrivacyEnabled: cfg.PrivacyEnabled,
		},
		maxRetries: cfg.MaxRetries,
		now:        time.Now,
	}

	graphRunner, err := o.compileHandleMessageGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// HandleMessage runs one turn. Turns of the same session are serialized;
// different sessions proceed in parallel.
func (o *Orchestrator) HandleMessage(ctx context.Context, sessionID string, text string, attachments ...contractx.Attachment) (contractx.FinalResponse, error) {
	started := o.now()
	unlock, err := o.locker.Lock(ctx, sessionID)
	if err != nil {
		return contractx.FinalResponse{}, fmt.Errorf("lock session: %w", err)
	}
	defer unlock()

	ctx = logx.WithSession(contractx.WithSessionID(ctx, sessionID), sessionID)
	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		SessionID:   sessionID,
		Text:        text,
		Attachments: attachments,
	})
	o.observe(started, err)
	if err != nil {
		return contractx.FinalResponse{}, err
	}
	return out.Response, nil
}

// Session returns the stored state of a session.
func (o *Orchestrator) Session(ctx context.Context, sessionID string) (*statex.SessionState, error) {
	return o.store.Load(ctx, sessionID)
}

// SetPrivacy toggles redaction for later turns of a session.
func (o *Orchestrator) SetPrivacy(ctx context.Context, sessionID string, enabled bool) (*statex.SessionState, error) {
	unlock, err := o.locker.Lock(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	defer unlock()

	st, err := o.store.Load(ctx, sessionID)
	switch {
	case err == nil:
	case errors.Is(err, statex.ErrStateNotFound):
		st = statex.NewSessionState(sessionID, o.sessionDefaults.BufferSize, enabled, o.now())
	default:
		return nil, err
	}
	st.PrivacyEnabled = enabled
	st.Touch(o.now())
	if err := o.store.Save(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// ResetSession forgets the entity map and buffer of a session.
func (o *Orchestrator) ResetSession(ctx context.Context, sessionID string) error {
	unlock, err := o.locker.Lock(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("lock session: %w", err)
	}
	defer unlock()
	return o.store.Delete(ctx, sessionID)
}

func (o *Orchestrator) observe(started time.Time, err error) {
	if o.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	o.metrics.TurnsTotal.WithLabelValues(outcome).Inc()
	o.metrics.TurnDuration.Observe(o.now().Sub(started).Seconds())
}

type noopMemory struct{}

func (noopMemory) RecentMessages(context.Context, string, int) ([]*schema.Message, error) {
	return nil, nil
}

func (noopMemory) SemanticRecall(context.Context, string, string, int) ([]contractx.Fact, error) {
	return nil, nil
}

func (noopMemory) Store(context.Context, contractx.Fact) error {
	return nil
}

type noopHistory struct{}

func (noopHistory) AddMessage(context.Context, string, *schema.Message) error {
	return nil
}

func (noopHistory) CreateTask(context.Context, string, string, *statex.Plan) (int64, error) {
	return 0, nil
}

func (noopHistory) UpdateTask(context.Context, int64, string, string) error {
	return nil
}

func (noopHistory) RecentTasks(context.Context, string, int) ([]contractx.TaskRecord, error) {
	return nil, nil
}
