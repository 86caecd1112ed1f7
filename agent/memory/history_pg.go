package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
	statex "github.com/tanpawarit/Chative-Desktop-Agent/agent/state"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

var ErrTaskNotFound = errors.New("task not found")

type messageRow struct {
	bun.BaseModel `bun:"table:agent_messages,alias:m"`

	ID        int64     `bun:"id,pk,autoincrement"`
	SessionID string    `bun:"session_id,notnull"`
	Role      string    `bun:"role,notnull"`
	Content   string    `bun:"content,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

type taskRow struct {
	bun.BaseModel `bun:"table:agent_tasks,alias:t"`

	ID        int64     `bun:"id,pk,autoincrement"`
	SessionID string    `bun:"session_id,notnull"`
	Goal      string    `bun:"goal,notnull"`
	Plan      string    `bun:"plan,type:jsonb"`
	Status    string    `bun:"status,notnull"`
	Result    string    `bun:"result"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

type factRow struct {
	bun.BaseModel `bun:"table:agent_facts,alias:f"`

	ID        string    `bun:"id,pk"`
	SessionID string    `bun:"session_id,notnull"`
	Content   string    `bun:"content,notnull"`
	Source    string    `bun:"source"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

type PostgresConfig struct {
	DSN     string        `envconfig:"DSN"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s"`
}

var (
	_ contractx.History = (*PostgresHistory)(nil)
	_ Log               = (*PostgresHistory)(nil)
)

// PostgresHistory keeps messages, tasks and facts in Postgres through bun.
type PostgresHistory struct {
	db  *bun.DB
	now func() time.Time
}

func NewPostgresHistory(ctx context.Context, cfg PostgresConfig) (*PostgresHistory, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres dsn is required", contractx.ErrValidation)
	}
	opts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
	if cfg.Timeout > 0 {
		opts = append(opts, pgdriver.WithTimeout(cfg.Timeout))
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(opts...))
	db := bun.NewDB(sqldb, pgdialect.New())

	h := &PostgresHistory{db: db, now: time.Now}
	if err := h.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return h, nil
}

func (h *PostgresHistory) migrate(ctx context.Context) error {
	for _, model := range []any{(*messageRow)(nil), (*taskRow)(nil), (*factRow)(nil)} {
		if _, err := h.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	// Fact tables created before facts were session-scoped lack the column.
	_, err := h.db.NewAddColumn().
		Model((*factRow)(nil)).
		ColumnExpr("session_id TEXT NOT NULL DEFAULT ''").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("add fact session column: %w", err)
	}
	indexes := []struct {
		model   any
		name    string
		columns []string
	}{
		{model: (*messageRow)(nil), name: "agent_messages_session_idx", columns: []string{"session_id", "id"}},
		{model: (*factRow)(nil), name: "agent_facts_session_idx", columns: []string{"session_id", "created_at"}},
	}
	for _, idx := range indexes {
		_, err := h.db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}

func (h *PostgresHistory) Close() error {
	return h.db.Close()
}

func (h *PostgresHistory) AddMessage(ctx context.Context, sessionID string, msg *schema.Message) error {
	if msg == nil {
		return nil
	}
	row := &messageRow{
		SessionID: sessionID,
		Role:      string(msg.Role),
		Content:   msg.Content,
		CreatedAt: h.now().UTC(),
	}
	if _, err := h.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (h *PostgresHistory) RecentMessages(ctx context.Context, sessionID string, limit int) ([]*schema.Message, error) {
	var rows []messageRow
	err := h.db.NewSelect().
		Model(&rows).
		Where("session_id = ?", sessionID).
		OrderExpr("id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	return messagesOldestFirst(rows), nil
}

func (h *PostgresHistory) CreateTask(ctx context.Context, sessionID, goal string, plan *statex.Plan) (int64, error) {
	raw, err := json.Marshal(plan.Descriptions())
	if err != nil {
		return 0, fmt.Errorf("encode plan: %w", err)
	}
	now := h.now().UTC()
	row := &taskRow{
		SessionID: sessionID,
		Goal:      goal,
		Plan:      string(raw),
		Status:    "pending",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := h.db.NewInsert().Model(row).Returning("id").Exec(ctx); err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	return row.ID, nil
}

func (h *PostgresHistory) UpdateTask(ctx context.Context, taskID int64, status, result string) error {
	res, err := h.db.NewUpdate().
		Model((*taskRow)(nil)).
		Set("status = ?", status).
		Set("result = ?", result).
		Set("updated_at = ?", h.now().UTC()).
		Where("id = ?", taskID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", ErrTaskNotFound, taskID)
	}
	return nil
}

func (h *PostgresHistory) RecentTasks(ctx context.Context, sessionID string, limit int) ([]contractx.TaskRecord, error) {
	var rows []taskRow
	err := h.db.NewSelect().
		Model(&rows).
		Where("session_id = ?", sessionID).
		OrderExpr("id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select tasks: %w", err)
	}
	out := make([]contractx.TaskRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, contractx.TaskRecord{
			ID:        r.ID,
			SessionID: r.SessionID,
			Goal:      r.Goal,
			Status:    r.Status,
			Result:    r.Result,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

func (h *PostgresHistory) AddFact(ctx context.Context, fact contractx.Fact) error {
	row := &factRow{ID: fact.ID, SessionID: fact.SessionID, Content: fact.Content, Source: fact.Source, CreatedAt: fact.CreatedAt}
	if _, err := h.db.NewInsert().Model(row).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("insert fact: %w", err)
	}
	return nil
}

// SearchFacts is the keyword fallback used when no vector index is available.
func (h *PostgresHistory) SearchFacts(ctx context.Context, sessionID, query string, k int) ([]contractx.Fact, error) {
	terms := keywords(query)
	if len(terms) == 0 {
		return nil, nil
	}
	var rows []factRow
	q := h.db.NewSelect().Model(&rows).Where("session_id = ?", sessionID).WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
		for _, t := range terms {
			q = q.WhereOr("content ILIKE ?", "%"+t+"%")
		}
		return q
	})
	if err := q.OrderExpr("created_at DESC").Limit(k).Scan(ctx); err != nil {
		return nil, fmt.Errorf("select facts: %w", err)
	}
	out := make([]contractx.Fact, 0, len(rows))
	for _, r := range rows {
		out = append(out, contractx.Fact{ID: r.ID, SessionID: r.SessionID, Content: r.Content, Source: r.Source, CreatedAt: r.CreatedAt})
	}
	return out, nil
}

func messagesOldestFirst(rows []messageRow) []*schema.Message {
	out := make([]*schema.Message, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out, &schema.Message{Role: schema.RoleType(rows[i].Role), Content: rows[i].Content})
	}
	return out
}
