package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/bcrosbie/agentforge/internal/domain"
)

type PostgresJournal struct {
	db *sql.DB
}

const (
	defaultDBMaxOpenConns    = 10
	defaultDBMaxIdleConns    = 5
	defaultDBConnMaxLifetime = 30 * time.Minute
	defaultDBConnMaxIdleTime = 5 * time.Minute
	defaultDBPingTimeout     = 5 * time.Second
)

func NewPostgresJournal(dsn string) (*PostgresJournal, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, domain.InvalidArgument("DATABASE_URL is required when JOURNAL_DRIVER=postgres")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, domain.Internal("failed to open postgres connection", err)
	}
	db.SetMaxOpenConns(defaultDBMaxOpenConns)
	db.SetMaxIdleConns(defaultDBMaxIdleConns)
	db.SetConnMaxLifetime(defaultDBConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultDBConnMaxIdleTime)

	return &PostgresJournal{db: db}, nil
}

func (j *PostgresJournal) Load(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, defaultDBPingTimeout)
	defer cancel()
	if err := j.db.PingContext(pingCtx); err != nil {
		return domain.Internal("failed to connect to postgres", err)
	}
	return j.ensureSchema(ctx)
}

func (j *PostgresJournal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *PostgresJournal) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS agent_runs (
			run_id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			agent_type TEXT NOT NULL,
			task_type TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			step_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			duration_ms BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS agent_runs_started_at_idx ON agent_runs (started_at DESC)`,
		`CREATE INDEX IF NOT EXISTS agent_runs_agent_id_idx ON agent_runs (agent_id)`,
	}
	for _, statement := range statements {
		if _, err := j.db.ExecContext(ctx, statement); err != nil {
			return domain.Internal("failed to prepare journal schema", err)
		}
	}
	return nil
}

func (j *PostgresJournal) Append(ctx context.Context, record domain.RunRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO agent_runs (
			run_id, agent_id, agent_type, task_type, description, status,
			step_count, last_error, started_at, finished_at, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id) DO NOTHING
	`, record.RunID, record.AgentID, string(record.AgentType), record.TaskType, record.Description, record.Status,
		record.StepCount, record.Error, record.StartedAt.UTC(), record.FinishedAt.UTC(), record.DurationMS)
	if err != nil {
		return domain.Internal("failed to insert run", err)
	}
	return nil
}

func (j *PostgresJournal) List(ctx context.Context, filter RunFilter) ([]domain.RunRecord, error) {
	query, args := buildListQuery(filter)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.Internal("failed to list runs", err)
	}
	defer rows.Close()

	items := []domain.RunRecord{}
	for rows.Next() {
		var item domain.RunRecord
		var agentType string
		if err := rows.Scan(
			&item.RunID,
			&item.AgentID,
			&agentType,
			&item.TaskType,
			&item.Description,
			&item.Status,
			&item.StepCount,
			&item.Error,
			&item.StartedAt,
			&item.FinishedAt,
			&item.DurationMS,
		); err != nil {
			return nil, domain.Internal("failed to decode run row", err)
		}
		item.AgentType = domain.AgentType(agentType)
		item.StartedAt = item.StartedAt.UTC()
		item.FinishedAt = item.FinishedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal("failed to iterate run rows", err)
	}
	return items, nil
}

func buildListQuery(filter RunFilter) (string, []any) {
	query := `
		SELECT run_id, agent_id, agent_type, task_type, description, status,
		       step_count, last_error, started_at, finished_at, duration_ms
		FROM agent_runs
	`
	args := []any{}
	conditions := []string{}

	if strings.TrimSpace(filter.AgentID) != "" {
		args = append(args, strings.TrimSpace(filter.AgentID))
		conditions = append(conditions, fmt.Sprintf("agent_id = $%d", len(args)))
	}
	if strings.TrimSpace(filter.TaskType) != "" {
		args = append(args, strings.TrimSpace(filter.TaskType))
		conditions = append(conditions, fmt.Sprintf("task_type = $%d", len(args)))
	}
	if strings.TrimSpace(filter.Status) != "" {
		args = append(args, strings.TrimSpace(filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY started_at DESC, run_id DESC "
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d ", len(args))
	}
	return query, args
}
