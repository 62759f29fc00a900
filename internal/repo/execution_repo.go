package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Taskq/internal/domain"
)

const executionsSchema = `
	CREATE TABLE IF NOT EXISTS taskq_executions (
		id          UUID PRIMARY KEY,
		envelope_id TEXT        NOT NULL,
		task        TEXT        NOT NULL,
		queue       TEXT        NOT NULL,
		args        JSONB       NOT NULL DEFAULT '[]',
		kwargs      JSONB       NOT NULL DEFAULT '{}',
		outcome     TEXT        NOT NULL,
		action      TEXT        NOT NULL,
		error       TEXT,
		worker      TEXT        NOT NULL,
		started_at  TIMESTAMPTZ NOT NULL,
		duration_ms BIGINT      NOT NULL
	);
	CREATE INDEX IF NOT EXISTS taskq_executions_started_at_idx ON taskq_executions (started_at DESC);
	CREATE INDEX IF NOT EXISTS taskq_executions_task_idx ON taskq_executions (task, started_at DESC);
`

// ExecutionRepo — журнал обработанных envelope.
type ExecutionRepo struct {
	pool *pgxpool.Pool
}

// NewExecutionRepo создаёт новый ExecutionRepo.
func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

// EnsureSchema создаёт таблицу журнала, если её нет.
func (r *ExecutionRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, executionsSchema); err != nil {
		return fmt.Errorf("create executions schema: %w", err)
	}
	return nil
}

// Record добавляет запись журнала.
func (r *ExecutionRepo) Record(ctx context.Context, e domain.Execution) error {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		id = uuid.New()
	}

	argsJSON, err := json.Marshal(e.Args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	kwargsJSON, err := json.Marshal(e.Kwargs)
	if err != nil {
		return fmt.Errorf("marshal kwargs: %w", err)
	}

	query := `
		INSERT INTO taskq_executions
			(id, envelope_id, task, queue, args, kwargs, outcome, action, error, worker, started_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.pool.Exec(ctx, query,
		id,
		e.EnvelopeID,
		e.Task,
		e.Queue,
		argsJSON,
		kwargsJSON,
		e.Outcome.String(),
		e.Action,
		nullString(e.Error),
		e.Worker,
		e.StartedAt,
		e.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// ExecutionFilter — фильтр для ListRecent.
type ExecutionFilter struct {
	Task    string
	Outcome string
	Limit   int
}

// ListRecent возвращает последние записи, новые первыми.
func (r *ExecutionRepo) ListRecent(ctx context.Context, filter ExecutionFilter) ([]domain.Execution, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 50
	}

	query := `
		SELECT id, envelope_id, task, queue, args, kwargs, outcome, action,
		       error, worker, started_at, duration_ms
		FROM taskq_executions
		WHERE ($1::text IS NULL OR task = $1)
		  AND ($2::text IS NULL OR outcome = $2)
		ORDER BY started_at DESC
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(filter.Task),
		nullString(filter.Outcome),
		filter.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	executions := []domain.Execution{}
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, *e)
	}
	return executions, rows.Err()
}

// GetByID возвращает запись по ID.
func (r *ExecutionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	query := `
		SELECT id, envelope_id, task, queue, args, kwargs, outcome, action,
		       error, worker, started_at, duration_ms
		FROM taskq_executions
		WHERE id = $1
	`
	e, err := scanExecution(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// scanExecution сканирует одну строку в Execution.
func scanExecution(row pgx.Row) (*domain.Execution, error) {
	var e domain.Execution
	var id uuid.UUID
	var argsJSON, kwargsJSON []byte
	var outcome string
	var execError *string
	var durationMS int64

	err := row.Scan(
		&id,
		&e.EnvelopeID,
		&e.Task,
		&e.Queue,
		&argsJSON,
		&kwargsJSON,
		&outcome,
		&e.Action,
		&execError,
		&e.Worker,
		&e.StartedAt,
		&durationMS,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}

	if err := json.Unmarshal(argsJSON, &e.Args); err != nil {
		return nil, fmt.Errorf("unmarshal args: %w", err)
	}
	if err := json.Unmarshal(kwargsJSON, &e.Kwargs); err != nil {
		return nil, fmt.Errorf("unmarshal kwargs: %w", err)
	}

	e.ID = id.String()
	e.Outcome = domain.ParseOutcome(outcome)
	e.Duration = time.Duration(durationMS) * time.Millisecond
	if execError != nil {
		e.Error = *execError
	}
	return &e, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
