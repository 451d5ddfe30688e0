package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/registrar/internal/records"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const (
	sqlCreateOutcomes = `
        CREATE TABLE IF NOT EXISTS run_outcomes (
            id           UUID PRIMARY KEY,
            run_id       TEXT NOT NULL,
            row_number   INTEGER NOT NULL,
            final_status TEXT NOT NULL,
            email_used   TEXT NOT NULL DEFAULT '',
            error_detail TEXT NOT NULL DEFAULT '',
            recorded_at  TIMESTAMPTZ NOT NULL
        );
    `
	sqlInsertOutcome = `
        INSERT INTO run_outcomes (id, run_id, row_number, final_status, email_used, error_detail, recorded_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7);
    `
	sqlRecentOutcomes = `
        SELECT run_id, row_number, final_status, email_used, error_detail, recorded_at
        FROM run_outcomes
        ORDER BY recorded_at DESC
        LIMIT $1;
    `
)

// Entry is one journaled outcome.
type Entry struct {
	RunID      string
	Outcome    records.RunOutcome
	RecordedAt time.Time
}

// Journal appends run outcomes to PostgreSQL. The sheet stays the source of
// truth; the journal keeps history the sheet overwrites.
type Journal struct {
	pool DBPool
	log  *zap.Logger
	now  func() time.Time
}

// New creates a journal and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Journal, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Journal{
		pool: pool,
		log:  logger.Named("journal"),
		now:  time.Now,
	}, nil
}

// EnsureSchema creates the outcomes table when missing.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.pool.Exec(ctx, sqlCreateOutcomes); err != nil {
		return fmt.Errorf("failed to create run_outcomes table: %w", err)
	}
	return nil
}

// Record appends one outcome.
func (j *Journal) Record(ctx context.Context, runID string, outcome records.RunOutcome) error {
	_, err := j.pool.Exec(ctx, sqlInsertOutcome,
		uuid.NewString(),
		runID,
		outcome.RowNumber,
		string(outcome.FinalStatus),
		outcome.EmailUsed,
		outcome.ErrorDetail,
		j.now().UTC(),
	)
	if err != nil {
		j.log.Error("Failed to journal outcome.", zap.Int("row", outcome.RowNumber), zap.Error(err))
		return fmt.Errorf("failed to insert outcome for row %d: %w", outcome.RowNumber, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.pool.Query(ctx, sqlRecentOutcomes, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e      Entry
			status string
		)
		if err := rows.Scan(&e.RunID, &e.Outcome.RowNumber, &status, &e.Outcome.EmailUsed, &e.Outcome.ErrorDetail, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}
		e.Outcome.FinalStatus = records.Status(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcome rows: %w", err)
	}
	return entries, nil
}
