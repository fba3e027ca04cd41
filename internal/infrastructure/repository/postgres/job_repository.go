package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/medvoice/internal/core/domain"
)

const defaultClaimLease = time.Hour

type JobRepository struct {
	db         *sql.DB
	now        func() time.Time
	claimLease time.Duration
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{
		db:         db,
		now:        func() time.Time { return time.Now().UTC() },
		claimLease: defaultClaimLease,
	}
}

// WithClaimLease sets how long a claim holds. A pending job claimed longer
// ago than that belongs to a worker that died and can be claimed again.
func (r *JobRepository) WithClaimLease(lease time.Duration) *JobRepository {
	if lease > 0 {
		r.claimLease = lease
	}
	return r
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *JobRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	owner_id TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL,
	result JSONB,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);
CREATE INDEX IF NOT EXISTS idx_jobs_owner_created_at ON jobs(owner_id, created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO jobs (id, kind, owner_id, state, error_message, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, job.ID, string(job.Kind), job.OwnerID, string(job.State), job.Error, job.CreatedAt)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "insert job", err)
	}
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, kind, owner_id, state, result, error_message, created_at, started_at, finished_at
FROM jobs
WHERE id = $1
`, id)

	var (
		job        domain.Job
		kind       string
		state      string
		resultRaw  []byte
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)
	err := row.Scan(&job.ID, &kind, &job.OwnerID, &state, &resultRaw, &job.Error, &job.CreatedAt, &startedAt, &finishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrJobNotFound, "get job", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	job.Kind = domain.JobKind(kind)
	job.State = domain.JobState(state)
	if len(resultRaw) > 0 {
		var result domain.JobResult
		if err := json.Unmarshal(resultRaw, &result); err != nil {
			return nil, fmt.Errorf("unmarshal job result: %w", err)
		}
		job.Result = &result
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		job.FinishedAt = &t
	}
	return &job, nil
}

// Claim marks a pending job as started. Only one caller holds a claim
// until its lease runs out.
func (r *JobRepository) Claim(ctx context.Context, id string) error {
	now := r.now()
	res, err := r.db.ExecContext(ctx, `
UPDATE jobs
SET started_at = $2
WHERE id = $1 AND state = 'pending' AND (started_at IS NULL OR started_at < $3)
`, id, now, now.Add(-r.claimLease))
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	return r.requireTransition(ctx, res, id, "claim job")
}

func (r *JobRepository) MarkSucceeded(ctx context.Context, id string, result domain.JobResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal job result: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE jobs
SET state = 'success', result = $2, finished_at = $3
WHERE id = $1 AND state = 'pending'
`, id, payload, r.now())
	if err != nil {
		return fmt.Errorf("mark job succeeded: %w", err)
	}
	return r.requireTransition(ctx, res, id, "mark job succeeded")
}

func (r *JobRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE jobs
SET state = 'failure', error_message = $2, finished_at = $3
WHERE id = $1 AND state = 'pending'
`, id, reason, r.now())
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	return r.requireTransition(ctx, res, id, "mark job failed")
}

// requireTransition tells a missing job from one that already moved on
// when a conditional update touched no rows.
func (r *JobRepository) requireTransition(ctx context.Context, res sql.Result, id, operation string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("%s lookup: %w", operation, err)
	}
	if !exists {
		return domain.WrapError(domain.ErrJobNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return domain.WrapError(domain.ErrJobNotPending, operation, fmt.Errorf("id=%s", id))
}
