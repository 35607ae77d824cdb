// Package ledger tracks bulk refresh jobs in the database. The job row is
// the crash-recovery record: counters are incremented atomically as workers
// finish cases, and any job still marked running at startup is folded into
// an aborted terminal state.
package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/docket-cli/internal/db"
	"github.com/sells-group/docket-cli/internal/model"
)

// ErrNotFound is returned when a job id is unknown.
var ErrNotFound = eris.New("ledger: job not found")

// Ledger provides read/write access to the refresh_jobs table.
type Ledger struct {
	pool db.Pool
}

// New creates a Ledger backed by the given connection pool.
func New(pool db.Pool) *Ledger {
	return &Ledger{pool: pool}
}

const migration = `
CREATE TABLE IF NOT EXISTS refresh_jobs (
	id              UUID PRIMARY KEY,
	workspace_id    UUID NOT NULL,
	total_cases     INT NOT NULL,
	completed_cases INT NOT NULL DEFAULT 0,
	failed_cases    INT NOT NULL DEFAULT 0,
	status          TEXT NOT NULL DEFAULT 'queued',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_refresh_jobs_workspace ON refresh_jobs(workspace_id);
CREATE INDEX IF NOT EXISTS idx_refresh_jobs_status ON refresh_jobs(status);
`

// Migrate creates the ledger table.
func (l *Ledger) Migrate(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, migration)
	return eris.Wrap(err, "ledger: migrate")
}

// Create inserts a running job for totalCases cases and returns it.
func (l *Ledger) Create(ctx context.Context, workspaceID uuid.UUID, totalCases int) (*model.RefreshJob, error) {
	job := &model.RefreshJob{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		TotalCases:  totalCases,
		Status:      model.JobRunning,
	}
	if totalCases == 0 {
		job.Status = model.JobCompleted
	}

	err := l.pool.QueryRow(ctx,
		`INSERT INTO refresh_jobs (id, workspace_id, total_cases, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		job.ID, job.WorkspaceID, job.TotalCases, string(job.Status),
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: create job")
	}
	return job, nil
}

// Get returns one job by id.
func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (*model.RefreshJob, error) {
	row := l.pool.QueryRow(ctx,
		`SELECT id, workspace_id, total_cases, completed_cases, failed_cases, status, created_at, updated_at
		 FROM refresh_jobs WHERE id = $1`,
		id,
	)
	job, err := scanJob(row)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

// Active returns jobs still in flight, most recent first.
func (l *Ledger) Active(ctx context.Context) ([]model.RefreshJob, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, workspace_id, total_cases, completed_cases, failed_cases, status, created_at, updated_at
		 FROM refresh_jobs WHERE status IN ('queued', 'running')
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: list active")
	}
	defer rows.Close()

	var jobs []model.RefreshJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "ledger: iterate active")
}

// RecordResult counts one finished case against the job with an atomic SQL
// increment, then re-reads the counters and finalizes the job when every
// case is accounted for. Safe under concurrent workers: the increment never
// loses an update, and the completion check is idempotent.
func (l *Ledger) RecordResult(ctx context.Context, id uuid.UUID, succeeded bool) (*model.RefreshJob, error) {
	column := "completed_cases"
	if !succeeded {
		column = "failed_cases"
	}

	row := l.pool.QueryRow(ctx,
		`UPDATE refresh_jobs
		 SET `+column+` = `+column+` + 1, updated_at = now()
		 WHERE id = $1
		 RETURNING id, workspace_id, total_cases, completed_cases, failed_cases, status, created_at, updated_at`,
		id,
	)
	job, err := scanJob(row)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if job.Done() && job.Status == model.JobRunning {
		_, err := l.pool.Exec(ctx,
			`UPDATE refresh_jobs SET status = $1, updated_at = now()
			 WHERE id = $2 AND status = $3`,
			string(model.JobCompleted), id, string(model.JobRunning),
		)
		if err != nil {
			return nil, eris.Wrap(err, "ledger: finalize job")
		}
		job.Status = model.JobCompleted
	}
	return job, nil
}

// AbortRunning finalizes every queued or running job: the unaccounted
// remainder is folded into the failed count and the job is marked aborted.
// Called at startup (crash recovery) and on graceful shutdown. Returns the
// number of jobs aborted.
func (l *Ledger) AbortRunning(ctx context.Context) (int, error) {
	tag, err := l.pool.Exec(ctx,
		`UPDATE refresh_jobs
		 SET failed_cases = failed_cases + (total_cases - completed_cases - failed_cases),
		     status = $1, updated_at = now()
		 WHERE status IN ('queued', 'running')`,
		string(model.JobAborted),
	)
	if err != nil {
		return 0, eris.Wrap(err, "ledger: abort running jobs")
	}
	return int(tag.RowsAffected()), nil
}

func scanJob(row pgx.Row) (*model.RefreshJob, error) {
	var job model.RefreshJob
	var status string
	err := row.Scan(
		&job.ID, &job.WorkspaceID,
		&job.TotalCases, &job.CompletedCases, &job.FailedCases,
		&status, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "ledger: scan job")
	}
	job.Status = model.JobStatus(status)
	return &job, nil
}
