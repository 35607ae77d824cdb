// Package refresh runs bulk case refreshes: a bounded worker pool drives the
// scrape flow for each case, persists the results, and keeps a durable job
// ledger so progress survives inspection and restarts.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/docket-cli/internal/model"
	"github.com/sells-group/docket-cli/internal/store"
)

// Engine produces a fresh case record from the portal. Satisfied by
// flow.Controller.
type Engine interface {
	Refresh(ctx context.Context, cino string) (*model.Case, error)
}

// Cases is the slice of the case store the orchestrator needs.
type Cases interface {
	SelectRefreshCandidates(ctx context.Context, workspaceID uuid.UUID, staleBefore time.Time) ([]store.Candidate, error)
	MarkSyncStatus(ctx context.Context, id uuid.UUID, status, errMsg string) error
	ReplaceFromScrape(ctx context.Context, id uuid.UUID, c *model.Case) error
}

// JobLedger tracks bulk job progress.
type JobLedger interface {
	Create(ctx context.Context, workspaceID uuid.UUID, totalCases int) (*model.RefreshJob, error)
	RecordResult(ctx context.Context, id uuid.UUID, succeeded bool) (*model.RefreshJob, error)
	AbortRunning(ctx context.Context) (int, error)
}

// Orchestrator fans case refreshes out across a bounded worker pool.
type Orchestrator struct {
	cases   Cases
	jobs    JobLedger
	engine  Engine
	workers int
	log     *zap.Logger
}

// New creates an Orchestrator. workers caps concurrent portal sessions;
// values below 1 are treated as 1.
func New(cases Cases, jobs JobLedger, engine Engine, workers int) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		cases:   cases,
		jobs:    jobs,
		engine:  engine,
		workers: workers,
		log:     zap.L().With(zap.String("component", "refresh")),
	}
}

// Run refreshes the given cases under a new ledger job and returns the
// finished job. Individual case failures are recorded against the job and
// never abort the remaining cases; only context cancellation stops the pool
// early.
func (o *Orchestrator) Run(ctx context.Context, workspaceID uuid.UUID, candidates []store.Candidate) (*model.RefreshJob, error) {
	job, err := o.jobs.Create(ctx, workspaceID, len(candidates))
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return job, nil
	}

	o.log.Info("starting bulk refresh",
		zap.String("job_id", job.ID.String()),
		zap.Int("cases", len(candidates)),
		zap.Int("workers", o.workers))

	jobID := job.ID
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for _, cand := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ok := o.refreshOne(gctx, cand)

			updated, err := o.jobs.RecordResult(context.WithoutCancel(gctx), jobID, ok)
			if err != nil {
				return eris.Wrapf(err, "refresh: record result for %s", cand.CINO)
			}
			mu.Lock()
			if updated.Remaining() < job.Remaining() {
				job = updated
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return job, err
	}

	o.log.Info("bulk refresh finished",
		zap.String("job_id", job.ID.String()),
		zap.Int("completed", job.CompletedCases),
		zap.Int("failed", job.FailedCases))
	return job, nil
}

// RunAll selects every stale case in the workspace and refreshes them.
func (o *Orchestrator) RunAll(ctx context.Context, workspaceID uuid.UUID, staleBefore time.Time) (*model.RefreshJob, error) {
	candidates, err := o.cases.SelectRefreshCandidates(ctx, workspaceID, staleBefore)
	if err != nil {
		return nil, err
	}
	return o.Run(ctx, workspaceID, candidates)
}

// Recover marks jobs left running by a previous crash as aborted. Call at
// startup before accepting new work.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	n, err := o.jobs.AbortRunning(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		o.log.Warn("aborted stale refresh jobs", zap.Int("jobs", n))
	}
	return n, nil
}

// refreshOne scrapes and persists a single case, reporting success. All
// failures are captured on the case row rather than returned.
func (o *Orchestrator) refreshOne(ctx context.Context, cand store.Candidate) bool {
	log := o.log.With(zap.String("cino", cand.CINO))

	if err := o.cases.MarkSyncStatus(ctx, cand.ID, model.SyncInProgress, ""); err != nil {
		log.Error("failed to mark case in progress", zap.Error(err))
		return false
	}

	c, err := o.engine.Refresh(ctx, cand.CINO)
	if err != nil {
		log.Warn("case refresh failed", zap.Error(err))
		o.markError(ctx, cand, err)
		return false
	}

	if err := o.cases.ReplaceFromScrape(ctx, cand.ID, c); err != nil {
		log.Error("failed to persist refreshed case", zap.Error(err))
		o.markError(ctx, cand, err)
		return false
	}

	log.Info("case refreshed", zap.String("status", c.Status.StatusText))
	return true
}

func (o *Orchestrator) markError(ctx context.Context, cand store.Candidate, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := o.cases.MarkSyncStatus(ctx, cand.ID, model.SyncError, eris.Cause(cause).Error()); err != nil {
		o.log.Error("failed to record sync error",
			zap.String("cino", cand.CINO), zap.Error(err))
	}
}
