package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/docket-cli/internal/config"
	"github.com/sells-group/docket-cli/internal/db"
	"github.com/sells-group/docket-cli/internal/flow"
	"github.com/sells-group/docket-cli/internal/ledger"
	"github.com/sells-group/docket-cli/internal/ocr"
	"github.com/sells-group/docket-cli/internal/resilience"
	"github.com/sells-group/docket-cli/internal/session"
	"github.com/sells-group/docket-cli/internal/storage"
	"github.com/sells-group/docket-cli/internal/store"
	"github.com/sells-group/docket-cli/pkg/portal"
)

// newFlowController wires the scrape flow. Every portal client built for a
// session shares one circuit breaker and one rate limiter, so a portal
// outage or throttle applies across concurrent sessions.
func newFlowController(ctx context.Context, cfg *config.Config) (*flow.Controller, func(), error) {
	sessions, err := session.NewSQLite(cfg.Session.Path)
	if err != nil {
		return nil, nil, err
	}
	if err := sessions.Migrate(ctx); err != nil {
		sessions.Close()
		return nil, nil, err
	}
	if _, err := sessions.Sweep(ctx); err != nil {
		sessions.Close()
		return nil, nil, err
	}

	files, err := storage.NewLocal(cfg.Storage.Root)
	if err != nil {
		sessions.Close()
		return nil, nil, err
	}

	solver, err := ocr.NewSolver(cfg.OCR)
	if err != nil {
		sessions.Close()
		return nil, nil, err
	}

	breaker := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig())
	limiter := rate.NewLimiter(rate.Limit(cfg.Portal.RateLimit), cfg.Portal.RateBurst)
	newPortal := func() (flow.Portal, error) {
		p, err := portal.New(cfg.Portal, portal.WithBreaker(breaker), portal.WithLimiter(limiter))
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	ctrl := flow.NewController(sessions, newPortal, solver, files, flow.Options{
		SessionTTL:    cfg.Session.TTL(),
		MaxAttempts:   cfg.Refresh.MaxAttempts,
		OCRMinLength:  cfg.OCR.MinLength,
		PortalBaseURL: cfg.Portal.BaseURL,
	})
	return ctrl, func() { sessions.Close() }, nil
}

// newPersistence connects Postgres and builds the case store and job ledger.
func newPersistence(ctx context.Context, cfg *config.Config) (*store.CaseStore, *ledger.Ledger, *pgxpool.Pool, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, nil, nil, eris.New("store.database_url is not configured")
	}
	pool, err := db.Connect(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}

	files, err := storage.NewLocal(cfg.Storage.Root)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}

	return store.New(pool, files), ledger.New(pool), pool, nil
}
