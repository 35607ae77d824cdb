// Package store persists canonical case records in PostgreSQL. Scalars and
// the structured blocks live on the cases row; parties, acts, history, and
// orders are child tables replaced wholesale on every refresh since the
// portal exposes no stable identifiers for them.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docket-cli/internal/db"
	"github.com/sells-group/docket-cli/internal/model"
	"github.com/sells-group/docket-cli/internal/storage"
)

// ErrNotFound is returned when a case id or CINO is unknown.
var ErrNotFound = eris.New("store: case not found")

// CaseStore provides read/write access to the cases tables.
type CaseStore struct {
	pool  db.Pool
	files storage.Storage
	log   *zap.Logger
}

// New creates a CaseStore. files is used to delete superseded order PDFs
// when a refresh replaces the order list.
func New(pool db.Pool, files storage.Storage) *CaseStore {
	return &CaseStore{
		pool:  pool,
		files: files,
		log:   zap.L().With(zap.String("component", "store")),
	}
}

const migration = `
CREATE TABLE IF NOT EXISTS cases (
	id                UUID PRIMARY KEY,
	workspace_id      UUID NOT NULL,
	cino              TEXT NOT NULL UNIQUE,
	title             TEXT NOT NULL DEFAULT '',
	internal_status   TEXT NOT NULL DEFAULT 'active',
	court             JSONB,
	summary           JSONB,
	details           JSONB,
	case_status       JSONB,
	meta              JSONB,
	next_hearing_date DATE,
	sync_status       TEXT NOT NULL DEFAULT 'never',
	sync_error        TEXT NOT NULL DEFAULT '',
	last_synced_at    TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS case_parties (
	case_id       UUID NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
	is_petitioner BOOLEAN NOT NULL,
	name          TEXT NOT NULL,
	advocate      TEXT NOT NULL DEFAULT '',
	raw_text      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS case_acts (
	case_id  UUID NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
	name     TEXT NOT NULL,
	sections TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS case_history (
	case_id       UUID NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
	business_date TEXT NOT NULL DEFAULT '',
	hearing_date  TEXT NOT NULL DEFAULT '',
	purpose       TEXT NOT NULL DEFAULT '',
	judge         TEXT NOT NULL DEFAULT '',
	notes         TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS case_orders (
	case_id      UUID NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
	order_no     TEXT NOT NULL DEFAULT '',
	order_date   TEXT NOT NULL DEFAULT '',
	details      TEXT NOT NULL DEFAULT '',
	pdf_filename TEXT NOT NULL DEFAULT '',
	file_path    TEXT NOT NULL DEFAULT '',
	file_size    BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_cases_workspace ON cases(workspace_id);
CREATE INDEX IF NOT EXISTS idx_cases_refresh ON cases(internal_status, next_hearing_date, last_synced_at);
CREATE INDEX IF NOT EXISTS idx_case_parties_case ON case_parties(case_id);
CREATE INDEX IF NOT EXISTS idx_case_acts_case ON case_acts(case_id);
CREATE INDEX IF NOT EXISTS idx_case_history_case ON case_history(case_id);
CREATE INDEX IF NOT EXISTS idx_case_orders_case ON case_orders(case_id);
`

// Migrate creates the case tables.
func (s *CaseStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, migration)
	return eris.Wrap(err, "store: migrate")
}

// Create registers a case by CNR for later refreshing.
func (s *CaseStore) Create(ctx context.Context, workspaceID uuid.UUID, cino string) (*model.CaseRecord, error) {
	rec := &model.CaseRecord{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		Case:        model.Case{CINO: cino, Title: cino},
		SyncStatus:  model.SyncNever,
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO cases (id, workspace_id, cino, title, sync_status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at`,
		rec.ID, rec.WorkspaceID, cino, rec.Case.Title, rec.SyncStatus,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "store: create case %s", cino)
	}
	return rec, nil
}

const caseSelect = `SELECT id, workspace_id, cino, title, internal_status,
	court, summary, details, case_status, meta,
	sync_status, sync_error, last_synced_at, created_at, updated_at
	FROM cases`

// GetByID loads a case record including its child rows.
func (s *CaseStore) GetByID(ctx context.Context, id uuid.UUID) (*model.CaseRecord, error) {
	rec, err := s.scanCase(s.pool.QueryRow(ctx, caseSelect+` WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := s.loadChildren(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetByCINO loads a case record by its CNR number.
func (s *CaseStore) GetByCINO(ctx context.Context, cino string) (*model.CaseRecord, error) {
	rec, err := s.scanCase(s.pool.QueryRow(ctx, caseSelect+` WHERE cino = $1`, cino))
	if err != nil {
		return nil, err
	}
	if err := s.loadChildren(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Candidate is a case eligible for a bulk refresh pass.
type Candidate struct {
	ID   uuid.UUID
	CINO string
}

// SelectRefreshCandidates returns active cases with a hearing due on or
// before today that have not been synced since staleBefore. Cases never
// synced always qualify.
func (s *CaseStore) SelectRefreshCandidates(ctx context.Context, workspaceID uuid.UUID, staleBefore time.Time) ([]Candidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, cino FROM cases
		 WHERE workspace_id = $1
		   AND internal_status = 'active'
		   AND next_hearing_date IS NOT NULL AND next_hearing_date <= CURRENT_DATE
		   AND (last_synced_at IS NULL OR last_synced_at < $2)
		 ORDER BY next_hearing_date ASC`,
		workspaceID, staleBefore,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: select refresh candidates")
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ID, &c.CINO); err != nil {
			return nil, eris.Wrap(err, "store: scan candidate")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate candidates")
}

// MarkSyncStatus updates only the sync bookkeeping columns.
func (s *CaseStore) MarkSyncStatus(ctx context.Context, id uuid.UUID, status, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE cases SET sync_status = $1, sync_error = $2, updated_at = now() WHERE id = $3`,
		status, errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "store: mark sync status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceFromScrape overwrites a case with a freshly scraped record: scalars
// are updated in place and every child table is wiped and reinserted. Old
// order PDFs superseded by the new order list are removed from file storage
// first; paths the new record still references are left alone, since the
// download step writes order PDFs to deterministic per-case paths and a
// re-refresh reuses them. File deletion failures are logged and do not block
// the refresh.
func (s *CaseStore) ReplaceFromScrape(ctx context.Context, id uuid.UUID, c *model.Case) error {
	keep := make(map[string]struct{}, len(c.Orders))
	for _, o := range c.Orders {
		if o.FilePath != "" {
			keep[o.FilePath] = struct{}{}
		}
	}
	s.deleteOldOrderFiles(ctx, id, keep)

	court, err := json.Marshal(c.Court)
	if err != nil {
		return eris.Wrap(err, "store: marshal court")
	}
	summary, err := json.Marshal(c.Summary)
	if err != nil {
		return eris.Wrap(err, "store: marshal summary")
	}
	details, err := json.Marshal(detailsBlock{Details: c.Details, FIR: c.FIR})
	if err != nil {
		return eris.Wrap(err, "store: marshal details")
	}
	status, err := json.Marshal(c.Status)
	if err != nil {
		return eris.Wrap(err, "store: marshal status")
	}
	meta, err := json.Marshal(c.Meta)
	if err != nil {
		return eris.Wrap(err, "store: marshal meta")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "store: begin replace")
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE cases SET
			title = $1, internal_status = $2,
			court = $3, summary = $4, details = $5, case_status = $6, meta = $7,
			next_hearing_date = $8,
			sync_status = $9, sync_error = '', last_synced_at = now(), updated_at = now()
		 WHERE id = $10`,
		c.Title, c.InternalStatus,
		court, summary, details, status, meta,
		isoDateOrNil(c.Status.NextHearingDate),
		model.SyncFresh, id,
	)
	if err != nil {
		return eris.Wrapf(err, "store: update case %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	for _, table := range []string{"case_parties", "case_acts", "case_history", "case_orders"} {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE case_id = $1`, id); err != nil {
			return eris.Wrapf(err, "store: clear %s", table)
		}
	}

	if err := insertChildren(ctx, tx, id, c); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "store: commit replace")
}

// detailsBlock keeps the FIR alongside the filing block in one JSONB column.
type detailsBlock struct {
	Details model.CaseDetails `json:"details"`
	FIR     *model.FIR        `json:"fir,omitempty"`
}

func insertChildren(ctx context.Context, tx pgx.Tx, id uuid.UUID, c *model.Case) error {
	partyRows := make([][]any, 0, len(c.Parties))
	for _, p := range c.Parties {
		partyRows = append(partyRows, []any{id, p.IsPetitioner, p.Name, p.Advocate, p.RawText})
	}
	if _, err := db.CopyFrom(ctx, tx, "case_parties",
		[]string{"case_id", "is_petitioner", "name", "advocate", "raw_text"}, partyRows); err != nil {
		return err
	}

	actRows := make([][]any, 0, len(c.Acts))
	for _, a := range c.Acts {
		actRows = append(actRows, []any{id, a.Name, a.Sections})
	}
	if _, err := db.CopyFrom(ctx, tx, "case_acts",
		[]string{"case_id", "name", "sections"}, actRows); err != nil {
		return err
	}

	historyRows := make([][]any, 0, len(c.History))
	for _, h := range c.History {
		historyRows = append(historyRows, []any{id, h.BusinessDate, h.HearingDate, h.Purpose, h.Judge, h.Notes})
	}
	if _, err := db.CopyFrom(ctx, tx, "case_history",
		[]string{"case_id", "business_date", "hearing_date", "purpose", "judge", "notes"}, historyRows); err != nil {
		return err
	}

	orderRows := make([][]any, 0, len(c.Orders))
	for _, o := range c.Orders {
		orderRows = append(orderRows, []any{id, o.Number, o.Date, o.Details, o.PDFFilename, o.FilePath, o.FileSize})
	}
	if _, err := db.CopyFrom(ctx, tx, "case_orders",
		[]string{"case_id", "order_no", "order_date", "details", "pdf_filename", "file_path", "file_size"}, orderRows); err != nil {
		return err
	}
	return nil
}

func (s *CaseStore) deleteOldOrderFiles(ctx context.Context, id uuid.UUID, keep map[string]struct{}) {
	rows, err := s.pool.Query(ctx,
		`SELECT file_path FROM case_orders WHERE case_id = $1 AND file_path <> ''`, id)
	if err != nil {
		s.log.Warn("failed to list old order files", zap.String("case_id", id.String()), zap.Error(err))
		return
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			s.log.Warn("failed to scan order file path", zap.Error(err))
			return
		}
		if _, ok := keep[p]; ok {
			continue
		}
		paths = append(paths, p)
	}
	for _, p := range paths {
		if err := s.files.Delete(ctx, p); err != nil {
			s.log.Warn("failed to delete old order pdf", zap.String("path", p), zap.Error(err))
		}
	}
}

func (s *CaseStore) scanCase(row pgx.Row) (*model.CaseRecord, error) {
	var rec model.CaseRecord
	var court, summary, details, status, meta []byte

	err := row.Scan(
		&rec.ID, &rec.WorkspaceID, &rec.Case.CINO, &rec.Case.Title, &rec.Case.InternalStatus,
		&court, &summary, &details, &status, &meta,
		&rec.SyncStatus, &rec.SyncError, &rec.LastSyncedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "store: scan case")
	}

	if court != nil {
		if err := json.Unmarshal(court, &rec.Case.Court); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal court")
		}
	}
	if summary != nil {
		if err := json.Unmarshal(summary, &rec.Case.Summary); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal summary")
		}
	}
	if details != nil {
		var block detailsBlock
		if err := json.Unmarshal(details, &block); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal details")
		}
		rec.Case.Details = block.Details
		rec.Case.FIR = block.FIR
	}
	if status != nil {
		if err := json.Unmarshal(status, &rec.Case.Status); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal status")
		}
	}
	if meta != nil {
		if err := json.Unmarshal(meta, &rec.Case.Meta); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal meta")
		}
	}
	return &rec, nil
}

func (s *CaseStore) loadChildren(ctx context.Context, rec *model.CaseRecord) error {
	id := rec.ID

	rows, err := s.pool.Query(ctx,
		`SELECT is_petitioner, name, advocate, raw_text FROM case_parties WHERE case_id = $1`, id)
	if err != nil {
		return eris.Wrap(err, "store: load parties")
	}
	for rows.Next() {
		var p model.Party
		if err := rows.Scan(&p.IsPetitioner, &p.Name, &p.Advocate, &p.RawText); err != nil {
			rows.Close()
			return eris.Wrap(err, "store: scan party")
		}
		rec.Case.Parties = append(rec.Case.Parties, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return eris.Wrap(err, "store: iterate parties")
	}

	rows, err = s.pool.Query(ctx,
		`SELECT name, sections FROM case_acts WHERE case_id = $1`, id)
	if err != nil {
		return eris.Wrap(err, "store: load acts")
	}
	for rows.Next() {
		var a model.Act
		if err := rows.Scan(&a.Name, &a.Sections); err != nil {
			rows.Close()
			return eris.Wrap(err, "store: scan act")
		}
		rec.Case.Acts = append(rec.Case.Acts, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return eris.Wrap(err, "store: iterate acts")
	}

	rows, err = s.pool.Query(ctx,
		`SELECT business_date, hearing_date, purpose, judge, notes FROM case_history WHERE case_id = $1`, id)
	if err != nil {
		return eris.Wrap(err, "store: load history")
	}
	for rows.Next() {
		var h model.HistoryEntry
		if err := rows.Scan(&h.BusinessDate, &h.HearingDate, &h.Purpose, &h.Judge, &h.Notes); err != nil {
			rows.Close()
			return eris.Wrap(err, "store: scan history")
		}
		rec.Case.History = append(rec.Case.History, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return eris.Wrap(err, "store: iterate history")
	}

	rows, err = s.pool.Query(ctx,
		`SELECT order_no, order_date, details, pdf_filename, file_path, file_size FROM case_orders WHERE case_id = $1`, id)
	if err != nil {
		return eris.Wrap(err, "store: load orders")
	}
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.Number, &o.Date, &o.Details, &o.PDFFilename, &o.FilePath, &o.FileSize); err != nil {
			rows.Close()
			return eris.Wrap(err, "store: scan order")
		}
		rec.Case.Orders = append(rec.Case.Orders, o)
	}
	rows.Close()
	return eris.Wrap(rows.Err(), "store: iterate orders")
}

// isoDateOrNil converts a normalized ISO date string for the denormalized
// next_hearing_date column; non-ISO or empty values map to NULL.
func isoDateOrNil(value string) any {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil
	}
	return t
}
