package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/docket-cli/internal/model"
)

type fakeFiles struct {
	deleted []string
	failOn  string
}

func (f *fakeFiles) Save(ctx context.Context, path string, data []byte) (string, error) {
	return path, nil
}

func (f *fakeFiles) Read(ctx context.Context, path string) ([]byte, error) {
	return nil, eris.New("not implemented")
}

func (f *fakeFiles) Delete(ctx context.Context, path string) error {
	if path == f.failOn {
		return eris.New("disk error")
	}
	f.deleted = append(f.deleted, path)
	return nil
}

func newTestStore(t *testing.T) (*CaseStore, pgxmock.PgxPoolIface, *fakeFiles) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	files := &fakeFiles{}
	return New(mock, files), mock, files
}

func sampleCase() *model.Case {
	return &model.Case{
		CINO:           "MHPU010012342023",
		Title:          "Ramesh Kumar vs State of Maharashtra",
		InternalStatus: "active",
		Status: model.CaseStatus{
			StatusText:      "Pending",
			NextHearingDate: "2026-09-15",
		},
		Parties: []model.Party{
			{IsPetitioner: true, Name: "Ramesh Kumar", Advocate: "Adv. Joshi"},
			{IsPetitioner: false, Name: "State of Maharashtra"},
		},
		Acts: []model.Act{{Name: "Indian Penal Code", Sections: "420"}},
		History: []model.HistoryEntry{
			{BusinessDate: "2026-08-01", HearingDate: "2026-09-15", Purpose: "Evidence", Judge: "Civil Judge", Notes: "Adjourned"},
		},
		Orders: []model.Order{
			{Number: "1", Date: "2026-07-10", Details: "Interim order", PDFFilename: "order.pdf", FilePath: "MHPU010012342023/order_1.pdf", FileSize: 2048},
		},
		Meta: model.Meta{Source: "ecourts"},
	}
}

func caseColumns() []string {
	return []string{
		"id", "workspace_id", "cino", "title", "internal_status",
		"court", "summary", "details", "case_status", "meta",
		"sync_status", "sync_error", "last_synced_at", "created_at", "updated_at",
	}
}

func caseRow(t *testing.T, id, workspaceID uuid.UUID, c *model.Case) *pgxmock.Rows {
	t.Helper()
	court, err := json.Marshal(c.Court)
	require.NoError(t, err)
	summary, err := json.Marshal(c.Summary)
	require.NoError(t, err)
	details, err := json.Marshal(detailsBlock{Details: c.Details, FIR: c.FIR})
	require.NoError(t, err)
	status, err := json.Marshal(c.Status)
	require.NoError(t, err)
	meta, err := json.Marshal(c.Meta)
	require.NoError(t, err)

	now := time.Now()
	return pgxmock.NewRows(caseColumns()).AddRow(
		id, workspaceID, c.CINO, c.Title, c.InternalStatus,
		court, summary, details, status, meta,
		model.SyncFresh, "", &now, now, now,
	)
}

func TestCreate(t *testing.T) {
	s, mock, _ := newTestStore(t)
	workspaceID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO cases`).
		WithArgs(pgxmock.AnyArg(), workspaceID, "MHPU010012342023", "MHPU010012342023", model.SyncNever).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	rec, err := s.Create(context.Background(), workspaceID, "MHPU010012342023")
	require.NoError(t, err)
	assert.Equal(t, "MHPU010012342023", rec.Case.CINO)
	assert.Equal(t, model.SyncNever, rec.SyncStatus)
	assert.NotEqual(t, uuid.Nil, rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByCINO(t *testing.T) {
	s, mock, _ := newTestStore(t)
	id := uuid.New()
	workspaceID := uuid.New()
	c := sampleCase()

	mock.ExpectQuery(`FROM cases WHERE cino`).
		WithArgs(c.CINO).
		WillReturnRows(caseRow(t, id, workspaceID, c))
	mock.ExpectQuery(`FROM case_parties`).WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"is_petitioner", "name", "advocate", "raw_text"}).
			AddRow(true, "Ramesh Kumar", "Adv. Joshi", "").
			AddRow(false, "State of Maharashtra", "", ""))
	mock.ExpectQuery(`FROM case_acts`).WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"name", "sections"}).
			AddRow("Indian Penal Code", "420"))
	mock.ExpectQuery(`FROM case_history`).WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"business_date", "hearing_date", "purpose", "judge", "notes"}).
			AddRow("2026-08-01", "2026-09-15", "Evidence", "Civil Judge", "Adjourned"))
	mock.ExpectQuery(`FROM case_orders`).WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"order_no", "order_date", "details", "pdf_filename", "file_path", "file_size"}).
			AddRow("1", "2026-07-10", "Interim order", "order.pdf", "MHPU010012342023/order_1.pdf", int64(2048)))

	rec, err := s.GetByCINO(context.Background(), c.CINO)
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, "Ramesh Kumar vs State of Maharashtra", rec.Case.Title)
	assert.Equal(t, "2026-09-15", rec.Case.Status.NextHearingDate)
	require.Len(t, rec.Case.Parties, 2)
	assert.True(t, rec.Case.Parties[0].IsPetitioner)
	require.Len(t, rec.Case.Acts, 1)
	assert.Equal(t, "420", rec.Case.Acts[0].Sections)
	require.Len(t, rec.Case.History, 1)
	assert.Equal(t, "Adjourned", rec.Case.History[0].Notes)
	require.Len(t, rec.Case.Orders, 1)
	assert.Equal(t, int64(2048), rec.Case.Orders[0].FileSize)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDNotFound(t *testing.T) {
	s, mock, _ := newTestStore(t)
	id := uuid.New()

	mock.ExpectQuery(`FROM cases WHERE id`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectRefreshCandidates(t *testing.T) {
	s, mock, _ := newTestStore(t)
	workspaceID := uuid.New()
	staleBefore := time.Now().Add(-12 * time.Hour)
	id1, id2 := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT id, cino FROM cases`).
		WithArgs(workspaceID, staleBefore).
		WillReturnRows(pgxmock.NewRows([]string{"id", "cino"}).
			AddRow(id1, "MHPU010012342023").
			AddRow(id2, "DLHC010099882024"))

	got, err := s.SelectRefreshCandidates(context.Background(), workspaceID, staleBefore)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Candidate{ID: id1, CINO: "MHPU010012342023"}, got[0])
	assert.Equal(t, Candidate{ID: id2, CINO: "DLHC010099882024"}, got[1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSyncStatus(t *testing.T) {
	s, mock, _ := newTestStore(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE cases SET sync_status`).
		WithArgs(model.SyncInProgress, "", id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.MarkSyncStatus(context.Background(), id, model.SyncInProgress, ""))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSyncStatusUnknownCase(t *testing.T) {
	s, mock, _ := newTestStore(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE cases SET sync_status`).
		WithArgs(model.SyncError, "portal timeout", id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.MarkSyncStatus(context.Background(), id, model.SyncError, "portal timeout")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceFromScrape(t *testing.T) {
	s, mock, files := newTestStore(t)
	id := uuid.New()
	c := sampleCase()

	mock.ExpectQuery(`SELECT file_path FROM case_orders`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"file_path"}).
			AddRow("MHPU010012342023/order_1.pdf").
			AddRow("MHPU010012342023/order_2.pdf"))

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE cases SET`).
		WithArgs(c.Title, c.InternalStatus,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
			model.SyncFresh, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	for _, table := range []string{"case_parties", "case_acts", "case_history", "case_orders"} {
		mock.ExpectExec(`DELETE FROM ` + table).
			WithArgs(id).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
	}
	mock.ExpectCopyFrom(pgx.Identifier{"case_parties"},
		[]string{"case_id", "is_petitioner", "name", "advocate", "raw_text"}).
		WillReturnResult(2)
	mock.ExpectCopyFrom(pgx.Identifier{"case_acts"},
		[]string{"case_id", "name", "sections"}).
		WillReturnResult(1)
	mock.ExpectCopyFrom(pgx.Identifier{"case_history"},
		[]string{"case_id", "business_date", "hearing_date", "purpose", "judge", "notes"}).
		WillReturnResult(1)
	mock.ExpectCopyFrom(pgx.Identifier{"case_orders"},
		[]string{"case_id", "order_no", "order_date", "details", "pdf_filename", "file_path", "file_size"}).
		WillReturnResult(1)
	mock.ExpectCommit()

	require.NoError(t, s.ReplaceFromScrape(context.Background(), id, c))
	assert.Equal(t, []string{"MHPU010012342023/order_2.pdf"}, files.deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A re-refresh rewrites order PDFs to the same per-case paths before the
// store runs, so the previous rows reference the files the engine just wrote.
// Those paths must survive the cleanup of superseded files.
func TestReplaceFromScrapeKeepsRewrittenOrderFiles(t *testing.T) {
	s, mock, files := newTestStore(t)
	id := uuid.New()
	c := sampleCase()
	c.Parties = nil
	c.Acts = nil
	c.History = nil

	mock.ExpectQuery(`SELECT file_path FROM case_orders`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"file_path"}).
			AddRow(c.Orders[0].FilePath))

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE cases SET`).
		WithArgs(c.Title, c.InternalStatus,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), model.SyncFresh, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	for _, table := range []string{"case_parties", "case_acts", "case_history", "case_orders"} {
		mock.ExpectExec(`DELETE FROM ` + table).
			WithArgs(id).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
	}
	mock.ExpectCopyFrom(pgx.Identifier{"case_orders"},
		[]string{"case_id", "order_no", "order_date", "details", "pdf_filename", "file_path", "file_size"}).
		WillReturnResult(1)
	mock.ExpectCommit()

	require.NoError(t, s.ReplaceFromScrape(context.Background(), id, c))
	assert.Empty(t, files.deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceFromScrapeUnknownCase(t *testing.T) {
	s, mock, _ := newTestStore(t)
	id := uuid.New()
	c := sampleCase()

	mock.ExpectQuery(`SELECT file_path FROM case_orders`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"file_path"}))

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE cases SET`).
		WithArgs(c.Title, c.InternalStatus,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), model.SyncFresh, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := s.ReplaceFromScrape(context.Background(), id, c)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceFromScrapeFileDeleteFailureNonFatal(t *testing.T) {
	s, mock, files := newTestStore(t)
	files.failOn = "MHPU010012342023/order_1.pdf"
	id := uuid.New()
	c := sampleCase()
	c.Parties = nil
	c.Acts = nil
	c.History = nil
	c.Orders = nil

	mock.ExpectQuery(`SELECT file_path FROM case_orders`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"file_path"}).
			AddRow("MHPU010012342023/order_1.pdf"))

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE cases SET`).
		WithArgs(c.Title, c.InternalStatus,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), model.SyncFresh, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	for _, table := range []string{"case_parties", "case_acts", "case_history", "case_orders"} {
		mock.ExpectExec(`DELETE FROM ` + table).
			WithArgs(id).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
	}
	mock.ExpectCommit()

	require.NoError(t, s.ReplaceFromScrape(context.Background(), id, c))
	assert.Empty(t, files.deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsoDateOrNil(t *testing.T) {
	assert.Nil(t, isoDateOrNil(""))
	assert.Nil(t, isoDateOrNil("15-09-2026"))
	assert.Equal(t, time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC), isoDateOrNil("2026-09-15"))
}
