package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/docket-cli/internal/model"
)

var jobColumns = []string{
	"id", "workspace_id", "total_cases", "completed_cases", "failed_cases",
	"status", "created_at", "updated_at",
}

func jobRow(mock pgxmock.PgxPoolIface, id, ws uuid.UUID, total, completed, failed int, status string) *pgxmock.Rows {
	now := time.Now()
	return mock.NewRows(jobColumns).
		AddRow(id, ws, total, completed, failed, status, now, now)
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return mock
}

func TestMigrate(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS refresh_jobs").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, New(mock).Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate(t *testing.T) {
	mock := newMock(t)
	ws := uuid.New()
	now := time.Now()

	mock.ExpectQuery("INSERT INTO refresh_jobs").
		WithArgs(pgxmock.AnyArg(), ws, 5, "running").
		WillReturnRows(mock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	job, err := New(mock).Create(context.Background(), ws, 5)
	require.NoError(t, err)
	assert.Equal(t, ws, job.WorkspaceID)
	assert.Equal(t, 5, job.TotalCases)
	assert.Equal(t, model.JobRunning, job.Status)
	assert.Equal(t, 5, job.Remaining())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEmptyJobCompletesImmediately(t *testing.T) {
	mock := newMock(t)
	ws := uuid.New()
	now := time.Now()

	mock.ExpectQuery("INSERT INTO refresh_jobs").
		WithArgs(pgxmock.AnyArg(), ws, 0, "completed").
		WillReturnRows(mock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	job, err := New(mock).Create(context.Background(), ws, 0)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, job.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet(t *testing.T) {
	mock := newMock(t)
	id, ws := uuid.New(), uuid.New()

	mock.ExpectQuery("FROM refresh_jobs WHERE id").
		WithArgs(id).
		WillReturnRows(jobRow(mock, id, ws, 10, 4, 1, "running"))

	job, err := New(mock).Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 10, job.TotalCases)
	assert.Equal(t, 4, job.CompletedCases)
	assert.Equal(t, 5, job.Remaining())
	assert.False(t, job.Done())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNotFound(t *testing.T) {
	mock := newMock(t)
	id := uuid.New()

	mock.ExpectQuery("FROM refresh_jobs WHERE id").
		WithArgs(id).
		WillReturnRows(mock.NewRows(jobColumns))

	_, err := New(mock).Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActive(t *testing.T) {
	mock := newMock(t)
	ws := uuid.New()
	now := time.Now()

	rows := mock.NewRows(jobColumns).
		AddRow(uuid.New(), ws, 5, 1, 0, "running", now, now).
		AddRow(uuid.New(), ws, 3, 0, 0, "queued", now, now)
	mock.ExpectQuery("FROM refresh_jobs WHERE status IN").
		WillReturnRows(rows)

	jobs, err := New(mock).Active(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, model.JobRunning, jobs[0].Status)
	assert.Equal(t, model.JobQueued, jobs[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordResultSuccessIncrement(t *testing.T) {
	mock := newMock(t)
	id, ws := uuid.New(), uuid.New()

	mock.ExpectQuery("UPDATE refresh_jobs\\s+SET completed_cases = completed_cases \\+ 1").
		WithArgs(id).
		WillReturnRows(jobRow(mock, id, ws, 5, 2, 1, "running"))

	job, err := New(mock).RecordResult(context.Background(), id, true)
	require.NoError(t, err)
	assert.Equal(t, 2, job.CompletedCases)
	assert.Equal(t, model.JobRunning, job.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordResultFailureIncrement(t *testing.T) {
	mock := newMock(t)
	id, ws := uuid.New(), uuid.New()

	mock.ExpectQuery("UPDATE refresh_jobs\\s+SET failed_cases = failed_cases \\+ 1").
		WithArgs(id).
		WillReturnRows(jobRow(mock, id, ws, 5, 1, 1, "running"))

	job, err := New(mock).RecordResult(context.Background(), id, false)
	require.NoError(t, err)
	assert.Equal(t, 1, job.FailedCases)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Five cases with two failures: the last recorded result finalizes the job
// as completed with counters 3/2.
func TestRecordResultFinalizesJob(t *testing.T) {
	mock := newMock(t)
	id, ws := uuid.New(), uuid.New()

	mock.ExpectQuery("UPDATE refresh_jobs\\s+SET completed_cases = completed_cases \\+ 1").
		WithArgs(id).
		WillReturnRows(jobRow(mock, id, ws, 5, 3, 2, "running"))
	mock.ExpectExec("UPDATE refresh_jobs SET status").
		WithArgs("completed", id, "running").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	job, err := New(mock).RecordResult(context.Background(), id, true)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, job.Status)
	assert.Equal(t, 3, job.CompletedCases)
	assert.Equal(t, 2, job.FailedCases)
	assert.True(t, job.Done())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordResultUnknownJob(t *testing.T) {
	mock := newMock(t)
	id := uuid.New()

	mock.ExpectQuery("UPDATE refresh_jobs").
		WithArgs(id).
		WillReturnRows(mock.NewRows(jobColumns))

	_, err := New(mock).RecordResult(context.Background(), id, true)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A job interrupted at 10 total with 4 completed and 1 failed is folded to
// aborted with failed = 6 on recovery.
func TestAbortRunning(t *testing.T) {
	mock := newMock(t)

	mock.ExpectExec("UPDATE refresh_jobs\\s+SET failed_cases = failed_cases \\+ \\(total_cases - completed_cases - failed_cases\\)").
		WithArgs("aborted").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	n, err := New(mock).AbortRunning(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAbortRunningNothingToDo(t *testing.T) {
	mock := newMock(t)

	mock.ExpectExec("UPDATE refresh_jobs").
		WithArgs("aborted").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	n, err := New(mock).AbortRunning(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
