package postgres

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dberr "github.com/webitel/batch-sync/internal/errors"
	"github.com/webitel/batch-sync/internal/model"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewWithDB(mock), mock
}

func TestTasks_AddExportTask(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO batch_sync.export_task").
		WithArgs(
			int64(7),
			int64(11),
			"Blog",
			model.ContentTypeJSONL,
			model.TaskStatusInitial,
			[]byte(`["id","title"]`),
			[]byte(`{"filter":"modified_sortable ge 1"}`),
			"blog",
		).
		WillReturnRows(mock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(42), now, now))

	task, err := s.Tasks().AddExportTask(context.Background(), &model.ExportTask{
		TenantID:     7,
		UserID:       11,
		ResourceName: "Blog",
		ContentType:  model.ContentTypeJSONL,
		Status:       model.TaskStatusInitial,
		FieldNames:   []string{"id", "title"},
		Parameters:   map[string]string{"filter": "modified_sortable ge 1"},
		DelegateName: "blog",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(42), task.ID)
	assert.Equal(t, "Blog", task.ResourceName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTasks_AddImportTaskUniqueViolation(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO batch_sync.import_task").
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate", ConstraintName: "import_task_pkey"})

	_, err := s.Tasks().AddImportTask(context.Background(), &model.ImportTask{ResourceName: "Blog"})

	var unique *dberr.DBUniqueViolationError
	require.ErrorAs(t, err, &unique)
	assert.Equal(t, "import_task_pkey", unique.Column)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTasks_OpenExportContent(t *testing.T) {
	t.Run("returns staged content", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("SELECT content FROM batch_sync.export_task WHERE id = \\$1").
			WithArgs(int64(3)).
			WillReturnRows(mock.NewRows([]string{"content"}).AddRow([]byte("{\"id\":1}\n")))

		rc, err := s.Tasks().OpenExportContent(context.Background(), 3)
		require.NoError(t, err)
		defer rc.Close()

		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "{\"id\":1}\n", string(b))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing task", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("SELECT content FROM batch_sync.export_task").
			WithArgs(int64(3)).
			WillReturnError(pgx.ErrNoRows)

		_, err := s.Tasks().OpenExportContent(context.Background(), 3)
		assert.True(t, dberr.IsNotFound(err))
	})
}

func TestTasks_CompleteExportTask(t *testing.T) {
	s, mock := newMockStore(t)
	content := []byte("{}\n")
	mock.ExpectExec("UPDATE batch_sync.export_task").
		WithArgs(model.TaskStatusCompleted, content, int64(1), int64(9)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.Tasks().CompleteExportTask(context.Background(), 9, content, 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTasks_DeleteMissingTask(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM batch_sync.import_task").
		WithArgs(int64(9)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.Tasks().DeleteImportTask(context.Background(), 9)
	assert.True(t, dberr.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTasks_PurgeEmptyExportTasks(t *testing.T) {
	s, mock := newMockStore(t)
	before := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("DELETE FROM batch_sync.export_task WHERE status = \\$1 AND total_items = 0 AND updated_at < \\$2").
		WithArgs(model.TaskStatusCompleted, before).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	purged, err := s.Tasks().PurgeEmptyExportTasks(context.Background(), before)
	require.NoError(t, err)
	assert.Equal(t, int64(3), purged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTasks_PurgeEmptyExportTasksNothingToPurge(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM batch_sync.export_task").
		WithArgs(model.TaskStatusCompleted, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	purged, err := s.Tasks().PurgeEmptyExportTasks(context.Background(), time.Now())
	require.NoError(t, err, "an empty purge is not a missing task")
	assert.Zero(t, purged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DatabaseNotOpened(t *testing.T) {
	s := New(nil)

	_, err := s.Tasks().OpenExportContent(context.Background(), 1)
	assert.Error(t, err)
}
