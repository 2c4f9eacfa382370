package store

import (
	"context"
	"io"
	"time"

	"github.com/webitel/batch-sync/internal/model"
)

type Store interface {
	Tasks() TaskStore
	History() HistoryStore

	// ------------ Database Management ------------ //
	Open() error  // Return custom DB error
	Close() error // Return custom DB error
}

// TaskStore keeps the staging records of export and import tasks.
type TaskStore interface {
	AddExportTask(ctx context.Context, task *model.ExportTask) (*model.ExportTask, error)
	OpenExportContent(ctx context.Context, taskID int64) (io.ReadCloser, error)
	UpdateExportTaskStatus(ctx context.Context, taskID int64, status model.TaskStatus) error
	CompleteExportTask(ctx context.Context, taskID int64, content []byte, totalItems int64) error
	FailExportTask(ctx context.Context, taskID int64, message string) error
	DeleteExportTask(ctx context.Context, taskID int64) error
	PurgeEmptyExportTasks(ctx context.Context, before time.Time) (int64, error)

	AddImportTask(ctx context.Context, task *model.ImportTask) (*model.ImportTask, error)
	UpdateImportTaskStatus(ctx context.Context, taskID int64, status model.TaskStatus) error
	UpdateImportTaskProgress(ctx context.Context, taskID int64, processedItems int64) error
	CompleteImportTask(ctx context.Context, taskID int64, totalItems int64) error
	FailImportTask(ctx context.Context, taskID int64, message string) error
	DeleteImportTask(ctx context.Context, taskID int64) error
}

type HistoryStore interface {
	InsertSyncHistory(ctx context.Context, input *model.NewSyncHistory) (int64, error)
	UpdateSyncStatus(ctx context.Context, input *model.UpdateSyncStatus) error
	// LastSuccessfulSync returns the start of the latest done run, nil if none.
	LastSuccessfulSync(ctx context.Context, tenantID int64, direction model.Direction, resourceName string) (*time.Time, error)
}
