package executor

import (
	"context"

	"github.com/webitel/batch-sync/internal/model"
)

// Store persists task progress while an executor runs.
type Store interface {
	UpdateExportTaskStatus(ctx context.Context, taskID int64, status model.TaskStatus) error
	CompleteExportTask(ctx context.Context, taskID int64, content []byte, totalItems int64) error
	FailExportTask(ctx context.Context, taskID int64, message string) error

	UpdateImportTaskStatus(ctx context.Context, taskID int64, status model.TaskStatus) error
	UpdateImportTaskProgress(ctx context.Context, taskID int64, processedItems int64) error
	CompleteImportTask(ctx context.Context, taskID int64, totalItems int64) error
	FailImportTask(ctx context.Context, taskID int64, message string) error
}
