package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/webitel/batch-sync/internal/model"
)

// ImportExecutor runs import tasks to completion, handing records to the
// delegate in batches of the task's batch size.
type ImportExecutor struct {
	registry *Registry
	store    Store
	log      *slog.Logger
}

func NewImportExecutor(registry *Registry, store Store, log *slog.Logger) *ImportExecutor {
	if log == nil {
		log = slog.Default()
	}
	return &ImportExecutor{registry: registry, store: store, log: log}
}

func (e *ImportExecutor) Execute(ctx context.Context, task *model.ImportTask) (model.TaskResult, error) {
	if err := e.store.UpdateImportTaskStatus(ctx, task.ID, model.TaskStatusInProgress); err != nil {
		return model.TaskResult{}, err
	}

	total, runErr := e.run(ctx, task)
	if runErr != nil {
		e.log.ErrorContext(ctx, "batch_sync.executor.import_failed",
			slog.Int64("task_id", task.ID),
			slog.String("resource", task.ResourceName),
			slog.Int64("processed", total),
			slog.String("error", runErr.Error()),
		)
		if err := e.store.FailImportTask(ctx, task.ID, runErr.Error()); err != nil {
			return model.TaskResult{}, err
		}
		return model.TaskResult{TaskID: task.ID, Status: model.TaskStatusFailed, TotalItems: total, Error: runErr.Error()}, nil
	}

	if err := e.store.CompleteImportTask(ctx, task.ID, total); err != nil {
		return model.TaskResult{}, err
	}
	return model.TaskResult{TaskID: task.ID, Status: model.TaskStatusCompleted, TotalItems: total}, nil
}

func (e *ImportExecutor) run(ctx context.Context, task *model.ImportTask) (int64, error) {
	if task.ContentType != model.ContentTypeJSONL {
		return 0, fmt.Errorf("unsupported content type %q", task.ContentType)
	}
	if task.Operation != model.OperationCreate {
		return 0, fmt.Errorf("unsupported operation %q", task.Operation)
	}
	delegate, err := e.registry.Import(task.DelegateName)
	if err != nil {
		return 0, err
	}

	size := task.BatchSize
	if size <= 0 {
		size = model.DefaultImportBatchSize
	}
	scope := ImportScope{
		TenantID:     task.TenantID,
		UserID:       task.UserID,
		ResourceName: task.ResourceName,
		Operation:    task.Operation,
	}

	var (
		batch     = make([][]byte, 0, size)
		processed int64
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := delegate.Create(ctx, scope, batch); err != nil {
			return err
		}
		processed += int64(len(batch))
		batch = make([][]byte, 0, size)
		return e.store.UpdateImportTaskProgress(ctx, task.ID, processed)
	}

	err = eachLine(task.Content, func(n int, line []byte) error {
		if !gjson.ValidBytes(line) {
			return fmt.Errorf("line %d: invalid JSON", n)
		}
		record, err := remap(line, task.FieldMapping)
		if err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		batch = append(batch, record)
		if len(batch) >= size {
			return flush()
		}
		return nil
	})
	if err != nil {
		return processed, err
	}
	if err := flush(); err != nil {
		return processed, err
	}
	return processed, nil
}
