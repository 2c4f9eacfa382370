package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5"

	dberr "github.com/webitel/batch-sync/internal/errors"
	"github.com/webitel/batch-sync/internal/model"
	"github.com/webitel/batch-sync/internal/store"
)

type Tasks struct {
	storage *Store
}

func NewTaskStore(store *Store) (store.TaskStore, error) {
	if store == nil {
		return nil, dberr.NewDBInternalError("new_task_store", errors.New("store is nil"))
	}
	return &Tasks{storage: store}, nil
}

// ------------ export ------------ //

func (t *Tasks) AddExportTask(ctx context.Context, task *model.ExportTask) (*model.ExportTask, error) {
	db, err := t.storage.Database()
	if err != nil {
		return nil, dberr.NewDBInternalError("add_export_task", err)
	}
	fieldNames, parameters, err := encodeJSON(task.FieldNames, task.Parameters)
	if err != nil {
		return nil, dberr.NewDBInternalError("add_export_task", err)
	}

	query := `
		INSERT INTO batch_sync.export_task
			(tenant_id, user_id, resource_name, content_type, status, field_names, parameters, delegate_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING id, created_at, updated_at
	`
	out := *task
	err = db.QueryRow(ctx, query,
		task.TenantID,
		task.UserID,
		task.ResourceName,
		task.ContentType,
		task.Status,
		fieldNames,
		parameters,
		task.DelegateName,
	).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, mapError("add_export_task", err)
	}
	return &out, nil
}

func (t *Tasks) OpenExportContent(ctx context.Context, taskID int64) (io.ReadCloser, error) {
	db, err := t.storage.Database()
	if err != nil {
		return nil, dberr.NewDBInternalError("open_export_content", err)
	}

	var content []byte
	err = db.QueryRow(ctx, `SELECT content FROM batch_sync.export_task WHERE id = $1`, taskID).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, dberr.NewDBNotFoundError("open_export_content", fmt.Sprintf("no export task found for id=%d", taskID))
	}
	if err != nil {
		return nil, mapError("open_export_content", err)
	}
	if content == nil {
		return nil, dberr.NewDBNotFoundError("open_export_content", fmt.Sprintf("export task id=%d has no content", taskID))
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (t *Tasks) UpdateExportTaskStatus(ctx context.Context, taskID int64, status model.TaskStatus) error {
	return t.exec(ctx, "update_export_task_status",
		`UPDATE batch_sync.export_task SET status = $1, updated_at = now() WHERE id = $2`,
		status, taskID)
}

func (t *Tasks) CompleteExportTask(ctx context.Context, taskID int64, content []byte, totalItems int64) error {
	return t.exec(ctx, "complete_export_task",
		`UPDATE batch_sync.export_task
		SET status = $1, content = $2, total_items = $3, error_message = '', updated_at = now()
		WHERE id = $4`,
		model.TaskStatusCompleted, content, totalItems, taskID)
}

func (t *Tasks) FailExportTask(ctx context.Context, taskID int64, message string) error {
	return t.exec(ctx, "fail_export_task",
		`UPDATE batch_sync.export_task SET status = $1, error_message = $2, updated_at = now() WHERE id = $3`,
		model.TaskStatusFailed, message, taskID)
}

func (t *Tasks) DeleteExportTask(ctx context.Context, taskID int64) error {
	return t.exec(ctx, "delete_export_task",
		`DELETE FROM batch_sync.export_task WHERE id = $1`, taskID)
}

// PurgeEmptyExportTasks removes completed export tasks that staged no items
// and were last touched before the given time. Such rows are never uploaded
// and nothing else deletes them.
func (t *Tasks) PurgeEmptyExportTasks(ctx context.Context, before time.Time) (int64, error) {
	db, err := t.storage.Database()
	if err != nil {
		return 0, dberr.NewDBInternalError("purge_empty_export_tasks", err)
	}
	cmd, err := db.Exec(ctx,
		`DELETE FROM batch_sync.export_task WHERE status = $1 AND total_items = 0 AND updated_at < $2`,
		model.TaskStatusCompleted, before)
	if err != nil {
		return 0, mapError("purge_empty_export_tasks", err)
	}
	return cmd.RowsAffected(), nil
}

// ------------ import ------------ //

func (t *Tasks) AddImportTask(ctx context.Context, task *model.ImportTask) (*model.ImportTask, error) {
	db, err := t.storage.Database()
	if err != nil {
		return nil, dberr.NewDBInternalError("add_import_task", err)
	}
	fieldMapping, parameters, err := encodeJSON(task.FieldMapping, task.Parameters)
	if err != nil {
		return nil, dberr.NewDBInternalError("add_import_task", err)
	}

	query := `
		INSERT INTO batch_sync.import_task
			(tenant_id, user_id, batch_size, resource_name, content, content_type, status,
			 field_mapping, operation, parameters, delegate_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		RETURNING id, created_at, updated_at
	`
	out := *task
	err = db.QueryRow(ctx, query,
		task.TenantID,
		task.UserID,
		task.BatchSize,
		task.ResourceName,
		task.Content,
		task.ContentType,
		task.Status,
		fieldMapping,
		task.Operation,
		parameters,
		task.DelegateName,
	).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, mapError("add_import_task", err)
	}
	return &out, nil
}

func (t *Tasks) UpdateImportTaskStatus(ctx context.Context, taskID int64, status model.TaskStatus) error {
	return t.exec(ctx, "update_import_task_status",
		`UPDATE batch_sync.import_task SET status = $1, updated_at = now() WHERE id = $2`,
		status, taskID)
}

func (t *Tasks) UpdateImportTaskProgress(ctx context.Context, taskID int64, processedItems int64) error {
	return t.exec(ctx, "update_import_task_progress",
		`UPDATE batch_sync.import_task SET processed_items = $1, updated_at = now() WHERE id = $2`,
		processedItems, taskID)
}

func (t *Tasks) CompleteImportTask(ctx context.Context, taskID int64, totalItems int64) error {
	return t.exec(ctx, "complete_import_task",
		`UPDATE batch_sync.import_task
		SET status = $1, total_items = $2, processed_items = $2, error_message = '', updated_at = now()
		WHERE id = $3`,
		model.TaskStatusCompleted, totalItems, taskID)
}

func (t *Tasks) FailImportTask(ctx context.Context, taskID int64, message string) error {
	return t.exec(ctx, "fail_import_task",
		`UPDATE batch_sync.import_task SET status = $1, error_message = $2, updated_at = now() WHERE id = $3`,
		model.TaskStatusFailed, message, taskID)
}

func (t *Tasks) DeleteImportTask(ctx context.Context, taskID int64) error {
	return t.exec(ctx, "delete_import_task",
		`DELETE FROM batch_sync.import_task WHERE id = $1`, taskID)
}

// exec runs a statement that must touch exactly the task row named by its last argument.
func (t *Tasks) exec(ctx context.Context, op, query string, args ...any) error {
	db, err := t.storage.Database()
	if err != nil {
		return dberr.NewDBInternalError(op, err)
	}
	cmd, err := db.Exec(ctx, query, args...)
	if err != nil {
		return mapError(op, err)
	}
	if cmd.RowsAffected() == 0 {
		return dberr.NewDBNotFoundError(op, fmt.Sprintf("no task found for id=%v", args[len(args)-1]))
	}
	return nil
}

func encodeJSON(a, b any) ([]byte, []byte, error) {
	first, err := json.Marshal(a)
	if err != nil {
		return nil, nil, err
	}
	second, err := json.Marshal(b)
	if err != nil {
		return nil, nil, err
	}
	return first, second, nil
}

func decodeJSON(raw []byte, target any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, target)
}
