package executor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/webitel/batch-sync/internal/model"
)

// ExportExecutor runs export tasks to completion. Failures of the delegate
// are reported through the FAILED status; only store failures are returned
// as errors.
type ExportExecutor struct {
	registry *Registry
	store    Store
	log      *slog.Logger
}

func NewExportExecutor(registry *Registry, store Store, log *slog.Logger) *ExportExecutor {
	if log == nil {
		log = slog.Default()
	}
	return &ExportExecutor{registry: registry, store: store, log: log}
}

func (e *ExportExecutor) Execute(ctx context.Context, task *model.ExportTask) (model.TaskResult, error) {
	if err := e.store.UpdateExportTaskStatus(ctx, task.ID, model.TaskStatusInProgress); err != nil {
		return model.TaskResult{}, err
	}

	content, total, runErr := e.run(ctx, task)
	if runErr != nil {
		e.log.ErrorContext(ctx, "batch_sync.executor.export_failed",
			slog.Int64("task_id", task.ID),
			slog.String("resource", task.ResourceName),
			slog.String("error", runErr.Error()),
		)
		if err := e.store.FailExportTask(ctx, task.ID, runErr.Error()); err != nil {
			return model.TaskResult{}, err
		}
		return model.TaskResult{TaskID: task.ID, Status: model.TaskStatusFailed, Error: runErr.Error()}, nil
	}

	if err := e.store.CompleteExportTask(ctx, task.ID, content, total); err != nil {
		return model.TaskResult{}, err
	}
	return model.TaskResult{TaskID: task.ID, Status: model.TaskStatusCompleted, TotalItems: total}, nil
}

func (e *ExportExecutor) run(ctx context.Context, task *model.ExportTask) ([]byte, int64, error) {
	if task.ContentType != model.ContentTypeJSONL {
		return nil, 0, fmt.Errorf("unsupported content type %q", task.ContentType)
	}
	delegate, err := e.registry.Export(task.DelegateName)
	if err != nil {
		return nil, 0, err
	}

	scope := ExportScope{TenantID: task.TenantID, UserID: task.UserID, ResourceName: task.ResourceName}
	if expr, ok := task.Parameters[model.FilterParameter]; ok && expr != "" {
		f, err := model.ParseFilter(expr)
		if err != nil {
			return nil, 0, err
		}
		scope.Filter = &f
	}

	var (
		buf   bytes.Buffer
		total int64
	)
	err = delegate.Export(ctx, scope, func(record []byte) error {
		line, err := project(record, task.FieldNames)
		if err != nil {
			return err
		}
		buf.Write(line)
		buf.WriteByte('\n')
		total++
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), total, nil
}

// project keeps only the top level fieldNames of record, in the given order.
// An empty selection keeps the record as is.
func project(record []byte, fieldNames []string) ([]byte, error) {
	if !gjson.ValidBytes(record) {
		return nil, fmt.Errorf("delegate produced invalid JSON: %.64s", record)
	}
	if len(fieldNames) == 0 {
		return pretty.Ugly(record), nil
	}

	paths := make([]string, len(fieldNames))
	for i, name := range fieldNames {
		paths[i] = gjson.Escape(name)
	}
	results := gjson.GetManyBytes(record, paths...)
	var buf bytes.Buffer
	buf.WriteByte('{')
	written := 0
	for i, name := range fieldNames {
		if !results[i].Exists() {
			continue
		}
		if written > 0 {
			buf.WriteByte(',')
		}
		key, _ := marshalString(name)
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(results[i].Raw)
		written++
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
