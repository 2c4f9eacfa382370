package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/grpc/codes"

	"github.com/webitel/batch-sync/internal/errors"
	"github.com/webitel/batch-sync/internal/model"
)

// ErrTaskNotCompleted is wrapped by every error raised because a batch task
// finished in a status other than COMPLETED.
var ErrTaskNotCompleted = errors.New("batch task did not complete")

// Notifier receives human readable progress messages. A nil Notifier is valid.
type Notifier func(ctx context.Context, message string) error

type TaskStore interface {
	AddExportTask(ctx context.Context, task *model.ExportTask) (*model.ExportTask, error)
	OpenExportContent(ctx context.Context, taskID int64) (io.ReadCloser, error)
	DeleteExportTask(ctx context.Context, taskID int64) error
	AddImportTask(ctx context.Context, task *model.ImportTask) (*model.ImportTask, error)
	DeleteImportTask(ctx context.Context, taskID int64) error
}

type ExportExecutor interface {
	Execute(ctx context.Context, task *model.ExportTask) (model.TaskResult, error)
}

type ImportExecutor interface {
	Execute(ctx context.Context, task *model.ImportTask) (model.TaskResult, error)
}

// BatchClient moves JSONL content to and from the remote analytics service.
// Download returns ok=false when nothing changed since the given time.
type BatchClient interface {
	Upload(ctx context.Context, tenantID int64, content io.Reader, resourceName string, mode model.TransferMode) error
	Download(ctx context.Context, tenantID int64, since *time.Time, resourceName string) (body io.ReadCloser, ok bool, err error)
}

type ExportRequest struct {
	DelegateName string
	TenantID     int64
	FieldNames   []string
	Notify       Notifier
	LastModified *time.Time
	ResourceName string
	UserID       int64
}

type ImportRequest struct {
	DelegateName string
	TenantID     int64
	FieldMapping map[string]string
	Notify       Notifier
	LastModified *time.Time
	ResourceName string
	UserID       int64
}

// Synchronizer drives one-way export of local records to the remote service
// and one-way import of remote records into the local store. Each call is a
// single attempt; it holds no state between calls.
type Synchronizer struct {
	store    TaskStore
	exporter ExportExecutor
	importer ImportExecutor
	client   BatchClient
	log      *slog.Logger

	exportedItems metric.Int64Counter
	importedItems metric.Int64Counter
	failedTasks   metric.Int64Counter
}

func NewSynchronizer(store TaskStore, exporter ExportExecutor, importer ImportExecutor, client BatchClient, log *slog.Logger) (*Synchronizer, error) {
	if store == nil || exporter == nil || importer == nil || client == nil {
		return nil, errors.Internal("synchronizer dependencies must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	meter := otel.Meter("github.com/webitel/batch-sync/internal/service")
	s := &Synchronizer{store: store, exporter: exporter, importer: importer, client: client, log: log}

	var err error
	if s.exportedItems, err = meter.Int64Counter("batch_sync.exported_items",
		metric.WithDescription("Items exported to the remote service")); err != nil {
		return nil, errors.Internal("unable to create metric", errors.WithCause(err))
	}
	if s.importedItems, err = meter.Int64Counter("batch_sync.imported_items",
		metric.WithDescription("Items imported from the remote service")); err != nil {
		return nil, errors.Internal("unable to create metric", errors.WithCause(err))
	}
	if s.failedTasks, err = meter.Int64Counter("batch_sync.failed_tasks",
		metric.WithDescription("Batch tasks that did not complete")); err != nil {
		return nil, errors.Internal("unable to create metric", errors.WithCause(err))
	}

	return s, nil
}

// ExportResource pushes the records of req.ResourceName to the remote service.
// With LastModified set only records modified since then are exported and
// the upload is tagged INCREMENTAL. It returns the number of items uploaded.
func (s *Synchronizer) ExportResource(ctx context.Context, req ExportRequest) (int64, error) {
	if err := s.notify(ctx, req.Notify, req.ResourceName, "Exporting resource: "+req.ResourceName); err != nil {
		return 0, err
	}

	parameters := map[string]string{}
	mode := model.TransferModeFull
	if req.LastModified != nil {
		parameters[model.FilterParameter] = model.ModifiedSinceFilter(*req.LastModified)
		mode = model.TransferModeIncremental
	}

	task, err := s.store.AddExportTask(ctx, &model.ExportTask{
		TenantID:     req.TenantID,
		UserID:       req.UserID,
		ResourceName: req.ResourceName,
		ContentType:  model.ContentTypeJSONL,
		Status:       model.TaskStatusInitial,
		FieldNames:   req.FieldNames,
		Parameters:   parameters,
		DelegateName: req.DelegateName,
	})
	if err != nil {
		return 0, err
	}

	result, err := s.exporter.Execute(ctx, task)
	if err != nil {
		return 0, err
	}
	if !result.Completed() {
		s.failedTasks.Add(ctx, 1, directionAttrs(model.DirectionExport, req.ResourceName))
		s.log.WarnContext(ctx, "batch_sync.export.task_failed",
			slog.String("resource", req.ResourceName),
			slog.Int64("task_id", result.TaskID),
			slog.String("status", string(result.Status)),
			slog.String("error", result.Error),
		)
		return 0, errors.New(
			"exporting resource failed for: "+req.ResourceName,
			errors.WithCause(ErrTaskNotCompleted),
			errors.WithCode(codes.Aborted),
			errors.WithID("sync.export.task_failed"),
		)
	}

	if err := s.notify(ctx, req.Notify, req.ResourceName,
		fmt.Sprintf("Exported %d items for resource: %s", result.TotalItems, req.ResourceName)); err != nil {
		return 0, err
	}
	if result.TotalItems == 0 {
		// the empty task row stays behind until PurgeEmptyExportTasks
		return 0, s.notify(ctx, req.Notify, req.ResourceName, "Nothing to upload")
	}

	if err := s.notify(ctx, req.Notify, req.ResourceName, "Uploading resource: "+req.ResourceName); err != nil {
		return 0, err
	}
	if err := s.upload(ctx, req.TenantID, task.ID, req.ResourceName, mode); err != nil {
		return 0, err
	}
	if err := s.store.DeleteExportTask(ctx, task.ID); err != nil {
		return 0, err
	}
	s.exportedItems.Add(ctx, result.TotalItems, directionAttrs(model.DirectionExport, req.ResourceName))

	if err := s.notify(ctx, req.Notify, req.ResourceName, "Uploading resource complete for: "+req.ResourceName); err != nil {
		return 0, err
	}
	return result.TotalItems, nil
}

func (s *Synchronizer) upload(ctx context.Context, tenantID, taskID int64, resourceName string, mode model.TransferMode) error {
	content, err := s.store.OpenExportContent(ctx, taskID)
	if err != nil {
		return err
	}
	defer func() {
		if err := content.Close(); err != nil {
			s.log.ErrorContext(ctx, "batch_sync.export.close_content_failed",
				slog.Int64("task_id", taskID), slog.String("error", err.Error()))
		}
	}()

	return s.client.Upload(ctx, tenantID, content, resourceName, mode)
}

// ImportResource pulls the changes of req.ResourceName made since
// req.LastModified and applies them locally. No task is created when the
// remote side has nothing new. It returns the number of items applied.
func (s *Synchronizer) ImportResource(ctx context.Context, req ImportRequest) (int64, error) {
	if err := s.notify(ctx, req.Notify, req.ResourceName, "Checking updates for: "+req.ResourceName); err != nil {
		return 0, err
	}

	body, ok, err := s.client.Download(ctx, req.TenantID, req.LastModified, req.ResourceName)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, s.notify(ctx, req.Notify, req.ResourceName, "No updates for resource: "+req.ResourceName)
	}
	defer func() { _ = body.Close() }()

	if err := s.notify(ctx, req.Notify, req.ResourceName, "Importing resource: "+req.ResourceName); err != nil {
		return 0, err
	}
	content, err := io.ReadAll(body)
	if err != nil {
		return 0, err
	}

	task, err := s.store.AddImportTask(ctx, &model.ImportTask{
		TenantID:     req.TenantID,
		UserID:       req.UserID,
		BatchSize:    model.DefaultImportBatchSize,
		ResourceName: req.ResourceName,
		Content:      content,
		ContentType:  model.ContentTypeJSONL,
		Status:       model.TaskStatusInitial,
		FieldMapping: req.FieldMapping,
		Operation:    model.OperationCreate,
		DelegateName: req.DelegateName,
	})
	if err != nil {
		return 0, err
	}

	result, err := s.importer.Execute(ctx, task)
	if err != nil {
		return 0, err
	}
	if !result.Completed() {
		s.failedTasks.Add(ctx, 1, directionAttrs(model.DirectionImport, req.ResourceName))
		s.log.WarnContext(ctx, "batch_sync.import.task_failed",
			slog.String("resource", req.ResourceName),
			slog.Int64("task_id", result.TaskID),
			slog.String("status", string(result.Status)),
			slog.String("error", result.Error),
		)
		return 0, errors.New(
			"importing resource failed for: "+req.ResourceName,
			errors.WithCause(ErrTaskNotCompleted),
			errors.WithCode(codes.Aborted),
			errors.WithID("sync.import.task_failed"),
		)
	}

	if err := s.notify(ctx, req.Notify, req.ResourceName,
		fmt.Sprintf("Imported %d items for resource: %s", result.TotalItems, req.ResourceName)); err != nil {
		return 0, err
	}
	s.importedItems.Add(ctx, result.TotalItems, directionAttrs(model.DirectionImport, req.ResourceName))

	if err := s.store.DeleteImportTask(ctx, task.ID); err != nil {
		return 0, err
	}
	return result.TotalItems, nil
}

func (s *Synchronizer) notify(ctx context.Context, notify Notifier, resourceName, message string) error {
	s.log.DebugContext(ctx, "batch_sync.sync.notify",
		slog.String("resource", resourceName),
		slog.String("message", message),
	)
	if notify == nil {
		return nil
	}
	return notify(ctx, message)
}

func directionAttrs(direction model.Direction, resourceName string) metric.AddOption {
	return metric.WithAttributes(
		attribute.String("direction", string(direction)),
		attribute.String("resource", resourceName),
	)
}
