package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"

	conf "github.com/webitel/batch-sync/config"
	"github.com/webitel/batch-sync/internal/cache"
	"github.com/webitel/batch-sync/internal/errors"
	"github.com/webitel/batch-sync/internal/model"
	"github.com/webitel/batch-sync/internal/service"
	"github.com/webitel/batch-sync/internal/store"
)

const defaultLockTTL = time.Hour

type ResourceSynchronizer interface {
	ExportResource(ctx context.Context, req service.ExportRequest) (int64, error)
	ImportResource(ctx context.Context, req service.ImportRequest) (int64, error)
}

// SyncService queues resource syncs and runs them from the queue.
type SyncService struct {
	queue   cache.Cache
	history store.HistoryStore
	sync    ResourceSynchronizer
	lockTTL time.Duration
	log     *slog.Logger
}

func NewSyncService(queue cache.Cache, history store.HistoryStore, sync ResourceSynchronizer, lockTTL time.Duration, log *slog.Logger) (*SyncService, error) {
	if queue == nil || history == nil || sync == nil {
		return nil, errors.Internal("sync service dependencies must not be nil")
	}
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &SyncService{queue: queue, history: history, sync: sync, lockTTL: lockTTL, log: log}, nil
}

// Enqueue queues one sync of res in the given direction. A resource already
// queued or running in that direction is refused with AlreadyExists. The
// lock is owned by the new job's id.
func (s *SyncService) Enqueue(ctx context.Context, res conf.ResourceConfig, direction model.Direction) (*model.SyncJob, error) {
	jobID := uuid.NewString()
	acquired, err := s.queue.AcquireResource(ctx, res.TenantID, direction, res.Name, jobID, s.lockTTL)
	if err != nil {
		return nil, errors.Internal("unable to lock resource", errors.WithCause(err), errors.WithID("app.sync.enqueue.lock"))
	}
	if !acquired {
		return nil, errors.New(
			fmt.Sprintf("%s of %s is already in progress", direction, res.Name),
			errors.WithID("app.sync.enqueue.busy"),
			errors.WithCode(codes.AlreadyExists),
		)
	}

	job, err := s.enqueue(ctx, jobID, res, direction)
	if err != nil {
		if relErr := s.queue.ReleaseResource(ctx, res.TenantID, direction, res.Name, jobID); relErr != nil {
			s.log.ErrorContext(ctx, "batch_sync.sync.release_error", slog.String("resource", res.Name), slog.Any("error", relErr))
		}
		return nil, err
	}
	return job, nil
}

func (s *SyncService) enqueue(ctx context.Context, jobID string, res conf.ResourceConfig, direction model.Direction) (*model.SyncJob, error) {
	last, err := s.history.LastSuccessfulSync(ctx, res.TenantID, direction, res.Name)
	if err != nil {
		return nil, errors.Internal("unable to read sync history", errors.WithCause(err), errors.WithID("app.sync.enqueue.history"))
	}

	job := model.SyncJob{
		JobID:        jobID,
		Direction:    direction,
		ResourceName: res.Name,
		DelegateName: res.DelegateName,
		TenantID:     res.TenantID,
		UserID:       res.UserID,
		FieldNames:   res.FieldNames,
		FieldMapping: res.FieldMapping,
	}
	if last != nil {
		ms := last.UnixMilli()
		job.LastModified = &ms
	}

	job.HistoryID, err = s.history.InsertSyncHistory(ctx, &model.NewSyncHistory{
		JobID:        job.JobID,
		TenantID:     job.TenantID,
		Direction:    direction,
		ResourceName: job.ResourceName,
		Status:       model.SyncStatusPending,
		CreatedAt:    time.Now().UnixMilli(),
		CreatedBy:    job.UserID,
	})
	if err != nil {
		return nil, errors.Internal("unable to record sync", errors.WithCause(err), errors.WithID("app.sync.enqueue.history"))
	}

	if err := s.queue.PushSyncJob(ctx, job); err != nil {
		return nil, errors.Internal("unable to queue sync", errors.WithCause(err), errors.WithID("app.sync.enqueue.push"))
	}
	if err := s.queue.SetJobStatus(ctx, job.JobID, cache.JobStatusPending); err != nil {
		s.log.WarnContext(ctx, "batch_sync.sync.status_error", slog.String("job_id", job.JobID), slog.Any("error", err))
	}

	s.log.InfoContext(ctx, "batch_sync.sync.enqueued",
		slog.String("job_id", job.JobID),
		slog.String("resource", job.ResourceName),
		slog.String("direction", string(direction)),
		slog.Bool("incremental", job.LastModified != nil),
	)
	return &job, nil
}

// Process runs a dequeued job and records its outcome. The resource lock is
// released whatever the outcome, unless another job took it over after it
// expired.
func (s *SyncService) Process(ctx context.Context, job model.SyncJob) error {
	defer func() {
		if err := s.queue.ReleaseResource(context.WithoutCancel(ctx), job.TenantID, job.Direction, job.ResourceName, job.JobID); err != nil {
			s.log.ErrorContext(ctx, "batch_sync.sync.release_error", slog.String("job_id", job.JobID), slog.Any("error", err))
		}
	}()

	s.setStatus(ctx, job, cache.JobStatusProcessing, model.SyncStatusProcessing, nil, "")

	items, err := s.run(ctx, job)

	// the outcome is recorded even when ctx was cancelled mid-run
	recordCtx := context.WithoutCancel(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "batch_sync.sync.failed",
			slog.String("job_id", job.JobID),
			slog.String("resource", job.ResourceName),
			slog.String("error", errors.Details(err)),
		)
		s.setStatus(recordCtx, job, cache.JobStatusFailed, model.SyncStatusFailed, nil, err.Error())
		return err
	}
	s.setStatus(recordCtx, job, cache.JobStatusDone, model.SyncStatusDone, &items, "")
	return nil
}

func (s *SyncService) run(ctx context.Context, job model.SyncJob) (int64, error) {
	notify := s.notifier(job)
	switch job.Direction {
	case model.DirectionExport:
		return s.sync.ExportResource(ctx, service.ExportRequest{
			DelegateName: job.DelegateName,
			TenantID:     job.TenantID,
			FieldNames:   job.FieldNames,
			Notify:       notify,
			LastModified: job.LastModifiedTime(),
			ResourceName: job.ResourceName,
			UserID:       job.UserID,
		})
	case model.DirectionImport:
		return s.sync.ImportResource(ctx, service.ImportRequest{
			DelegateName: job.DelegateName,
			TenantID:     job.TenantID,
			FieldMapping: job.FieldMapping,
			Notify:       notify,
			LastModified: job.LastModifiedTime(),
			ResourceName: job.ResourceName,
			UserID:       job.UserID,
		})
	default:
		return 0, errors.InvalidArgument(fmt.Sprintf("unknown sync direction %q", job.Direction), errors.WithID("app.sync.process.direction"))
	}
}

// notifier keeps the progress messages of job in Redis. Losing a progress
// message does not fail the sync.
func (s *SyncService) notifier(job model.SyncJob) service.Notifier {
	return func(ctx context.Context, message string) error {
		s.log.InfoContext(ctx, "batch_sync.sync.progress", slog.String("job_id", job.JobID), slog.String("message", message))
		if err := s.queue.AppendJobMessage(ctx, job.JobID, message); err != nil {
			s.log.WarnContext(ctx, "batch_sync.sync.progress_error", slog.String("job_id", job.JobID), slog.Any("error", err))
		}
		return nil
	}
}

func (s *SyncService) setStatus(ctx context.Context, job model.SyncJob, status cache.JobStatus, history model.SyncStatus, items *int64, message string) {
	if err := s.queue.SetJobStatus(ctx, job.JobID, status); err != nil {
		s.log.WarnContext(ctx, "batch_sync.sync.status_error", slog.String("job_id", job.JobID), slog.Any("error", err))
	}
	if job.HistoryID == 0 {
		return
	}
	err := s.history.UpdateSyncStatus(ctx, &model.UpdateSyncStatus{
		ID:      job.HistoryID,
		Status:  history,
		Items:   items,
		Message: message,
	})
	if err != nil {
		s.log.WarnContext(ctx, "batch_sync.sync.history_error", slog.String("job_id", job.JobID), slog.Any("error", err))
	}
}
