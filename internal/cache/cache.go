package cache

import (
	"context"
	"errors"
	"time"

	"github.com/webitel/batch-sync/internal/model"
)

// ErrQueueEmpty is returned by PopSyncJob when no job arrived within the wait time.
var ErrQueueEmpty = errors.New("queue empty (timeout)")

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
)

// MaxJobMessages bounds the progress messages kept per job.
const MaxJobMessages = 100

// Cache is the sync job queue together with per-job status and progress.
type Cache interface {
	PushSyncJob(ctx context.Context, job model.SyncJob) error
	PopSyncJob(ctx context.Context) (model.SyncJob, error)
	SetJobStatus(ctx context.Context, jobID string, status JobStatus) error
	AppendJobMessage(ctx context.Context, jobID, message string) error
	// AcquireResource returns false when another job holds the resource.
	AcquireResource(ctx context.Context, tenantID int64, direction model.Direction, resourceName, owner string, ttl time.Duration) (bool, error)
	// ReleaseResource is a no-op unless owner still holds the resource.
	ReleaseResource(ctx context.Context, tenantID int64, direction model.Direction, resourceName, owner string) error
}
