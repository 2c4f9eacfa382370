package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"google.golang.org/grpc/codes"

	conf "github.com/webitel/batch-sync/config"
	"github.com/webitel/batch-sync/internal/errors"
	"github.com/webitel/batch-sync/internal/model"
)

type enqueuer interface {
	Enqueue(ctx context.Context, res conf.ResourceConfig, direction model.Direction) (*model.SyncJob, error)
}

type stagingPurger interface {
	PurgeEmptyExportTasks(ctx context.Context, before time.Time) (int64, error)
}

// Scheduler enqueues every configured resource on a cron schedule and drops
// stale staging rows on the same schedule.
type Scheduler struct {
	cron      *cron.Cron
	sync      enqueuer
	resources []conf.ResourceConfig
	log       *slog.Logger

	staging   stagingPurger
	retention time.Duration
	now       func() time.Time
}

// NewScheduler parses schedule as a standard five field cron expression. An
// empty schedule yields a scheduler that only runs on demand.
func NewScheduler(schedule string, sync enqueuer, resources []conf.ResourceConfig, log *slog.Logger) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Scheduler{
		cron:      cron.New(),
		sync:      sync,
		resources: resources,
		log:       log,
		now:       time.Now,
	}
	if schedule == "" {
		return s, nil
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, errors.InvalidArgument("invalid sync schedule",
			errors.WithCause(err),
			errors.WithID("app.scheduler.parse"),
		)
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.Run(context.Background()) }); err != nil {
		return nil, errors.Internal("unable to schedule sync", errors.WithCause(err), errors.WithID("app.scheduler.add"))
	}
	return s, nil
}

// SetStagingCleanup makes every run purge empty export tasks older than retention.
func (s *Scheduler) SetStagingCleanup(staging stagingPurger, retention time.Duration) {
	s.staging = staging
	s.retention = retention
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for a running EnqueueAll to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// EnqueueAll queues every resource in each of its directions and returns the
// number of jobs queued. Resources still busy from a previous run are skipped.
func (s *Scheduler) EnqueueAll(ctx context.Context) int {
	queued := 0
	for _, res := range s.resources {
		for _, d := range res.Directions {
			_, err := s.sync.Enqueue(ctx, res, model.Direction(d))
			switch {
			case err == nil:
				queued++
			case errors.Code(err) == codes.AlreadyExists:
				s.log.InfoContext(ctx, "batch_sync.scheduler.skipped_busy",
					slog.String("resource", res.Name), slog.String("direction", d))
			default:
				s.log.ErrorContext(ctx, "batch_sync.scheduler.enqueue_error",
					slog.String("resource", res.Name),
					slog.String("direction", d),
					slog.String("error", errors.Details(err)),
				)
			}
		}
	}
	return queued
}

// Run is one scheduled tick.
func (s *Scheduler) Run(ctx context.Context) int {
	s.PurgeStaging(ctx)
	return s.EnqueueAll(ctx)
}

// PurgeStaging removes empty export tasks left by earlier runs. Failures are
// logged and retried on the next run.
func (s *Scheduler) PurgeStaging(ctx context.Context) int64 {
	if s.staging == nil || s.retention <= 0 {
		return 0
	}
	purged, err := s.staging.PurgeEmptyExportTasks(ctx, s.now().Add(-s.retention))
	if err != nil {
		s.log.ErrorContext(ctx, "batch_sync.scheduler.purge_error", slog.String("error", errors.Details(err)))
		return 0
	}
	if purged > 0 {
		s.log.InfoContext(ctx, "batch_sync.scheduler.purged", slog.Int64("tasks", purged))
	}
	return purged
}
