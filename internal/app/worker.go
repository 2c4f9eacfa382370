package app

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/webitel/batch-sync/internal/cache"
)

const defaultWorkers = 4

// workerCount limits the configured number of workers to twice the CPU count.
func workerCount(configured int) int {
	if configured <= 0 {
		configured = defaultWorkers
	}
	maxWorkers := runtime.NumCPU() * 2
	if configured > maxWorkers {
		configured = maxWorkers
	}
	return configured
}

// RunWorkers pops sync jobs until ctx is done. It returns once every worker
// has stopped.
func (s *SyncService) RunWorkers(ctx context.Context, workers int) error {
	numWorkers := workerCount(workers)
	s.log.InfoContext(ctx, "batch_sync.worker.starting", slog.Int("count", numWorkers))

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < numWorkers; i++ {
		workerID := i + 1
		g.Go(func() error {
			s.work(ctx, workerID)
			return nil
		})
	}
	return g.Wait()
}

func (s *SyncService) work(ctx context.Context, workerID int) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := s.queue.PopSyncJob(ctx)
		if errors.Is(err, cache.ErrQueueEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.ErrorContext(ctx, "batch_sync.worker.pop_error", slog.Int("worker_id", workerID), slog.Any("error", err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		s.log.DebugContext(ctx, "batch_sync.worker.job_received",
			slog.Int("worker_id", workerID),
			slog.String("job_id", job.JobID),
			slog.String("resource", job.ResourceName),
			slog.String("direction", string(job.Direction)),
		)
		// Process logs and records failures itself.
		_ = s.Process(ctx, job)
	}
}
