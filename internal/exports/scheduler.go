package exports

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dropified/suredone-adapter/internal/metrics"
	"github.com/dropified/suredone-adapter/pkg/model"
)

// ConfigStore is the slice of the order store the scheduler needs.
type ConfigStore interface {
	ListDueExportConfigs(ctx context.Context, asOf time.Time) ([]model.ExportConfig, error)
	MarkExportRun(ctx context.Context, configID string, at time.Time) error
}

// JobQueue enqueues report-generation jobs for the worker.
type JobQueue interface {
	PublishJob(ctx context.Context, queue string, payload any) error
}

// Scheduler periodically scans for due daily export configs and enqueues a
// report job for each. Enqueued configs are rescheduled for the next day.
type Scheduler struct {
	store     ConfigStore
	queue     JobQueue
	queueName string
	interval  time.Duration
	logger    *zap.Logger
	stopCh    chan struct{}
}

func NewScheduler(store ConfigStore, queue JobQueue, queueName string, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		store:     store,
		queue:     queue,
		queueName: queueName,
		interval:  interval,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Start runs the scan loop until Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("exports.scheduler.started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	due, err := s.store.ListDueExportConfigs(ctx, now)
	if err != nil {
		s.logger.Error("exports.scheduler.scan_failed", zap.Error(err))
		metrics.IncError("exports_scheduler", "scan")
		return
	}

	for _, cfg := range due {
		job := model.ExportJob{
			ConfigID:    cfg.ID,
			TenantID:    cfg.TenantID,
			RequestedAt: now,
		}
		if err := s.queue.PublishJob(ctx, s.queueName, job); err != nil {
			s.logger.Error("exports.scheduler.enqueue_failed",
				zap.String("config_id", cfg.ID),
				zap.Error(err))
			metrics.IncError("exports_scheduler", "enqueue")
			continue
		}
		if err := s.store.MarkExportRun(ctx, cfg.ID, now); err != nil {
			s.logger.Error("exports.scheduler.mark_run_failed",
				zap.String("config_id", cfg.ID),
				zap.Error(err))
			continue
		}
		s.logger.Info("exports.scheduler.job_enqueued",
			zap.String("config_id", cfg.ID),
			zap.String("tenant", cfg.TenantID))
	}
}
