package exports

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropified/suredone-adapter/internal/metrics"
	"github.com/dropified/suredone-adapter/pkg/model"
)

// OrderQuerier is the slice of the order store the worker queries for
// matching orders. Satisfied by *pgxpool.Pool via a thin adapter or by the
// store's PG field directly.
type OrderQuerier interface {
	MatchingOrders(ctx context.Context, cfg model.ExportConfig) ([]model.Order, error)
}

// ReportStore persists generated reports and resolves configs.
type ReportStore interface {
	GetExportConfig(ctx context.Context, id string) (*model.ExportConfig, error)
	SaveReport(ctx context.Context, r *model.ExportReport) error
}

// DonePublisher announces completed reports on the event bus.
type DonePublisher interface {
	PublishExportCompleted(ctx context.Context, evt model.ExportCompletedEvent) error
}

// Worker consumes export jobs, renders the matching orders as CSV and stores
// the report.
type Worker struct {
	store     ReportStore
	orders    OrderQuerier
	publisher DonePublisher
	logger    *zap.Logger
}

func NewWorker(store ReportStore, orders OrderQuerier, publisher DonePublisher, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{store: store, orders: orders, publisher: publisher, logger: logger}
}

// Handle processes one queued job. Errors are returned so the consumer can
// nack and redeliver.
func (w *Worker) Handle(ctx context.Context, body []byte) error {
	var job model.ExportJob
	if err := json.Unmarshal(body, &job); err != nil {
		metrics.ExportJobsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("malformed export job: %w", err)
	}

	cfg, err := w.store.GetExportConfig(ctx, job.ConfigID)
	if err != nil {
		metrics.ExportJobsTotal.WithLabelValues("error").Inc()
		return err
	}
	if cfg == nil {
		// Config deleted between scheduling and processing. Ack and move on.
		w.logger.Warn("exports.worker.config_missing", zap.String("config_id", job.ConfigID))
		metrics.ExportJobsTotal.WithLabelValues("error").Inc()
		return nil
	}

	orders, err := w.orders.MatchingOrders(ctx, *cfg)
	if err != nil {
		metrics.ExportJobsTotal.WithLabelValues("error").Inc()
		return err
	}

	csvData, err := renderCSV(orders)
	if err != nil {
		metrics.ExportJobsTotal.WithLabelValues("error").Inc()
		return err
	}

	report := &model.ExportReport{
		ID:          uuid.NewString(),
		ConfigID:    cfg.ID,
		TenantID:    cfg.TenantID,
		OrderCount:  len(orders),
		CSV:         csvData,
		GeneratedAt: time.Now().UTC(),
	}
	if err := w.store.SaveReport(ctx, report); err != nil {
		metrics.ExportJobsTotal.WithLabelValues("error").Inc()
		return err
	}

	if w.publisher != nil {
		evt := model.ExportCompletedEvent{
			ReportID:   report.ID,
			ConfigID:   report.ConfigID,
			TenantID:   report.TenantID,
			OrderCount: report.OrderCount,
		}
		if err := w.publisher.PublishExportCompleted(ctx, evt); err != nil {
			// Report is saved; a lost notification is not worth a redelivery.
			w.logger.Error("exports.worker.publish_failed",
				zap.String("report_id", report.ID),
				zap.Error(err))
		}
	}

	metrics.ExportJobsTotal.WithLabelValues("ok").Inc()
	w.logger.Info("exports.worker.report_generated",
		zap.String("report_id", report.ID),
		zap.String("tenant", report.TenantID),
		zap.Int("order_count", report.OrderCount))
	return nil
}

func renderCSV(orders []model.Order) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	if err := cw.Write([]string{"order_id", "status", "tracking_number", "total", "created_at"}); err != nil {
		return nil, err
	}
	for _, o := range orders {
		row := []string{
			o.OrderID,
			o.Status,
			o.TrackingNumber,
			o.Total.String(),
			o.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	return buf.Bytes(), cw.Error()
}
