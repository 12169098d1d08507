package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/campus-ops/campus-ops/internal/foodstuff"
)

// TaskStockAlertScan is the task type for the periodic low-stock sweep.
const TaskStockAlertScan = "stock:alert-scan"

// NewStockAlertScanTask constructs the scan task.
func NewStockAlertScanTask() *asynq.Task {
	return asynq.NewTask(TaskStockAlertScan, nil)
}

// StockAlertsPort lists foodstuffs at or below the alert threshold.
type StockAlertsPort interface {
	StockAlerts(ctx context.Context) ([]foodstuff.StockAlert, error)
}

// NotifyEnqueuer submits notification tasks.
type NotifyEnqueuer interface {
	EnqueueNotify(ctx context.Context, payload NotifyPayload) (*asynq.TaskInfo, error)
}

// StockAlertScanner walks the current alert list and raises a notification
// for every depleted foodstuff.
type StockAlertScanner struct {
	alerts   StockAlertsPort
	enqueuer NotifyEnqueuer
	logger   *slog.Logger
}

// NewStockAlertScanner constructs StockAlertScanner.
func NewStockAlertScanner(alerts StockAlertsPort, enqueuer NotifyEnqueuer, logger *slog.Logger) *StockAlertScanner {
	return &StockAlertScanner{alerts: alerts, enqueuer: enqueuer, logger: logger}
}

// Handle processes TaskStockAlertScan tasks.
func (s *StockAlertScanner) Handle(ctx context.Context, t *asynq.Task) error {
	alerts, err := s.alerts.StockAlerts(ctx)
	if err != nil {
		return err
	}
	critical := 0
	for _, alert := range alerts {
		if alert.Level != foodstuff.AlertCritical {
			continue
		}
		critical++
		if s.enqueuer == nil {
			continue
		}
		payload := NotifyPayload{
			Topic:   "stock-alert",
			Subject: fmt.Sprintf("%s is out of stock", alert.Name),
			Body:    fmt.Sprintf("%s (%s) has reached zero, restock before the next service.", alert.Name, alert.Unit),
		}
		if _, err := s.enqueuer.EnqueueNotify(ctx, payload); err != nil {
			s.logger.Warn("enqueue stock notification", slog.Any("error", err), slog.String("foodstuff", alert.Name))
		}
	}
	s.logger.Info("stock alert scan",
		slog.Int("alerts", len(alerts)),
		slog.Int("critical", critical))
	return nil
}
