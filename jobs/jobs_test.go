package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/campus-ops/campus-ops/internal/foodstuff"
	"github.com/campus-ops/campus-ops/internal/requisition"
)

type stubAlerts struct {
	alerts []foodstuff.StockAlert
	err    error
}

func (s stubAlerts) StockAlerts(ctx context.Context) ([]foodstuff.StockAlert, error) {
	return s.alerts, s.err
}

type captureEnqueuer struct {
	payloads []NotifyPayload
	err      error
}

func (c *captureEnqueuer) EnqueueNotify(ctx context.Context, payload NotifyPayload) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.payloads = append(c.payloads, payload)
	return &asynq.TaskInfo{}, nil
}

func TestStockAlertScanNotifiesOnlyCritical(t *testing.T) {
	alerts := stubAlerts{alerts: []foodstuff.StockAlert{
		{FoodstuffID: 1, Name: "Rice", Unit: "kg", CurrentQuantity: 4, Level: foodstuff.AlertLow},
		{FoodstuffID: 2, Name: "Beans", Unit: "kg", CurrentQuantity: 0, Level: foodstuff.AlertCritical},
		{FoodstuffID: 3, Name: "Palm Oil", Unit: "l", CurrentQuantity: 0, Level: foodstuff.AlertCritical},
	}}
	enq := &captureEnqueuer{}
	scanner := NewStockAlertScanner(alerts, enq, slog.Default())

	err := scanner.Handle(context.Background(), NewStockAlertScanTask())
	require.NoError(t, err)
	require.Len(t, enq.payloads, 2)
	require.Equal(t, "stock-alert", enq.payloads[0].Topic)
	require.Contains(t, enq.payloads[0].Subject, "Beans")
	require.Contains(t, enq.payloads[1].Subject, "Palm Oil")
}

func TestStockAlertScanPropagatesListError(t *testing.T) {
	scanner := NewStockAlertScanner(stubAlerts{err: errors.New("db down")}, &captureEnqueuer{}, slog.Default())
	err := scanner.Handle(context.Background(), NewStockAlertScanTask())
	require.Error(t, err)
}

type stubOverdue struct {
	reqs []requisition.Requisition
}

func (s stubOverdue) ListOverdue(ctx context.Context, asOf time.Time) ([]requisition.Requisition, error) {
	return s.reqs, nil
}

func TestRequisitionReminderEnqueuesPerOverdue(t *testing.T) {
	overdue := stubOverdue{reqs: []requisition.Requisition{
		{Number: "REQ-2026-0007", Status: requisition.StatusPending, Priority: requisition.PriorityUrgent, RequiredDate: time.Now().Add(-24 * time.Hour)},
		{Number: "REQ-2026-0009", Status: requisition.StatusApproved, Priority: requisition.PriorityNormal, RequiredDate: time.Now().Add(-2 * time.Hour)},
	}}
	enq := &captureEnqueuer{}
	reminder := NewRequisitionReminder(overdue, enq, slog.Default())

	err := reminder.Handle(context.Background(), NewRequisitionDueReminderTask())
	require.NoError(t, err)
	require.Len(t, enq.payloads, 2)
	require.Equal(t, "requisition-due", enq.payloads[0].Topic)
	require.Contains(t, enq.payloads[0].Subject, "REQ-2026-0007")
}

type captureCleanup struct {
	olderThan time.Duration
}

func (c *captureCleanup) Cleanup(ctx context.Context, olderThan time.Duration) error {
	c.olderThan = olderThan
	return nil
}

func TestIdempotencyCleanerDefaultsRetention(t *testing.T) {
	store := &captureCleanup{}
	cleaner := NewIdempotencyCleaner(store, 0, slog.Default())

	err := cleaner.Handle(context.Background(), NewIdempotencyCleanupTask())
	require.NoError(t, err)
	require.Equal(t, DefaultIdempotencyRetention, store.olderThan)
}

func TestIdempotencyCleanerHonorsConfiguredRetention(t *testing.T) {
	store := &captureCleanup{}
	cleaner := NewIdempotencyCleaner(store, 48*time.Hour, slog.Default())

	err := cleaner.Handle(context.Background(), NewIdempotencyCleanupTask())
	require.NoError(t, err)
	require.Equal(t, 48*time.Hour, store.olderThan)
}
