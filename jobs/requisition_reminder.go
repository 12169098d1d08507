package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/campus-ops/campus-ops/internal/requisition"
)

// TaskRequisitionDueReminder is the task type for the overdue requisition sweep.
const TaskRequisitionDueReminder = "requisition:due-reminder"

// NewRequisitionDueReminderTask constructs the reminder task.
func NewRequisitionDueReminderTask() *asynq.Task {
	return asynq.NewTask(TaskRequisitionDueReminder, nil)
}

// OverduePort lists open requisitions whose required date has passed.
type OverduePort interface {
	ListOverdue(ctx context.Context, asOf time.Time) ([]requisition.Requisition, error)
}

// RequisitionReminder notifies about requisitions that missed their
// required date while still pending or approved.
type RequisitionReminder struct {
	overdue  OverduePort
	enqueuer NotifyEnqueuer
	logger   *slog.Logger
}

// NewRequisitionReminder constructs RequisitionReminder.
func NewRequisitionReminder(overdue OverduePort, enqueuer NotifyEnqueuer, logger *slog.Logger) *RequisitionReminder {
	return &RequisitionReminder{overdue: overdue, enqueuer: enqueuer, logger: logger}
}

// Handle processes TaskRequisitionDueReminder tasks.
func (r *RequisitionReminder) Handle(ctx context.Context, t *asynq.Task) error {
	overdue, err := r.overdue.ListOverdue(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	for _, req := range overdue {
		if r.enqueuer == nil {
			break
		}
		payload := NotifyPayload{
			Topic:   "requisition-due",
			Subject: fmt.Sprintf("Requisition %s is past its required date", req.Number),
			Body:    fmt.Sprintf("Requisition %s (%s) was required by %s and is still %s.", req.Number, req.Priority, req.RequiredDate.Format("2006-01-02"), req.Status),
		}
		if _, err := r.enqueuer.EnqueueNotify(ctx, payload); err != nil {
			r.logger.Warn("enqueue requisition reminder", slog.Any("error", err), slog.String("number", req.Number))
		}
	}
	r.logger.Info("requisition due reminder", slog.Int("overdue", len(overdue)))
	return nil
}
