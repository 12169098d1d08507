package shared

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog is one entry of the kitchen's activity trail: who changed which
// foodstuff, requisition or batch, and how.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditLogger appends entries to the audit_logs table. Services treat it as
// best-effort, so failures are logged here rather than at every call site.
type AuditLogger struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool, logger *slog.Logger) *AuditLogger {
	return &AuditLogger{pool: pool, logger: logger}
}

// Record persists the log entry. A zero At defaults to NOW() in the database.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, created_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON, timestampOrNil(log.At))
	if err != nil && l.logger != nil {
		l.logger.Error("record audit log",
			slog.Any("error", err),
			slog.String("action", log.Action),
			slog.String("entity", log.Entity))
	}
	return err
}

// timestampOrNil maps the zero time to NULL so COALESCE defaults apply;
// pgx would otherwise encode it as the year-one timestamp.
func timestampOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
