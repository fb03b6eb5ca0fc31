package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/rohithsiddi/invoice-processing-agent/internal/application/port"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/event"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

// AuditRepository implements port.AuditRepository on sqlite. The log is
// append-only; the unique event id plus INSERT OR IGNORE makes retried
// appends idempotent.
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) port.AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

// Append stores an audit event, silently ignoring duplicates
func (r *AuditRepository) Append(ctx context.Context, evt *event.Event) error {
	data, err := json.Marshal(evt.Data)
	if err != nil {
		return fmt.Errorf("failed to encode event data: %w", err)
	}

	query := `
		INSERT OR IGNORE INTO audit_log (event_id, event_type, instance_id, stage, data, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = getExecutor(ctx, r.db).ExecContext(ctx, query,
		evt.ID, evt.Type.String(), evt.InstanceID, evt.Stage.String(), data, evt.Timestamp)
	if err != nil {
		r.logger.Error("Failed to append audit event",
			zap.String("event_id", evt.ID), zap.String("instance_id", evt.InstanceID), zap.Error(err))
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

// ListByInstanceID returns the audit trail of an instance in recorded order
func (r *AuditRepository) ListByInstanceID(ctx context.Context, instanceID string) ([]*event.Event, error) {
	query := `
		SELECT event_id, event_type, instance_id, stage, data, timestamp
		FROM audit_log
		WHERE instance_id = ?
		ORDER BY id ASC
	`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, instanceID)
	if err != nil {
		r.logger.Error("Failed to list audit events",
			zap.String("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []*event.Event
	for rows.Next() {
		var evt event.Event
		var eventType, stage string
		var data []byte

		if err := rows.Scan(&evt.ID, &eventType, &evt.InstanceID, &stage, &data, &evt.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		evt.Type = event.Type(eventType)
		evt.Stage = workflow.Stage(stage)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &evt.Data); err != nil {
				return nil, fmt.Errorf("failed to decode event data: %w", err)
			}
		}
		events = append(events, &evt)
	}
	return events, rows.Err()
}

// Verify interface compliance
var _ port.AuditRepository = (*AuditRepository)(nil)
