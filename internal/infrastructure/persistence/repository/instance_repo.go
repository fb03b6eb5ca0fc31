package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/rohithsiddi/invoice-processing-agent/internal/application/port"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

// InstanceRepository implements port.InstanceRepository on sqlite. The
// whole instance is stored as one row: scalar columns for the fields
// queries filter on, JSON documents for payload and stage history, and
// a version column backing the conditional update.
type InstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sql.DB, logger *zap.Logger) port.InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

// Create persists a new workflow instance at version 1
func (r *InstanceRepository) Create(ctx context.Context, instance *entity.WorkflowInstance) error {
	payload, history, err := marshalDocuments(instance)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_instances (
			id, status, current_stage, payload, stage_history, version,
			failure_stage, failure_kind, failure_reason, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?, ?, ?)
	`

	instance.Version = 1
	_, err = getExecutor(ctx, r.db).ExecContext(ctx, query,
		instance.ID,
		instance.Status.String(),
		instance.CurrentStage.String(),
		payload,
		history,
		instance.FailureStage.String(),
		instance.FailureKind,
		instance.FailureReason,
		instance.CreatedAt,
		instance.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create instance", zap.String("id", instance.ID), zap.Error(err))
		return fmt.Errorf("failed to create instance: %w", err)
	}
	return nil
}

// GetByID retrieves a workflow instance, returning (nil, nil) when absent
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*entity.WorkflowInstance, error) {
	query := `
		SELECT id, status, current_stage, payload, stage_history, version,
			failure_stage, failure_kind, failure_reason, created_at, updated_at
		FROM workflow_instances
		WHERE id = ?
	`

	instance, err := scanInstance(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get instance", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return instance, nil
}

// Update replaces the whole record when the stored version matches
// expectedVersion. A stale writer changes no rows and gets a conflict.
func (r *InstanceRepository) Update(ctx context.Context, instance *entity.WorkflowInstance, expectedVersion int64) error {
	payload, history, err := marshalDocuments(instance)
	if err != nil {
		return err
	}

	query := `
		UPDATE workflow_instances
		SET status = ?, current_stage = ?, payload = ?, stage_history = ?,
			version = version + 1, failure_stage = ?, failure_kind = ?,
			failure_reason = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		instance.Status.String(),
		instance.CurrentStage.String(),
		payload,
		history,
		instance.FailureStage.String(),
		instance.FailureKind,
		instance.FailureReason,
		instance.UpdatedAt,
		instance.ID,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update instance", zap.String("id", instance.ID), zap.Error(err))
		return fmt.Errorf("failed to update instance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: instance %s was modified concurrently (expected version %d)",
			workflow.ErrConflict, instance.ID, expectedVersion)
	}

	instance.Version = expectedVersion + 1
	return nil
}

// List returns instances filtered by status, newest first
func (r *InstanceRepository) List(ctx context.Context, status string, limit, offset int) ([]*entity.WorkflowInstance, error) {
	query := `
		SELECT id, status, current_stage, payload, stage_history, version,
			failure_stage, failure_kind, failure_reason, created_at, updated_at
		FROM workflow_instances
	`
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list instances", zap.Error(err))
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	var instances []*entity.WorkflowInstance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instances = append(instances, instance)
	}
	return instances, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstance(row rowScanner) (*entity.WorkflowInstance, error) {
	var instance entity.WorkflowInstance
	var status, currentStage, failureStage string
	var payload, history []byte

	err := row.Scan(
		&instance.ID,
		&status,
		&currentStage,
		&payload,
		&history,
		&instance.Version,
		&failureStage,
		&instance.FailureKind,
		&instance.FailureReason,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	instance.Status = workflow.Status(status)
	instance.CurrentStage = workflow.Stage(currentStage)
	instance.FailureStage = workflow.Stage(failureStage)

	if err := json.Unmarshal(payload, &instance.Payload); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	if err := json.Unmarshal(history, &instance.StageHistory); err != nil {
		return nil, fmt.Errorf("failed to decode stage history: %w", err)
	}
	return &instance, nil
}

func marshalDocuments(instance *entity.WorkflowInstance) (payload, history []byte, err error) {
	payload, err = json.Marshal(instance.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	if instance.StageHistory == nil {
		instance.StageHistory = []entity.StageRecord{}
	}
	history, err = json.Marshal(instance.StageHistory)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode stage history: %w", err)
	}
	return payload, history, nil
}

// Verify interface compliance
var _ port.InstanceRepository = (*InstanceRepository)(nil)
