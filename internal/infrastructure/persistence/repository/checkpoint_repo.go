package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rohithsiddi/invoice-processing-agent/internal/application/port"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

// CheckpointRepository implements port.CheckpointRepository on sqlite
type CheckpointRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCheckpointRepository creates a new checkpoint repository
func NewCheckpointRepository(db *sql.DB, logger *zap.Logger) port.CheckpointRepository {
	return &CheckpointRepository{db: db, logger: logger}
}

// Create persists an open checkpoint. The partial unique index on open
// checkpoints turns a concurrent second open into a constraint error.
func (r *CheckpointRepository) Create(ctx context.Context, cp *entity.Checkpoint) error {
	query := `
		INSERT INTO checkpoints (id, workflow_id, reason, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		cp.ID, cp.WorkflowID, cp.Reason, cp.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create checkpoint",
			zap.String("id", cp.ID), zap.String("workflow_id", cp.WorkflowID), zap.Error(err))
		return fmt.Errorf("failed to create checkpoint: %w", err)
	}
	return nil
}

// GetByID retrieves a checkpoint, returning (nil, nil) when absent
func (r *CheckpointRepository) GetByID(ctx context.Context, id string) (*entity.Checkpoint, error) {
	query := selectCheckpoint + " WHERE id = ?"

	cp, err := scanCheckpoint(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get checkpoint", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return cp, nil
}

// GetOpenByWorkflowID returns the open checkpoint for a workflow, or
// (nil, nil) when none is open
func (r *CheckpointRepository) GetOpenByWorkflowID(ctx context.Context, workflowID string) (*entity.Checkpoint, error) {
	query := selectCheckpoint + " WHERE workflow_id = ? AND resolved_at IS NULL"

	cp, err := scanCheckpoint(getExecutor(ctx, r.db).QueryRowContext(ctx, query, workflowID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get open checkpoint",
			zap.String("workflow_id", workflowID), zap.Error(err))
		return nil, fmt.Errorf("failed to get open checkpoint: %w", err)
	}
	return cp, nil
}

// ListOpen returns all unresolved checkpoints, oldest first
func (r *CheckpointRepository) ListOpen(ctx context.Context) ([]*entity.Checkpoint, error) {
	query := selectCheckpoint + " WHERE resolved_at IS NULL ORDER BY created_at ASC"

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list open checkpoints", zap.Error(err))
		return nil, fmt.Errorf("failed to list open checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []*entity.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, rows.Err()
}

// Resolve applies a decision to an open checkpoint. The resolved_at
// guard in the WHERE clause makes resolution first-writer-wins; a
// second resolution changes no rows.
func (r *CheckpointRepository) Resolve(ctx context.Context, id string, decision entity.Decision, reviewer, notes string, retry bool, resolvedAt time.Time) error {
	query := `
		UPDATE checkpoints
		SET decision = ?, reviewer = ?, notes = ?, retry = ?, resolved_at = ?
		WHERE id = ? AND resolved_at IS NULL
	`

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		decision.String(), reviewer, notes, retry, resolvedAt, id)
	if err != nil {
		r.logger.Error("Failed to resolve checkpoint", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to resolve checkpoint: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		existing, getErr := r.GetByID(ctx, id)
		if getErr == nil && existing == nil {
			return fmt.Errorf("%w: checkpoint %s", workflow.ErrNotFound, id)
		}
		return fmt.Errorf("%w: checkpoint %s", workflow.ErrAlreadyResolved, id)
	}
	return nil
}

const selectCheckpoint = `
	SELECT id, workflow_id, reason, decision, reviewer, notes, retry,
		created_at, resolved_at
	FROM checkpoints
`

func scanCheckpoint(row rowScanner) (*entity.Checkpoint, error) {
	var cp entity.Checkpoint
	var decision, reviewer, notes sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(
		&cp.ID,
		&cp.WorkflowID,
		&cp.Reason,
		&decision,
		&reviewer,
		&notes,
		&cp.Retry,
		&cp.CreatedAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	cp.Decision = entity.Decision(decision.String)
	cp.Reviewer = reviewer.String
	cp.Notes = notes.String
	if resolvedAt.Valid {
		cp.ResolvedAt = &resolvedAt.Time
	}
	return &cp, nil
}

// Verify interface compliance
var _ port.CheckpointRepository = (*CheckpointRepository)(nil)
