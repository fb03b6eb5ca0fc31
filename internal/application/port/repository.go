package port

import (
	"context"
	"time"

	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/event"
)

// InstanceRepository defines persistence for workflow instances.
// GetByID returns (nil, nil) when the instance does not exist.
type InstanceRepository interface {
	// Create persists a new instance at version 1
	Create(ctx context.Context, instance *entity.WorkflowInstance) error

	// GetByID loads a single instance including payload and stage history
	GetByID(ctx context.Context, id string) (*entity.WorkflowInstance, error)

	// Update replaces the whole record iff the stored version equals
	// expectedVersion, bumping the version. A stale expectedVersion
	// yields workflow.ErrConflict.
	Update(ctx context.Context, instance *entity.WorkflowInstance, expectedVersion int64) error

	// List returns instances filtered by status; an empty status returns all
	List(ctx context.Context, status string, limit, offset int) ([]*entity.WorkflowInstance, error)
}

// CheckpointRepository defines persistence for review checkpoints
type CheckpointRepository interface {
	Create(ctx context.Context, cp *entity.Checkpoint) error

	// GetByID returns (nil, nil) when the checkpoint does not exist
	GetByID(ctx context.Context, id string) (*entity.Checkpoint, error)

	// GetOpenByWorkflowID returns the open checkpoint for a workflow, or
	// (nil, nil) when none is open
	GetOpenByWorkflowID(ctx context.Context, workflowID string) (*entity.Checkpoint, error)

	// ListOpen returns all unresolved checkpoints, oldest first
	ListOpen(ctx context.Context) ([]*entity.Checkpoint, error)

	// Resolve records the decision on an open checkpoint. Resolving an
	// already resolved checkpoint yields workflow.ErrAlreadyResolved.
	Resolve(ctx context.Context, id string, decision entity.Decision, reviewer, notes string, retry bool, resolvedAt time.Time) error
}

// AuditRepository defines append-only persistence for audit events
type AuditRepository interface {
	// Append stores an event; a duplicate event ID is silently ignored
	Append(ctx context.Context, evt *event.Event) error

	ListByInstanceID(ctx context.Context, instanceID string) ([]*event.Event, error)
}

// TransactionManager defines the contract for running work in a
// database transaction. Repository calls made with the ctx passed to fn
// join the transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
