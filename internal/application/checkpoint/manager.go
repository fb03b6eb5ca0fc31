package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/rohithsiddi/invoice-processing-agent/internal/application/port"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/event"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

// Logger defines the logging interface used by the checkpoint manager
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Resolution is a reviewer's decision on an open checkpoint
type Resolution struct {
	Decision entity.Decision
	Reviewer string
	Notes    string
	Retry    bool
}

// Manager owns the checkpoint lifecycle: exactly one open checkpoint
// per workflow, resolved exactly once.
type Manager struct {
	checkpoints port.CheckpointRepository
	instances   port.InstanceRepository
	tx          port.TransactionManager
	notifier    port.Notifier
	events      port.EventSink
	reviewers   []string
	reviewURL   string
	logger      Logger
}

// NewManager creates a new checkpoint Manager
func NewManager(
	checkpoints port.CheckpointRepository,
	instances port.InstanceRepository,
	tx port.TransactionManager,
	notifier port.Notifier,
	events port.EventSink,
	reviewers []string,
	reviewURL string,
	logger Logger,
) *Manager {
	if events == nil {
		events = port.NopEventSink{}
	}
	return &Manager{
		checkpoints: checkpoints,
		instances:   instances,
		tx:          tx,
		notifier:    notifier,
		events:      events,
		reviewers:   reviewers,
		reviewURL:   reviewURL,
		logger:      logger,
	}
}

// Open creates a new open checkpoint for the workflow. The caller is
// expected to run this inside the same transaction that suspends the
// instance. A second open checkpoint for the same workflow is a
// conflict.
func (m *Manager) Open(ctx context.Context, workflowID, reason string) (*entity.Checkpoint, error) {
	existing, err := m.checkpoints.GetOpenByWorkflowID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("check open checkpoint for %s: %w", workflowID, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: workflow %s already has open checkpoint %s",
			workflow.ErrConflict, workflowID, existing.ID)
	}

	cp := entity.NewCheckpoint(workflowID, reason)
	if err := m.checkpoints.Create(ctx, cp); err != nil {
		return nil, fmt.Errorf("create checkpoint for %s: %w", workflowID, err)
	}
	return cp, nil
}

// Resolve records the reviewer's decision and moves the suspended
// instance back to RUNNING at the decision stage. The caller drives the
// actual resume. Resolving twice yields ErrAlreadyResolved; the second
// caller loses regardless of decision.
func (m *Manager) Resolve(ctx context.Context, checkpointID string, res Resolution) (*entity.Checkpoint, error) {
	if !res.Decision.IsValid() {
		return nil, fmt.Errorf("%w: unknown decision %q", workflow.ErrValidation, res.Decision)
	}
	if res.Reviewer == "" {
		return nil, fmt.Errorf("%w: reviewer is required", workflow.ErrValidation)
	}

	cp, err := m.checkpoints.GetByID(ctx, checkpointID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", checkpointID, err)
	}
	if cp == nil {
		return nil, fmt.Errorf("%w: checkpoint %s", workflow.ErrNotFound, checkpointID)
	}
	if cp.Resolved() {
		return nil, fmt.Errorf("%w: checkpoint %s", workflow.ErrAlreadyResolved, checkpointID)
	}

	resolvedAt := time.Now().UTC()
	err = m.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := m.checkpoints.Resolve(ctx, checkpointID, res.Decision, res.Reviewer, res.Notes, res.Retry, resolvedAt); err != nil {
			return err
		}

		instance, err := m.instances.GetByID(ctx, cp.WorkflowID)
		if err != nil {
			return fmt.Errorf("load instance %s: %w", cp.WorkflowID, err)
		}
		if instance == nil {
			return fmt.Errorf("%w: instance %s", workflow.ErrNotFound, cp.WorkflowID)
		}
		if instance.Status != workflow.StatusPaused {
			return fmt.Errorf("%w: instance %s is %s, expected %s",
				workflow.ErrInvalidState, instance.ID, instance.Status, workflow.StatusPaused)
		}

		instance.Status = workflow.StatusRunning
		instance.CurrentStage = workflow.StageHITLDecision
		if instance.Payload.Review == nil {
			instance.Payload.Review = &entity.ReviewSection{CheckpointID: cp.ID, Reason: cp.Reason}
		}
		instance.Payload.Review.Decision = res.Decision
		instance.Payload.Review.Reviewer = res.Reviewer
		instance.Payload.Review.Notes = res.Notes
		instance.Payload.Review.Retry = res.Retry
		instance.Payload.Review.DecidedAt = &resolvedAt
		instance.UpdatedAt = resolvedAt

		return m.instances.Update(ctx, instance, instance.Version)
	})
	if err != nil {
		return nil, err
	}

	cp.Decision = res.Decision
	cp.Reviewer = res.Reviewer
	cp.Notes = res.Notes
	cp.Retry = res.Retry
	cp.ResolvedAt = &resolvedAt

	m.logger.Info("checkpoint resolved",
		"checkpoint_id", cp.ID,
		"workflow_id", cp.WorkflowID,
		"decision", string(res.Decision),
		"reviewer", res.Reviewer)

	m.events.Publish(ctx, event.NewEvent(event.TypeCheckpointResolved, cp.WorkflowID, workflow.StageHITLDecision, map[string]interface{}{
		"checkpoint_id": cp.ID,
		"decision":      string(res.Decision),
		"reviewer":      res.Reviewer,
		"retry":         res.Retry,
	}))

	return cp, nil
}

// NotifyReviewers tells the review queue about a newly opened
// checkpoint. Delivery failures are logged, never surfaced; the
// checkpoint is already persisted and shows up in the pending list
// either way.
func (m *Manager) NotifyReviewers(ctx context.Context, cp *entity.Checkpoint) {
	subject := fmt.Sprintf("Invoice review needed: %s", cp.WorkflowID)
	body := fmt.Sprintf("Checkpoint %s is waiting for a decision.\nReason: %s\nReview: %s/%s",
		cp.ID, cp.Reason, m.reviewURL, cp.ID)

	for _, reviewer := range m.reviewers {
		err := m.notifier.Send(ctx, port.Notification{
			Recipient: reviewer,
			Subject:   subject,
			Body:      body,
			Kind:      "review_request",
		})
		if err != nil {
			m.logger.Error("reviewer notification failed",
				"checkpoint_id", cp.ID, "recipient", reviewer, "error", err)
		}
	}
}
