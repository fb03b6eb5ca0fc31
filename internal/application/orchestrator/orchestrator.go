package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rohithsiddi/invoice-processing-agent/internal/application/checkpoint"
	"github.com/rohithsiddi/invoice-processing-agent/internal/application/port"
	"github.com/rohithsiddi/invoice-processing-agent/internal/application/stage"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/event"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

// Logger defines the logging interface used by the orchestrator
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// StageOutcome is the result of one advance call. Kind mirrors the
// stage record outcomes; Cached is set when a retried advance returns
// the previously persisted outcome instead of re-executing the stage.
type StageOutcome struct {
	InstanceID   string         `json:"instance_id"`
	Stage        workflow.Stage `json:"stage"`
	Kind         string         `json:"kind"`
	Next         workflow.Stage `json:"next,omitempty"`
	CheckpointID string         `json:"checkpoint_id,omitempty"`
	FailureKind  string         `json:"failure_kind,omitempty"`
	Reason       string         `json:"reason,omitempty"`
	Cached       bool           `json:"cached,omitempty"`
}

// Orchestrator drives workflow instances one stage at a time
type Orchestrator interface {
	// Create persists a new RUNNING instance at the pipeline entry stage
	Create(ctx context.Context, fileRef, fileType string) (*entity.WorkflowInstance, error)

	// Advance executes the instance's current stage and persists the
	// transition before reporting it
	Advance(ctx context.Context, instanceID string) (*StageOutcome, error)

	// AdvanceFrom is an idempotent advance: when the instance already
	// moved past expectedStage, the persisted outcome for that stage is
	// returned without re-executing anything
	AdvanceFrom(ctx context.Context, instanceID string, expectedStage workflow.Stage) (*StageOutcome, error)

	// Run advances repeatedly until the instance pauses, completes, or fails
	Run(ctx context.Context, instanceID string) (*StageOutcome, error)

	// Cancel terminally fails a non-terminal instance
	Cancel(ctx context.Context, instanceID string, reason string) error
}

type orchestrator struct {
	instances port.InstanceRepository
	tx        port.TransactionManager
	registry  *stage.Registry
	graph     workflow.Graph
	manager   *checkpoint.Manager
	events    port.EventSink
	logger    Logger
}

// New creates a new workflow orchestrator
func New(
	instances port.InstanceRepository,
	tx port.TransactionManager,
	registry *stage.Registry,
	graph workflow.Graph,
	manager *checkpoint.Manager,
	events port.EventSink,
	logger Logger,
) Orchestrator {
	if events == nil {
		events = port.NopEventSink{}
	}
	return &orchestrator{
		instances: instances,
		tx:        tx,
		registry:  registry,
		graph:     graph,
		manager:   manager,
		events:    events,
		logger:    logger,
	}
}

func (o *orchestrator) Create(ctx context.Context, fileRef, fileType string) (*entity.WorkflowInstance, error) {
	if fileRef == "" {
		return nil, fmt.Errorf("%w: file reference is required", workflow.ErrValidation)
	}

	instance := entity.NewWorkflowInstance(fileRef, fileType)
	instance.CurrentStage = o.graph.Entry()

	if err := o.instances.Create(ctx, instance); err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}

	o.events.Publish(ctx, event.NewEvent(event.TypeInstanceCreated, instance.ID, instance.CurrentStage, map[string]interface{}{
		"file_ref":  fileRef,
		"file_type": fileType,
	}))
	o.logger.Info("instance created", "instance_id", instance.ID, "file_ref", fileRef)

	return instance, nil
}

func (o *orchestrator) Advance(ctx context.Context, instanceID string) (*StageOutcome, error) {
	instance, err := o.load(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	return o.advance(ctx, instance)
}

func (o *orchestrator) AdvanceFrom(ctx context.Context, instanceID string, expectedStage workflow.Stage) (*StageOutcome, error) {
	instance, err := o.load(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if instance.CurrentStage == expectedStage && instance.Status == workflow.StatusRunning {
		return o.advance(ctx, instance)
	}

	// The instance moved on; a concurrent or retried caller gets the
	// outcome that was persisted when the stage actually ran.
	if rec := instance.LastRecordFor(expectedStage); rec != nil && rec.ExitedAt != nil {
		return cachedOutcome(instance, rec), nil
	}

	return nil, fmt.Errorf("%w: instance %s is at %s, expected %s",
		workflow.ErrInvalidState, instance.ID, instance.CurrentStage, expectedStage)
}

func (o *orchestrator) Run(ctx context.Context, instanceID string) (*StageOutcome, error) {
	for {
		outcome, err := o.Advance(ctx, instanceID)
		if err != nil {
			return nil, err
		}
		if outcome.Kind != entity.OutcomeAdvanced {
			return outcome, nil
		}
	}
}

func (o *orchestrator) Cancel(ctx context.Context, instanceID string, reason string) error {
	instance, err := o.load(ctx, instanceID)
	if err != nil {
		return err
	}
	if instance.Status.IsTerminal() {
		return fmt.Errorf("%w: instance %s already %s", workflow.ErrInvalidState, instance.ID, instance.Status)
	}

	if reason == "" {
		reason = "cancelled by operator"
	}
	instance.MarkFailed(instance.CurrentStage, "Cancelled", reason)
	instance.UpdatedAt = time.Now().UTC()

	if err := o.instances.Update(ctx, instance, instance.Version); err != nil {
		return fmt.Errorf("cancel instance %s: %w", instanceID, err)
	}

	o.events.Publish(ctx, event.NewEvent(event.TypeInstanceCancelled, instance.ID, instance.CurrentStage, map[string]interface{}{
		"reason": reason,
	}))
	o.logger.Info("instance cancelled", "instance_id", instance.ID, "reason", reason)
	return nil
}

func (o *orchestrator) load(ctx context.Context, instanceID string) (*entity.WorkflowInstance, error) {
	instance, err := o.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("load instance %s: %w", instanceID, err)
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: instance %s", workflow.ErrNotFound, instanceID)
	}
	return instance, nil
}

// advance executes the current stage against a payload copy, then
// persists instance state and the transition in one conditional write
// before reporting the outcome. A stale version loses the write and
// surfaces as a conflict.
func (o *orchestrator) advance(ctx context.Context, instance *entity.WorkflowInstance) (*StageOutcome, error) {
	switch instance.Status {
	case workflow.StatusRunning:
	case workflow.StatusPaused:
		return nil, fmt.Errorf("%w: instance %s is awaiting review", workflow.ErrInvalidState, instance.ID)
	default:
		return nil, fmt.Errorf("%w: instance %s is %s", workflow.ErrInvalidState, instance.ID, instance.Status)
	}

	current := instance.CurrentStage
	handler, err := o.registry.Handler(current)
	if err != nil {
		return nil, err
	}

	enteredAt := time.Now().UTC()
	o.events.Publish(ctx, event.NewEvent(event.TypeStageEntered, instance.ID, current, nil))

	payload := instance.Payload.Clone()
	result, execErr := handler.Execute(ctx, payload)
	exitedAt := time.Now().UTC()

	if execErr != nil {
		return o.persistFailure(ctx, instance, current, enteredAt, exitedAt, workflow.ErrorKind(execErr), execErr.Error())
	}

	switch {
	case result.Fail != nil:
		instance.Payload = payload
		return o.persistFailure(ctx, instance, current, enteredAt, exitedAt, result.Fail.Kind, result.Fail.Reason)

	case result.Pause != nil:
		return o.persistPause(ctx, instance, payload, current, enteredAt, exitedAt, result.Pause.Reason)

	case result.Done:
		return o.persistCompletion(ctx, instance, payload, current, enteredAt, exitedAt, result.Detail)

	default:
		return o.persistAdvance(ctx, instance, payload, current, result.Next, enteredAt, exitedAt, result.Detail)
	}
}

func (o *orchestrator) persistAdvance(ctx context.Context, instance *entity.WorkflowInstance, payload *entity.Payload, current, next workflow.Stage, enteredAt, exitedAt time.Time, detail string) (*StageOutcome, error) {
	if !o.graph.CanTransition(current, next) {
		return nil, fmt.Errorf("%w: handler for %s returned illegal transition to %s",
			workflow.ErrConfig, current, next)
	}

	instance.Payload = payload
	instance.CurrentStage = next
	instance.UpdatedAt = exitedAt
	instance.RecordStage(entity.StageRecord{
		Stage:     current,
		EnteredAt: enteredAt,
		ExitedAt:  &exitedAt,
		Outcome:   entity.OutcomeAdvanced,
		Next:      next,
		Detail:    detail,
	})

	if err := o.instances.Update(ctx, instance, instance.Version); err != nil {
		return nil, fmt.Errorf("persist advance of %s at %s: %w", instance.ID, current, err)
	}

	o.events.Publish(ctx, event.NewEvent(event.TypeStageExited, instance.ID, current, map[string]interface{}{
		"outcome": entity.OutcomeAdvanced,
		"next":    next.String(),
	}))
	o.logger.Info("stage advanced", "instance_id", instance.ID, "stage", current.String(), "next", next.String())

	return &StageOutcome{
		InstanceID: instance.ID,
		Stage:      current,
		Kind:       entity.OutcomeAdvanced,
		Next:       next,
		Reason:     detail,
	}, nil
}

func (o *orchestrator) persistPause(ctx context.Context, instance *entity.WorkflowInstance, payload *entity.Payload, current workflow.Stage, enteredAt, exitedAt time.Time, reason string) (*StageOutcome, error) {
	var cp *entity.Checkpoint
	err := o.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var openErr error
		cp, openErr = o.manager.Open(ctx, instance.ID, reason)
		if openErr != nil {
			return openErr
		}

		payload.Review = &entity.ReviewSection{
			CheckpointID: cp.ID,
			Reason:       reason,
		}
		instance.Payload = payload
		instance.Status = workflow.StatusPaused
		instance.CurrentStage = workflow.StageHITLDecision
		instance.UpdatedAt = exitedAt
		instance.RecordStage(entity.StageRecord{
			Stage:     current,
			EnteredAt: enteredAt,
			ExitedAt:  &exitedAt,
			Outcome:   entity.OutcomePaused,
			Next:      workflow.StageHITLDecision,
			Detail:    cp.ID,
		})

		return o.instances.Update(ctx, instance, instance.Version)
	})
	if err != nil {
		return nil, fmt.Errorf("persist pause of %s at %s: %w", instance.ID, current, err)
	}

	o.events.Publish(ctx, event.NewEvent(event.TypeCheckpointOpened, instance.ID, current, map[string]interface{}{
		"checkpoint_id": cp.ID,
		"reason":        reason,
	}))
	o.logger.Info("instance paused for review",
		"instance_id", instance.ID, "checkpoint_id", cp.ID, "reason", reason)

	// The checkpoint is durable; reviewer notification only has to be
	// best-effort from here.
	o.manager.NotifyReviewers(ctx, cp)

	return &StageOutcome{
		InstanceID:   instance.ID,
		Stage:        current,
		Kind:         entity.OutcomePaused,
		Next:         workflow.StageHITLDecision,
		CheckpointID: cp.ID,
		Reason:       reason,
	}, nil
}

func (o *orchestrator) persistCompletion(ctx context.Context, instance *entity.WorkflowInstance, payload *entity.Payload, current workflow.Stage, enteredAt, exitedAt time.Time, detail string) (*StageOutcome, error) {
	instance.Payload = payload
	instance.Status = workflow.StatusCompleted
	instance.UpdatedAt = exitedAt
	instance.RecordStage(entity.StageRecord{
		Stage:     current,
		EnteredAt: enteredAt,
		ExitedAt:  &exitedAt,
		Outcome:   entity.OutcomeCompleted,
		Detail:    detail,
	})

	if err := o.instances.Update(ctx, instance, instance.Version); err != nil {
		return nil, fmt.Errorf("persist completion of %s: %w", instance.ID, err)
	}

	o.events.Publish(ctx, event.NewEvent(event.TypeInstanceCompleted, instance.ID, current, nil))
	o.logger.Info("instance completed", "instance_id", instance.ID)

	return &StageOutcome{
		InstanceID: instance.ID,
		Stage:      current,
		Kind:       entity.OutcomeCompleted,
		Reason:     detail,
	}, nil
}

func (o *orchestrator) persistFailure(ctx context.Context, instance *entity.WorkflowInstance, current workflow.Stage, enteredAt, exitedAt time.Time, kind, reason string) (*StageOutcome, error) {
	instance.MarkFailed(current, kind, reason)
	instance.UpdatedAt = exitedAt
	instance.RecordStage(entity.StageRecord{
		Stage:     current,
		EnteredAt: enteredAt,
		ExitedAt:  &exitedAt,
		Outcome:   entity.OutcomeFailed,
		Detail:    fmt.Sprintf("%s: %s", kind, reason),
	})

	if err := o.instances.Update(ctx, instance, instance.Version); err != nil {
		return nil, fmt.Errorf("persist failure of %s at %s: %w", instance.ID, current, err)
	}

	o.events.Publish(ctx, event.NewEvent(event.TypeInstanceFailed, instance.ID, current, map[string]interface{}{
		"kind":   kind,
		"reason": reason,
	}))
	o.logger.Error("instance failed",
		"instance_id", instance.ID, "stage", current.String(), "kind", kind, "reason", reason)

	return &StageOutcome{
		InstanceID:  instance.ID,
		Stage:       current,
		Kind:        entity.OutcomeFailed,
		FailureKind: kind,
		Reason:      reason,
	}, nil
}

// cachedOutcome reconstructs the reported outcome of a stage that
// already ran, from its persisted history record
func cachedOutcome(instance *entity.WorkflowInstance, rec *entity.StageRecord) *StageOutcome {
	outcome := &StageOutcome{
		InstanceID: instance.ID,
		Stage:      rec.Stage,
		Kind:       rec.Outcome,
		Next:       rec.Next,
		Reason:     rec.Detail,
		Cached:     true,
	}
	switch rec.Outcome {
	case entity.OutcomePaused:
		outcome.CheckpointID = rec.Detail
	case entity.OutcomeFailed:
		outcome.FailureKind = instance.FailureKind
		outcome.Reason = instance.FailureReason
	}
	return outcome
}
