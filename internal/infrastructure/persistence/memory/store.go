// Package memory provides in-memory repository implementations backed
// by maps. They honor the same optimistic-concurrency contract as the
// database-backed repositories and are used by tests and local tooling.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/event"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

// Store holds all in-memory collections behind one lock
type Store struct {
	mu          sync.RWMutex
	instances   map[string]*entity.WorkflowInstance
	checkpoints map[string]*entity.Checkpoint
	audit       []*event.Event
	auditIDs    map[string]bool
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		instances:   make(map[string]*entity.WorkflowInstance),
		checkpoints: make(map[string]*entity.Checkpoint),
		auditIDs:    make(map[string]bool),
	}
}

// WithTransaction runs fn under the store's lock-free transactional
// contract. Map writes are already atomic per call; fn just runs.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Instances returns the instance repository view of the store
func (s *Store) Instances() *InstanceRepository { return &InstanceRepository{store: s} }

// Checkpoints returns the checkpoint repository view of the store
func (s *Store) Checkpoints() *CheckpointRepository { return &CheckpointRepository{store: s} }

// Audit returns the audit repository view of the store
func (s *Store) Audit() *AuditRepository { return &AuditRepository{store: s} }

// InstanceRepository is the in-memory workflow instance repository
type InstanceRepository struct {
	store *Store
}

func (r *InstanceRepository) Create(ctx context.Context, instance *entity.WorkflowInstance) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.instances[instance.ID]; exists {
		return fmt.Errorf("%w: instance %s already exists", workflow.ErrConflict, instance.ID)
	}

	instance.Version = 1
	r.store.instances[instance.ID] = snapshot(instance)
	return nil
}

func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*entity.WorkflowInstance, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	stored, ok := r.store.instances[id]
	if !ok {
		return nil, nil
	}
	return snapshot(stored), nil
}

func (r *InstanceRepository) Update(ctx context.Context, instance *entity.WorkflowInstance, expectedVersion int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.instances[instance.ID]
	if !ok {
		return fmt.Errorf("%w: instance %s", workflow.ErrNotFound, instance.ID)
	}
	if stored.Version != expectedVersion {
		return fmt.Errorf("%w: instance %s is at version %d, expected %d",
			workflow.ErrConflict, instance.ID, stored.Version, expectedVersion)
	}

	instance.Version = expectedVersion + 1
	r.store.instances[instance.ID] = snapshot(instance)
	return nil
}

func (r *InstanceRepository) List(ctx context.Context, status string, limit, offset int) ([]*entity.WorkflowInstance, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*entity.WorkflowInstance
	for _, instance := range r.store.instances {
		if status != "" && instance.Status.String() != status {
			continue
		}
		out = append(out, snapshot(instance))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// CheckpointRepository is the in-memory checkpoint repository
type CheckpointRepository struct {
	store *Store
}

func (r *CheckpointRepository) Create(ctx context.Context, cp *entity.Checkpoint) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.checkpoints[cp.ID]; exists {
		return fmt.Errorf("%w: checkpoint %s already exists", workflow.ErrConflict, cp.ID)
	}
	copied := *cp
	r.store.checkpoints[cp.ID] = &copied
	return nil
}

func (r *CheckpointRepository) GetByID(ctx context.Context, id string) (*entity.Checkpoint, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	stored, ok := r.store.checkpoints[id]
	if !ok {
		return nil, nil
	}
	copied := *stored
	return &copied, nil
}

func (r *CheckpointRepository) GetOpenByWorkflowID(ctx context.Context, workflowID string) (*entity.Checkpoint, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, cp := range r.store.checkpoints {
		if cp.WorkflowID == workflowID && !cp.Resolved() {
			copied := *cp
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *CheckpointRepository) ListOpen(ctx context.Context) ([]*entity.Checkpoint, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*entity.Checkpoint
	for _, cp := range r.store.checkpoints {
		if !cp.Resolved() {
			copied := *cp
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *CheckpointRepository) Resolve(ctx context.Context, id string, decision entity.Decision, reviewer, notes string, retry bool, resolvedAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.checkpoints[id]
	if !ok {
		return fmt.Errorf("%w: checkpoint %s", workflow.ErrNotFound, id)
	}
	if stored.Resolved() {
		return fmt.Errorf("%w: checkpoint %s", workflow.ErrAlreadyResolved, id)
	}

	stored.Decision = decision
	stored.Reviewer = reviewer
	stored.Notes = notes
	stored.Retry = retry
	stored.ResolvedAt = &resolvedAt
	return nil
}

// AuditRepository is the in-memory append-only audit log
type AuditRepository struct {
	store *Store
}

func (r *AuditRepository) Append(ctx context.Context, evt *event.Event) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.store.auditIDs[evt.ID] {
		return nil
	}
	r.store.auditIDs[evt.ID] = true
	copied := *evt
	r.store.audit = append(r.store.audit, &copied)
	return nil
}

func (r *AuditRepository) ListByInstanceID(ctx context.Context, instanceID string) ([]*event.Event, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*event.Event
	for _, evt := range r.store.audit {
		if evt.InstanceID == instanceID {
			copied := *evt
			out = append(out, &copied)
		}
	}
	return out, nil
}

// snapshot deep-copies an instance so callers never share payload or
// history slices with stored state
func snapshot(instance *entity.WorkflowInstance) *entity.WorkflowInstance {
	copied := *instance
	copied.Payload = instance.Payload.Clone()
	copied.StageHistory = append([]entity.StageRecord{}, instance.StageHistory...)
	return &copied
}
