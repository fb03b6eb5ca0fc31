package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

// StageRecord is one entry of the append-only stage history.
// Outcome is one of "advanced", "paused", "completed" or "failed"; Detail
// carries the checkpoint id for a pause and the error kind plus reason
// for a failure.
type StageRecord struct {
	Stage     workflow.Stage `json:"stage"`
	EnteredAt time.Time      `json:"entered_at"`
	ExitedAt  *time.Time     `json:"exited_at,omitempty"`
	Outcome   string         `json:"outcome"`
	Next      workflow.Stage `json:"next,omitempty"`
	Detail    string         `json:"detail,omitempty"`
}

// Stage record outcomes
const (
	OutcomeAdvanced  = "advanced"
	OutcomePaused    = "paused"
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// WorkflowInstance is one invoice run through the pipeline. Status and
// CurrentStage are mutated exclusively by the orchestrator; the version
// field backs the store's optimistic-concurrency check.
type WorkflowInstance struct {
	ID            string          `json:"id"`
	Status        workflow.Status `json:"status"`
	CurrentStage  workflow.Stage  `json:"current_stage"`
	Payload       *Payload        `json:"payload"`
	StageHistory  []StageRecord   `json:"stage_history"`
	Version       int64           `json:"version"`
	FailureStage  workflow.Stage  `json:"failure_stage,omitempty"`
	FailureKind   string          `json:"failure_kind,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewWorkflowInstance creates a RUNNING instance at the pipeline entry
// stage with the document section seeded from the raw file reference.
func NewWorkflowInstance(fileRef, fileType string) *WorkflowInstance {
	now := time.Now().UTC()
	id := fmt.Sprintf("INV-%s", uuid.NewString())

	return &WorkflowInstance{
		ID:           id,
		Status:       workflow.StatusRunning,
		CurrentStage: workflow.StageIngest,
		Payload: &Payload{
			Document: &DocumentSection{
				InvoiceID: id,
				FileRef:   fileRef,
				FileType:  fileType,
			},
		},
		StageHistory: []StageRecord{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// RecordStage appends a closed stage record to the history
func (w *WorkflowInstance) RecordStage(rec StageRecord) {
	w.StageHistory = append(w.StageHistory, rec)
}

// LastRecordFor returns the most recent history record for the given
// stage, or nil if the stage has never executed.
func (w *WorkflowInstance) LastRecordFor(stage workflow.Stage) *StageRecord {
	for i := len(w.StageHistory) - 1; i >= 0; i-- {
		if w.StageHistory[i].Stage == stage {
			return &w.StageHistory[i]
		}
	}
	return nil
}

// MarkFailed transitions the instance to FAILED with a recorded reason
func (w *WorkflowInstance) MarkFailed(stage workflow.Stage, kind, reason string) {
	w.Status = workflow.StatusFailed
	w.FailureStage = stage
	w.FailureKind = kind
	w.FailureReason = reason
}
