package workflow

// Stage identifies one step of the fixed invoice processing pipeline
type Stage string

const (
	StageIngest       Stage = "INGEST"
	StageExtract      Stage = "EXTRACT"
	StageClassify     Stage = "CLASSIFY"
	StageEnrich       Stage = "ENRICH"
	StageValidate     Stage = "VALIDATE"
	StageRetrieve     Stage = "RETRIEVE"
	StageMatch        Stage = "MATCH"
	StageCheckpoint   Stage = "CHECKPOINT"
	StageHITLDecision Stage = "HITL_DECISION"
	StageReconcile    Stage = "RECONCILE"
	StageApprove      Stage = "APPROVE"
	StagePost         Stage = "POST"
	StageNotify       Stage = "NOTIFY"
	StageComplete     Stage = "COMPLETE"
)

var validStages = map[Stage]bool{
	StageIngest:       true,
	StageExtract:      true,
	StageClassify:     true,
	StageEnrich:       true,
	StageValidate:     true,
	StageRetrieve:     true,
	StageMatch:        true,
	StageCheckpoint:   true,
	StageHITLDecision: true,
	StageReconcile:    true,
	StageApprove:      true,
	StagePost:         true,
	StageNotify:       true,
	StageComplete:     true,
}

// pipelineOrder is the canonical stage sequence, with the conditional
// CHECKPOINT/HITL_DECISION branch in its fixed position.
var pipelineOrder = []Stage{
	StageIngest,
	StageExtract,
	StageClassify,
	StageEnrich,
	StageValidate,
	StageRetrieve,
	StageMatch,
	StageCheckpoint,
	StageHITLDecision,
	StageReconcile,
	StageApprove,
	StagePost,
	StageNotify,
	StageComplete,
}

// Stages returns the canonical stage sequence
func Stages() []Stage {
	out := make([]Stage, len(pipelineOrder))
	copy(out, pipelineOrder)
	return out
}

// IsValid returns true if the stage is one of the 14 pipeline stages
func (s Stage) IsValid() bool {
	return validStages[s]
}

// String returns the string representation of the stage
func (s Stage) String() string {
	return string(s)
}

// Status represents the lifecycle state of a workflow instance
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

var statusTransitions = map[Status]map[Status]bool{
	StatusRunning: {StatusPaused: true, StatusCompleted: true, StatusFailed: true},
	StatusPaused:  {StatusRunning: true, StatusFailed: true},
}

// IsValid returns true for one of the defined lifecycle statuses
func (s Status) IsValid() bool {
	switch s {
	case StatusRunning, StatusPaused, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if no further status transitions are allowed
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition returns true if the status transition is allowed
func (s Status) CanTransition(to Status) bool {
	return statusTransitions[s][to]
}

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}
