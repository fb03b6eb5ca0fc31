package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Decision is the human verdict applied to an open checkpoint
type Decision string

const (
	DecisionAccept Decision = "ACCEPT"
	DecisionReject Decision = "REJECT"
)

// IsValid returns true if the decision is ACCEPT or REJECT
func (d Decision) IsValid() bool {
	return d == DecisionAccept || d == DecisionReject
}

// String returns the string representation of the decision
func (d Decision) String() string {
	return string(d)
}

// Checkpoint is a persisted human-in-the-loop pause. At most one open
// checkpoint may exist per workflow instance; resolution is exactly-once.
type Checkpoint struct {
	ID         string     `json:"id"`
	WorkflowID string     `json:"workflow_id"`
	Reason     string     `json:"reason"`
	Decision   Decision   `json:"decision,omitempty"`
	Reviewer   string     `json:"reviewer,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	Retry      bool       `json:"retry,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// NewCheckpoint creates an open checkpoint for the given workflow
func NewCheckpoint(workflowID, reason string) *Checkpoint {
	return &Checkpoint{
		ID:         fmt.Sprintf("CHKPT-%s", uuid.NewString()),
		WorkflowID: workflowID,
		Reason:     reason,
		CreatedAt:  time.Now().UTC(),
	}
}

// Resolved returns true once a decision has been applied
func (c *Checkpoint) Resolved() bool {
	return c.ResolvedAt != nil
}
