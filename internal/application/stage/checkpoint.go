package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

// CheckpointHandler turns a failed match into a human-readable pause
// reason. The orchestrator opens the checkpoint record and suspends the
// instance when it sees the pause directive.
type CheckpointHandler struct{}

// NewCheckpointHandler creates a new CheckpointHandler
func NewCheckpointHandler() *CheckpointHandler { return &CheckpointHandler{} }

func (h *CheckpointHandler) Stage() workflow.Stage { return workflow.StageCheckpoint }

func (h *CheckpointHandler) Execute(ctx context.Context, payload *entity.Payload) (*Result, error) {
	if payload.Match == nil {
		return nil, fmt.Errorf("%w: checkpoint requires a match result", workflow.ErrInvalidState)
	}

	reason := PauseReason(payload.Match.Result)
	return &Result{
		Pause:  &PauseDirective{Reason: reason},
		Detail: reason,
	}, nil
}

// PauseReason builds the review reason shown to the approver from the
// match evidence
func PauseReason(result entity.MatchResult) string {
	ev := result.Evidence

	if len(ev.HardFailures) > 0 {
		return strings.Join(ev.HardFailures, "; ")
	}

	var parts []string
	if !ev.AmountWithinTolerance {
		parts = append(parts, fmt.Sprintf("amount mismatch: $%.2f (%.1f%%)", ev.AmountDiff, ev.AmountDiffPct))
	}
	if ev.ItemsTotal > 0 && ev.ItemsMatched < ev.ItemsTotal {
		parts = append(parts, fmt.Sprintf("line items mismatch: only %d/%d matched", ev.ItemsMatched, ev.ItemsTotal))
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("match score %.2f below threshold %.2f", result.Score, result.Threshold))
	}
	return strings.Join(parts, "; ")
}
