package stage

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

// ApproveHandler decides the approval status. A human-accepted review
// carries the reviewer's authority; otherwise a passing match under the
// auto-approve limit clears automatically, and anything else waits for
// manual approval outside the workflow.
type ApproveHandler struct {
	autoApproveLimit float64
}

// NewApproveHandler creates a new ApproveHandler
func NewApproveHandler(autoApproveLimit float64) *ApproveHandler {
	return &ApproveHandler{autoApproveLimit: autoApproveLimit}
}

func (h *ApproveHandler) Stage() workflow.Stage { return workflow.StageApprove }

func (h *ApproveHandler) Execute(ctx context.Context, payload *entity.Payload) (*Result, error) {
	if payload.Extraction == nil {
		return nil, fmt.Errorf("%w: approval requires extracted fields", workflow.ErrInvalidState)
	}

	total := math.Abs(payload.Extraction.Fields.Total)
	section := &entity.ApprovalSection{ApprovedAt: time.Now().UTC()}

	switch {
	case payload.Review != nil && payload.Review.Decision == entity.DecisionAccept:
		section.Status = entity.ApprovalHumanApproved
		section.Approver = payload.Review.Reviewer
		section.Reason = "accepted at review checkpoint"

	case payload.Match != nil && payload.Match.Result.Passed && total <= h.autoApproveLimit:
		section.Status = entity.ApprovalAutoApproved
		section.Approver = "system"
		section.Reason = fmt.Sprintf("match passed and total %.2f within auto-approve limit %.2f", total, h.autoApproveLimit)

	default:
		section.Status = entity.ApprovalPendingApproval
		section.Reason = fmt.Sprintf("total %.2f exceeds auto-approve limit %.2f", total, h.autoApproveLimit)
	}

	payload.Approval = section

	return &Result{
		Next:   workflow.StagePost,
		Detail: section.Status,
	}, nil
}
