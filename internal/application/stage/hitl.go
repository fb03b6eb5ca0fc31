package stage

import (
	"context"
	"fmt"

	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

// HITLDecisionHandler applies a resolved review decision when the
// workflow resumes. ACCEPT overrides the failed match and proceeds to
// reconciliation; REJECT either fails the run or re-enters extraction
// when reprocessing is requested.
type HITLDecisionHandler struct {
	rejectReprocesses bool
}

// NewHITLDecisionHandler creates a new HITLDecisionHandler.
// rejectReprocesses routes rejections back through extraction by
// default; the per-decision retry flag takes precedence either way.
func NewHITLDecisionHandler(rejectReprocesses bool) *HITLDecisionHandler {
	return &HITLDecisionHandler{rejectReprocesses: rejectReprocesses}
}

func (h *HITLDecisionHandler) Stage() workflow.Stage { return workflow.StageHITLDecision }

func (h *HITLDecisionHandler) Execute(ctx context.Context, payload *entity.Payload) (*Result, error) {
	review := payload.Review
	if review == nil || review.Decision == "" {
		return nil, fmt.Errorf("%w: no resolved review decision on instance", workflow.ErrInvalidState)
	}

	switch review.Decision {
	case entity.DecisionAccept:
		return &Result{
			Next:   workflow.StageReconcile,
			Detail: fmt.Sprintf("match accepted by %s", review.Reviewer),
		}, nil

	case entity.DecisionReject:
		if review.Retry || h.rejectReprocesses {
			return &Result{
				Next:   workflow.StageExtract,
				Detail: fmt.Sprintf("rejected by %s, reprocessing from extraction", review.Reviewer),
			}, nil
		}
		return &Result{
			Fail: &FailDirective{
				Kind:   "Rejected",
				Reason: fmt.Sprintf("rejected by reviewer %s", review.Reviewer),
			},
			Detail: "rejected by reviewer",
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown review decision %q", workflow.ErrValidation, review.Decision)
	}
}
