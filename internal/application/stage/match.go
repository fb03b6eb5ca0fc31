package stage

import (
	"context"
	"fmt"

	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/matching"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

// MatchHandler runs the two-way matching engine over the retrieved
// purchase orders. A passing score proceeds to reconciliation; a
// failing score routes to a review checkpoint.
type MatchHandler struct {
	cfg    matching.Config
	logger Logger
}

// NewMatchHandler creates a new MatchHandler
func NewMatchHandler(cfg matching.Config, logger Logger) *MatchHandler {
	if logger == nil {
		logger = NopLogger()
	}
	return &MatchHandler{cfg: cfg, logger: logger}
}

func (h *MatchHandler) Stage() workflow.Stage { return workflow.StageMatch }

func (h *MatchHandler) Execute(ctx context.Context, payload *entity.Payload) (*Result, error) {
	if payload.Extraction == nil || payload.Retrieval == nil {
		return nil, fmt.Errorf("%w: matching requires extraction and retrieval results", workflow.ErrInvalidState)
	}

	result := matching.BestMatch(payload.Extraction.Fields, payload.Retrieval.PurchaseOrders, h.cfg)

	attempt := 1
	if payload.Match != nil {
		attempt = payload.Match.Attempt + 1
	}
	payload.Match = &entity.MatchSection{Result: result, Attempt: attempt}

	h.logger.Info("match scored",
		"score", result.Score,
		"passed", result.Passed,
		"po", result.PONumber,
		"attempt", attempt)

	if !result.Passed {
		return &Result{
			Next:   workflow.StageCheckpoint,
			Detail: fmt.Sprintf("match failed with score %.2f against threshold %.2f", result.Score, result.Threshold),
		}, nil
	}

	return &Result{
		Next:   workflow.StageReconcile,
		Detail: fmt.Sprintf("matched %s with score %.2f", result.PONumber, result.Score),
	}, nil
}
