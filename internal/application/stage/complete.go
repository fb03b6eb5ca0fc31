package stage

import (
	"context"

	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

// CompleteHandler marks the terminal stage
type CompleteHandler struct{}

// NewCompleteHandler creates a new CompleteHandler
func NewCompleteHandler() *CompleteHandler { return &CompleteHandler{} }

func (h *CompleteHandler) Stage() workflow.Stage { return workflow.StageComplete }

func (h *CompleteHandler) Execute(ctx context.Context, payload *entity.Payload) (*Result, error) {
	return &Result{Done: true, Detail: "workflow complete"}, nil
}
