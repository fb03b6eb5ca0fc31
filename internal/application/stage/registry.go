package stage

import (
	"context"
	"fmt"

	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

// PauseDirective asks the orchestrator to suspend the workflow and open
// a review checkpoint
type PauseDirective struct {
	Reason string
}

// FailDirective marks the workflow terminally failed without returning
// an error from the handler
type FailDirective struct {
	Kind   string
	Reason string
}

// Result is the outcome of executing one stage handler against a
// payload copy. Exactly one of Next, Pause, Done, or Fail is set.
type Result struct {
	Next   workflow.Stage
	Pause  *PauseDirective
	Done   bool
	Fail   *FailDirective
	Detail string
}

// Handler executes the business logic of a single pipeline stage. The
// payload is a private copy; mutations are only persisted when the
// handler returns without error.
type Handler interface {
	Stage() workflow.Stage
	Execute(ctx context.Context, payload *entity.Payload) (*Result, error)
}

// Registry resolves stage handlers by stage
type Registry struct {
	handlers map[workflow.Stage]Handler
}

// NewRegistry builds a registry from the given handlers. Every
// non-terminal pipeline stage must have exactly one handler.
func NewRegistry(handlers ...Handler) (*Registry, error) {
	byStage := make(map[workflow.Stage]Handler, len(handlers))
	for _, h := range handlers {
		s := h.Stage()
		if !s.IsValid() {
			return nil, fmt.Errorf("%w: handler registered for unknown stage %q", workflow.ErrConfig, s)
		}
		if _, ok := byStage[s]; ok {
			return nil, fmt.Errorf("%w: duplicate handler for stage %q", workflow.ErrConfig, s)
		}
		byStage[s] = h
	}
	for _, s := range workflow.Stages() {
		if _, ok := byStage[s]; !ok {
			return nil, fmt.Errorf("%w: no handler for stage %q", workflow.ErrConfig, s)
		}
	}
	return &Registry{handlers: byStage}, nil
}

// Handler returns the handler for a stage
func (r *Registry) Handler(s workflow.Stage) (Handler, error) {
	h, ok := r.handlers[s]
	if !ok {
		return nil, fmt.Errorf("%w: no handler for stage %q", workflow.ErrConfig, s)
	}
	return h, nil
}
