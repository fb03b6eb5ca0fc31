package workflow

import "fmt"

// Graph is the compiled stage transition graph for a pipeline. It answers
// whether a transition is legal; it holds no per-instance state, so a
// single Graph is shared by every workflow instance.
type Graph interface {
	// CanTransition returns true if moving from one stage to another is permitted
	CanTransition(from, to Stage) bool

	// Permitted returns the stages reachable from the given stage, in
	// declaration order
	Permitted(from Stage) []Stage

	// Entry returns the pipeline entry stage
	Entry() Stage
}

// GraphBuilder builds a configured transition graph
type GraphBuilder interface {
	// Configure returns a stage configuration for the given stage
	Configure(stage Stage) StageConfiguration

	// Build compiles the graph with the given entry stage
	Build(entry Stage) Graph
}

// StageConfiguration configures outgoing transitions for a specific stage
type StageConfiguration interface {
	// Permit allows a transition to the target stage
	Permit(to Stage) StageConfiguration
}

type stageConfig struct {
	fromStage Stage
	targets   []Stage
}

type graphBuilder struct {
	configurations map[Stage]*stageConfig
}

type stageGraph struct {
	entry   Stage
	targets map[Stage][]Stage
}

// NewGraphBuilder creates a new transition graph builder
func NewGraphBuilder() GraphBuilder {
	return &graphBuilder{
		configurations: make(map[Stage]*stageConfig),
	}
}

// Configure returns a stage configuration for the given stage
func (b *graphBuilder) Configure(stage Stage) StageConfiguration {
	if !stage.IsValid() {
		panic(fmt.Sprintf("invalid stage: %s", stage))
	}

	config, exists := b.configurations[stage]
	if !exists {
		config = &stageConfig{fromStage: stage}
		b.configurations[stage] = config
	}

	return config
}

// Permit allows a transition to the target stage
func (c *stageConfig) Permit(to Stage) StageConfiguration {
	if !to.IsValid() {
		panic(fmt.Sprintf("invalid target stage: %s", to))
	}

	c.targets = append(c.targets, to)
	return c
}

// Build compiles the graph with the given entry stage
func (b *graphBuilder) Build(entry Stage) Graph {
	if !entry.IsValid() {
		panic(fmt.Sprintf("invalid entry stage: %s", entry))
	}

	// Copy targets so later builder mutations cannot leak into the graph
	targets := make(map[Stage][]Stage, len(b.configurations))
	for stage, config := range b.configurations {
		targets[stage] = append([]Stage{}, config.targets...)
	}

	return &stageGraph{entry: entry, targets: targets}
}

// CanTransition returns true if moving from one stage to another is permitted
func (g *stageGraph) CanTransition(from, to Stage) bool {
	for _, target := range g.targets[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Permitted returns the stages reachable from the given stage
func (g *stageGraph) Permitted(from Stage) []Stage {
	return append([]Stage{}, g.targets[from]...)
}

// Entry returns the pipeline entry stage
func (g *stageGraph) Entry() Stage {
	return g.entry
}

// NewInvoicePipeline builds the transition graph for the invoice
// processing pipeline. The MATCH stage branches to CHECKPOINT when the
// two-way match fails its threshold; HITL_DECISION branches back to
// EXTRACT when a rejection carries the reprocess flag.
func NewInvoicePipeline() Graph {
	builder := NewGraphBuilder()

	builder.Configure(StageIngest).Permit(StageExtract)
	builder.Configure(StageExtract).Permit(StageClassify)
	builder.Configure(StageClassify).Permit(StageEnrich)
	builder.Configure(StageEnrich).Permit(StageValidate)
	builder.Configure(StageValidate).Permit(StageRetrieve)
	builder.Configure(StageRetrieve).Permit(StageMatch)

	builder.Configure(StageMatch).
		Permit(StageReconcile).
		Permit(StageCheckpoint)

	builder.Configure(StageCheckpoint).Permit(StageHITLDecision)

	builder.Configure(StageHITLDecision).
		Permit(StageReconcile).
		Permit(StageExtract)

	builder.Configure(StageReconcile).Permit(StageApprove)
	builder.Configure(StageApprove).Permit(StagePost)
	builder.Configure(StagePost).Permit(StageNotify)
	builder.Configure(StageNotify).Permit(StageComplete)

	// COMPLETE is terminal, no outgoing transitions

	return builder.Build(StageIngest)
}
