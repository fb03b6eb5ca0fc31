package workflow

import "testing"

func TestStage_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		stage    Stage
		expected bool
	}{
		{"valid stage", StageIngest, true},
		{"valid stage", StageComplete, true},
		{"invalid stage", Stage("INVALID"), false},
		{"empty stage", Stage(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.stage.IsValid(); got != tt.expected {
				t.Errorf("Stage.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		expected bool
	}{
		{StatusRunning, false},
		{StatusPaused, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.expected {
				t.Errorf("Status.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestStatus_CanTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     Status
		to       Status
		expected bool
	}{
		{"running to paused", StatusRunning, StatusPaused, true},
		{"paused to running", StatusPaused, StatusRunning, true},
		{"running to completed", StatusRunning, StatusCompleted, true},
		{"running to failed", StatusRunning, StatusFailed, true},
		{"paused to failed", StatusPaused, StatusFailed, true},
		{"paused to completed", StatusPaused, StatusCompleted, false},
		{"completed to running", StatusCompleted, StatusRunning, false},
		{"failed to running", StatusFailed, StatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.expected {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.expected)
			}
		})
	}
}

func TestNewInvoicePipeline_LinearFlow(t *testing.T) {
	graph := NewInvoicePipeline()

	if graph.Entry() != StageIngest {
		t.Fatalf("Entry() = %s, want %s", graph.Entry(), StageIngest)
	}

	linear := [][2]Stage{
		{StageIngest, StageExtract},
		{StageExtract, StageClassify},
		{StageClassify, StageEnrich},
		{StageEnrich, StageValidate},
		{StageValidate, StageRetrieve},
		{StageRetrieve, StageMatch},
		{StageReconcile, StageApprove},
		{StageApprove, StagePost},
		{StagePost, StageNotify},
		{StageNotify, StageComplete},
	}

	for _, edge := range linear {
		if !graph.CanTransition(edge[0], edge[1]) {
			t.Errorf("CanTransition(%s, %s) = false, want true", edge[0], edge[1])
		}
	}
}

func TestNewInvoicePipeline_Branches(t *testing.T) {
	graph := NewInvoicePipeline()

	if !graph.CanTransition(StageMatch, StageReconcile) {
		t.Error("MATCH must be able to proceed directly to RECONCILE")
	}
	if !graph.CanTransition(StageMatch, StageCheckpoint) {
		t.Error("MATCH must be able to branch to CHECKPOINT")
	}
	if !graph.CanTransition(StageCheckpoint, StageHITLDecision) {
		t.Error("CHECKPOINT must lead to HITL_DECISION")
	}
	if !graph.CanTransition(StageHITLDecision, StageReconcile) {
		t.Error("accepted HITL decision must lead to RECONCILE")
	}
	if !graph.CanTransition(StageHITLDecision, StageExtract) {
		t.Error("rejected HITL decision with retry must re-enter EXTRACT")
	}
}

func TestNewInvoicePipeline_NoIllegalSkips(t *testing.T) {
	graph := NewInvoicePipeline()

	illegal := [][2]Stage{
		{StageIngest, StageClassify},
		{StageIngest, StageComplete},
		{StageMatch, StageHITLDecision},
		{StageMatch, StageApprove},
		{StageCheckpoint, StageReconcile},
		{StageComplete, StageIngest},
		{StageValidate, StageMatch},
	}

	for _, edge := range illegal {
		if graph.CanTransition(edge[0], edge[1]) {
			t.Errorf("CanTransition(%s, %s) = true, want false", edge[0], edge[1])
		}
	}

	if got := len(graph.Permitted(StageComplete)); got != 0 {
		t.Errorf("COMPLETE must be terminal, got %d outgoing transitions", got)
	}
}
