package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohithsiddi/invoice-processing-agent/internal/application/checkpoint"
	"github.com/rohithsiddi/invoice-processing-agent/internal/application/port"
	"github.com/rohithsiddi/invoice-processing-agent/internal/application/stage"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/event"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/matching"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
	"github.com/rohithsiddi/invoice-processing-agent/internal/infrastructure/persistence/memory"
)

type testLogger struct{}

func (testLogger) Info(string, ...interface{})  {}
func (testLogger) Error(string, ...interface{}) {}

type stubSelector struct{}

func (stubSelector) SelectTool(ctx context.Context, meta entity.DocumentMeta) (entity.OCRTool, error) {
	return entity.ToolTesseract, nil
}

type stubExtractor struct {
	fields entity.InvoiceFields
}

func (s *stubExtractor) Extract(ctx context.Context, fileRef string, tool entity.OCRTool) (*entity.ExtractionResult, error) {
	return &entity.ExtractionResult{Tool: tool, Confidence: 0.95, Fields: s.fields}, nil
}

type stubProcurement struct {
	pos []entity.PurchaseOrder
}

func (s *stubProcurement) LookupVendor(ctx context.Context, name string) (*entity.VendorSection, error) {
	return &entity.VendorSection{VendorID: "V-001", VendorName: name, Approved: true}, nil
}

func (s *stubProcurement) FindPurchaseOrders(ctx context.Context, vendor string) ([]entity.PurchaseOrder, error) {
	return s.pos, nil
}

func (s *stubProcurement) FindGoodsReceipts(ctx context.Context, poNumbers []string) ([]entity.GoodsReceipt, error) {
	return nil, nil
}

func (s *stubProcurement) InvoiceHistory(ctx context.Context, vendor string, limit int) ([]entity.HistoricalInvoice, error) {
	return nil, nil
}

type stubERP struct {
	mu    sync.Mutex
	calls int
}

func (s *stubERP) PostEntries(ctx context.Context, instanceID string, entries []entity.AccountingEntry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return fmt.Sprintf("TXN-%d", s.calls), nil
}

type stubNotifier struct {
	mu   sync.Mutex
	sent []port.Notification
}

func (s *stubNotifier) Send(ctx context.Context, n port.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

func (s *stubNotifier) byKind(kind string) []port.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []port.Notification
	for _, n := range s.sent {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

type auditSink struct {
	repo port.AuditRepository
}

func (s auditSink) Publish(ctx context.Context, evt *event.Event) {
	_ = s.repo.Append(ctx, evt)
}

type testEnv struct {
	store     *memory.Store
	orch      Orchestrator
	manager   *checkpoint.Manager
	erp       *stubERP
	notifier  *stubNotifier
	extractor *stubExtractor
	procure   *stubProcurement
}

func newTestEnv(t *testing.T, instances port.InstanceRepository) *testEnv {
	t.Helper()

	store := memory.NewStore()
	if instances == nil {
		instances = store.Instances()
	}
	return newTestEnvWithStore(t, store, instances)
}

func cleanInvoice() entity.InvoiceFields {
	return entity.InvoiceFields{
		InvoiceNumber: "INV-2024-001",
		VendorName:    "Acme Corp",
		Subtotal:      450.00,
		TaxAmount:     50.00,
		Total:         500.00,
		LineItems: []entity.LineItem{
			{Description: "Widget", Quantity: 5, UnitPrice: 90.00, Amount: 450.00},
		},
	}
}

func matchingPO(fields entity.InvoiceFields) entity.PurchaseOrder {
	return entity.PurchaseOrder{
		PONumber:   "PO-1001",
		VendorName: fields.VendorName,
		Total:      fields.Total,
		LineItems:  fields.LineItems,
	}
}

func TestHappyPathRunsToCompletion(t *testing.T) {
	env := newTestEnv(t, nil)
	fields := cleanInvoice()
	env.extractor.fields = fields
	env.procure.pos = []entity.PurchaseOrder{matchingPO(fields)}

	instance, err := env.orch.Create(context.Background(), "uploads/inv.pdf", "pdf")
	require.NoError(t, err)

	outcome, err := env.orch.Run(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeCompleted, outcome.Kind)

	final, err := env.store.Instances().GetByID(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, final.Status)
	assert.Equal(t, 1.0, final.Payload.Match.Result.Score)
	assert.Equal(t, entity.ApprovalAutoApproved, final.Payload.Approval.Status)
	assert.True(t, final.Payload.Posting.Posted)
	assert.Equal(t, 1, env.erp.calls)

	// Every non-review stage appears exactly once in history
	seen := map[workflow.Stage]int{}
	for _, rec := range final.StageHistory {
		seen[rec.Stage]++
		require.NotNil(t, rec.ExitedAt)
	}
	assert.Equal(t, 12, len(final.StageHistory))
	assert.Zero(t, seen[workflow.StageCheckpoint])
	assert.Zero(t, seen[workflow.StageHITLDecision])

	trail, err := env.store.Audit().ListByInstanceID(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, trail)
}

func pauseAtCheckpoint(t *testing.T, env *testEnv) *entity.WorkflowInstance {
	t.Helper()

	fields := cleanInvoice()
	fields.Subtotal = 1400.00
	fields.TaxAmount = 100.00
	fields.Total = 1500.00
	fields.LineItems = []entity.LineItem{
		{Description: "Widget", Quantity: 14, UnitPrice: 100.00, Amount: 1400.00},
	}
	env.extractor.fields = fields
	env.procure.pos = []entity.PurchaseOrder{{
		PONumber:   "PO-1001",
		VendorName: fields.VendorName,
		Total:      1000.00,
		LineItems:  fields.LineItems,
	}}

	instance, err := env.orch.Create(context.Background(), "uploads/inv.pdf", "pdf")
	require.NoError(t, err)

	outcome, err := env.orch.Run(context.Background(), instance.ID)
	require.NoError(t, err)
	require.Equal(t, entity.OutcomePaused, outcome.Kind)
	require.NotEmpty(t, outcome.CheckpointID)
	assert.Contains(t, outcome.Reason, "amount mismatch")

	paused, err := env.store.Instances().GetByID(context.Background(), instance.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusPaused, paused.Status)
	require.Equal(t, workflow.StageHITLDecision, paused.CurrentStage)
	require.Equal(t, outcome.CheckpointID, paused.Payload.Review.CheckpointID)
	return paused
}

func TestAmountMismatchPausesForReview(t *testing.T) {
	env := newTestEnv(t, nil)
	paused := pauseAtCheckpoint(t, env)

	// reviewers were told about the open checkpoint
	assert.Len(t, env.notifier.byKind("review_request"), 1)

	// advancing a paused instance is rejected
	_, err := env.orch.Advance(context.Background(), paused.ID)
	assert.ErrorIs(t, err, workflow.ErrInvalidState)
}

func TestAcceptResumesAndCompletes(t *testing.T) {
	env := newTestEnv(t, nil)
	paused := pauseAtCheckpoint(t, env)

	cp, err := env.manager.Resolve(context.Background(), paused.Payload.Review.CheckpointID, checkpoint.Resolution{
		Decision: entity.DecisionAccept,
		Reviewer: "alex",
		Notes:    "price increase confirmed with vendor",
	})
	require.NoError(t, err)
	assert.True(t, cp.Resolved())

	outcome, err := env.orch.Run(context.Background(), paused.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeCompleted, outcome.Kind)

	final, _ := env.store.Instances().GetByID(context.Background(), paused.ID)
	assert.Equal(t, entity.ApprovalHumanApproved, final.Payload.Approval.Status)
	assert.Equal(t, "alex", final.Payload.Approval.Approver)
	assert.True(t, final.Payload.Posting.Posted)
	assert.Equal(t, 1, env.erp.calls)
}

func TestRejectFailsTheRun(t *testing.T) {
	env := newTestEnv(t, nil)
	paused := pauseAtCheckpoint(t, env)
	cpID := paused.Payload.Review.CheckpointID

	_, err := env.manager.Resolve(context.Background(), cpID, checkpoint.Resolution{
		Decision: entity.DecisionReject,
		Reviewer: "alex",
	})
	require.NoError(t, err)

	outcome, err := env.orch.Run(context.Background(), paused.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeFailed, outcome.Kind)
	assert.Equal(t, "Rejected", outcome.FailureKind)

	final, _ := env.store.Instances().GetByID(context.Background(), paused.ID)
	assert.Equal(t, workflow.StatusFailed, final.Status)
	assert.Zero(t, env.erp.calls)

	// exactly-once resolution: the second verdict loses outright
	_, err = env.manager.Resolve(context.Background(), cpID, checkpoint.Resolution{
		Decision: entity.DecisionAccept,
		Reviewer: "sam",
	})
	assert.ErrorIs(t, err, workflow.ErrAlreadyResolved)
}

func TestRejectWithRetryReprocesses(t *testing.T) {
	env := newTestEnv(t, nil)
	paused := pauseAtCheckpoint(t, env)

	_, err := env.manager.Resolve(context.Background(), paused.Payload.Review.CheckpointID, checkpoint.Resolution{
		Decision: entity.DecisionReject,
		Reviewer: "alex",
		Retry:    true,
	})
	require.NoError(t, err)

	// the same mismatch recurs, so the run pauses at a fresh checkpoint
	outcome, err := env.orch.Run(context.Background(), paused.ID)
	require.NoError(t, err)
	require.Equal(t, entity.OutcomePaused, outcome.Kind)
	assert.NotEqual(t, paused.Payload.Review.CheckpointID, outcome.CheckpointID)

	final, _ := env.store.Instances().GetByID(context.Background(), paused.ID)
	assert.Equal(t, 2, final.Payload.Extraction.Attempt)
	assert.Equal(t, 2, final.Payload.Match.Attempt)
}

func TestAdvanceFromReturnsCachedOutcome(t *testing.T) {
	env := newTestEnv(t, nil)
	fields := cleanInvoice()
	env.extractor.fields = fields
	env.procure.pos = []entity.PurchaseOrder{matchingPO(fields)}

	instance, err := env.orch.Create(context.Background(), "uploads/inv.pdf", "pdf")
	require.NoError(t, err)

	first, err := env.orch.AdvanceFrom(context.Background(), instance.ID, workflow.StageIngest)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, workflow.StageExtract, first.Next)

	// a retried delivery of the same advance does not re-execute
	replay, err := env.orch.AdvanceFrom(context.Background(), instance.ID, workflow.StageIngest)
	require.NoError(t, err)
	assert.True(t, replay.Cached)
	assert.Equal(t, first.Kind, replay.Kind)
	assert.Equal(t, first.Next, replay.Next)

	// a stage that never ran is refused
	_, err = env.orch.AdvanceFrom(context.Background(), instance.ID, workflow.StageMatch)
	assert.ErrorIs(t, err, workflow.ErrInvalidState)
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t, nil)
	fields := cleanInvoice()
	env.extractor.fields = fields
	env.procure.pos = []entity.PurchaseOrder{matchingPO(fields)}

	instance, err := env.orch.Create(context.Background(), "uploads/inv.pdf", "pdf")
	require.NoError(t, err)

	require.NoError(t, env.orch.Cancel(context.Background(), instance.ID, "duplicate upload"))

	final, _ := env.store.Instances().GetByID(context.Background(), instance.ID)
	assert.Equal(t, workflow.StatusFailed, final.Status)
	assert.Equal(t, "Cancelled", final.FailureKind)

	err = env.orch.Cancel(context.Background(), instance.ID, "")
	assert.ErrorIs(t, err, workflow.ErrInvalidState)
}

func TestUnknownInstance(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.orch.Advance(context.Background(), "INV-missing")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

// barrierRepo forces two concurrent advances to load the same instance
// version before either persists
type barrierRepo struct {
	port.InstanceRepository
	barrier *sync.WaitGroup
}

func (r *barrierRepo) GetByID(ctx context.Context, id string) (*entity.WorkflowInstance, error) {
	instance, err := r.InstanceRepository.GetByID(ctx, id)
	r.barrier.Done()
	r.barrier.Wait()
	return instance, err
}

func TestConcurrentAdvanceOneWinner(t *testing.T) {
	store := memory.NewStore()
	var barrier sync.WaitGroup
	barrier.Add(2)
	repo := &barrierRepo{InstanceRepository: store.Instances(), barrier: &barrier}

	env := newTestEnvWithStore(t, store, repo)
	fields := cleanInvoice()
	env.extractor.fields = fields

	created := entity.NewWorkflowInstance("uploads/inv.pdf", "pdf")
	require.NoError(t, store.Instances().Create(context.Background(), created))

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := env.orch.Advance(context.Background(), created.ID)
			results <- err
		}()
	}

	var conflicts, successes int
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			require.ErrorIs(t, err, workflow.ErrConflict)
			conflicts++
		} else {
			successes++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)

	// the single surviving write advanced the instance exactly one stage
	final, err := store.Instances().GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StageExtract, final.CurrentStage)
	assert.Len(t, final.StageHistory, 1)
}

func newTestEnvWithStore(t *testing.T, store *memory.Store, instances port.InstanceRepository) *testEnv {
	t.Helper()

	erp := &stubERP{}
	notifier := &stubNotifier{}
	extractor := &stubExtractor{}
	procure := &stubProcurement{}
	sink := auditSink{repo: store.Audit()}

	manager := checkpoint.NewManager(
		store.Checkpoints(), instances, store, notifier, sink,
		[]string{"reviewer@company.com"}, "http://localhost:8080/review", testLogger{})

	registry, err := stage.NewRegistry(
		stage.NewIngestHandler(),
		stage.NewExtractHandler(stubSelector{}, extractor, 0.5, nil),
		stage.NewClassifyHandler(),
		stage.NewEnrichHandler(procure, nil),
		stage.NewValidateHandler(),
		stage.NewRetrieveHandler(procure, nil),
		stage.NewMatchHandler(matching.DefaultConfig(), nil),
		stage.NewCheckpointHandler(),
		stage.NewHITLDecisionHandler(false),
		stage.NewReconcileHandler(5.0),
		stage.NewApproveHandler(1000.00),
		stage.NewPostHandler(erp, nil),
		stage.NewNotifyHandler(notifier, []string{"ap@company.com"}, nil),
		stage.NewCompleteHandler(),
	)
	require.NoError(t, err)

	orch := New(instances, store, registry, workflow.NewInvoicePipeline(), manager, sink, testLogger{})

	return &testEnv{
		store:     store,
		orch:      orch,
		manager:   manager,
		erp:       erp,
		notifier:  notifier,
		extractor: extractor,
		procure:   procure,
	}
}
