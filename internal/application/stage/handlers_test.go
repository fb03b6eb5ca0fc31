package stage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohithsiddi/invoice-processing-agent/internal/application/port"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/matching"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

func extractedPayload() *entity.Payload {
	return &entity.Payload{
		Document: &entity.DocumentSection{
			InvoiceID: "INV-test",
			FileRef:   "uploads/invoice.pdf",
			FileType:  "pdf",
		},
		Extraction: &entity.ExtractionSection{
			Tool:       entity.ToolTesseract,
			Confidence: 0.92,
			Attempt:    1,
			Fields: entity.InvoiceFields{
				InvoiceNumber: "INV-2024-001",
				VendorName:    "Acme Corp",
				Subtotal:      900.00,
				TaxAmount:     100.00,
				Total:         1000.00,
				LineItems: []entity.LineItem{
					{Description: "Widget", Quantity: 9, UnitPrice: 100.00, Amount: 900.00},
				},
			},
		},
	}
}

func TestIngestHandler(t *testing.T) {
	h := NewIngestHandler()

	t.Run("accepts supported format", func(t *testing.T) {
		payload := &entity.Payload{Document: &entity.DocumentSection{FileRef: "uploads/a.pdf"}}
		result, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, workflow.StageExtract, result.Next)
		assert.Equal(t, "pdf", payload.Document.FileType)
		assert.NotNil(t, payload.Document.IngestedAt)
	})

	t.Run("rejects unsupported format", func(t *testing.T) {
		payload := &entity.Payload{Document: &entity.DocumentSection{FileRef: "uploads/a.docx"}}
		_, err := h.Execute(context.Background(), payload)
		assert.ErrorIs(t, err, workflow.ErrValidation)
	})

	t.Run("rejects missing document", func(t *testing.T) {
		_, err := h.Execute(context.Background(), &entity.Payload{})
		assert.ErrorIs(t, err, workflow.ErrValidation)
	})
}

func TestExtractHandler(t *testing.T) {
	fields := entity.InvoiceFields{InvoiceNumber: "INV-1", VendorName: "Acme Corp", Total: 100}

	selector := &mockToolSelector{
		SelectToolFunc: func(ctx context.Context, meta entity.DocumentMeta) (entity.OCRTool, error) {
			return entity.ToolTesseract, nil
		},
	}

	t.Run("extracts and records attempt", func(t *testing.T) {
		extractor := &mockExtractor{
			ExtractFunc: func(ctx context.Context, fileRef string, tool entity.OCRTool) (*entity.ExtractionResult, error) {
				return &entity.ExtractionResult{Tool: tool, Confidence: 0.9, Fields: fields}, nil
			},
		}
		h := NewExtractHandler(selector, extractor, 0.5, nil)

		payload := &entity.Payload{Document: &entity.DocumentSection{FileRef: "a.pdf", FileType: "pdf"}}
		result, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, workflow.StageClassify, result.Next)
		assert.Equal(t, 1, payload.Extraction.Attempt)
	})

	t.Run("re-extraction increments attempt", func(t *testing.T) {
		extractor := &mockExtractor{
			ExtractFunc: func(ctx context.Context, fileRef string, tool entity.OCRTool) (*entity.ExtractionResult, error) {
				return &entity.ExtractionResult{Tool: tool, Confidence: 0.9, Fields: fields}, nil
			},
		}
		h := NewExtractHandler(selector, extractor, 0.5, nil)

		payload := extractedPayload()
		_, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, 2, payload.Extraction.Attempt)
	})

	t.Run("retries transient failures", func(t *testing.T) {
		calls := 0
		extractor := &mockExtractor{
			ExtractFunc: func(ctx context.Context, fileRef string, tool entity.OCRTool) (*entity.ExtractionResult, error) {
				calls++
				if calls == 1 {
					return nil, workflow.Transient("ocr", errors.New("engine busy"))
				}
				return &entity.ExtractionResult{Tool: tool, Confidence: 0.9, Fields: fields}, nil
			},
		}
		h := NewExtractHandler(selector, extractor, 0.5, nil)
		h.retry.Backoff = 0

		payload := &entity.Payload{Document: &entity.DocumentSection{FileRef: "a.pdf", FileType: "pdf"}}
		_, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("low confidence fails the stage", func(t *testing.T) {
		extractor := &mockExtractor{
			ExtractFunc: func(ctx context.Context, fileRef string, tool entity.OCRTool) (*entity.ExtractionResult, error) {
				return &entity.ExtractionResult{Tool: tool, Confidence: 0.2, Fields: fields}, nil
			},
		}
		h := NewExtractHandler(selector, extractor, 0.5, nil)

		payload := &entity.Payload{Document: &entity.DocumentSection{FileRef: "a.pdf", FileType: "pdf"}}
		_, err := h.Execute(context.Background(), payload)
		assert.ErrorIs(t, err, workflow.ErrLowConfidence)
	})
}

func TestClassifyHandler(t *testing.T) {
	h := NewClassifyHandler()

	tests := []struct {
		name   string
		fields entity.InvoiceFields
		want   string
	}{
		{
			name: "service keywords dominate",
			fields: entity.InvoiceFields{Total: 500, LineItems: []entity.LineItem{
				{Description: "Consulting services March"},
				{Description: "Support retainer"},
			}},
			want: TypeService,
		},
		{
			name: "goods by default",
			fields: entity.InvoiceFields{Total: 500, LineItems: []entity.LineItem{
				{Description: "Steel brackets"},
				{Description: "Hex bolts"},
			}},
			want: TypeGoods,
		},
		{
			name:   "negative total is a credit note",
			fields: entity.InvoiceFields{Total: -250},
			want:   TypeCreditNote,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := extractedPayload()
			payload.Extraction.Fields = tt.fields
			result, err := h.Execute(context.Background(), payload)
			require.NoError(t, err)
			assert.Equal(t, workflow.StageEnrich, result.Next)
			assert.Equal(t, tt.want, payload.Classification.InvoiceType)
		})
	}
}

func TestEnrichHandler(t *testing.T) {
	t.Run("known vendor enriched", func(t *testing.T) {
		procurement := &mockProcurement{
			LookupVendorFunc: func(ctx context.Context, name string) (*entity.VendorSection, error) {
				return &entity.VendorSection{VendorID: "V-001", VendorName: name, Approved: true}, nil
			},
		}
		h := NewEnrichHandler(procurement, nil)

		payload := extractedPayload()
		result, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, workflow.StageValidate, result.Next)
		assert.Equal(t, "V-001", payload.Vendor.VendorID)
	})

	t.Run("unknown vendor keeps going", func(t *testing.T) {
		h := NewEnrichHandler(&mockProcurement{}, nil)

		payload := extractedPayload()
		result, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, workflow.StageValidate, result.Next)
		assert.Equal(t, "Acme Corp", payload.Vendor.VendorName)
		assert.Empty(t, payload.Vendor.VendorID)
	})
}

func TestValidateHandler(t *testing.T) {
	h := NewValidateHandler()

	t.Run("valid invoice proceeds", func(t *testing.T) {
		payload := extractedPayload()
		result, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, workflow.StageRetrieve, result.Next)
		assert.True(t, payload.Validation.Valid)
	})

	t.Run("arithmetic mismatch is terminal", func(t *testing.T) {
		payload := extractedPayload()
		payload.Extraction.Fields.Total = 1200.00
		_, err := h.Execute(context.Background(), payload)
		assert.ErrorIs(t, err, workflow.ErrValidation)
		assert.False(t, payload.Validation.Valid)
		assert.NotEmpty(t, payload.Validation.Errors)
	})

	t.Run("missing invoice number reported", func(t *testing.T) {
		payload := extractedPayload()
		payload.Extraction.Fields.InvoiceNumber = ""
		_, err := h.Execute(context.Background(), payload)
		assert.ErrorIs(t, err, workflow.ErrValidation)
	})
}

func TestRetrieveHandler(t *testing.T) {
	pos := []entity.PurchaseOrder{{PONumber: "PO-1", VendorName: "Acme Corp", Total: 1000}}

	t.Run("retrieves purchase orders", func(t *testing.T) {
		procurement := &mockProcurement{
			FindPurchaseOrdersFunc: func(ctx context.Context, vendor string) ([]entity.PurchaseOrder, error) {
				return pos, nil
			},
		}
		h := NewRetrieveHandler(procurement, nil)

		payload := extractedPayload()
		result, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, workflow.StageMatch, result.Next)
		assert.Len(t, payload.Retrieval.PurchaseOrders, 1)
	})

	t.Run("exhausted retries surface transient error", func(t *testing.T) {
		calls := 0
		procurement := &mockProcurement{
			FindPurchaseOrdersFunc: func(ctx context.Context, vendor string) ([]entity.PurchaseOrder, error) {
				calls++
				return nil, workflow.Transient("procurement", errors.New("503"))
			},
		}
		h := NewRetrieveHandler(procurement, nil)
		h.retry.Backoff = 0

		_, err := h.Execute(context.Background(), extractedPayload())
		assert.True(t, workflow.IsTransient(err))
		assert.Equal(t, 3, calls)
	})

	t.Run("duplicate invoice number in history fails the run", func(t *testing.T) {
		procurement := &mockProcurement{
			InvoiceHistoryFunc: func(ctx context.Context, vendor string, limit int) ([]entity.HistoricalInvoice, error) {
				return []entity.HistoricalInvoice{{InvoiceNumber: "INV-2024-001", Total: 1000, Status: "paid"}}, nil
			},
		}
		h := NewRetrieveHandler(procurement, nil)

		_, err := h.Execute(context.Background(), extractedPayload())
		require.ErrorIs(t, err, workflow.ErrValidation)
		assert.Contains(t, err.Error(), "already processed")
	})

	t.Run("empty result is not an error", func(t *testing.T) {
		h := NewRetrieveHandler(&mockProcurement{}, nil)
		payload := extractedPayload()
		result, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, workflow.StageMatch, result.Next)
		assert.Empty(t, payload.Retrieval.PurchaseOrders)
	})
}

func TestMatchHandler(t *testing.T) {
	cfg := matching.DefaultConfig()

	t.Run("pass routes to reconcile", func(t *testing.T) {
		payload := extractedPayload()
		payload.Retrieval = &entity.RetrievalSection{PurchaseOrders: []entity.PurchaseOrder{{
			PONumber:   "PO-1",
			VendorName: "Acme Corp",
			Total:      1000.00,
			LineItems:  payload.Extraction.Fields.LineItems,
		}}}

		h := NewMatchHandler(cfg, nil)
		result, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, workflow.StageReconcile, result.Next)
		assert.True(t, payload.Match.Result.Passed)
	})

	t.Run("failure routes to checkpoint", func(t *testing.T) {
		payload := extractedPayload()
		payload.Retrieval = &entity.RetrievalSection{}

		h := NewMatchHandler(cfg, nil)
		result, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, workflow.StageCheckpoint, result.Next)
		assert.False(t, payload.Match.Result.Passed)
	})

	t.Run("re-run increments attempt", func(t *testing.T) {
		payload := extractedPayload()
		payload.Retrieval = &entity.RetrievalSection{}
		payload.Match = &entity.MatchSection{Attempt: 1}

		h := NewMatchHandler(cfg, nil)
		_, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, 2, payload.Match.Attempt)
	})
}

func TestCheckpointHandler(t *testing.T) {
	h := NewCheckpointHandler()

	t.Run("builds reason from evidence", func(t *testing.T) {
		payload := extractedPayload()
		payload.Match = &entity.MatchSection{Result: entity.MatchResult{
			Score:     0.55,
			Threshold: 0.85,
			Evidence: entity.MatchEvidence{
				AmountDiff:    500.00,
				AmountDiffPct: 50.0,
				ItemsMatched:  1,
				ItemsTotal:    3,
			},
		}}

		result, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		require.NotNil(t, result.Pause)
		assert.Contains(t, result.Pause.Reason, "amount mismatch: $500.00 (50.0%)")
		assert.Contains(t, result.Pause.Reason, "line items mismatch: only 1/3 matched")
	})

	t.Run("hard failures take precedence", func(t *testing.T) {
		payload := extractedPayload()
		payload.Match = &entity.MatchSection{Result: entity.MatchResult{
			Evidence: entity.MatchEvidence{HardFailures: []string{matching.HardFailVendorMismatch}},
		}}

		result, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, matching.HardFailVendorMismatch, result.Pause.Reason)
	})
}

func TestHITLDecisionHandler(t *testing.T) {
	t.Run("accept proceeds to reconcile", func(t *testing.T) {
		h := NewHITLDecisionHandler(false)
		payload := extractedPayload()
		payload.Review = &entity.ReviewSection{Decision: entity.DecisionAccept, Reviewer: "alex"}

		result, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, workflow.StageReconcile, result.Next)
	})

	t.Run("reject fails the run", func(t *testing.T) {
		h := NewHITLDecisionHandler(false)
		payload := extractedPayload()
		payload.Review = &entity.ReviewSection{Decision: entity.DecisionReject, Reviewer: "alex"}

		result, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		require.NotNil(t, result.Fail)
		assert.Equal(t, "Rejected", result.Fail.Kind)
	})

	t.Run("reject with retry flag reprocesses", func(t *testing.T) {
		h := NewHITLDecisionHandler(false)
		payload := extractedPayload()
		payload.Review = &entity.ReviewSection{Decision: entity.DecisionReject, Reviewer: "alex", Retry: true}

		result, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, workflow.StageExtract, result.Next)
	})

	t.Run("reject reprocesses when configured globally", func(t *testing.T) {
		h := NewHITLDecisionHandler(true)
		payload := extractedPayload()
		payload.Review = &entity.ReviewSection{Decision: entity.DecisionReject, Reviewer: "alex"}

		result, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, workflow.StageExtract, result.Next)
	})

	t.Run("missing decision is invalid state", func(t *testing.T) {
		h := NewHITLDecisionHandler(false)
		_, err := h.Execute(context.Background(), extractedPayload())
		assert.ErrorIs(t, err, workflow.ErrInvalidState)
	})
}

func TestReconcileHandler(t *testing.T) {
	h := NewReconcileHandler(5.0)

	t.Run("entries balance", func(t *testing.T) {
		payload := extractedPayload()
		payload.Classification = &entity.ClassificationSection{InvoiceType: TypeGoods}

		result, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, workflow.StageApprove, result.Next)

		var debits, credits float64
		for _, e := range payload.Reconciliation.Entries {
			debits += e.Debit
			credits += e.Credit
		}
		assert.InDelta(t, debits, credits, 0.005)
	})

	t.Run("variance against matched po", func(t *testing.T) {
		payload := extractedPayload()
		payload.Match = &entity.MatchSection{Result: entity.MatchResult{PONumber: "PO-1"}}
		payload.Retrieval = &entity.RetrievalSection{PurchaseOrders: []entity.PurchaseOrder{
			{PONumber: "PO-1", Total: 1050.00},
		}}

		_, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		report := payload.Reconciliation.Report
		assert.Equal(t, 1050.00, report.POTotal)
		assert.InDelta(t, -50.00, report.Variance, 0.005)
		assert.True(t, report.WithinTolerance)
	})
}

func TestApproveHandler(t *testing.T) {
	h := NewApproveHandler(1000.00)

	t.Run("human accept wins", func(t *testing.T) {
		payload := extractedPayload()
		payload.Review = &entity.ReviewSection{Decision: entity.DecisionAccept, Reviewer: "alex"}

		_, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, entity.ApprovalHumanApproved, payload.Approval.Status)
		assert.Equal(t, "alex", payload.Approval.Approver)
	})

	t.Run("passing match under limit auto-approves", func(t *testing.T) {
		payload := extractedPayload()
		payload.Match = &entity.MatchSection{Result: entity.MatchResult{Passed: true}}

		_, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, entity.ApprovalAutoApproved, payload.Approval.Status)
	})

	t.Run("over limit stays pending", func(t *testing.T) {
		payload := extractedPayload()
		payload.Extraction.Fields.Total = 5000.00
		payload.Match = &entity.MatchSection{Result: entity.MatchResult{Passed: true}}

		_, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, entity.ApprovalPendingApproval, payload.Approval.Status)
	})
}

func TestPostHandler(t *testing.T) {
	baseline := func() *entity.Payload {
		payload := extractedPayload()
		payload.Approval = &entity.ApprovalSection{Status: entity.ApprovalAutoApproved}
		payload.Reconciliation = &entity.ReconciliationSection{Entries: []entity.AccountingEntry{
			{Account: "5000", Debit: 1000}, {Account: "2000", Credit: 1000},
		}}
		return payload
	}

	t.Run("posts approved entries", func(t *testing.T) {
		erp := &mockERP{
			PostEntriesFunc: func(ctx context.Context, instanceID string, entries []entity.AccountingEntry) (string, error) {
				return "TXN-42", nil
			},
		}
		h := NewPostHandler(erp, nil)

		payload := baseline()
		result, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, workflow.StageNotify, result.Next)
		assert.True(t, payload.Posting.Posted)
		assert.Equal(t, "TXN-42", payload.Posting.TransactionID)
	})

	t.Run("pending approval skips posting", func(t *testing.T) {
		h := NewPostHandler(&mockERP{}, nil)

		payload := baseline()
		payload.Approval.Status = entity.ApprovalPendingApproval
		result, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, workflow.StageNotify, result.Next)
		assert.True(t, payload.Posting.Skipped)
		assert.False(t, payload.Posting.Posted)
	})

	t.Run("already posted never posts twice", func(t *testing.T) {
		calls := 0
		erp := &mockERP{
			PostEntriesFunc: func(ctx context.Context, instanceID string, entries []entity.AccountingEntry) (string, error) {
				calls++
				return "TXN-43", nil
			},
		}
		h := NewPostHandler(erp, nil)

		payload := baseline()
		payload.Posting = &entity.PostingSection{Posted: true, TransactionID: "TXN-42"}
		_, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		assert.Zero(t, calls)
		assert.Equal(t, "TXN-42", payload.Posting.TransactionID)
	})

	t.Run("retries transient erp failures", func(t *testing.T) {
		calls := 0
		erp := &mockERP{
			PostEntriesFunc: func(ctx context.Context, instanceID string, entries []entity.AccountingEntry) (string, error) {
				calls++
				if calls < 3 {
					return "", workflow.Transient("erp", errors.New("timeout"))
				}
				return "TXN-44", nil
			},
		}
		h := NewPostHandler(erp, nil)
		h.retry.Backoff = 0

		payload := baseline()
		_, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})
}

func TestNotifyHandler(t *testing.T) {
	t.Run("delivery failure does not fail the stage", func(t *testing.T) {
		notifier := &mockNotifier{
			SendFunc: func(ctx context.Context, n port.Notification) error {
				if n.Recipient == "down@company.com" {
					return errors.New("connection refused")
				}
				return nil
			},
		}
		h := NewNotifyHandler(notifier, []string{"ap@company.com", "down@company.com"}, nil)

		payload := extractedPayload()
		result, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, workflow.StageComplete, result.Next)
		require.Len(t, payload.Notification.Deliveries, 2)
		assert.Equal(t, "SENT", payload.Notification.Deliveries[0].Status)
		assert.Equal(t, "FAILED", payload.Notification.Deliveries[1].Status)
	})

	t.Run("vendor contact joins the fan-out", func(t *testing.T) {
		var recipients []string
		notifier := &mockNotifier{
			SendFunc: func(ctx context.Context, n port.Notification) error {
				recipients = append(recipients, n.Recipient)
				return nil
			},
		}
		h := NewNotifyHandler(notifier, []string{"ap@company.com"}, nil)

		payload := extractedPayload()
		payload.Vendor = &entity.VendorSection{VendorID: "V-1", ContactEmail: "billing@acme.example"}
		_, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, []string{"ap@company.com", "billing@acme.example"}, recipients)
	})
}

func TestRegistry(t *testing.T) {
	full := func() []Handler {
		return []Handler{
			NewIngestHandler(),
			NewExtractHandler(&mockToolSelector{}, &mockExtractor{}, 0.5, nil),
			NewClassifyHandler(),
			NewEnrichHandler(&mockProcurement{}, nil),
			NewValidateHandler(),
			NewRetrieveHandler(&mockProcurement{}, nil),
			NewMatchHandler(matching.DefaultConfig(), nil),
			NewCheckpointHandler(),
			NewHITLDecisionHandler(false),
			NewReconcileHandler(5.0),
			NewApproveHandler(1000),
			NewPostHandler(&mockERP{}, nil),
			NewNotifyHandler(&mockNotifier{}, nil, nil),
			NewCompleteHandler(),
		}
	}

	t.Run("full set builds", func(t *testing.T) {
		registry, err := NewRegistry(full()...)
		require.NoError(t, err)
		for _, s := range workflow.Stages() {
			h, err := registry.Handler(s)
			require.NoError(t, err)
			assert.Equal(t, s, h.Stage())
		}
	})

	t.Run("missing handler is a config error", func(t *testing.T) {
		_, err := NewRegistry(full()[:13]...)
		assert.ErrorIs(t, err, workflow.ErrConfig)
	})

	t.Run("duplicate handler is a config error", func(t *testing.T) {
		_, err := NewRegistry(append(full(), NewCompleteHandler())...)
		assert.ErrorIs(t, err, workflow.ErrConfig)
	})
}
