package stage

import (
	"context"
	"fmt"
	"time"

	"github.com/rohithsiddi/invoice-processing-agent/internal/application/port"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

// PostHandler posts the reconciled entries to the ERP. Pending
// approvals skip posting, and an instance retried after a successful
// post never posts twice.
type PostHandler struct {
	erp    port.ERPClient
	retry  RetryPolicy
	logger Logger
}

// NewPostHandler creates a new PostHandler
func NewPostHandler(erp port.ERPClient, logger Logger) *PostHandler {
	if logger == nil {
		logger = NopLogger()
	}
	return &PostHandler{
		erp:    erp,
		retry:  RetryPolicy{MaxAttempts: 3, Backoff: time.Second},
		logger: logger,
	}
}

func (h *PostHandler) Stage() workflow.Stage { return workflow.StagePost }

func (h *PostHandler) Execute(ctx context.Context, payload *entity.Payload) (*Result, error) {
	if payload.Approval == nil || payload.Reconciliation == nil {
		return nil, fmt.Errorf("%w: posting requires approval and reconciliation results", workflow.ErrInvalidState)
	}

	if payload.Posting != nil && payload.Posting.Posted {
		return &Result{
			Next:   workflow.StageNotify,
			Detail: fmt.Sprintf("already posted as %s", payload.Posting.TransactionID),
		}, nil
	}

	if payload.Approval.Status == entity.ApprovalPendingApproval {
		payload.Posting = &entity.PostingSection{
			Skipped: true,
			Message: "awaiting manual approval, not posted",
		}
		return &Result{
			Next:   workflow.StageNotify,
			Detail: "posting skipped pending approval",
		}, nil
	}

	instanceID := ""
	if payload.Document != nil {
		instanceID = payload.Document.InvoiceID
	}

	var txID string
	err := h.retry.Do(ctx, func(ctx context.Context) error {
		var postErr error
		txID, postErr = h.erp.PostEntries(ctx, instanceID, payload.Reconciliation.Entries)
		return postErr
	})
	if err != nil {
		return nil, fmt.Errorf("post entries to erp: %w", err)
	}

	payload.Posting = &entity.PostingSection{
		Posted:        true,
		TransactionID: txID,
	}
	h.logger.Info("posted to erp", "transaction_id", txID)

	return &Result{
		Next:   workflow.StageNotify,
		Detail: fmt.Sprintf("posted as %s", txID),
	}, nil
}
