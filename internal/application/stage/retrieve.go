package stage

import (
	"context"
	"fmt"
	"time"

	"github.com/rohithsiddi/invoice-processing-agent/internal/application/port"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

const historyLimit = 10

// RetrieveHandler fetches open purchase orders, goods receipts, and
// invoice history for the vendor. Finding nothing is a valid outcome;
// the matching engine turns an empty PO set into a hard failure.
type RetrieveHandler struct {
	procurement port.ProcurementClient
	retry       RetryPolicy
	logger      Logger
}

// NewRetrieveHandler creates a new RetrieveHandler
func NewRetrieveHandler(procurement port.ProcurementClient, logger Logger) *RetrieveHandler {
	if logger == nil {
		logger = NopLogger()
	}
	return &RetrieveHandler{
		procurement: procurement,
		retry:       RetryPolicy{MaxAttempts: 3, Backoff: time.Second},
		logger:      logger,
	}
}

func (h *RetrieveHandler) Stage() workflow.Stage { return workflow.StageRetrieve }

func (h *RetrieveHandler) Execute(ctx context.Context, payload *entity.Payload) (*Result, error) {
	if payload.Extraction == nil {
		return nil, fmt.Errorf("%w: retrieval requires extracted fields", workflow.ErrInvalidState)
	}

	vendor := payload.Extraction.Fields.VendorName
	if payload.Vendor != nil && payload.Vendor.VendorName != "" {
		vendor = payload.Vendor.VendorName
	}

	var pos []entity.PurchaseOrder
	err := h.retry.Do(ctx, func(ctx context.Context) error {
		var findErr error
		pos, findErr = h.procurement.FindPurchaseOrders(ctx, vendor)
		return findErr
	})
	if err != nil {
		return nil, fmt.Errorf("find purchase orders for %q: %w", vendor, err)
	}

	section := &entity.RetrievalSection{PurchaseOrders: pos}

	if len(pos) > 0 {
		poNumbers := make([]string, 0, len(pos))
		for _, po := range pos {
			poNumbers = append(poNumbers, po.PONumber)
		}
		grns, grnErr := h.procurement.FindGoodsReceipts(ctx, poNumbers)
		if grnErr != nil {
			// receipts are supporting evidence, not a matching input
			h.logger.Error("goods receipt lookup failed", "vendor", vendor, "error", grnErr)
		} else {
			section.GoodsReceipts = grns
		}
	}

	history, histErr := h.procurement.InvoiceHistory(ctx, vendor, historyLimit)
	if histErr != nil {
		h.logger.Error("invoice history lookup failed", "vendor", vendor, "error", histErr)
	} else {
		section.History = history
	}

	payload.Retrieval = section

	// A prior invoice with the same number from this vendor is a duplicate
	invoiceNumber := payload.Extraction.Fields.InvoiceNumber
	for _, prior := range section.History {
		if prior.InvoiceNumber == invoiceNumber {
			return nil, fmt.Errorf("%w: invoice %s already processed for vendor %q",
				workflow.ErrValidation, invoiceNumber, vendor)
		}
	}

	return &Result{
		Next:   workflow.StageMatch,
		Detail: fmt.Sprintf("retrieved %d purchase orders for %q", len(pos), vendor),
	}, nil
}
