package stage

import (
	"context"
	"fmt"
	"time"

	"github.com/rohithsiddi/invoice-processing-agent/internal/application/port"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

// EnrichHandler looks up vendor master data for the extracted vendor
// name. An unknown vendor is not an error; matching downstream decides
// what to do with the gap.
type EnrichHandler struct {
	procurement port.ProcurementClient
	retry       RetryPolicy
	logger      Logger
}

// NewEnrichHandler creates a new EnrichHandler
func NewEnrichHandler(procurement port.ProcurementClient, logger Logger) *EnrichHandler {
	if logger == nil {
		logger = NopLogger()
	}
	return &EnrichHandler{
		procurement: procurement,
		retry:       RetryPolicy{MaxAttempts: 2, Backoff: 500 * time.Millisecond},
		logger:      logger,
	}
}

func (h *EnrichHandler) Stage() workflow.Stage { return workflow.StageEnrich }

func (h *EnrichHandler) Execute(ctx context.Context, payload *entity.Payload) (*Result, error) {
	if payload.Extraction == nil {
		return nil, fmt.Errorf("%w: enrichment requires extracted fields", workflow.ErrInvalidState)
	}

	name := payload.Extraction.Fields.VendorName
	var vendor *entity.VendorSection
	err := h.retry.Do(ctx, func(ctx context.Context) error {
		var lookupErr error
		vendor, lookupErr = h.procurement.LookupVendor(ctx, name)
		return lookupErr
	})
	if err != nil {
		return nil, fmt.Errorf("lookup vendor %q: %w", name, err)
	}

	if vendor == nil {
		h.logger.Info("vendor not found in master data", "vendor", name)
		payload.Vendor = &entity.VendorSection{VendorName: name}
		return &Result{
			Next:   workflow.StageValidate,
			Detail: fmt.Sprintf("vendor %q not in master data", name),
		}, nil
	}

	payload.Vendor = vendor
	return &Result{
		Next:   workflow.StageValidate,
		Detail: fmt.Sprintf("enriched vendor %s (%s)", vendor.VendorName, vendor.VendorID),
	}, nil
}
