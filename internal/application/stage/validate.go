package stage

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

// amounts are compared to the cent
const amountEpsilon = 0.005

// ValidateHandler runs pure field and arithmetic checks on the
// extracted invoice. Any violation fails the run terminally; a document
// that cannot be validated cannot be matched.
type ValidateHandler struct{}

// NewValidateHandler creates a new ValidateHandler
func NewValidateHandler() *ValidateHandler { return &ValidateHandler{} }

func (h *ValidateHandler) Stage() workflow.Stage { return workflow.StageValidate }

func (h *ValidateHandler) Execute(ctx context.Context, payload *entity.Payload) (*Result, error) {
	if payload.Extraction == nil {
		return nil, fmt.Errorf("%w: validation requires extracted fields", workflow.ErrInvalidState)
	}

	fields := payload.Extraction.Fields
	errs := validateFields(fields)

	payload.Validation = &entity.ValidationSection{
		Valid:  len(errs) == 0,
		Errors: errs,
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", workflow.ErrValidation, strings.Join(errs, "; "))
	}

	return &Result{
		Next:   workflow.StageRetrieve,
		Detail: "all field and arithmetic checks passed",
	}, nil
}

func validateFields(fields entity.InvoiceFields) []string {
	var errs []string

	if strings.TrimSpace(fields.InvoiceNumber) == "" {
		errs = append(errs, "invoice number is missing")
	}
	if strings.TrimSpace(fields.VendorName) == "" {
		errs = append(errs, "vendor name is missing")
	}
	if fields.Total == 0 {
		errs = append(errs, "invoice total is zero")
	}
	if fields.Subtotal < 0 || fields.TaxAmount < 0 {
		errs = append(errs, "subtotal and tax amount must be non-negative")
	}

	if fields.Subtotal != 0 || fields.TaxAmount != 0 {
		if math.Abs(fields.Subtotal+fields.TaxAmount-fields.Total) > amountEpsilon {
			errs = append(errs, fmt.Sprintf("subtotal %.2f + tax %.2f does not equal total %.2f",
				fields.Subtotal, fields.TaxAmount, fields.Total))
		}
	}

	var lineSum float64
	for i, item := range fields.LineItems {
		if item.Quantity < 0 {
			errs = append(errs, fmt.Sprintf("line %d: negative quantity", i+1))
		}
		if item.Quantity != 0 && item.UnitPrice != 0 {
			expected := item.Quantity * item.UnitPrice
			if math.Abs(expected-item.Amount) > amountEpsilon {
				errs = append(errs, fmt.Sprintf("line %d: amount %.2f does not equal quantity x unit price %.2f",
					i+1, item.Amount, expected))
			}
		}
		lineSum += item.Amount
	}
	if len(fields.LineItems) > 0 && fields.Subtotal != 0 {
		if math.Abs(lineSum-fields.Subtotal) > amountEpsilon {
			errs = append(errs, fmt.Sprintf("line item sum %.2f does not equal subtotal %.2f", lineSum, fields.Subtotal))
		}
	}

	return errs
}
