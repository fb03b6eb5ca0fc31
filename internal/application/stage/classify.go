package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

// Invoice types assigned by CLASSIFY
const (
	TypeService    = "service"
	TypeGoods      = "goods"
	TypeCreditNote = "credit-note"
)

var serviceKeywords = []string{
	"consulting", "service", "subscription", "license", "support",
	"maintenance", "hosting", "training", "fee",
}

// ClassifyHandler assigns an invoice type from the extracted fields
// using a deterministic keyword rule set
type ClassifyHandler struct{}

// NewClassifyHandler creates a new ClassifyHandler
func NewClassifyHandler() *ClassifyHandler { return &ClassifyHandler{} }

func (h *ClassifyHandler) Stage() workflow.Stage { return workflow.StageClassify }

func (h *ClassifyHandler) Execute(ctx context.Context, payload *entity.Payload) (*Result, error) {
	if payload.Extraction == nil {
		return nil, fmt.Errorf("%w: classification requires extracted fields", workflow.ErrInvalidState)
	}

	fields := payload.Extraction.Fields
	invoiceType := classify(fields)
	payload.Classification = &entity.ClassificationSection{InvoiceType: invoiceType}

	return &Result{
		Next:   workflow.StageEnrich,
		Detail: fmt.Sprintf("classified as %s", invoiceType),
	}, nil
}

func classify(fields entity.InvoiceFields) string {
	if fields.Total < 0 {
		return TypeCreditNote
	}

	serviceLines := 0
	for _, item := range fields.LineItems {
		desc := strings.ToLower(item.Description)
		for _, kw := range serviceKeywords {
			if strings.Contains(desc, kw) {
				serviceLines++
				break
			}
		}
	}
	if len(fields.LineItems) > 0 && serviceLines*2 >= len(fields.LineItems) {
		return TypeService
	}
	return TypeGoods
}
