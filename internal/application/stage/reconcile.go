package stage

import (
	"context"
	"fmt"
	"math"

	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

// Chart-of-accounts codes used for generated entries
const (
	accountServiceExpense = "6100"
	accountGoodsExpense   = "5000"
	accountOtherExpense   = "6000"
	accountCreditNote     = "6200"
	accountInputTax       = "2200"
	accountPayable        = "2000"
)

// ReconcileHandler builds balanced double-entry accounting lines and a
// variance report against the matched purchase order
type ReconcileHandler struct {
	tolerancePct float64
}

// NewReconcileHandler creates a new ReconcileHandler
func NewReconcileHandler(tolerancePct float64) *ReconcileHandler {
	return &ReconcileHandler{tolerancePct: tolerancePct}
}

func (h *ReconcileHandler) Stage() workflow.Stage { return workflow.StageReconcile }

func (h *ReconcileHandler) Execute(ctx context.Context, payload *entity.Payload) (*Result, error) {
	if payload.Extraction == nil {
		return nil, fmt.Errorf("%w: reconciliation requires extracted fields", workflow.ErrInvalidState)
	}

	fields := payload.Extraction.Fields
	invoiceType := TypeGoods
	if payload.Classification != nil {
		invoiceType = payload.Classification.InvoiceType
	}

	entries := buildEntries(fields, invoiceType)
	report := buildVarianceReport(payload, fields, h.tolerancePct)

	payload.Reconciliation = &entity.ReconciliationSection{
		Entries: entries,
		Report:  report,
	}

	return &Result{
		Next:   workflow.StageApprove,
		Detail: fmt.Sprintf("generated %d accounting entries, variance %.2f%%", len(entries), report.VariancePct),
	}, nil
}

func buildEntries(fields entity.InvoiceFields, invoiceType string) []entity.AccountingEntry {
	account, name := expenseAccount(invoiceType)

	subtotal := fields.Subtotal
	if subtotal == 0 {
		subtotal = fields.Total - fields.TaxAmount
	}

	entries := []entity.AccountingEntry{
		{
			Account:     account,
			AccountName: name,
			Description: fmt.Sprintf("Invoice %s - %s", fields.InvoiceNumber, fields.VendorName),
			Debit:       subtotal,
		},
	}
	if fields.TaxAmount > 0 {
		entries = append(entries, entity.AccountingEntry{
			Account:     accountInputTax,
			AccountName: "Input Tax",
			Description: fmt.Sprintf("Tax on invoice %s", fields.InvoiceNumber),
			Debit:       fields.TaxAmount,
		})
	}
	entries = append(entries, entity.AccountingEntry{
		Account:     accountPayable,
		AccountName: "Accounts Payable",
		Description: fmt.Sprintf("Payable to %s", fields.VendorName),
		Credit:      fields.Total,
	})
	return entries
}

func expenseAccount(invoiceType string) (code, name string) {
	switch invoiceType {
	case TypeService:
		return accountServiceExpense, "Service Expense"
	case TypeGoods:
		return accountGoodsExpense, "Cost of Goods"
	case TypeCreditNote:
		return accountCreditNote, "Credit Note Adjustments"
	default:
		return accountOtherExpense, "Other Expense"
	}
}

func buildVarianceReport(payload *entity.Payload, fields entity.InvoiceFields, tolerancePct float64) entity.ReconciliationReport {
	report := entity.ReconciliationReport{
		InvoiceTotal:    fields.Total,
		WithinTolerance: true,
		Notes:           "no matched purchase order to reconcile against",
	}

	if payload.Match == nil || payload.Match.Result.PONumber == "" || payload.Retrieval == nil {
		return report
	}

	for _, po := range payload.Retrieval.PurchaseOrders {
		if po.PONumber != payload.Match.Result.PONumber {
			continue
		}
		report.POTotal = po.Total
		report.Variance = fields.Total - po.Total
		if po.Total != 0 {
			report.VariancePct = math.Abs(report.Variance) / po.Total * 100
		}
		report.WithinTolerance = report.VariancePct <= tolerancePct
		report.Notes = fmt.Sprintf("reconciled against %s", po.PONumber)
		break
	}
	return report
}
