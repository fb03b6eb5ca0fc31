package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/rohithsiddi/invoice-processing-agent/internal/application/service"
)

// WorkbookWriter renders a completed processing artifact as an Excel
// workbook for the AP team
type WorkbookWriter struct {
	logger *zap.Logger
}

// NewWorkbookWriter creates a new WorkbookWriter
func NewWorkbookWriter(logger *zap.Logger) *WorkbookWriter {
	return &WorkbookWriter{logger: logger}
}

// Write renders the artifact workbook to w
func (ww *WorkbookWriter) Write(artifact *service.Artifact, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := ww.fillSummary(f, artifact); err != nil {
		return err
	}
	ww.fillMatchEvidence(f, artifact)
	ww.fillAccountingEntries(f, artifact)
	ww.fillStageHistory(f, artifact)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	ww.logger.Info("artifact workbook written",
		zap.String("instance_id", artifact.InstanceID))
	return nil
}

func (ww *WorkbookWriter) fillSummary(f *excelize.File, artifact *service.Artifact) error {
	// Rename the default sheet instead of creating a new one
	const sheet = "Summary"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}

	rows := [][2]interface{}{
		{"Instance ID", artifact.InstanceID},
		{"Status", string(artifact.Status)},
		{"Invoice Number", artifact.Invoice.InvoiceNumber},
		{"Vendor", artifact.Invoice.VendorName},
		{"Invoice Date", artifact.Invoice.InvoiceDate},
		{"Due Date", artifact.Invoice.DueDate},
		{"Currency", artifact.Invoice.Currency},
		{"Subtotal", artifact.Invoice.Subtotal},
		{"Tax", artifact.Invoice.TaxAmount},
		{"Total", artifact.Invoice.Total},
		{"Invoice Type", artifact.InvoiceType},
	}

	if artifact.Vendor != nil {
		rows = append(rows,
			[2]interface{}{"Vendor ID", artifact.Vendor.VendorID},
			[2]interface{}{"Vendor Tax ID", artifact.Vendor.TaxID})
	}
	if artifact.Approval != nil {
		rows = append(rows,
			[2]interface{}{"Approval Status", artifact.Approval.Status},
			[2]interface{}{"Approver", artifact.Approval.Approver},
			[2]interface{}{"Approved At", artifact.Approval.ApprovedAt.Format(time.RFC3339)})
	}
	if artifact.Review != nil && artifact.Review.Decision != "" {
		rows = append(rows,
			[2]interface{}{"Review Decision", string(artifact.Review.Decision)},
			[2]interface{}{"Reviewer", artifact.Review.Reviewer},
			[2]interface{}{"Review Notes", artifact.Review.Notes})
	}
	if artifact.Posting != nil {
		rows = append(rows,
			[2]interface{}{"Posted", artifact.Posting.Posted},
			[2]interface{}{"ERP Transaction", artifact.Posting.TransactionID})
	}

	for i, row := range rows {
		ww.setCell(f, sheet, fmt.Sprintf("A%d", i+1), row[0])
		ww.setCell(f, sheet, fmt.Sprintf("B%d", i+1), row[1])
	}

	return nil
}

func (ww *WorkbookWriter) fillMatchEvidence(f *excelize.File, artifact *service.Artifact) {
	if artifact.Match == nil {
		return
	}

	const sheet = "Match Evidence"
	if _, err := f.NewSheet(sheet); err != nil {
		ww.logger.Warn("failed to create sheet", zap.String("sheet", sheet), zap.Error(err))
		return
	}

	result := artifact.Match.Result
	ww.setCell(f, sheet, "A1", "Score")
	ww.setCell(f, sheet, "B1", result.Score)
	ww.setCell(f, sheet, "A2", "Passed")
	ww.setCell(f, sheet, "B2", result.Passed)
	ww.setCell(f, sheet, "A3", "Matched PO")
	ww.setCell(f, sheet, "B3", result.PONumber)
	ww.setCell(f, sheet, "A4", "Threshold")
	ww.setCell(f, sheet, "B4", result.Threshold)
	ww.setCell(f, sheet, "A5", "Amount Diff")
	ww.setCell(f, sheet, "B5", result.Evidence.AmountDiff)
	ww.setCell(f, sheet, "A6", "Amount Diff %")
	ww.setCell(f, sheet, "B6", result.Evidence.AmountDiffPct)
	ww.setCell(f, sheet, "A7", "Items Matched")
	ww.setCell(f, sheet, "B7", fmt.Sprintf("%d/%d", result.Evidence.ItemsMatched, result.Evidence.ItemsTotal))

	headers := []string{"Invoice Line", "PO Line", "Inv Qty", "PO Qty", "Inv Price", "PO Price", "Matched", "Reason"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 9)
		ww.setCell(f, sheet, cell, h)
	}

	for i, line := range result.Evidence.LineItems {
		row := i + 10
		ww.setCell(f, sheet, fmt.Sprintf("A%d", row), line.InvoiceDescription)
		ww.setCell(f, sheet, fmt.Sprintf("B%d", row), line.PODescription)
		ww.setCell(f, sheet, fmt.Sprintf("C%d", row), line.InvoiceQuantity)
		ww.setCell(f, sheet, fmt.Sprintf("D%d", row), line.POQuantity)
		ww.setCell(f, sheet, fmt.Sprintf("E%d", row), line.InvoiceUnitPrice)
		ww.setCell(f, sheet, fmt.Sprintf("F%d", row), line.POUnitPrice)
		ww.setCell(f, sheet, fmt.Sprintf("G%d", row), line.Matched)
		ww.setCell(f, sheet, fmt.Sprintf("H%d", row), line.Reason)
	}
}

func (ww *WorkbookWriter) fillAccountingEntries(f *excelize.File, artifact *service.Artifact) {
	if artifact.Reconciliation == nil {
		return
	}

	const sheet = "Accounting Entries"
	if _, err := f.NewSheet(sheet); err != nil {
		ww.logger.Warn("failed to create sheet", zap.String("sheet", sheet), zap.Error(err))
		return
	}

	headers := []string{"Account", "Account Name", "Description", "Debit", "Credit"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		ww.setCell(f, sheet, cell, h)
	}

	var debit, credit float64
	for i, entry := range artifact.Reconciliation.Entries {
		row := i + 2
		ww.setCell(f, sheet, fmt.Sprintf("A%d", row), entry.Account)
		ww.setCell(f, sheet, fmt.Sprintf("B%d", row), entry.AccountName)
		ww.setCell(f, sheet, fmt.Sprintf("C%d", row), entry.Description)
		ww.setCell(f, sheet, fmt.Sprintf("D%d", row), entry.Debit)
		ww.setCell(f, sheet, fmt.Sprintf("E%d", row), entry.Credit)
		debit += entry.Debit
		credit += entry.Credit
	}

	totalRow := len(artifact.Reconciliation.Entries) + 2
	ww.setCell(f, sheet, fmt.Sprintf("C%d", totalRow), "Total")
	ww.setCell(f, sheet, fmt.Sprintf("D%d", totalRow), debit)
	ww.setCell(f, sheet, fmt.Sprintf("E%d", totalRow), credit)

	report := artifact.Reconciliation.Report
	varianceRow := totalRow + 2
	ww.setCell(f, sheet, fmt.Sprintf("A%d", varianceRow), "Variance vs PO")
	ww.setCell(f, sheet, fmt.Sprintf("B%d", varianceRow), report.Variance)
	ww.setCell(f, sheet, fmt.Sprintf("A%d", varianceRow+1), "Variance %")
	ww.setCell(f, sheet, fmt.Sprintf("B%d", varianceRow+1), report.VariancePct)
	ww.setCell(f, sheet, fmt.Sprintf("A%d", varianceRow+2), "Within Tolerance")
	ww.setCell(f, sheet, fmt.Sprintf("B%d", varianceRow+2), report.WithinTolerance)
}

func (ww *WorkbookWriter) fillStageHistory(f *excelize.File, artifact *service.Artifact) {
	const sheet = "Stage History"
	if _, err := f.NewSheet(sheet); err != nil {
		ww.logger.Warn("failed to create sheet", zap.String("sheet", sheet), zap.Error(err))
		return
	}

	headers := []string{"Stage", "Outcome", "Entered", "Exited", "Detail"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		ww.setCell(f, sheet, cell, h)
	}

	for i, record := range artifact.StageHistory {
		row := i + 2
		ww.setCell(f, sheet, fmt.Sprintf("A%d", row), string(record.Stage))
		ww.setCell(f, sheet, fmt.Sprintf("B%d", row), record.Outcome)
		ww.setCell(f, sheet, fmt.Sprintf("C%d", row), record.EnteredAt.Format(time.RFC3339))
		if record.ExitedAt != nil {
			ww.setCell(f, sheet, fmt.Sprintf("D%d", row), record.ExitedAt.Format(time.RFC3339))
		}
		ww.setCell(f, sheet, fmt.Sprintf("E%d", row), record.Detail)
	}
}

// setCell sets a cell value, logging rather than failing on error
func (ww *WorkbookWriter) setCell(f *excelize.File, sheet, cell string, value interface{}) {
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		ww.logger.Warn("failed to set cell value",
			zap.String("sheet", sheet),
			zap.String("cell", cell),
			zap.Error(err))
	}
}
