package port

import (
	"context"

	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
)

// ToolSelector picks the OCR tool for a document
type ToolSelector interface {
	SelectTool(ctx context.Context, meta entity.DocumentMeta) (entity.OCRTool, error)
}

// OCRExtractor runs text extraction on an uploaded document
type OCRExtractor interface {
	Extract(ctx context.Context, fileRef string, tool entity.OCRTool) (*entity.ExtractionResult, error)
}

// ProcurementClient looks up vendor master data and open procurement
// documents for matching
type ProcurementClient interface {
	// LookupVendor returns (nil, nil) when the vendor is unknown
	LookupVendor(ctx context.Context, name string) (*entity.VendorSection, error)

	FindPurchaseOrders(ctx context.Context, vendor string) ([]entity.PurchaseOrder, error)
	FindGoodsReceipts(ctx context.Context, poNumbers []string) ([]entity.GoodsReceipt, error)
	InvoiceHistory(ctx context.Context, vendor string, limit int) ([]entity.HistoricalInvoice, error)
}

// ERPClient posts accounting entries to the ERP system
type ERPClient interface {
	// PostEntries returns the ERP transaction ID on success
	PostEntries(ctx context.Context, instanceID string, entries []entity.AccountingEntry) (string, error)
}

// Notification is a single outbound message
type Notification struct {
	Recipient string
	Subject   string
	Body      string
	Kind      string
}

// Notifier delivers notifications. Delivery failures are reported but
// never abort the workflow.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}
