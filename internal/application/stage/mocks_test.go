package stage

import (
	"context"

	"github.com/rohithsiddi/invoice-processing-agent/internal/application/port"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
)

type mockToolSelector struct {
	SelectToolFunc func(ctx context.Context, meta entity.DocumentMeta) (entity.OCRTool, error)
}

func (m *mockToolSelector) SelectTool(ctx context.Context, meta entity.DocumentMeta) (entity.OCRTool, error) {
	return m.SelectToolFunc(ctx, meta)
}

type mockExtractor struct {
	ExtractFunc func(ctx context.Context, fileRef string, tool entity.OCRTool) (*entity.ExtractionResult, error)
}

func (m *mockExtractor) Extract(ctx context.Context, fileRef string, tool entity.OCRTool) (*entity.ExtractionResult, error) {
	return m.ExtractFunc(ctx, fileRef, tool)
}

type mockProcurement struct {
	LookupVendorFunc       func(ctx context.Context, name string) (*entity.VendorSection, error)
	FindPurchaseOrdersFunc func(ctx context.Context, vendor string) ([]entity.PurchaseOrder, error)
	FindGoodsReceiptsFunc  func(ctx context.Context, poNumbers []string) ([]entity.GoodsReceipt, error)
	InvoiceHistoryFunc     func(ctx context.Context, vendor string, limit int) ([]entity.HistoricalInvoice, error)
}

func (m *mockProcurement) LookupVendor(ctx context.Context, name string) (*entity.VendorSection, error) {
	if m.LookupVendorFunc == nil {
		return nil, nil
	}
	return m.LookupVendorFunc(ctx, name)
}

func (m *mockProcurement) FindPurchaseOrders(ctx context.Context, vendor string) ([]entity.PurchaseOrder, error) {
	if m.FindPurchaseOrdersFunc == nil {
		return nil, nil
	}
	return m.FindPurchaseOrdersFunc(ctx, vendor)
}

func (m *mockProcurement) FindGoodsReceipts(ctx context.Context, poNumbers []string) ([]entity.GoodsReceipt, error) {
	if m.FindGoodsReceiptsFunc == nil {
		return nil, nil
	}
	return m.FindGoodsReceiptsFunc(ctx, poNumbers)
}

func (m *mockProcurement) InvoiceHistory(ctx context.Context, vendor string, limit int) ([]entity.HistoricalInvoice, error) {
	if m.InvoiceHistoryFunc == nil {
		return nil, nil
	}
	return m.InvoiceHistoryFunc(ctx, vendor, limit)
}

type mockERP struct {
	PostEntriesFunc func(ctx context.Context, instanceID string, entries []entity.AccountingEntry) (string, error)
}

func (m *mockERP) PostEntries(ctx context.Context, instanceID string, entries []entity.AccountingEntry) (string, error) {
	return m.PostEntriesFunc(ctx, instanceID, entries)
}

type mockNotifier struct {
	SendFunc func(ctx context.Context, n port.Notification) error
	sent     []port.Notification
}

func (m *mockNotifier) Send(ctx context.Context, n port.Notification) error {
	m.sent = append(m.sent, n)
	if m.SendFunc == nil {
		return nil
	}
	return m.SendFunc(ctx, n)
}
