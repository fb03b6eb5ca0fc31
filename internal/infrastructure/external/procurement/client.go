package procurement

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rohithsiddi/invoice-processing-agent/internal/application/port"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

// Client implements port.ProcurementClient against the procurement
// REST API. Network failures and 5xx responses are transient; a 404
// means the thing genuinely is not there.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new procurement API client
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// LookupVendor returns the vendor master record, or (nil, nil) when the
// vendor is unknown
func (c *Client) LookupVendor(ctx context.Context, name string) (*entity.VendorSection, error) {
	var vendor entity.VendorSection
	found, err := c.getJSON(ctx, "/vendors?name="+url.QueryEscape(name), &vendor)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &vendor, nil
}

// FindPurchaseOrders returns the open purchase orders for a vendor
func (c *Client) FindPurchaseOrders(ctx context.Context, vendor string) ([]entity.PurchaseOrder, error) {
	var pos []entity.PurchaseOrder
	found, err := c.getJSON(ctx, "/purchase-orders?vendor="+url.QueryEscape(vendor)+"&status=open", &pos)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return pos, nil
}

// FindGoodsReceipts returns the goods receipts for the given purchase orders
func (c *Client) FindGoodsReceipts(ctx context.Context, poNumbers []string) ([]entity.GoodsReceipt, error) {
	if len(poNumbers) == 0 {
		return nil, nil
	}

	var grns []entity.GoodsReceipt
	found, err := c.getJSON(ctx, "/goods-receipts?po="+url.QueryEscape(strings.Join(poNumbers, ",")), &grns)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return grns, nil
}

// InvoiceHistory returns recent invoices from the vendor
func (c *Client) InvoiceHistory(ctx context.Context, vendor string, limit int) ([]entity.HistoricalInvoice, error) {
	var history []entity.HistoricalInvoice
	path := "/invoices?vendor=" + url.QueryEscape(vendor) + "&limit=" + strconv.Itoa(limit)
	found, err := c.getJSON(ctx, path, &history)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return history, nil
}

// getJSON performs a GET and decodes the body. Returns found=false on
// 404 without error.
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) (found bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("build procurement request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, workflow.Transient("procurement", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 500:
		c.logger.Warn("Procurement API server error",
			zap.String("path", path), zap.Int("status", resp.StatusCode))
		return false, workflow.Transient("procurement",
			fmt.Errorf("procurement API returned %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return false, fmt.Errorf("procurement API returned %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode procurement response: %w", err)
	}
	return true, nil
}

// Verify interface compliance
var _ port.ProcurementClient = (*Client)(nil)
