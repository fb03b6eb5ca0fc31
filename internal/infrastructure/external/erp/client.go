package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rohithsiddi/invoice-processing-agent/internal/application/port"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

// Client implements port.ERPClient against the ERP journal API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new ERP API client
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type postRequest struct {
	Reference string                   `json:"reference"`
	Entries   []entity.AccountingEntry `json:"entries"`
}

type postResponse struct {
	TransactionID string `json:"transaction_id"`
}

// PostEntries posts a balanced journal to the ERP, keyed by the
// instance id so the ERP side can deduplicate replays
func (c *Client) PostEntries(ctx context.Context, instanceID string, entries []entity.AccountingEntry) (string, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("%w: no entries to post", workflow.ErrValidation)
	}

	body, err := json.Marshal(postRequest{Reference: instanceID, Entries: entries})
	if err != nil {
		return "", fmt.Errorf("encode journal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/journal-entries", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build erp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	// replayed posts for the same instance must not double-book
	req.Header.Set("Idempotency-Key", instanceID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", workflow.Transient("erp", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		c.logger.Warn("ERP API server error", zap.Int("status", resp.StatusCode))
		return "", workflow.Transient("erp", fmt.Errorf("erp API returned %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return "", fmt.Errorf("erp API returned %d", resp.StatusCode)
	}

	var out postResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode erp response: %w", err)
	}
	if out.TransactionID == "" {
		return "", fmt.Errorf("erp response missing transaction id")
	}

	c.logger.Info("Journal posted to ERP",
		zap.String("instance_id", instanceID),
		zap.String("transaction_id", out.TransactionID))
	return out.TransactionID, nil
}

// Verify interface compliance
var _ port.ERPClient = (*Client)(nil)
