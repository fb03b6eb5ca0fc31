package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rohithsiddi/invoice-processing-agent/internal/application/port"
)

// WebhookNotifier delivers notifications as JSON posts to a configured
// webhook endpoint. With no URL configured it logs and drops messages
// instead of failing, so notification stages still complete.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ port.Notifier = (*WebhookNotifier)(nil)

// NewWebhookNotifier creates a new WebhookNotifier
func NewWebhookNotifier(url string, timeout time.Duration, logger *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type webhookMessage struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Kind      string `json:"kind"`
	SentAt    string `json:"sent_at"`
}

// Send posts the notification to the webhook endpoint
func (n *WebhookNotifier) Send(ctx context.Context, msg port.Notification) error {
	if n.url == "" {
		n.logger.Info("no webhook configured, dropping notification",
			zap.String("recipient", msg.Recipient),
			zap.String("kind", msg.Kind))
		return nil
	}

	body, err := json.Marshal(webhookMessage{
		Recipient: msg.Recipient,
		Subject:   msg.Subject,
		Body:      msg.Body,
		Kind:      msg.Kind,
		SentAt:    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	n.logger.Info("notification delivered",
		zap.String("recipient", msg.Recipient),
		zap.String("kind", msg.Kind))
	return nil
}
