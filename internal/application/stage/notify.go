package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/rohithsiddi/invoice-processing-agent/internal/application/port"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

// NotifyHandler tells the AP team how the run ended. Delivery failures
// are recorded but never fail the workflow.
type NotifyHandler struct {
	notifier   port.Notifier
	recipients []string
	logger     Logger
}

// NewNotifyHandler creates a new NotifyHandler
func NewNotifyHandler(notifier port.Notifier, recipients []string, logger Logger) *NotifyHandler {
	if logger == nil {
		logger = NopLogger()
	}
	return &NotifyHandler{notifier: notifier, recipients: recipients, logger: logger}
}

func (h *NotifyHandler) Stage() workflow.Stage { return workflow.StageNotify }

func (h *NotifyHandler) Execute(ctx context.Context, payload *entity.Payload) (*Result, error) {
	subject, body := summarize(payload)

	recipients := append([]string(nil), h.recipients...)
	if payload.Vendor != nil && payload.Vendor.ContactEmail != "" {
		recipients = append(recipients, payload.Vendor.ContactEmail)
	}

	deliveries := make([]entity.DeliveryResult, 0, len(recipients))
	failed := 0
	for _, recipient := range recipients {
		err := h.notifier.Send(ctx, port.Notification{
			Recipient: recipient,
			Subject:   subject,
			Body:      body,
			Kind:      "completion",
		})
		result := entity.DeliveryResult{Recipient: recipient, Status: "SENT"}
		if err != nil {
			failed++
			result.Status = "FAILED"
			result.Error = err.Error()
			h.logger.Error("notification delivery failed", "recipient", recipient, "error", err)
		}
		deliveries = append(deliveries, result)
	}

	payload.Notification = &entity.NotificationSection{Deliveries: deliveries}

	return &Result{
		Next:   workflow.StageComplete,
		Detail: fmt.Sprintf("notified %d/%d recipients", len(deliveries)-failed, len(deliveries)),
	}, nil
}

func summarize(payload *entity.Payload) (subject, body string) {
	invoice := "invoice"
	if payload.Extraction != nil && payload.Extraction.Fields.InvoiceNumber != "" {
		invoice = "invoice " + payload.Extraction.Fields.InvoiceNumber
	}

	var lines []string
	if payload.Approval != nil {
		lines = append(lines, "Approval: "+payload.Approval.Status)
	}
	if payload.Posting != nil {
		switch {
		case payload.Posting.Posted:
			lines = append(lines, "Posted to ERP: "+payload.Posting.TransactionID)
		case payload.Posting.Skipped:
			lines = append(lines, "Posting skipped: "+payload.Posting.Message)
		}
	}
	if payload.Match != nil {
		lines = append(lines, fmt.Sprintf("Match score: %.2f", payload.Match.Result.Score))
	}

	return fmt.Sprintf("Processing complete for %s", invoice), strings.Join(lines, "\n")
}
