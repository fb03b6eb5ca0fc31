package ocr

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
)

var (
	invoiceNumberRe = regexp.MustCompile(`(?i)invoice\s*(?:number|no\.?|#)?\s*[:#]?\s*([A-Z0-9][A-Z0-9/-]+)`)
	vendorRe        = regexp.MustCompile(`(?i)(?:vendor|from|supplier|billed\s+by)\s*[:]\s*(.+)`)
	dateRe          = regexp.MustCompile(`(?i)(?:invoice\s+)?date\s*[:]\s*(\d{4}-\d{2}-\d{2}|\d{1,2}[/.]\d{1,2}[/.]\d{2,4})`)
	dueDateRe       = regexp.MustCompile(`(?i)due\s+date\s*[:]\s*(\d{4}-\d{2}-\d{2}|\d{1,2}[/.]\d{1,2}[/.]\d{2,4})`)
	subtotalRe      = regexp.MustCompile(`(?i)sub\s*total\s*[:]?\s*\$?\s*([\d,]+\.?\d*)`)
	taxRe           = regexp.MustCompile(`(?i)(?:tax|vat|gst)(?:\s*\([\d.]+%\))?\s*[:]?\s*\$?\s*([\d,]+\.?\d*)`)
	totalRe         = regexp.MustCompile(`(?i)(?:^|\s)total\s*(?:due|amount)?\s*[:]?\s*\$?\s*([\d,]+\.?\d*)`)
	currencyRe      = regexp.MustCompile(`(?i)currency\s*[:]\s*([A-Z]{3})`)
	termsRe         = regexp.MustCompile(`(?i)(?:payment\s+)?terms\s*[:]\s*(.+)`)
	// "Description  Qty  Unit Price  Amount" style rows
	lineItemRe = regexp.MustCompile(`^(.{3,}?)\s{2,}(\d+(?:\.\d+)?)\s{2,}\$?([\d,]+\.?\d*)\s{2,}\$?([\d,]+\.?\d*)\s*$`)
)

// fields scored for extraction confidence; line items count as one
const confidenceFields = 6

// ParseInvoiceText turns raw extracted text into structured invoice
// fields. Confidence is the share of key fields the parser located.
func ParseInvoiceText(text string) (entity.InvoiceFields, float64) {
	var fields entity.InvoiceFields
	found := 0

	if m := invoiceNumberRe.FindStringSubmatch(text); m != nil {
		fields.InvoiceNumber = strings.TrimSpace(m[1])
		found++
	}
	if m := vendorRe.FindStringSubmatch(text); m != nil {
		fields.VendorName = strings.TrimSpace(m[1])
		found++
	}
	if m := dateRe.FindStringSubmatch(text); m != nil {
		fields.InvoiceDate = m[1]
	}
	if m := dueDateRe.FindStringSubmatch(text); m != nil {
		fields.DueDate = m[1]
	}
	if m := currencyRe.FindStringSubmatch(text); m != nil {
		fields.Currency = strings.ToUpper(m[1])
	}
	if m := termsRe.FindStringSubmatch(text); m != nil {
		fields.PaymentTerms = strings.TrimSpace(m[1])
	}
	if m := subtotalRe.FindStringSubmatch(text); m != nil {
		fields.Subtotal = parseAmount(m[1])
		found++
	}
	if m := taxRe.FindStringSubmatch(text); m != nil {
		fields.TaxAmount = parseAmount(m[1])
		found++
	}
	if m := totalRe.FindStringSubmatch(text); m != nil {
		fields.Total = parseAmount(m[1])
		found++
	}

	fields.LineItems = parseLineItems(text)
	if len(fields.LineItems) > 0 {
		found++
	}

	return fields, float64(found) / confidenceFields
}

func parseLineItems(text string) []entity.LineItem {
	var items []entity.LineItem
	for _, line := range strings.Split(text, "\n") {
		m := lineItemRe.FindStringSubmatch(strings.TrimRight(line, " \t"))
		if m == nil {
			continue
		}
		desc := strings.TrimSpace(m[1])
		if looksLikeHeader(desc) {
			continue
		}
		qty := parseAmount(m[2])
		unit := parseAmount(m[3])
		amount := parseAmount(m[4])
		items = append(items, entity.LineItem{
			Description: desc,
			Quantity:    qty,
			UnitPrice:   unit,
			Amount:      amount,
		})
	}
	return items
}

func looksLikeHeader(desc string) bool {
	lower := strings.ToLower(desc)
	return strings.Contains(lower, "description") ||
		strings.Contains(lower, "subtotal") ||
		strings.Contains(lower, "total")
}

func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}
