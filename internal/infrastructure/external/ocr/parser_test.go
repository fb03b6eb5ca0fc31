package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleInvoice = `
ACME CORP
123 Industrial Way

Invoice Number: INV-2024-0042
Vendor: Acme Corp
Invoice Date: 2024-03-15
Due Date: 2024-04-14
Currency: USD
Payment Terms: Net 30

Description          Qty    Unit Price    Amount
Widget assembly        5         90.00    450.00
Mounting bracket      10         10.00    100.00

Subtotal: 550.00
Tax (10%): 55.00
Total Due: 605.00
`

func TestParseInvoiceText(t *testing.T) {
	fields, confidence := ParseInvoiceText(sampleInvoice)

	assert.Equal(t, "INV-2024-0042", fields.InvoiceNumber)
	assert.Equal(t, "Acme Corp", fields.VendorName)
	assert.Equal(t, "2024-03-15", fields.InvoiceDate)
	assert.Equal(t, "2024-04-14", fields.DueDate)
	assert.Equal(t, "USD", fields.Currency)
	assert.Equal(t, "Net 30", fields.PaymentTerms)
	assert.Equal(t, 550.00, fields.Subtotal)
	assert.Equal(t, 55.00, fields.TaxAmount)
	assert.Equal(t, 605.00, fields.Total)

	require.Len(t, fields.LineItems, 2)
	assert.Equal(t, "Widget assembly", fields.LineItems[0].Description)
	assert.Equal(t, 5.0, fields.LineItems[0].Quantity)
	assert.Equal(t, 90.00, fields.LineItems[0].UnitPrice)
	assert.Equal(t, 450.00, fields.LineItems[0].Amount)

	assert.Equal(t, 1.0, confidence)
}

func TestParseInvoiceTextPartial(t *testing.T) {
	fields, confidence := ParseInvoiceText("Invoice #: ABC-1\nTotal: 99.50\n")

	assert.Equal(t, "ABC-1", fields.InvoiceNumber)
	assert.Equal(t, 99.50, fields.Total)
	assert.Empty(t, fields.VendorName)
	assert.Less(t, confidence, 0.5)
}

func TestParseInvoiceTextEmpty(t *testing.T) {
	fields, confidence := ParseInvoiceText("")
	assert.Empty(t, fields.InvoiceNumber)
	assert.Zero(t, confidence)
}

func TestParseAmountWithThousandsSeparator(t *testing.T) {
	fields, _ := ParseInvoiceText("Total: 1,234.56")
	assert.Equal(t, 1234.56, fields.Total)
}
