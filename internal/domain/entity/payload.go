package entity

import (
	"encoding/json"
	"time"
)

// Payload is the accumulating structured document for one invoice run.
// Each stage owns one optional section. Sections are append-only by
// convention: a stage may add or replace its own section, but must not
// overwrite sections owned by earlier stages.
type Payload struct {
	Document       *DocumentSection       `json:"document,omitempty"`
	Extraction     *ExtractionSection     `json:"extraction,omitempty"`
	Classification *ClassificationSection `json:"classification,omitempty"`
	Vendor         *VendorSection         `json:"vendor,omitempty"`
	Validation     *ValidationSection     `json:"validation,omitempty"`
	Retrieval      *RetrievalSection      `json:"retrieval,omitempty"`
	Match          *MatchSection          `json:"match,omitempty"`
	Review         *ReviewSection         `json:"review,omitempty"`
	Reconciliation *ReconciliationSection `json:"reconciliation,omitempty"`
	Approval       *ApprovalSection       `json:"approval,omitempty"`
	Posting        *PostingSection        `json:"posting,omitempty"`
	Notification   *NotificationSection   `json:"notification,omitempty"`
}

// Clone returns a deep copy of the payload. Stage handlers execute
// against a clone so a failed handler cannot corrupt persisted state.
func (p *Payload) Clone() *Payload {
	if p == nil {
		return &Payload{}
	}

	raw, err := json.Marshal(p)
	if err != nil {
		// Payload contains only plain data types; marshal cannot fail
		panic(err)
	}

	var out Payload
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}

	return &out
}

// DocumentSection is written by INGEST
type DocumentSection struct {
	InvoiceID  string     `json:"invoice_id"`
	FileRef    string     `json:"file_ref"`
	FileType   string     `json:"file_type"`
	FileSize   int64      `json:"file_size,omitempty"`
	IngestedAt *time.Time `json:"ingested_at,omitempty"`
}

// ExtractionSection is written by EXTRACT. Attempt counts extraction
// runs for this instance; re-extraction after a rejected review with
// the reprocess flag increments it.
type ExtractionSection struct {
	Tool       OCRTool       `json:"tool"`
	Confidence float64       `json:"confidence"`
	Fields     InvoiceFields `json:"fields"`
	Attempt    int           `json:"attempt"`
}

// InvoiceFields holds the structured fields extracted from the document
type InvoiceFields struct {
	InvoiceNumber string     `json:"invoice_number"`
	VendorName    string     `json:"vendor_name"`
	InvoiceDate   string     `json:"invoice_date,omitempty"`
	DueDate       string     `json:"due_date,omitempty"`
	Currency      string     `json:"currency,omitempty"`
	Subtotal      float64    `json:"subtotal"`
	TaxAmount     float64    `json:"tax_amount"`
	Total         float64    `json:"total"`
	PaymentTerms  string     `json:"payment_terms,omitempty"`
	LineItems     []LineItem `json:"line_items"`
}

// LineItem is a single invoice or purchase order line
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Amount      float64 `json:"amount"`
}

// ClassificationSection is written by CLASSIFY
type ClassificationSection struct {
	InvoiceType string `json:"invoice_type"`
}

// VendorSection is written by ENRICH
type VendorSection struct {
	VendorID     string `json:"vendor_id"`
	VendorName   string `json:"vendor_name"`
	TaxID        string `json:"tax_id,omitempty"`
	Address      string `json:"address,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
	PaymentTerms string `json:"payment_terms,omitempty"`
	Category     string `json:"category,omitempty"`
	Approved     bool   `json:"approved"`
}

// ValidationSection is written by VALIDATE
type ValidationSection struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// RetrievalSection is written by RETRIEVE
type RetrievalSection struct {
	PurchaseOrders []PurchaseOrder     `json:"purchase_orders"`
	GoodsReceipts  []GoodsReceipt      `json:"goods_receipts,omitempty"`
	History        []HistoricalInvoice `json:"history,omitempty"`
}

// PurchaseOrder is a purchase order retrieved for matching
type PurchaseOrder struct {
	PONumber   string     `json:"po_number"`
	VendorName string     `json:"vendor_name"`
	PODate     string     `json:"po_date,omitempty"`
	Total      float64    `json:"total"`
	TaxAmount  float64    `json:"tax_amount,omitempty"`
	Status     string     `json:"status,omitempty"`
	LineItems  []LineItem `json:"line_items"`
}

// GoodsReceipt is a goods receipt note linked to a purchase order
type GoodsReceipt struct {
	GRNNumber  string     `json:"grn_number"`
	PONumber   string     `json:"po_number"`
	ReceivedAt string     `json:"received_at,omitempty"`
	LineItems  []LineItem `json:"line_items,omitempty"`
}

// HistoricalInvoice is a prior invoice from the same vendor
type HistoricalInvoice struct {
	InvoiceNumber string  `json:"invoice_number"`
	Total         float64 `json:"total"`
	Status        string  `json:"status,omitempty"`
	PaidAt        string  `json:"paid_at,omitempty"`
}

// MatchSection is written by MATCH. A re-run after a reject-with-retry
// decision replaces the section with a fresh result; prior results stay
// visible through stage history.
type MatchSection struct {
	Result  MatchResult `json:"result"`
	Attempt int         `json:"attempt"`
}

// MatchResult is the immutable output of the two-way matching engine
type MatchResult struct {
	Score        float64       `json:"score"`
	Passed       bool          `json:"passed"`
	PONumber     string        `json:"po_number,omitempty"`
	Threshold    float64       `json:"threshold"`
	TolerancePct float64       `json:"tolerance_pct"`
	Evidence     MatchEvidence `json:"evidence"`
}

// MatchEvidence carries the per-field comparisons behind a match score
type MatchEvidence struct {
	VendorMatch           bool             `json:"vendor_match"`
	InvoiceVendor         string           `json:"invoice_vendor"`
	POVendor              string           `json:"po_vendor,omitempty"`
	AmountDiff            float64          `json:"amount_diff"`
	AmountDiffPct         float64          `json:"amount_diff_pct"`
	AmountWithinTolerance bool             `json:"amount_within_tolerance"`
	ItemsMatched          int              `json:"items_matched"`
	ItemsTotal            int              `json:"items_total"`
	LineItems             []LineComparison `json:"line_items,omitempty"`
	HardFailures          []string         `json:"hard_failures,omitempty"`
}

// LineComparison records one invoice line compared against its best PO candidate
type LineComparison struct {
	InvoiceDescription string  `json:"invoice_description"`
	PODescription      string  `json:"po_description,omitempty"`
	InvoiceQuantity    float64 `json:"invoice_quantity"`
	POQuantity         float64 `json:"po_quantity,omitempty"`
	InvoiceUnitPrice   float64 `json:"invoice_unit_price"`
	POUnitPrice        float64 `json:"po_unit_price,omitempty"`
	Matched            bool    `json:"matched"`
	Reason             string  `json:"reason,omitempty"`
}

// ReviewSection is written when a checkpoint opens and updated when it resolves
type ReviewSection struct {
	CheckpointID string     `json:"checkpoint_id"`
	Reason       string     `json:"reason"`
	Decision     Decision   `json:"decision,omitempty"`
	Reviewer     string     `json:"reviewer,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	Retry        bool       `json:"retry,omitempty"`
	DecidedAt    *time.Time `json:"decided_at,omitempty"`
}

// ReconciliationSection is written by RECONCILE
type ReconciliationSection struct {
	Entries []AccountingEntry    `json:"entries"`
	Report  ReconciliationReport `json:"report"`
}

// AccountingEntry is one side of a double-entry posting
type AccountingEntry struct {
	Account     string  `json:"account"`
	AccountName string  `json:"account_name"`
	Description string  `json:"description"`
	Debit       float64 `json:"debit"`
	Credit      float64 `json:"credit"`
}

// ReconciliationReport summarizes invoice/PO variance
type ReconciliationReport struct {
	InvoiceTotal    float64 `json:"invoice_total"`
	POTotal         float64 `json:"po_total,omitempty"`
	Variance        float64 `json:"variance"`
	VariancePct     float64 `json:"variance_pct"`
	WithinTolerance bool    `json:"within_tolerance"`
	Notes           string  `json:"notes,omitempty"`
}

// Approval statuses written by APPROVE
const (
	ApprovalAutoApproved    = "AUTO_APPROVED"
	ApprovalHumanApproved   = "HUMAN_APPROVED"
	ApprovalPendingApproval = "PENDING_APPROVAL"
)

// ApprovalSection is written by APPROVE
type ApprovalSection struct {
	Status     string    `json:"status"`
	Approver   string    `json:"approver"`
	Reason     string    `json:"reason,omitempty"`
	ApprovedAt time.Time `json:"approved_at"`
}

// PostingSection is written by POST
type PostingSection struct {
	Posted        bool   `json:"posted"`
	TransactionID string `json:"transaction_id,omitempty"`
	Skipped       bool   `json:"skipped,omitempty"`
	Message       string `json:"message,omitempty"`
}

// DeliveryResult records the delivery status for a single recipient
type DeliveryResult struct {
	Recipient string `json:"recipient"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// NotificationSection is written by NOTIFY
type NotificationSection struct {
	Deliveries []DeliveryResult `json:"deliveries"`
}
