// Package matching implements the two-way matching engine: a pure,
// deterministic scoring of an invoice against a purchase order. The
// engine performs no I/O; the orchestrator consumes its verdict to
// decide whether the run proceeds or pauses for human review.
package matching

import (
	"fmt"
	"math"
	"strings"

	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
)

// Hard constraint failure reasons
const (
	HardFailVendorMismatch   = "vendor mismatch"
	HardFailZeroPOTotal      = "purchase order total is zero"
	HardFailNoPurchaseOrders = "no matching purchase orders found"
)

// quantityTolerancePct is the fixed tolerance for line item quantity
// comparison; price comparison uses the configured amount tolerance.
const quantityTolerancePct = 5.0

// Config holds the scoring policy. Weights are relative; the aggregate
// score is the weighted mean of the component scores, so any positive
// weights are valid.
type Config struct {
	Threshold      float64
	TolerancePct   float64
	VendorWeight   float64
	AmountWeight   float64
	LineItemWeight float64
}

// DefaultConfig returns the scoring policy defaults
func DefaultConfig() Config {
	return Config{
		Threshold:      0.85,
		TolerancePct:   5.0,
		VendorWeight:   0.3,
		AmountWeight:   0.4,
		LineItemWeight: 0.3,
	}
}

// Validate checks the policy for configuration errors
func (c Config) Validate() error {
	if c.Threshold <= 0 || c.Threshold > 1 {
		return fmt.Errorf("match threshold must be in (0, 1], got %v", c.Threshold)
	}
	if c.TolerancePct < 0 {
		return fmt.Errorf("tolerance percentage must be non-negative, got %v", c.TolerancePct)
	}
	if c.VendorWeight < 0 || c.AmountWeight < 0 || c.LineItemWeight < 0 {
		return fmt.Errorf("score weights must be non-negative")
	}
	if c.VendorWeight+c.AmountWeight+c.LineItemWeight <= 0 {
		return fmt.Errorf("at least one score weight must be positive")
	}
	return nil
}

// BestMatch scores the invoice against every candidate purchase order
// and returns the result for the highest-scoring one. Ties keep the
// earliest candidate so the outcome is deterministic. An empty candidate
// list is a hard failure.
func BestMatch(inv entity.InvoiceFields, pos []entity.PurchaseOrder, cfg Config) entity.MatchResult {
	if len(pos) == 0 {
		return entity.MatchResult{
			Score:        0,
			Passed:       false,
			Threshold:    cfg.Threshold,
			TolerancePct: cfg.TolerancePct,
			Evidence: entity.MatchEvidence{
				InvoiceVendor: inv.VendorName,
				HardFailures:  []string{HardFailNoPurchaseOrders},
			},
		}
	}

	best := Match(inv, pos[0], cfg)
	for _, po := range pos[1:] {
		result := Match(inv, po, cfg)
		if result.Score > best.Score {
			best = result
		}
	}
	return best
}

// Match scores one invoice against one purchase order. Pure and
// deterministic: identical inputs yield an identical result.
func Match(inv entity.InvoiceFields, po entity.PurchaseOrder, cfg Config) entity.MatchResult {
	evidence := entity.MatchEvidence{
		InvoiceVendor: inv.VendorName,
		POVendor:      po.VendorName,
	}

	vendorScore := 0.0
	evidence.VendorMatch = vendorsEqual(inv.VendorName, po.VendorName)
	if evidence.VendorMatch {
		vendorScore = 1.0
	} else {
		evidence.HardFailures = append(evidence.HardFailures, HardFailVendorMismatch)
	}

	amountScore := 0.0
	evidence.AmountDiff = round2(inv.Total - po.Total)
	if po.Total == 0 {
		// Division-by-zero guard: a zero-amount PO is an automatic hard failure
		evidence.AmountDiffPct = 100
		evidence.HardFailures = append(evidence.HardFailures, HardFailZeroPOTotal)
	} else {
		diffPct := math.Abs(inv.Total-po.Total) / po.Total * 100
		evidence.AmountDiffPct = round2(diffPct)
		if diffPct <= cfg.TolerancePct {
			amountScore = 1.0
			evidence.AmountWithinTolerance = true
		} else {
			amountScore = clamp01(1 - diffPct/100)
		}
	}

	lineScore, comparisons, matched, total := matchLineItems(inv.LineItems, po.LineItems, cfg.TolerancePct)
	evidence.LineItems = comparisons
	evidence.ItemsMatched = matched
	evidence.ItemsTotal = total

	weightSum := cfg.VendorWeight + cfg.AmountWeight + cfg.LineItemWeight
	score := (cfg.VendorWeight*vendorScore + cfg.AmountWeight*amountScore + cfg.LineItemWeight*lineScore) / weightSum
	score = clamp01(score)

	return entity.MatchResult{
		Score:        score,
		Passed:       len(evidence.HardFailures) == 0 && score >= cfg.Threshold,
		PONumber:     po.PONumber,
		Threshold:    cfg.Threshold,
		TolerancePct: cfg.TolerancePct,
		Evidence:     evidence,
	}
}

// matchLineItems pairs invoice lines with PO lines greedily: each invoice
// line consumes at most one PO line, so duplicates on either side cannot
// be double-counted. The denominator is the larger of the two counts, so
// extra lines on either side penalize the score.
func matchLineItems(invItems, poItems []entity.LineItem, tolerancePct float64) (float64, []entity.LineComparison, int, int) {
	if len(invItems) == 0 && len(poItems) == 0 {
		return 1.0, nil, 0, 0
	}

	total := len(invItems)
	if len(poItems) > total {
		total = len(poItems)
	}

	if len(invItems) == 0 || len(poItems) == 0 {
		return 0.0, nil, 0, total
	}

	used := make([]bool, len(poItems))
	comparisons := make([]entity.LineComparison, 0, len(invItems))
	matched := 0

	for _, item := range invItems {
		cmp := entity.LineComparison{
			InvoiceDescription: item.Description,
			InvoiceQuantity:    item.Quantity,
			InvoiceUnitPrice:   item.UnitPrice,
		}

		idx := findCandidate(item, poItems, used, tolerancePct)
		if idx >= 0 {
			used[idx] = true
			matched++
			cmp.PODescription = poItems[idx].Description
			cmp.POQuantity = poItems[idx].Quantity
			cmp.POUnitPrice = poItems[idx].UnitPrice
			cmp.Matched = true
		} else {
			cmp.Reason = bestMismatchReason(item, poItems, tolerancePct)
		}

		comparisons = append(comparisons, cmp)
	}

	return float64(matched) / float64(total), comparisons, matched, total
}

// findCandidate returns the index of the first unused PO line that
// agrees with the invoice line on description, quantity and unit price.
func findCandidate(item entity.LineItem, poItems []entity.LineItem, used []bool, tolerancePct float64) int {
	for i, candidate := range poItems {
		if used[i] {
			continue
		}
		if !descriptionsSimilar(item.Description, candidate.Description) {
			continue
		}
		if !withinTolerance(item.Quantity, candidate.Quantity, quantityTolerancePct) {
			continue
		}
		if !withinTolerance(item.UnitPrice, candidate.UnitPrice, tolerancePct) {
			continue
		}
		return i
	}
	return -1
}

// bestMismatchReason explains why an invoice line found no PO partner
func bestMismatchReason(item entity.LineItem, poItems []entity.LineItem, tolerancePct float64) string {
	for _, candidate := range poItems {
		if !descriptionsSimilar(item.Description, candidate.Description) {
			continue
		}
		if !withinTolerance(item.Quantity, candidate.Quantity, quantityTolerancePct) {
			return "quantity out of tolerance"
		}
		if !withinTolerance(item.UnitPrice, candidate.UnitPrice, tolerancePct) {
			return "unit price out of tolerance"
		}
		return "line already matched"
	}
	return "no matching description"
}

func descriptionsSimilar(a, b string) bool {
	na, nb := normalize(a), normalize(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb || strings.Contains(na, nb) || strings.Contains(nb, na)
}

func vendorsEqual(a, b string) bool {
	na, nb := normalize(a), normalize(b)
	return na != "" && na == nb
}

// normalize lowercases and collapses internal whitespace
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func withinTolerance(actual, expected, tolerancePct float64) bool {
	if actual == expected {
		return true
	}
	if expected == 0 {
		return false
	}
	return math.Abs(actual-expected)/math.Abs(expected)*100 <= tolerancePct
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
