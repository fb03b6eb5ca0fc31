package stage

import (
	"context"
	"fmt"
	"time"

	"github.com/rohithsiddi/invoice-processing-agent/internal/application/port"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

// ExtractHandler selects an OCR tool and runs text extraction on the
// ingested document. Transient extraction failures are retried before
// the stage fails.
type ExtractHandler struct {
	selector      port.ToolSelector
	extractor     port.OCRExtractor
	minConfidence float64
	retry         RetryPolicy
	logger        Logger
}

// NewExtractHandler creates a new ExtractHandler
func NewExtractHandler(selector port.ToolSelector, extractor port.OCRExtractor, minConfidence float64, logger Logger) *ExtractHandler {
	if logger == nil {
		logger = NopLogger()
	}
	return &ExtractHandler{
		selector:      selector,
		extractor:     extractor,
		minConfidence: minConfidence,
		retry:         RetryPolicy{MaxAttempts: 2, Backoff: 500 * time.Millisecond},
		logger:        logger,
	}
}

func (h *ExtractHandler) Stage() workflow.Stage { return workflow.StageExtract }

func (h *ExtractHandler) Execute(ctx context.Context, payload *entity.Payload) (*Result, error) {
	doc := payload.Document
	if doc == nil {
		return nil, fmt.Errorf("%w: extraction requires an ingested document", workflow.ErrInvalidState)
	}

	meta := entity.DocumentMeta{
		FileType: doc.FileType,
		FileSize: doc.FileSize,
	}
	tool, err := h.selector.SelectTool(ctx, meta)
	if err != nil {
		h.logger.Error("tool selection failed, falling back to tesseract", "error", err)
		tool = entity.ToolTesseract
	}

	var result *entity.ExtractionResult
	err = h.retry.Do(ctx, func(ctx context.Context) error {
		var extractErr error
		result, extractErr = h.extractor.Extract(ctx, doc.FileRef, tool)
		return extractErr
	})
	if err != nil {
		return nil, fmt.Errorf("extract document %s: %w", doc.FileRef, err)
	}

	if result.Confidence < h.minConfidence {
		return nil, fmt.Errorf("%w: extraction confidence %.2f below minimum %.2f",
			workflow.ErrLowConfidence, result.Confidence, h.minConfidence)
	}

	attempt := 1
	if payload.Extraction != nil {
		attempt = payload.Extraction.Attempt + 1
	}
	payload.Extraction = &entity.ExtractionSection{
		Tool:       result.Tool,
		Confidence: result.Confidence,
		Fields:     result.Fields,
		Attempt:    attempt,
	}

	h.logger.Info("extraction complete",
		"tool", string(result.Tool),
		"confidence", result.Confidence,
		"attempt", attempt)

	return &Result{
		Next:   workflow.StageClassify,
		Detail: fmt.Sprintf("extracted with %s at confidence %.2f", result.Tool, result.Confidence),
	}, nil
}
