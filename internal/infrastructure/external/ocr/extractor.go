package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"

	"github.com/rohithsiddi/invoice-processing-agent/internal/application/port"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

// Extractor implements port.OCRExtractor. PDF documents are read with
// the embedded text layer; image formats need an external OCR engine
// and are rejected when none is wired in.
type Extractor struct {
	uploadDir string
	logger    *zap.Logger
}

// NewExtractor creates a new document text Extractor
func NewExtractor(uploadDir string, logger *zap.Logger) *Extractor {
	return &Extractor{uploadDir: uploadDir, logger: logger}
}

// Extract reads the document and parses structured invoice fields
func (e *Extractor) Extract(ctx context.Context, fileRef string, tool entity.OCRTool) (*entity.ExtractionResult, error) {
	path := fileRef
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.uploadDir, fileRef)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: document %s: %v", workflow.ErrValidation, fileRef, err)
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext != "pdf" {
		return nil, fmt.Errorf("%w: %s extraction requires an OCR engine deployment", workflow.ErrUnsupportedFormat, ext)
	}

	text, err := e.readPDFText(path)
	if err != nil {
		return nil, err
	}

	fields, confidence := ParseInvoiceText(text)
	e.logger.Info("Document text extracted",
		zap.String("file", fileRef),
		zap.String("tool", tool.String()),
		zap.Float64("confidence", confidence))

	return &entity.ExtractionResult{
		Tool:       tool,
		Confidence: confidence,
		Fields:     fields,
		RawText:    text,
	}, nil
}

// readPDFText pulls the text layer from every page
func (e *Extractor) readPDFText(path string) (string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer doc.Close()

	var pages []string
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			return "", fmt.Errorf("read pdf page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return strings.Join(pages, "\n"), nil
}

// Verify interface compliance
var _ port.OCRExtractor = (*Extractor)(nil)
