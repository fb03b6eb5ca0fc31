package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/rohithsiddi/invoice-processing-agent/internal/application/port"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
)

// ToolPicker implements port.ToolSelector. With an API key it asks the
// model which OCR engine suits the document; without one, or when the
// API misbehaves, it falls back to a deterministic rule table.
type ToolPicker struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

// NewToolPicker creates a new ToolPicker. An empty apiKey disables the
// LLM path entirely.
func NewToolPicker(apiKey, model string, temperature float32, maxTokens int, logger *zap.Logger) *ToolPicker {
	var client *openai.Client
	if apiKey != "" {
		client = openai.NewClient(apiKey)
	}
	return &ToolPicker{
		client:      client,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		logger:      logger,
	}
}

// SelectTool picks the OCR tool for a document
func (p *ToolPicker) SelectTool(ctx context.Context, meta entity.DocumentMeta) (entity.OCRTool, error) {
	if p.client == nil {
		return ruleBasedTool(meta), nil
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "You pick the OCR engine for invoice documents. " +
					"Answer with exactly one word: tesseract or easyocr. " +
					"tesseract is best for clean machine-printed documents; easyocr handles " +
					"photographs, low quality scans, and non-Latin scripts better.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: describeDocument(meta),
			},
		},
	})
	if err != nil {
		p.logger.Warn("Tool selection via API failed, using rule table", zap.Error(err))
		return ruleBasedTool(meta), nil
	}
	if len(resp.Choices) == 0 {
		return ruleBasedTool(meta), nil
	}

	answer := strings.ToLower(strings.TrimSpace(resp.Choices[0].Message.Content))
	switch {
	case strings.Contains(answer, string(entity.ToolEasyOCR)):
		return entity.ToolEasyOCR, nil
	case strings.Contains(answer, string(entity.ToolTesseract)):
		return entity.ToolTesseract, nil
	default:
		p.logger.Warn("Unrecognized tool selection answer, using rule table",
			zap.String("answer", answer))
		return ruleBasedTool(meta), nil
	}
}

// ruleBasedTool is the deterministic fallback: photographs and
// low-quality scans go to easyocr, everything else to tesseract
func ruleBasedTool(meta entity.DocumentMeta) entity.OCRTool {
	switch strings.ToLower(meta.FileType) {
	case "jpg", "jpeg", "png":
		return entity.ToolEasyOCR
	}
	if meta.QualityHint == "low" {
		return entity.ToolEasyOCR
	}
	if meta.Language != "" && meta.Language != "en" {
		return entity.ToolEasyOCR
	}
	return entity.ToolTesseract
}

func describeDocument(meta entity.DocumentMeta) string {
	var b strings.Builder
	fmt.Fprintf(&b, "file type: %s", meta.FileType)
	if meta.FileSize > 0 {
		fmt.Fprintf(&b, ", size: %d bytes", meta.FileSize)
	}
	if meta.Language != "" {
		fmt.Fprintf(&b, ", language: %s", meta.Language)
	}
	if meta.QualityHint != "" {
		fmt.Fprintf(&b, ", scan quality: %s", meta.QualityHint)
	}
	return b.String()
}

// Verify interface compliance
var _ port.ToolSelector = (*ToolPicker)(nil)
