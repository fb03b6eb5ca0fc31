package openai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
)

func TestRuleBasedTool(t *testing.T) {
	tests := []struct {
		name string
		meta entity.DocumentMeta
		want entity.OCRTool
	}{
		{"clean pdf", entity.DocumentMeta{FileType: "pdf"}, entity.ToolTesseract},
		{"jpeg photo", entity.DocumentMeta{FileType: "jpeg"}, entity.ToolEasyOCR},
		{"png scan", entity.DocumentMeta{FileType: "png"}, entity.ToolEasyOCR},
		{"low quality pdf", entity.DocumentMeta{FileType: "pdf", QualityHint: "low"}, entity.ToolEasyOCR},
		{"non-latin language", entity.DocumentMeta{FileType: "pdf", Language: "zh"}, entity.ToolEasyOCR},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ruleBasedTool(tt.meta))
		})
	}
}

func TestSelectToolWithoutAPIKey(t *testing.T) {
	picker := NewToolPicker("", "gpt-4o", 0, 50, zap.NewNop())

	tool, err := picker.SelectTool(context.Background(), entity.DocumentMeta{FileType: "pdf"})
	require.NoError(t, err)
	assert.Equal(t, entity.ToolTesseract, tool)
}
