package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

var supportedFormats = map[string]bool{
	"pdf":  true,
	"png":  true,
	"jpg":  true,
	"jpeg": true,
}

// IngestHandler validates the uploaded document reference and records
// document metadata
type IngestHandler struct{}

// NewIngestHandler creates a new IngestHandler
func NewIngestHandler() *IngestHandler { return &IngestHandler{} }

func (h *IngestHandler) Stage() workflow.Stage { return workflow.StageIngest }

func (h *IngestHandler) Execute(ctx context.Context, payload *entity.Payload) (*Result, error) {
	doc := payload.Document
	if doc == nil || doc.FileRef == "" {
		return nil, fmt.Errorf("%w: no document attached to instance", workflow.ErrValidation)
	}

	fileType := strings.ToLower(strings.TrimPrefix(doc.FileType, "."))
	if fileType == "" {
		fileType = strings.ToLower(strings.TrimPrefix(filepath.Ext(doc.FileRef), "."))
	}
	if !supportedFormats[fileType] {
		return nil, fmt.Errorf("%w: unsupported document format %q", workflow.ErrValidation, fileType)
	}

	now := time.Now().UTC()
	doc.FileType = fileType
	doc.IngestedAt = &now
	if info, err := os.Stat(doc.FileRef); err == nil {
		doc.FileSize = info.Size()
	}

	return &Result{
		Next:   workflow.StageExtract,
		Detail: fmt.Sprintf("accepted %s document %s", fileType, doc.FileRef),
	}, nil
}
