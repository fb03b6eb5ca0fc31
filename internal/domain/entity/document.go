package entity

// OCRTool identifies one of the fixed set of OCR backends the tool
// selector may pick from
type OCRTool string

const (
	ToolTesseract OCRTool = "tesseract"
	ToolEasyOCR   OCRTool = "easyocr"
)

// IsValid returns true if the tool is one of the known backends
func (t OCRTool) IsValid() bool {
	return t == ToolTesseract || t == ToolEasyOCR
}

// String returns the string representation of the tool
func (t OCRTool) String() string {
	return string(t)
}

// DocumentMeta describes an ingested document for OCR tool selection
type DocumentMeta struct {
	FileType    string `json:"file_type"`
	FileSize    int64  `json:"file_size"`
	Language    string `json:"language,omitempty"`
	QualityHint string `json:"quality_hint,omitempty"`
}

// ExtractionResult is the output of the OCR executor
type ExtractionResult struct {
	Tool       OCRTool       `json:"tool"`
	Confidence float64       `json:"confidence"`
	Fields     InvoiceFields `json:"fields"`
	RawText    string        `json:"raw_text,omitempty"`
}
