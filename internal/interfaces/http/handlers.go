package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rohithsiddi/invoice-processing-agent/internal/application/checkpoint"
	"github.com/rohithsiddi/invoice-processing-agent/internal/application/orchestrator"
	"github.com/rohithsiddi/invoice-processing-agent/internal/application/service"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
	"github.com/rohithsiddi/invoice-processing-agent/internal/infrastructure/report"
)

// runTimeout bounds a background pipeline run kicked off by an API call
const runTimeout = 5 * time.Minute

// ComponentHealth reports the state of one wired dependency
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// HealthFunc probes the wired components for the health endpoint
type HealthFunc func() (bool, map[string]ComponentHealth)

// Handlers contains all HTTP request handlers
type Handlers struct {
	orch      orchestrator.Orchestrator
	manager   *checkpoint.Manager
	queries   *service.QueryService
	workbooks *report.WorkbookWriter
	uploadDir string
	health    HealthFunc
	logger    Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	orch orchestrator.Orchestrator,
	manager *checkpoint.Manager,
	queries *service.QueryService,
	workbooks *report.WorkbookWriter,
	uploadDir string,
	logger Logger,
) *Handlers {
	return &Handlers{
		orch:      orch,
		manager:   manager,
		queries:   queries,
		workbooks: workbooks,
		uploadDir: uploadDir,
		logger:    logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    string      `json:"kind,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string                     `json:"status"`
	Timestamp  string                     `json:"timestamp"`
	Version    string                     `json:"version"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// SubmitInvoiceRequest is the JSON intake body for a document that is
// already present in the upload directory
type SubmitInvoiceRequest struct {
	FileRef  string `json:"file_ref" binding:"required"`
	FileType string `json:"file_type"`
}

// ListInstancesRequest represents query parameters for listing instances
type ListInstancesRequest struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// CancelRequest carries the operator's reason for cancelling a run
type CancelRequest struct {
	Reason string `json:"reason"`
}

// DecisionRequest is a reviewer's decision on an open checkpoint
type DecisionRequest struct {
	Decision string `json:"decision" binding:"required"`
	Reviewer string `json:"reviewer" binding:"required"`
	Notes    string `json:"notes"`
	Retry    bool   `json:"retry"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	status := http.StatusOK
	if h.health != nil {
		healthy, components := h.health()
		response.Components = components
		if !healthy {
			response.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, Response{
		Success: status == http.StatusOK,
		Data:    response,
	})
}

// SubmitInvoice handles POST /api/invoices. It accepts either a
// multipart upload (saved into the upload directory) or a JSON body
// referencing a document already on disk, creates the workflow
// instance, and kicks off the pipeline in the background.
func (h *Handlers) SubmitInvoice(c *gin.Context) {
	fileRef, fileType, err := h.intakeDocument(c)
	if err != nil {
		h.fail(c, fmt.Errorf("%w: %v", workflow.ErrValidation, err))
		return
	}

	instance, err := h.orch.Create(c.Request.Context(), fileRef, fileType)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.runAsync(instance.ID)

	c.JSON(http.StatusAccepted, Response{
		Success: true,
		Data:    instance,
	})
}

// intakeDocument resolves the uploaded or referenced document for a
// submission and returns its file reference and type
func (h *Handlers) intakeDocument(c *gin.Context) (fileRef, fileType string, err error) {
	contentType := c.ContentType()
	if strings.HasPrefix(contentType, "multipart/") {
		file, err := c.FormFile("file")
		if err != nil {
			return "", "", fmt.Errorf("missing file field: %v", err)
		}

		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(file.Filename), "."))
		saved := fmt.Sprintf("%s_%s", uuid.NewString(), filepath.Base(file.Filename))
		if err := c.SaveUploadedFile(file, filepath.Join(h.uploadDir, saved)); err != nil {
			return "", "", fmt.Errorf("save upload: %v", err)
		}
		return saved, ext, nil
	}

	var req SubmitInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return "", "", fmt.Errorf("invalid request body: %v", err)
	}

	fileType = req.FileType
	if fileType == "" {
		fileType = strings.ToLower(strings.TrimPrefix(filepath.Ext(req.FileRef), "."))
	}
	return req.FileRef, fileType, nil
}

// ListInstances handles GET /api/instances
func (h *Handlers) ListInstances(c *gin.Context) {
	var req ListInstancesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: invalid query parameters", workflow.ErrValidation))
		return
	}

	instances, err := h.queries.ListInstances(c.Request.Context(), req.Status, req.Limit, req.Offset)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    instances,
	})
}

// GetInstance handles GET /api/instances/:id
func (h *Handlers) GetInstance(c *gin.Context) {
	instance, err := h.queries.GetInstance(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    instance,
	})
}

// GetHistory handles GET /api/instances/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	history, err := h.queries.GetHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    history,
	})
}

// GetAuditTrail handles GET /api/instances/:id/audit
func (h *Handlers) GetAuditTrail(c *gin.Context) {
	events, err := h.queries.GetAuditTrail(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    events,
	})
}

// GetArtifact handles GET /api/instances/:id/artifact
func (h *Handlers) GetArtifact(c *gin.Context) {
	artifact, err := h.queries.GetArtifact(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    artifact,
	})
}

// GetArtifactWorkbook handles GET /api/instances/:id/artifact.xlsx
func (h *Handlers) GetArtifactWorkbook(c *gin.Context) {
	artifact, err := h.queries.GetArtifact(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.xlsx", artifact.InstanceID))
	if err := h.workbooks.Write(artifact, c.Writer); err != nil {
		h.logger.Error("Failed to write artifact workbook", "instance_id", artifact.InstanceID, "error", err)
	}
}

// AdvanceInstance handles POST /api/instances/:id/advance. It runs one
// stage synchronously; callers drive multi-stage progress themselves or
// submit through the intake endpoint for a full background run.
func (h *Handlers) AdvanceInstance(c *gin.Context) {
	outcome, err := h.orch.Advance(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    outcome,
	})
}

// CancelInstance handles POST /api/instances/:id/cancel
func (h *Handlers) CancelInstance(c *gin.Context) {
	var req CancelRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.orch.Cancel(c.Request.Context(), c.Param("id"), req.Reason); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// ListPendingReviews handles GET /api/reviews/pending
func (h *Handlers) ListPendingReviews(c *gin.Context) {
	reviews, err := h.queries.ListPendingReviews(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    reviews,
	})
}

// GetReview handles GET /api/reviews/:id
func (h *Handlers) GetReview(c *gin.Context) {
	cp, err := h.queries.GetCheckpoint(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    cp,
	})
}

// DecideReview handles POST /api/reviews/:id/decision. A successful
// resolution resumes the suspended instance in the background.
func (h *Handlers) DecideReview(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: invalid request body", workflow.ErrValidation))
		return
	}

	cp, err := h.manager.Resolve(c.Request.Context(), c.Param("id"), checkpoint.Resolution{
		Decision: entity.Decision(strings.ToUpper(req.Decision)),
		Reviewer: req.Reviewer,
		Notes:    req.Notes,
		Retry:    req.Retry,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	h.runAsync(cp.WorkflowID)

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    cp,
	})
}

// runAsync drives the pipeline for the instance on a detached context
// so intake and decision requests return immediately
func (h *Handlers) runAsync(instanceID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		outcome, err := h.orch.Run(ctx, instanceID)
		if err != nil {
			h.logger.Error("Background run failed", "instance_id", instanceID, "error", err)
			return
		}
		h.logger.Info("Background run stopped",
			"instance_id", instanceID,
			"stage", string(outcome.Stage),
			"kind", outcome.Kind)
	}()
}

// fail writes the error response with the status code implied by the
// error's taxonomy kind
func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", c.Request.URL.Path, "error", err)
	}

	c.JSON(status, Response{
		Success: false,
		Error:   err.Error(),
		Kind:    workflow.ErrorKind(err),
	})
}

// statusForError maps workflow errors to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrInvalidState),
		errors.Is(err, workflow.ErrConflict),
		errors.Is(err, workflow.ErrAlreadyResolved):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrValidation),
		errors.Is(err, workflow.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case workflow.IsTransient(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
