package service

import (
	"context"
	"fmt"

	"github.com/rohithsiddi/invoice-processing-agent/internal/application/port"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/entity"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/event"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

// PendingReview pairs an open checkpoint with a summary of the invoice
// waiting on it
type PendingReview struct {
	Checkpoint    *entity.Checkpoint `json:"checkpoint"`
	InvoiceNumber string             `json:"invoice_number,omitempty"`
	VendorName    string             `json:"vendor_name,omitempty"`
	Total         float64            `json:"total,omitempty"`
	MatchScore    float64            `json:"match_score,omitempty"`
}

// Artifact is the structured processing record of a completed run
type Artifact struct {
	InstanceID     string                        `json:"instance_id"`
	Status         workflow.Status               `json:"status"`
	Invoice        entity.InvoiceFields          `json:"invoice"`
	InvoiceType    string                        `json:"invoice_type,omitempty"`
	Vendor         *entity.VendorSection         `json:"vendor,omitempty"`
	Match          *entity.MatchSection          `json:"match,omitempty"`
	Review         *entity.ReviewSection         `json:"review,omitempty"`
	Reconciliation *entity.ReconciliationSection `json:"reconciliation,omitempty"`
	Approval       *entity.ApprovalSection       `json:"approval,omitempty"`
	Posting        *entity.PostingSection        `json:"posting,omitempty"`
	StageHistory   []entity.StageRecord          `json:"stage_history"`
}

// QueryService serves the read side: instances, review queue, audit
// trail, and completion artifacts
type QueryService struct {
	instances   port.InstanceRepository
	checkpoints port.CheckpointRepository
	audit       port.AuditRepository
}

// NewQueryService creates a new QueryService
func NewQueryService(instances port.InstanceRepository, checkpoints port.CheckpointRepository, audit port.AuditRepository) *QueryService {
	return &QueryService{instances: instances, checkpoints: checkpoints, audit: audit}
}

// GetInstance loads one workflow instance
func (s *QueryService) GetInstance(ctx context.Context, id string) (*entity.WorkflowInstance, error) {
	instance, err := s.instances.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load instance %s: %w", id, err)
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: instance %s", workflow.ErrNotFound, id)
	}
	return instance, nil
}

// ListInstances returns instances filtered by status
func (s *QueryService) ListInstances(ctx context.Context, status string, limit, offset int) ([]*entity.WorkflowInstance, error) {
	if status != "" && !workflow.Status(status).IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", workflow.ErrValidation, status)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.instances.List(ctx, status, limit, offset)
}

// GetHistory returns the per-stage history of an instance
func (s *QueryService) GetHistory(ctx context.Context, id string) ([]entity.StageRecord, error) {
	instance, err := s.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	return instance.StageHistory, nil
}

// GetAuditTrail returns the audit events recorded for an instance
func (s *QueryService) GetAuditTrail(ctx context.Context, id string) ([]*event.Event, error) {
	if _, err := s.GetInstance(ctx, id); err != nil {
		return nil, err
	}
	return s.audit.ListByInstanceID(ctx, id)
}

// GetCheckpoint loads one checkpoint
func (s *QueryService) GetCheckpoint(ctx context.Context, id string) (*entity.Checkpoint, error) {
	cp, err := s.checkpoints.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", id, err)
	}
	if cp == nil {
		return nil, fmt.Errorf("%w: checkpoint %s", workflow.ErrNotFound, id)
	}
	return cp, nil
}

// ListPendingReviews returns all open checkpoints together with the
// invoice waiting behind each one, oldest first
func (s *QueryService) ListPendingReviews(ctx context.Context) ([]PendingReview, error) {
	open, err := s.checkpoints.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open checkpoints: %w", err)
	}

	reviews := make([]PendingReview, 0, len(open))
	for _, cp := range open {
		review := PendingReview{Checkpoint: cp}

		instance, err := s.instances.GetByID(ctx, cp.WorkflowID)
		if err == nil && instance != nil && instance.Payload != nil {
			if instance.Payload.Extraction != nil {
				review.InvoiceNumber = instance.Payload.Extraction.Fields.InvoiceNumber
				review.VendorName = instance.Payload.Extraction.Fields.VendorName
				review.Total = instance.Payload.Extraction.Fields.Total
			}
			if instance.Payload.Match != nil {
				review.MatchScore = instance.Payload.Match.Result.Score
			}
		}
		reviews = append(reviews, review)
	}
	return reviews, nil
}

// GetArtifact builds the processing artifact of a completed instance.
// Asking for the artifact of an unfinished run is an invalid-state
// error, not an empty document.
func (s *QueryService) GetArtifact(ctx context.Context, id string) (*Artifact, error) {
	instance, err := s.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	if instance.Status != workflow.StatusCompleted {
		return nil, fmt.Errorf("%w: instance %s is %s, artifact requires %s",
			workflow.ErrInvalidState, id, instance.Status, workflow.StatusCompleted)
	}

	artifact := &Artifact{
		InstanceID:   instance.ID,
		Status:       instance.Status,
		StageHistory: instance.StageHistory,
	}
	payload := instance.Payload
	if payload == nil {
		return artifact, nil
	}
	if payload.Extraction != nil {
		artifact.Invoice = payload.Extraction.Fields
	}
	if payload.Classification != nil {
		artifact.InvoiceType = payload.Classification.InvoiceType
	}
	artifact.Vendor = payload.Vendor
	artifact.Match = payload.Match
	artifact.Review = payload.Review
	artifact.Reconciliation = payload.Reconciliation
	artifact.Approval = payload.Approval
	artifact.Posting = payload.Posting

	return artifact, nil
}
