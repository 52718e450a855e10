package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/halaqat-app/progress-api/internal/models"
	"github.com/halaqat-app/progress-api/pkg/config"
	appErrors "github.com/halaqat-app/progress-api/pkg/errors"
)

type certificateStore interface {
	Create(ctx context.Context, req *models.CertificateRequest) error
	FindByID(ctx context.Context, id string) (*models.CertificateRequest, error)
	List(ctx context.Context, filter models.CertificateFilter) ([]models.CertificateRequest, error)
	Count(ctx context.Context, filter models.CertificateFilter) (int, error)
	ExistsActive(ctx context.Context, studentID, stageID string) (bool, error)
	UpdateStatus(ctx context.Context, id string, status models.CertificateStatus, decidedAt time.Time) error
}

type completionReader interface {
	StageCompletionEntry(ctx context.Context, studentID, stageID string, totalPages int, finalStage bool) (*models.LedgerEntry, error)
	HasStageEntryAfter(ctx context.Context, studentID, stageID string, after models.LedgerEntry) (bool, error)
}

type certificateStageReader interface {
	FindByID(ctx context.Context, id string) (*models.Stage, error)
	FindNext(ctx context.Context, orderIndex int) (*models.Stage, error)
}

// CertificateService is the eligibility gate plus the two-phase request
// lifecycle: teachers issue PENDING requests, admins approve or reject them.
type CertificateService struct {
	certificates certificateStore
	ledger       completionReader
	stages       certificateStageReader
	assignments  assignmentVerifier
	enabled      bool
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewCertificateService constructs the certificate service.
func NewCertificateService(certificates certificateStore, ledger completionReader, stages certificateStageReader, assignments assignmentVerifier, cfg config.CertificatesConfig, validate *validator.Validate, logger *zap.Logger) *CertificateService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CertificateService{
		certificates: certificates,
		ledger:       ledger,
		stages:       stages,
		assignments:  assignments,
		enabled:      cfg.Enabled,
		validator:    validate,
		logger:       logger,
	}
}

// IsEligible reports whether the student completed the stage and never
// re-entered it afterwards. Completion means an ESCALATE entry or an ADVANCE
// at the final page; on the last curriculum stage escalation cannot jump
// anywhere, so only an entry at the final page counts.
func (s *CertificateService) IsEligible(ctx context.Context, studentID, stageID string) (bool, error) {
	stage, err := s.stages.FindByID(ctx, stageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, appErrors.Clone(appErrors.ErrNotFound, "stage not found")
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load stage")
	}

	finalStage := false
	if _, err := s.stages.FindNext(ctx, stage.OrderIndex); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load next stage")
		}
		finalStage = true
	}

	completion, err := s.ledger.StageCompletionEntry(ctx, studentID, stageID, stage.TotalPages, finalStage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load completion entry")
	}

	reentered, err := s.ledger.HasStageEntryAfter(ctx, studentID, stageID, *completion)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "check stage re-entry")
	}
	return !reentered, nil
}

// CreateCertificateRequestInput is the teacher-facing issuance payload.
type CreateCertificateRequestInput struct {
	StudentID string `json:"student_id" validate:"required"`
	StageID   string `json:"stage_id" validate:"required"`
	TeacherID string `json:"-"`
}

// CreateCertificateRequest issues a PENDING request when the gate passes.
func (s *CertificateService) CreateCertificateRequest(ctx context.Context, input CreateCertificateRequestInput) (*models.CertificateRequest, error) {
	if !s.enabled {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "certificate requests are disabled")
	}
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid certificate request payload")
	}

	assigned, err := s.assignments.IsAssigned(ctx, input.TeacherID, input.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "verify teacher assignment")
	}
	if !assigned {
		return nil, appErrors.ErrUnauthorizedTeacher
	}

	eligible, err := s.IsEligible(ctx, input.StudentID, input.StageID)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, appErrors.ErrNotEligible
	}

	exists, err := s.certificates.ExistsActive(ctx, input.StudentID, input.StageID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "check existing requests")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an active certificate request already covers this stage")
	}

	request := &models.CertificateRequest{
		StudentID: input.StudentID,
		TeacherID: input.TeacherID,
		StageID:   input.StageID,
	}
	if err := s.certificates.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "create certificate request")
	}

	s.logger.Info("certificate request issued",
		zap.String("request_id", request.ID),
		zap.String("student_id", input.StudentID),
		zap.String("stage_id", input.StageID))
	return request, nil
}

// ReviewCertificateRequest applies the admin decision to a PENDING request.
func (s *CertificateService) ReviewCertificateRequest(ctx context.Context, id string, approve bool) (*models.CertificateRequest, error) {
	if _, err := s.certificates.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load certificate request")
	}

	status := models.CertificateRejected
	if approve {
		status = models.CertificateApproved
	}
	if err := s.certificates.UpdateStatus(ctx, id, status, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "certificate request is already decided")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "update certificate status")
	}

	return s.certificates.FindByID(ctx, id)
}

const (
	defaultCertificatePageSize = 20
	maxCertificatePageSize     = 100
)

// ListCertificateRequests returns one page of requests for the admin review
// screen, newest first, with the total match count.
func (s *CertificateService) ListCertificateRequests(ctx context.Context, filter models.CertificateFilter, page, pageSize int) ([]models.CertificateRequest, *models.Pagination, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unsupported certificate status")
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultCertificatePageSize
	}
	if pageSize > maxCertificatePageSize {
		pageSize = maxCertificatePageSize
	}
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	total, err := s.certificates.Count(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "count certificate requests")
	}
	requests, err := s.certificates.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list certificate requests")
	}
	if requests == nil {
		requests = []models.CertificateRequest{}
	}
	pagination := &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
	return requests, pagination, nil
}
