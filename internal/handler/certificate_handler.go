package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/halaqat-app/progress-api/internal/models"
	"github.com/halaqat-app/progress-api/internal/service"
	appErrors "github.com/halaqat-app/progress-api/pkg/errors"
	"github.com/halaqat-app/progress-api/pkg/response"
)

type certificateService interface {
	CreateCertificateRequest(ctx context.Context, input service.CreateCertificateRequestInput) (*models.CertificateRequest, error)
	ListCertificateRequests(ctx context.Context, filter models.CertificateFilter, page, pageSize int) ([]models.CertificateRequest, *models.Pagination, error)
	ReviewCertificateRequest(ctx context.Context, id string, approve bool) (*models.CertificateRequest, error)
}

// CertificateHandler exposes the certificate request lifecycle.
type CertificateHandler struct {
	certificates certificateService
}

// NewCertificateHandler constructs the handler.
func NewCertificateHandler(certificates certificateService) *CertificateHandler {
	return &CertificateHandler{certificates: certificates}
}

// Create godoc
// @Summary Issue a certificate request for a completed stage
// @Tags Certificates
// @Accept json
// @Produce json
// @Param payload body service.CreateCertificateRequestInput true "Request payload"
// @Success 201 {object} response.Envelope
// @Router /certificates [post]
func (h *CertificateHandler) Create(c *gin.Context) {
	var input service.CreateCertificateRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	input.TeacherID = claims.UserID

	request, err := h.certificates.CreateCertificateRequest(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// List godoc
// @Summary List certificate requests
// @Tags Certificates
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param status query string false "PENDING, APPROVED, or REJECTED"
// @Param page query int false "Page number, starting at 1"
// @Param pageSize query int false "Page size, defaults to 20"
// @Success 200 {object} response.Envelope
// @Router /certificates [get]
func (h *CertificateHandler) List(c *gin.Context) {
	filter := models.CertificateFilter{StudentID: c.Query("studentId")}
	if raw := c.Query("status"); raw != "" {
		status := models.CertificateStatus(strings.ToUpper(raw))
		filter.Status = &status
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	requests, pagination, err := h.certificates.ListCertificateRequests(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// ReviewCertificateRequest is the admin decision payload.
type ReviewCertificateRequest struct {
	Approve *bool `json:"approve" binding:"required"`
}

// Review godoc
// @Summary Approve or reject a pending certificate request
// @Tags Certificates
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body ReviewCertificateRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Router /certificates/{id} [patch]
func (h *CertificateHandler) Review(c *gin.Context) {
	var req ReviewCertificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	request, err := h.certificates.ReviewCertificateRequest(c.Request.Context(), c.Param("id"), *req.Approve)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}
