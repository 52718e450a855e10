package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halaqat-app/progress-api/internal/middleware"
	"github.com/halaqat-app/progress-api/internal/models"
	"github.com/halaqat-app/progress-api/internal/service"
	appErrors "github.com/halaqat-app/progress-api/pkg/errors"
)

type certificateServiceMock struct {
	createResp  *models.CertificateRequest
	createErr   error
	listResp     []models.CertificateRequest
	listPages    *models.Pagination
	listErr      error
	reviewResp   *models.CertificateRequest
	reviewErr    error
	lastInput    service.CreateCertificateRequestInput
	lastFilter   models.CertificateFilter
	lastPage     int
	lastPageSize int
	lastID       string
	lastApprove  bool
}

func (m *certificateServiceMock) CreateCertificateRequest(ctx context.Context, input service.CreateCertificateRequestInput) (*models.CertificateRequest, error) {
	m.lastInput = input
	return m.createResp, m.createErr
}

func (m *certificateServiceMock) ListCertificateRequests(ctx context.Context, filter models.CertificateFilter, page, pageSize int) ([]models.CertificateRequest, *models.Pagination, error) {
	m.lastFilter = filter
	m.lastPage = page
	m.lastPageSize = pageSize
	return m.listResp, m.listPages, m.listErr
}

func (m *certificateServiceMock) ReviewCertificateRequest(ctx context.Context, id string, approve bool) (*models.CertificateRequest, error) {
	m.lastID = id
	m.lastApprove = approve
	return m.reviewResp, m.reviewErr
}

func TestCertificateHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &certificateServiceMock{
		createResp: &models.CertificateRequest{ID: "cert-1", Status: models.CertificatePending},
	}
	handler := NewCertificateHandler(mockSvc)

	payload, _ := json.Marshal(service.CreateCertificateRequestInput{StudentID: "student-1", StageID: "stage-1"})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/certificates", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher})

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "teacher-1", mockSvc.lastInput.TeacherID)
	assert.Equal(t, "student-1", mockSvc.lastInput.StudentID)
}

func TestCertificateHandlerCreateNotEligible(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &certificateServiceMock{createErr: appErrors.ErrNotEligible}
	handler := NewCertificateHandler(mockSvc)

	payload, _ := json.Marshal(service.CreateCertificateRequestInput{StudentID: "student-1", StageID: "stage-1"})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/certificates", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher})

	handler.Create(c)
	require.Equal(t, appErrors.ErrNotEligible.Status, w.Code)
}

func TestCertificateHandlerListParsesStatusFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &certificateServiceMock{
		listResp:  []models.CertificateRequest{},
		listPages: &models.Pagination{Page: 2, PageSize: 10, TotalCount: 25},
	}
	handler := NewCertificateHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/certificates?studentId=student-1&status=pending&page=2&pageSize=10", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "student-1", mockSvc.lastFilter.StudentID)
	require.NotNil(t, mockSvc.lastFilter.Status)
	assert.Equal(t, models.CertificatePending, *mockSvc.lastFilter.Status)
	assert.Equal(t, 2, mockSvc.lastPage)
	assert.Equal(t, 10, mockSvc.lastPageSize)

	var envelope struct {
		Pagination *models.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Pagination)
	assert.Equal(t, 25, envelope.Pagination.TotalCount)
}

func TestCertificateHandlerReview(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &certificateServiceMock{
		reviewResp: &models.CertificateRequest{ID: "cert-1", Status: models.CertificateApproved},
	}
	handler := NewCertificateHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPatch, "/certificates/cert-1", bytes.NewBufferString(`{"approve":true}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "cert-1"}}

	handler.Review(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cert-1", mockSvc.lastID)
	assert.True(t, mockSvc.lastApprove)
}

func TestCertificateHandlerReviewMissingDecision(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewCertificateHandler(&certificateServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPatch, "/certificates/cert-1", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "cert-1"}}

	handler.Review(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
