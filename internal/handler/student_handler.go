package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/halaqat-app/progress-api/internal/models"
	"github.com/halaqat-app/progress-api/internal/service"
	appErrors "github.com/halaqat-app/progress-api/pkg/errors"
	"github.com/halaqat-app/progress-api/pkg/response"
)

type studentService interface {
	Register(ctx context.Context, req service.RegisterStudentRequest) (*models.Student, error)
	AssignTeacher(ctx context.Context, studentID string, req service.AssignTeacherRequest) (*models.TeacherAssignment, error)
	GetPosition(ctx context.Context, studentID string) (*models.StudentPosition, error)
}

type ledgerService interface {
	GetLedger(ctx context.Context, studentID string, from, to *models.Date) ([]models.LedgerEntry, error)
	RebuildPosition(ctx context.Context, studentID string) (*models.StudentPosition, error)
}

// StudentHandler exposes student registration, assignment, position, ledger,
// and replay endpoints.
type StudentHandler struct {
	students studentService
	ledger   ledgerService
}

// NewStudentHandler constructs the handler.
func NewStudentHandler(students studentService, ledger ledgerService) *StudentHandler {
	return &StudentHandler{students: students, ledger: ledger}
}

// Register godoc
// @Summary Register a student at the first curriculum stage
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body service.RegisterStudentRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Register(c *gin.Context) {
	var req service.RegisterStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	student, err := h.students.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// AssignTeacher godoc
// @Summary Assign or replace the student's teacher
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.AssignTeacherRequest true "Assignment payload"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/teacher [put]
func (h *StudentHandler) AssignTeacher(c *gin.Context) {
	var req service.AssignTeacherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	assignment, err := h.students.AssignTeacher(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// Position godoc
// @Summary Read the student's current position
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/position [get]
func (h *StudentHandler) Position(c *gin.Context) {
	position, err := h.students.GetPosition(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, position, nil)
}

// RebuildPosition godoc
// @Summary Rebuild the position cache from the ledger
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/position/rebuild [post]
func (h *StudentHandler) RebuildPosition(c *gin.Context) {
	position, err := h.ledger.RebuildPosition(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, position, nil)
}

// Ledger godoc
// @Summary Read the student's evaluation history
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Param from query string false "From date YYYY-MM-DD"
// @Param to query string false "To date YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/ledger [get]
func (h *StudentHandler) Ledger(c *gin.Context) {
	from, err := optionalDate(c.Query("from"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "from must be YYYY-MM-DD"))
		return
	}
	to, err := optionalDate(c.Query("to"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "to must be YYYY-MM-DD"))
		return
	}

	entries, err := h.ledger.GetLedger(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

func optionalDate(raw string) (*models.Date, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := models.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
