package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/halaqat-app/progress-api/internal/models"
	appErrors "github.com/halaqat-app/progress-api/pkg/errors"
	"github.com/halaqat-app/progress-api/pkg/response"
)

type timetableService interface {
	Project(ctx context.Context, teacherID string, from, to models.Date) (*models.TimetableGrid, error)
	ExportCSV(ctx context.Context, teacherID string, from, to models.Date) ([]byte, error)
	ExportPDF(ctx context.Context, teacherID string, from, to models.Date) ([]byte, error)
}

// TimetableHandler exposes the projected grid and its exports for the
// authenticated teacher.
type TimetableHandler struct {
	timetable timetableService
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(timetable timetableService) *TimetableHandler {
	return &TimetableHandler{timetable: timetable}
}

// Grid godoc
// @Summary Project the teacher's timetable grid
// @Tags Timetable
// @Produce json
// @Param from query string true "From date YYYY-MM-DD"
// @Param to query string true "To date YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /timetable [get]
func (h *TimetableHandler) Grid(c *gin.Context) {
	teacherID, from, to, err := h.rangeParams(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	grid, err := h.timetable.Project(c.Request.Context(), teacherID, from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grid, nil)
}

// Export godoc
// @Summary Export the timetable grid
// @Tags Timetable
// @Produce octet-stream
// @Param from query string true "From date YYYY-MM-DD"
// @Param to query string true "To date YYYY-MM-DD"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} byte
// @Router /timetable/export [get]
func (h *TimetableHandler) Export(c *gin.Context) {
	teacherID, from, to, err := h.rangeParams(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	switch c.DefaultQuery("format", "csv") {
	case "csv":
		data, err := h.timetable.ExportCSV(c.Request.Context(), teacherID, from, to)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="timetable.csv"`)
		c.Data(http.StatusOK, "text/csv", data)
	case "pdf":
		data, err := h.timetable.ExportPDF(c.Request.Context(), teacherID, from, to)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="timetable.pdf"`)
		c.Data(http.StatusOK, "application/pdf", data)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
	}
}

func (h *TimetableHandler) rangeParams(c *gin.Context) (string, models.Date, models.Date, error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return "", models.Date{}, models.Date{}, appErrors.ErrUnauthorized
	}

	from, err := models.ParseDate(c.Query("from"))
	if err != nil {
		return "", models.Date{}, models.Date{}, appErrors.Clone(appErrors.ErrValidation, "from must be YYYY-MM-DD")
	}
	to, err := models.ParseDate(c.Query("to"))
	if err != nil {
		return "", models.Date{}, models.Date{}, appErrors.Clone(appErrors.ErrValidation, "to must be YYYY-MM-DD")
	}
	return claims.UserID, from, to, nil
}
