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

type evaluationService interface {
	SubmitEvaluation(ctx context.Context, req service.SubmitEvaluationRequest) (*models.EvaluationResult, error)
}

// EvaluationHandler exposes the evaluation submission endpoint shared by the
// three grading entry points.
type EvaluationHandler struct {
	progression evaluationService
}

// NewEvaluationHandler constructs the handler.
func NewEvaluationHandler(progression evaluationService) *EvaluationHandler {
	return &EvaluationHandler{progression: progression}
}

// Submit godoc
// @Summary Submit a teacher evaluation
// @Tags Evaluations
// @Accept json
// @Produce json
// @Param payload body service.SubmitEvaluationRequest true "Evaluation payload"
// @Success 201 {object} response.Envelope
// @Router /evaluations [post]
func (h *EvaluationHandler) Submit(c *gin.Context) {
	var req service.SubmitEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	req.TeacherID = claims.UserID

	result, err := h.progression.SubmitEvaluation(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
