package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/halaqat-app/progress-api/internal/models"
	"github.com/halaqat-app/progress-api/pkg/response"
)

type stageService interface {
	List(ctx context.Context) ([]models.Stage, error)
}

// StageHandler exposes the curriculum catalog.
type StageHandler struct {
	stages stageService
}

// NewStageHandler constructs the handler.
func NewStageHandler(stages stageService) *StageHandler {
	return &StageHandler{stages: stages}
}

// List godoc
// @Summary List curriculum stages in order
// @Tags Stages
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /stages [get]
func (h *StageHandler) List(c *gin.Context) {
	stages, err := h.stages.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stages, nil)
}
