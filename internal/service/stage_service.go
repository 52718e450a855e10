package service

import (
	"context"

	"github.com/halaqat-app/progress-api/internal/models"
	appErrors "github.com/halaqat-app/progress-api/pkg/errors"
)

// StageService exposes the curriculum catalog. The catalog is immutable
// reference data; this service only reads it.
type StageService struct {
	stages curriculumReader
}

// NewStageService constructs the stage service.
func NewStageService(stages curriculumReader) *StageService {
	return &StageService{stages: stages}
}

// List returns all stages in curriculum order.
func (s *StageService) List(ctx context.Context) ([]models.Stage, error) {
	stages, err := s.stages.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list stages")
	}
	if stages == nil {
		stages = []models.Stage{}
	}
	return stages, nil
}
