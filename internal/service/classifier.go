package service

import (
	"strconv"
	"strings"

	"github.com/halaqat-app/progress-api/internal/models"
	"github.com/halaqat-app/progress-api/pkg/config"
	appErrors "github.com/halaqat-app/progress-api/pkg/errors"
)

// GradeScale maps raw grade values to canonical outcomes. The mapping is data
// loaded from configuration so that every evaluation entry point shares one
// auditable table instead of per-route thresholds.
type GradeScale struct {
	labels map[string]models.Outcome
	scores map[int]models.Outcome
}

// NewGradeScale builds a scale from the configured label and score lists.
func NewGradeScale(cfg config.ClassifierConfig) *GradeScale {
	scale := &GradeScale{
		labels: make(map[string]models.Outcome),
		scores: make(map[int]models.Outcome),
	}
	scale.addLabels(cfg.HoldLabels, models.OutcomeHold)
	scale.addLabels(cfg.AdvanceLabels, models.OutcomeAdvance)
	scale.addLabels(cfg.EscalateLabels, models.OutcomeEscalate)
	scale.addScores(cfg.HoldScores, models.OutcomeHold)
	scale.addScores(cfg.AdvanceScores, models.OutcomeAdvance)
	scale.addScores(cfg.EscalateScores, models.OutcomeEscalate)
	return scale
}

func (s *GradeScale) addLabels(labels []string, outcome models.Outcome) {
	for _, label := range labels {
		trimmed := strings.TrimSpace(label)
		if trimmed != "" {
			s.labels[trimmed] = outcome
		}
	}
}

func (s *GradeScale) addScores(scores []string, outcome models.Outcome) {
	for _, raw := range scores {
		score, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		s.scores[score] = outcome
	}
}

// Classify resolves a raw grade to its outcome. Unrecognized values are
// rejected rather than silently defaulted so the UI can prompt correction.
func (s *GradeScale) Classify(grade models.RawGrade) (models.Outcome, error) {
	if grade.Label != "" {
		if outcome, ok := s.labels[strings.TrimSpace(grade.Label)]; ok {
			return outcome, nil
		}
		return "", appErrors.Clone(appErrors.ErrUnknownGrade, "unknown grade label: "+grade.Label)
	}
	if grade.Score != nil {
		if outcome, ok := s.scores[*grade.Score]; ok {
			return outcome, nil
		}
		return "", appErrors.Clone(appErrors.ErrUnknownGrade, "unknown grade score: "+strconv.Itoa(*grade.Score))
	}
	return "", appErrors.Clone(appErrors.ErrUnknownGrade, "grade requires a label or a score")
}
