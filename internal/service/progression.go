package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/halaqat-app/progress-api/internal/models"
	"github.com/halaqat-app/progress-api/internal/repository"
	"github.com/halaqat-app/progress-api/pkg/config"
	appErrors "github.com/halaqat-app/progress-api/pkg/errors"
	"github.com/halaqat-app/progress-api/pkg/events"
)

// Step computes the next position for one classified evaluation. It is pure:
// replaying a ledger through Step from the first stage must reproduce the
// stored student position exactly.
//
// next is the stage following stage in curriculum order, nil at the end of
// the curriculum.
func Step(pos models.Position, stage models.Stage, next *models.Stage, outcome models.Outcome, claimedPage int) (models.Position, bool, error) {
	if claimedPage < pos.Page {
		return pos, false, appErrors.ErrStalePage
	}
	if claimedPage > stage.TotalPages {
		return pos, false, appErrors.Clone(appErrors.ErrValidation, "claimed page exceeds stage page count")
	}

	switch outcome {
	case models.OutcomeHold:
		return pos, false, nil
	case models.OutcomeAdvance:
		return advanceWithClamp(stage, claimedPage)
	case models.OutcomeEscalate:
		if next != nil {
			return models.Position{StageID: next.ID, Page: 1}, true, nil
		}
		// Curriculum exhausted: nowhere to escalate to.
		return advanceWithClamp(stage, claimedPage)
	default:
		return pos, false, appErrors.Clone(appErrors.ErrValidation, "unsupported outcome")
	}
}

func advanceWithClamp(stage models.Stage, claimedPage int) (models.Position, bool, error) {
	page := claimedPage + 1
	if page > stage.TotalPages {
		return models.Position{StageID: stage.ID, Page: stage.TotalPages}, true, nil
	}
	return models.Position{StageID: stage.ID, Page: page}, false, nil
}

type progressionStageReader interface {
	FindByID(ctx context.Context, id string) (*models.Stage, error)
	FindNext(ctx context.Context, orderIndex int) (*models.Stage, error)
}

type assignmentVerifier interface {
	IsAssigned(ctx context.Context, teacherID, studentID string) (bool, error)
}

type evaluationApplier interface {
	Apply(ctx context.Context, studentID string, decide func(*models.Student) (*repository.ApplyDecision, error)) (*models.Student, *models.LedgerEntry, error)
}

type outcomeClassifier interface {
	Classify(grade models.RawGrade) (models.Outcome, error)
}

type completionPublisher interface {
	Publish(ev events.StageCompleted)
}

// ProgressionService is the single write path for evaluations from all three
// entry points.
type ProgressionService struct {
	stages      progressionStageReader
	assignments assignmentVerifier
	progress    evaluationApplier
	classifier  outcomeClassifier
	publisher   completionPublisher
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	retries     int
	logger      *zap.Logger
}

// NewProgressionService constructs the progression service.
func NewProgressionService(
	stages progressionStageReader,
	assignments assignmentVerifier,
	progress evaluationApplier,
	classifier outcomeClassifier,
	publisher completionPublisher,
	cache *CacheService,
	metrics *MetricsService,
	cfg config.ProgressionConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *ProgressionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	retries := cfg.ConflictRetries
	if retries <= 0 {
		retries = 3
	}
	return &ProgressionService{
		stages:      stages,
		assignments: assignments,
		progress:    progress,
		classifier:  classifier,
		publisher:   publisher,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		retries:     retries,
		logger:      logger,
	}
}

// SubmitEvaluationRequest is the payload shared by submission grading, voice
// grading, and direct daily rating.
type SubmitEvaluationRequest struct {
	StudentID   string `json:"student_id" validate:"required"`
	TeacherID   string `json:"-"`
	Source      string `json:"source" validate:"required"`
	GradeLabel  string `json:"grade_label"`
	GradeScore  *int   `json:"grade_score"`
	ClaimedPage int    `json:"page_number_claimed" validate:"required,min=1"`
	OccurredOn  string `json:"occurred_on" validate:"required"`
}

// SubmitEvaluation runs the full pipeline: classify, authorize, then apply
// the step function inside a serialized per-student transaction. Serialization
// losses are retried a bounded number of times before surfacing as a
// concurrency conflict.
func (s *ProgressionService) SubmitEvaluation(ctx context.Context, req SubmitEvaluationRequest) (*models.EvaluationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid evaluation payload")
	}

	source := models.EvaluationSource(strings.ToUpper(req.Source))
	if !source.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported evaluation source")
	}
	if (req.GradeLabel == "") == (req.GradeScore == nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grade requires exactly one of label or score")
	}
	occurredOn, err := models.ParseDate(req.OccurredOn)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "occurred_on must be YYYY-MM-DD")
	}

	grade := models.RawGrade{Label: req.GradeLabel, Score: req.GradeScore}
	outcome, err := s.classifier.Classify(grade)
	if err != nil {
		return nil, err
	}

	assigned, err := s.assignments.IsAssigned(ctx, req.TeacherID, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "verify teacher assignment")
	}
	if !assigned {
		return nil, appErrors.ErrUnauthorizedTeacher
	}

	var stageCompleted bool
	var completedStageID string
	decide := func(student *models.Student) (*repository.ApplyDecision, error) {
		stage, err := s.stages.FindByID(ctx, student.CurrentStageID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load current stage")
		}
		next, err := s.stages.FindNext(ctx, stage.OrderIndex)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load next stage")
			}
			next = nil
		}

		newPos, completed, err := Step(student.Position(), *stage, next, outcome, req.ClaimedPage)
		if err != nil {
			return nil, err
		}
		stageCompleted = completed
		completedStageID = stage.ID

		return &repository.ApplyDecision{
			NewPosition:    newPos,
			StageCompleted: completed,
			UpsertDay:      source == models.SourceDirectRating,
			Entry: models.LedgerEntry{
				StudentID:  student.ID,
				TeacherID:  req.TeacherID,
				StageID:    stage.ID,
				PageNumber: req.ClaimedPage,
				Outcome:    outcome,
				RawGrade:   grade.String(),
				Source:     source,
				OccurredOn: occurredOn,
			},
		}, nil
	}

	var student *models.Student
	var entry *models.LedgerEntry
	for attempt := 1; ; attempt++ {
		student, entry, err = s.progress.Apply(ctx, req.StudentID, decide)
		if err == nil {
			break
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		if repository.IsSerializationFailure(err) {
			s.metrics.RecordConflictRetry()
			if attempt < s.retries {
				s.logger.Warn("evaluation serialization conflict, retrying",
					zap.String("student_id", req.StudentID), zap.Int("attempt", attempt))
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrConcurrencyConflict.Code,
				appErrors.ErrConcurrencyConflict.Status, appErrors.ErrConcurrencyConflict.Message)
		}
		return nil, err
	}

	s.metrics.RecordEvaluation(string(outcome))
	if stageCompleted {
		s.metrics.RecordStageCompletion()
	}
	if stageCompleted && s.publisher != nil {
		s.publisher.Publish(events.StageCompleted{
			StudentID:  req.StudentID,
			StageID:    completedStageID,
			TeacherID:  req.TeacherID,
			OccurredOn: occurredOn.String(),
		})
	}

	s.cache.Invalidate(ctx, PositionCacheKey(req.StudentID))
	s.cache.Invalidate(ctx, TimetableCachePattern(req.TeacherID))

	return &models.EvaluationResult{
		Entry:          *entry,
		NewStageID:     student.CurrentStageID,
		NewPage:        student.CurrentPage,
		StageCompleted: stageCompleted,
	}, nil
}
