package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/halaqat-app/progress-api/internal/models"
	appErrors "github.com/halaqat-app/progress-api/pkg/errors"
)

type studentStore interface {
	Create(ctx context.Context, student *models.Student) error
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type assignmentStore interface {
	Upsert(ctx context.Context, assignment *models.TeacherAssignment) error
	FindByStudent(ctx context.Context, studentID string) (*models.TeacherAssignment, error)
}

// StudentService owns the minimal student lifecycle the engine needs:
// registration seeds the position state, assignment maintains the I/O side of
// the authorization boundary, and position reads serve dashboards.
type StudentService struct {
	students    studentStore
	assignments assignmentStore
	stages      curriculumReader
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(students studentStore, assignments assignmentStore, stages curriculumReader, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		students:    students,
		assignments: assignments,
		stages:      stages,
		cache:       cache,
		validator:   validate,
		logger:      logger,
	}
}

// RegisterStudentRequest is the admin registration payload.
type RegisterStudentRequest struct {
	FullName  string `json:"full_name" validate:"required,min=2"`
	TeacherID string `json:"teacher_id"`
}

// Register creates a student at page 1 of the first curriculum stage and,
// when a teacher is named, assigns them immediately.
func (s *StudentService) Register(ctx context.Context, req RegisterStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	first, err := s.stages.First(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInternal, "curriculum is empty")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load first stage")
	}

	student := &models.Student{
		FullName:       req.FullName,
		CurrentStageID: first.ID,
		CurrentPage:    1,
	}
	if err := s.students.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "create student")
	}

	if req.TeacherID != "" {
		assignment := &models.TeacherAssignment{TeacherID: req.TeacherID, StudentID: student.ID}
		if err := s.assignments.Upsert(ctx, assignment); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "assign teacher")
		}
	}

	s.logger.Info("student registered",
		zap.String("student_id", student.ID),
		zap.String("stage_id", first.ID))
	return student, nil
}

// AssignTeacherRequest names the student's new teacher.
type AssignTeacherRequest struct {
	TeacherID string `json:"teacher_id" validate:"required"`
}

// AssignTeacher replaces the student's active teacher assignment.
func (s *StudentService) AssignTeacher(ctx context.Context, studentID string, req AssignTeacherRequest) (*models.TeacherAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load student")
	}

	assignment := &models.TeacherAssignment{TeacherID: req.TeacherID, StudentID: studentID}
	if err := s.assignments.Upsert(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "assign teacher")
	}
	return assignment, nil
}

// GetPosition returns the student's cached position read model.
func (s *StudentService) GetPosition(ctx context.Context, studentID string) (*models.StudentPosition, error) {
	cacheKey := PositionCacheKey(studentID)
	var cached models.StudentPosition
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load student")
	}

	position := &models.StudentPosition{
		StudentID: student.ID,
		StageID:   student.CurrentStageID,
		Page:      student.CurrentPage,
	}
	if stage, err := s.stages.FindByID(ctx, student.CurrentStageID); err == nil {
		position.StageName = stage.DisplayName
		position.TotalPages = stage.TotalPages
	}

	s.cache.Set(ctx, cacheKey, position, 0)
	return position, nil
}
