package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/halaqat-app/progress-api/internal/models"
	"github.com/halaqat-app/progress-api/internal/repository"
	"github.com/halaqat-app/progress-api/pkg/config"
	appErrors "github.com/halaqat-app/progress-api/pkg/errors"
	"github.com/halaqat-app/progress-api/pkg/events"
)

var (
	stageOne = models.Stage{ID: "s1", OrderIndex: 1, TotalPages: 3, DisplayName: "Juz Amma"}
	stageTwo = models.Stage{ID: "s2", OrderIndex: 2, TotalPages: 5, DisplayName: "Juz Tabarak"}
)

func TestStepHoldKeepsPosition(t *testing.T) {
	pos := models.Position{StageID: "s1", Page: 2}
	next := stageTwo

	newPos, completed, err := Step(pos, stageOne, &next, models.OutcomeHold, 2)
	require.NoError(t, err)
	assert.Equal(t, pos, newPos)
	assert.False(t, completed)
}

func TestStepAdvanceMovesOnePage(t *testing.T) {
	next := stageTwo
	newPos, completed, err := Step(models.Position{StageID: "s1", Page: 1}, stageOne, &next, models.OutcomeAdvance, 1)
	require.NoError(t, err)
	assert.Equal(t, models.Position{StageID: "s1", Page: 2}, newPos)
	assert.False(t, completed)
}

func TestStepAdvanceClampsAndCompletesAtFinalPage(t *testing.T) {
	next := stageTwo
	newPos, completed, err := Step(models.Position{StageID: "s1", Page: 3}, stageOne, &next, models.OutcomeAdvance, 3)
	require.NoError(t, err)
	assert.Equal(t, models.Position{StageID: "s1", Page: 3}, newPos)
	assert.True(t, completed)
}

func TestStepEscalateResetsToNextStage(t *testing.T) {
	next := stageTwo
	newPos, completed, err := Step(models.Position{StageID: "s1", Page: 2}, stageOne, &next, models.OutcomeEscalate, 2)
	require.NoError(t, err)
	assert.Equal(t, models.Position{StageID: "s2", Page: 1}, newPos)
	assert.True(t, completed)
}

func TestStepEscalateAtCurriculumEndBehavesAsAdvance(t *testing.T) {
	newPos, completed, err := Step(models.Position{StageID: "s2", Page: 5}, stageTwo, nil, models.OutcomeEscalate, 5)
	require.NoError(t, err)
	assert.Equal(t, models.Position{StageID: "s2", Page: 5}, newPos)
	assert.True(t, completed)
}

func TestStepRejectsStalePage(t *testing.T) {
	next := stageTwo
	_, _, err := Step(models.Position{StageID: "s1", Page: 3}, stageOne, &next, models.OutcomeAdvance, 2)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStalePage.Code, appErrors.FromError(err).Code)
}

func TestStepPageNeverDecreases(t *testing.T) {
	next := stageTwo
	pos := models.Position{StageID: "s1", Page: 1}
	outcomes := []models.Outcome{
		models.OutcomeAdvance, models.OutcomeHold, models.OutcomeAdvance,
		models.OutcomeHold, models.OutcomeAdvance,
	}
	for _, outcome := range outcomes {
		newPos, _, err := Step(pos, stageOne, &next, outcome, pos.Page)
		require.NoError(t, err)
		if newPos.StageID == pos.StageID {
			assert.GreaterOrEqual(t, newPos.Page, pos.Page)
		}
		pos = newPos
	}
}

type stageReaderStub struct {
	stages map[string]models.Stage
	next   map[int]models.Stage
}

func (s stageReaderStub) FindByID(ctx context.Context, id string) (*models.Stage, error) {
	if stage, ok := s.stages[id]; ok {
		return &stage, nil
	}
	return nil, sql.ErrNoRows
}

func (s stageReaderStub) FindNext(ctx context.Context, orderIndex int) (*models.Stage, error) {
	if stage, ok := s.next[orderIndex]; ok {
		return &stage, nil
	}
	return nil, sql.ErrNoRows
}

type assignmentStub struct {
	assigned bool
	err      error
}

func (s assignmentStub) IsAssigned(ctx context.Context, teacherID, studentID string) (bool, error) {
	return s.assigned, s.err
}

type applierStub struct {
	student  models.Student
	failures int
	failWith error
	calls    int
	decision *repository.ApplyDecision
}

func (a *applierStub) Apply(ctx context.Context, studentID string, decide func(*models.Student) (*repository.ApplyDecision, error)) (*models.Student, *models.LedgerEntry, error) {
	a.calls++
	if a.calls <= a.failures {
		return nil, nil, a.failWith
	}
	student := a.student
	decision, err := decide(&student)
	if err != nil {
		return nil, nil, err
	}
	a.decision = decision
	if decision.NewPosition != student.Position() {
		student.CurrentStageID = decision.NewPosition.StageID
		student.CurrentPage = decision.NewPosition.Page
		student.Version++
	}
	entry := decision.Entry
	entry.ID = "e1"
	entry.CreatedAt = time.Now()
	return &student, &entry, nil
}

type publisherStub struct {
	events []events.StageCompleted
}

func (p *publisherStub) Publish(ev events.StageCompleted) {
	p.events = append(p.events, ev)
}

func newProgressionService(applier *applierStub, assignments assignmentStub, publisher *publisherStub) *ProgressionService {
	stages := stageReaderStub{
		stages: map[string]models.Stage{"s1": stageOne, "s2": stageTwo},
		next:   map[int]models.Stage{1: stageTwo},
	}
	return NewProgressionService(stages, assignments, applier, defaultScale(), publisher,
		nil, nil, config.ProgressionConfig{ConflictRetries: 3}, nil, zap.NewNop())
}

func evaluationRequest() SubmitEvaluationRequest {
	return SubmitEvaluationRequest{
		StudentID:   "st1",
		TeacherID:   "t1",
		Source:      "SUBMISSION",
		GradeLabel:  "جيد",
		ClaimedPage: 1,
		OccurredOn:  "2026-03-10",
	}
}

func TestSubmitEvaluationAdvances(t *testing.T) {
	applier := &applierStub{student: models.Student{ID: "st1", CurrentStageID: "s1", CurrentPage: 1}}
	publisher := &publisherStub{}
	svc := newProgressionService(applier, assignmentStub{assigned: true}, publisher)

	result, err := svc.SubmitEvaluation(context.Background(), evaluationRequest())
	require.NoError(t, err)
	assert.Equal(t, "s1", result.NewStageID)
	assert.Equal(t, 2, result.NewPage)
	assert.False(t, result.StageCompleted)
	assert.Equal(t, models.OutcomeAdvance, result.Entry.Outcome)
	assert.False(t, applier.decision.UpsertDay)
	assert.Empty(t, publisher.events)
}

func TestSubmitEvaluationEscalateCompletesStage(t *testing.T) {
	applier := &applierStub{student: models.Student{ID: "st1", CurrentStageID: "s1", CurrentPage: 2}}
	publisher := &publisherStub{}
	svc := newProgressionService(applier, assignmentStub{assigned: true}, publisher)

	req := evaluationRequest()
	req.Source = "VOICE"
	req.GradeLabel = ""
	req.GradeScore = intPtr(5)
	req.ClaimedPage = 2

	result, err := svc.SubmitEvaluation(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "s2", result.NewStageID)
	assert.Equal(t, 1, result.NewPage)
	assert.True(t, result.StageCompleted)
	require.Len(t, publisher.events, 1)
	assert.Equal(t, "s1", publisher.events[0].StageID)
	assert.Equal(t, "st1", publisher.events[0].StudentID)
	assert.Equal(t, "2026-03-10", publisher.events[0].OccurredOn)
}

func TestSubmitEvaluationDirectRatingUpserts(t *testing.T) {
	applier := &applierStub{student: models.Student{ID: "st1", CurrentStageID: "s1", CurrentPage: 2}}
	svc := newProgressionService(applier, assignmentStub{assigned: true}, &publisherStub{})

	req := evaluationRequest()
	req.Source = "DIRECT_RATING"
	req.GradeLabel = "غياب"
	req.ClaimedPage = 2

	result, err := svc.SubmitEvaluation(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, result.NewPage)
	assert.Equal(t, models.OutcomeHold, result.Entry.Outcome)
	assert.True(t, applier.decision.UpsertDay)
}

func TestSubmitEvaluationUnauthorizedTeacher(t *testing.T) {
	applier := &applierStub{student: models.Student{ID: "st1", CurrentStageID: "s1", CurrentPage: 1}}
	svc := newProgressionService(applier, assignmentStub{assigned: false}, &publisherStub{})

	_, err := svc.SubmitEvaluation(context.Background(), evaluationRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorizedTeacher.Code, appErrors.FromError(err).Code)
	assert.Zero(t, applier.calls)
}

func TestSubmitEvaluationUnknownGrade(t *testing.T) {
	applier := &applierStub{student: models.Student{ID: "st1", CurrentStageID: "s1", CurrentPage: 1}}
	svc := newProgressionService(applier, assignmentStub{assigned: true}, &publisherStub{})

	req := evaluationRequest()
	req.GradeLabel = "mystery"

	_, err := svc.SubmitEvaluation(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnknownGrade.Code, appErrors.FromError(err).Code)
	assert.Zero(t, applier.calls)
}

func TestSubmitEvaluationStalePage(t *testing.T) {
	applier := &applierStub{student: models.Student{ID: "st1", CurrentStageID: "s1", CurrentPage: 3}}
	svc := newProgressionService(applier, assignmentStub{assigned: true}, &publisherStub{})

	req := evaluationRequest()
	req.ClaimedPage = 2

	_, err := svc.SubmitEvaluation(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStalePage.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 1, applier.calls)
}

func TestSubmitEvaluationRetriesSerializationConflicts(t *testing.T) {
	applier := &applierStub{
		student:  models.Student{ID: "st1", CurrentStageID: "s1", CurrentPage: 1},
		failures: 2,
		failWith: &pq.Error{Code: "40001"},
	}
	svc := newProgressionService(applier, assignmentStub{assigned: true}, &publisherStub{})

	result, err := svc.SubmitEvaluation(context.Background(), evaluationRequest())
	require.NoError(t, err)
	assert.Equal(t, 3, applier.calls)
	assert.Equal(t, 2, result.NewPage)
}

func TestSubmitEvaluationSurfacesConflictAfterRetries(t *testing.T) {
	applier := &applierStub{
		student:  models.Student{ID: "st1", CurrentStageID: "s1", CurrentPage: 1},
		failures: 10,
		failWith: &pq.Error{Code: "40001"},
	}
	svc := newProgressionService(applier, assignmentStub{assigned: true}, &publisherStub{})

	_, err := svc.SubmitEvaluation(context.Background(), evaluationRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConcurrencyConflict.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 3, applier.calls)
}

func TestSubmitEvaluationRejectsAmbiguousGrade(t *testing.T) {
	svc := newProgressionService(&applierStub{}, assignmentStub{assigned: true}, &publisherStub{})

	req := evaluationRequest()
	req.GradeScore = intPtr(4)

	_, err := svc.SubmitEvaluation(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
