package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/halaqat-app/progress-api/internal/models"
	"github.com/halaqat-app/progress-api/pkg/config"
	appErrors "github.com/halaqat-app/progress-api/pkg/errors"
)

type certificateStoreStub struct {
	created     *models.CertificateRequest
	found       *models.CertificateRequest
	listed      []models.CertificateRequest
	total       int
	exists      bool
	updateErr   error
	lastStatus  models.CertificateStatus
	lastFilter  models.CertificateFilter
	createCalls int
}

func (s *certificateStoreStub) Create(ctx context.Context, req *models.CertificateRequest) error {
	s.createCalls++
	req.ID = "c1"
	req.Status = models.CertificatePending
	req.IssuedAt = time.Now()
	s.created = req
	return nil
}

func (s *certificateStoreStub) FindByID(ctx context.Context, id string) (*models.CertificateRequest, error) {
	if s.found == nil {
		return nil, sql.ErrNoRows
	}
	return s.found, nil
}

func (s *certificateStoreStub) List(ctx context.Context, filter models.CertificateFilter) ([]models.CertificateRequest, error) {
	s.lastFilter = filter
	return s.listed, nil
}

func (s *certificateStoreStub) Count(ctx context.Context, filter models.CertificateFilter) (int, error) {
	return s.total, nil
}

func (s *certificateStoreStub) ExistsActive(ctx context.Context, studentID, stageID string) (bool, error) {
	return s.exists, nil
}

func (s *certificateStoreStub) UpdateStatus(ctx context.Context, id string, status models.CertificateStatus, decidedAt time.Time) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.lastStatus = status
	if s.found != nil {
		s.found.Status = status
		s.found.ApprovedAt = &decidedAt
	}
	return nil
}

type completionStub struct {
	entries   []models.LedgerEntry
	reentered bool
}

// StageCompletionEntry applies the repository's completion rule: any ESCALATE
// entry completes a stage with a successor, while ADVANCE entries and the
// final curriculum stage require the last page.
func (s completionStub) StageCompletionEntry(ctx context.Context, studentID, stageID string, totalPages int, finalStage bool) (*models.LedgerEntry, error) {
	for i := len(s.entries) - 1; i >= 0; i-- {
		entry := s.entries[i]
		if entry.StudentID != studentID || entry.StageID != stageID {
			continue
		}
		completes := entry.Outcome == models.OutcomeEscalate && !finalStage
		if !completes {
			atLastPage := entry.PageNumber == totalPages
			completes = atLastPage && (entry.Outcome == models.OutcomeAdvance || entry.Outcome == models.OutcomeEscalate)
		}
		if completes {
			return &entry, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s completionStub) HasStageEntryAfter(ctx context.Context, studentID, stageID string, after models.LedgerEntry) (bool, error) {
	return s.reentered, nil
}

func completed(entries ...models.LedgerEntry) completionStub {
	return completionStub{entries: entries}
}

func newCertificateService(store *certificateStoreStub, completion completionStub, assigned bool) *CertificateService {
	stages := curriculumStub{stages: []models.Stage{stageOne, stageTwo}}
	return NewCertificateService(store, completion, stages, assignmentStub{assigned: assigned},
		config.CertificatesConfig{Enabled: true}, nil, zap.NewNop())
}

func completionEntry() models.LedgerEntry {
	return models.LedgerEntry{
		ID:         "e9",
		StudentID:  "st1",
		StageID:    "s1",
		PageNumber: 3,
		Outcome:    models.OutcomeEscalate,
		OccurredOn: models.NewDate(2026, time.March, 20),
		CreatedAt:  time.Now(),
	}
}

func TestCertificateServiceIsEligible(t *testing.T) {
	svc := newCertificateService(&certificateStoreStub{}, completed(completionEntry()), true)

	eligible, err := svc.IsEligible(context.Background(), "st1", "s1")
	require.NoError(t, err)
	assert.True(t, eligible)
}

func TestCertificateServiceNotEligibleWithoutCompletion(t *testing.T) {
	svc := newCertificateService(&certificateStoreStub{}, completionStub{}, true)

	eligible, err := svc.IsEligible(context.Background(), "st1", "s1")
	require.NoError(t, err)
	assert.False(t, eligible)
}

func TestCertificateServiceReentryVoidsEligibility(t *testing.T) {
	svc := newCertificateService(&certificateStoreStub{}, completionStub{entries: []models.LedgerEntry{completionEntry()}, reentered: true}, true)

	eligible, err := svc.IsEligible(context.Background(), "st1", "s1")
	require.NoError(t, err)
	assert.False(t, eligible)
}

func TestCertificateServiceEligibleAfterMidStageEscalate(t *testing.T) {
	// A grade-5 escalation at page 2 of the 3-page first stage jumps the
	// student into stage two and still earns the stage-one certificate.
	entry := completionEntry()
	entry.PageNumber = 2
	svc := newCertificateService(&certificateStoreStub{}, completed(entry), true)

	eligible, err := svc.IsEligible(context.Background(), "st1", "s1")
	require.NoError(t, err)
	assert.True(t, eligible)
}

func TestCertificateServiceFinalStageRequiresLastPage(t *testing.T) {
	// Stage two is the end of the curriculum: an escalation grade there has
	// nowhere to jump and only the final page completes the stage.
	entry := models.LedgerEntry{
		ID:         "e10",
		StudentID:  "st1",
		StageID:    "s2",
		PageNumber: 3,
		Outcome:    models.OutcomeEscalate,
		OccurredOn: models.NewDate(2026, time.March, 22),
		CreatedAt:  time.Now(),
	}
	svc := newCertificateService(&certificateStoreStub{}, completed(entry), true)

	eligible, err := svc.IsEligible(context.Background(), "st1", "s2")
	require.NoError(t, err)
	assert.False(t, eligible)

	entry.PageNumber = stageTwo.TotalPages
	svc = newCertificateService(&certificateStoreStub{}, completed(entry), true)

	eligible, err = svc.IsEligible(context.Background(), "st1", "s2")
	require.NoError(t, err)
	assert.True(t, eligible)
}

func TestCertificateServiceListPaginates(t *testing.T) {
	store := &certificateStoreStub{listed: []models.CertificateRequest{{ID: "c1"}}, total: 41}
	svc := newCertificateService(store, completionStub{}, true)

	requests, pagination, err := svc.ListCertificateRequests(context.Background(), models.CertificateFilter{}, 3, 10)
	require.NoError(t, err)
	assert.Len(t, requests, 1)
	assert.Equal(t, 10, store.lastFilter.Limit)
	assert.Equal(t, 20, store.lastFilter.Offset)
	require.NotNil(t, pagination)
	assert.Equal(t, 3, pagination.Page)
	assert.Equal(t, 10, pagination.PageSize)
	assert.Equal(t, 41, pagination.TotalCount)
}

func TestCertificateServiceListDefaultsPaging(t *testing.T) {
	store := &certificateStoreStub{}
	svc := newCertificateService(store, completionStub{}, true)

	requests, pagination, err := svc.ListCertificateRequests(context.Background(), models.CertificateFilter{}, 0, 0)
	require.NoError(t, err)
	assert.NotNil(t, requests)
	assert.Empty(t, requests)
	assert.Equal(t, 20, store.lastFilter.Limit)
	assert.Equal(t, 0, store.lastFilter.Offset)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
}

func TestCertificateServiceCreateRequest(t *testing.T) {
	store := &certificateStoreStub{}
	svc := newCertificateService(store, completed(completionEntry()), true)

	request, err := svc.CreateCertificateRequest(context.Background(), CreateCertificateRequestInput{
		StudentID: "st1", StageID: "s1", TeacherID: "t1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.CertificatePending, request.Status)
	assert.Equal(t, "t1", request.TeacherID)
	assert.Equal(t, 1, store.createCalls)
}

func TestCertificateServiceCreateRequestNotEligible(t *testing.T) {
	store := &certificateStoreStub{}
	svc := newCertificateService(store, completionStub{}, true)

	_, err := svc.CreateCertificateRequest(context.Background(), CreateCertificateRequestInput{
		StudentID: "st1", StageID: "s1", TeacherID: "t1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotEligible.Code, appErrors.FromError(err).Code)
	assert.Zero(t, store.createCalls)
}

func TestCertificateServiceCreateRequestUnassignedTeacher(t *testing.T) {
	store := &certificateStoreStub{}
	svc := newCertificateService(store, completed(completionEntry()), false)

	_, err := svc.CreateCertificateRequest(context.Background(), CreateCertificateRequestInput{
		StudentID: "st1", StageID: "s1", TeacherID: "t9",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorizedTeacher.Code, appErrors.FromError(err).Code)
}

func TestCertificateServiceCreateRequestDuplicate(t *testing.T) {
	store := &certificateStoreStub{exists: true}
	svc := newCertificateService(store, completed(completionEntry()), true)

	_, err := svc.CreateCertificateRequest(context.Background(), CreateCertificateRequestInput{
		StudentID: "st1", StageID: "s1", TeacherID: "t1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCertificateServiceReviewApproves(t *testing.T) {
	store := &certificateStoreStub{
		found: &models.CertificateRequest{ID: "c1", Status: models.CertificatePending},
	}
	svc := newCertificateService(store, completionStub{}, true)

	request, err := svc.ReviewCertificateRequest(context.Background(), "c1", true)
	require.NoError(t, err)
	assert.Equal(t, models.CertificateApproved, request.Status)
	assert.NotNil(t, request.ApprovedAt)
}

func TestCertificateServiceReviewAlreadyDecided(t *testing.T) {
	store := &certificateStoreStub{
		found:     &models.CertificateRequest{ID: "c1", Status: models.CertificateApproved},
		updateErr: sql.ErrNoRows,
	}
	svc := newCertificateService(store, completionStub{}, true)

	_, err := svc.ReviewCertificateRequest(context.Background(), "c1", false)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCertificateServiceDisabledFeature(t *testing.T) {
	svc := NewCertificateService(&certificateStoreStub{}, completionStub{}, curriculumStub{stages: []models.Stage{stageOne}},
		assignmentStub{assigned: true}, config.CertificatesConfig{Enabled: false}, nil, zap.NewNop())

	_, err := svc.CreateCertificateRequest(context.Background(), CreateCertificateRequestInput{
		StudentID: "st1", StageID: "s1", TeacherID: "t1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
