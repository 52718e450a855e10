package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/halaqat-app/progress-api/internal/models"
	appErrors "github.com/halaqat-app/progress-api/pkg/errors"
)

type ledgerHistoryReader interface {
	HistoryByStudent(ctx context.Context, studentID string, from, to *models.Date) ([]models.LedgerEntry, error)
}

type positionRewriter interface {
	RewritePosition(ctx context.Context, studentID string, pos models.Position) error
}

type curriculumReader interface {
	List(ctx context.Context) ([]models.Stage, error)
	First(ctx context.Context) (*models.Stage, error)
	FindByID(ctx context.Context, id string) (*models.Stage, error)
}

// LedgerService reads the audit history and owns the replay repair path that
// rebuilds the cached student position from the ledger alone.
type LedgerService struct {
	ledger  ledgerHistoryReader
	stages  curriculumReader
	rewrite positionRewriter
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
}

// NewLedgerService constructs the ledger service.
func NewLedgerService(ledger ledgerHistoryReader, stages curriculumReader, rewrite positionRewriter, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{ledger: ledger, stages: stages, rewrite: rewrite, cache: cache, metrics: metrics, logger: logger}
}

// GetLedger returns the student's history in replay order, optionally bounded.
func (s *LedgerService) GetLedger(ctx context.Context, studentID string, from, to *models.Date) ([]models.LedgerEntry, error) {
	entries, err := s.ledger.HistoryByStudent(ctx, studentID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "read ledger history")
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	return entries, nil
}

// RebuildPosition replays the full ledger through the step function from the
// first stage and rewrites the cached position. It is the admin repair path
// for any drift between the ledger and the position cache.
func (s *LedgerService) RebuildPosition(ctx context.Context, studentID string) (*models.StudentPosition, error) {
	entries, err := s.ledger.HistoryByStudent(ctx, studentID, nil, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "read ledger history")
	}

	pos, err := s.Replay(ctx, entries)
	if err != nil {
		return nil, err
	}

	if err := s.rewrite.RewritePosition(ctx, studentID, pos); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "rewrite position")
	}

	s.metrics.RecordLedgerReplay()
	s.cache.Invalidate(ctx, PositionCacheKey(studentID))
	s.logger.Info("rebuilt student position from ledger",
		zap.String("student_id", studentID),
		zap.String("stage_id", pos.StageID),
		zap.Int("page", pos.Page),
		zap.Int("entries", len(entries)))

	return &models.StudentPosition{StudentID: studentID, StageID: pos.StageID, Page: pos.Page}, nil
}

// Replay folds a replay-ordered entry sequence through the step function,
// starting at page 1 of the first stage.
func (s *LedgerService) Replay(ctx context.Context, entries []models.LedgerEntry) (models.Position, error) {
	stages, err := s.stages.List(ctx)
	if err != nil {
		return models.Position{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load curriculum")
	}
	if len(stages) == 0 {
		return models.Position{}, appErrors.Clone(appErrors.ErrInternal, "curriculum is empty")
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i].OrderIndex < stages[j].OrderIndex })

	byID := make(map[string]int, len(stages))
	for i, stage := range stages {
		byID[stage.ID] = i
	}

	pos := models.Position{StageID: stages[0].ID, Page: 1}
	for _, entry := range entries {
		idx, ok := byID[pos.StageID]
		if !ok {
			return models.Position{}, appErrors.Clone(appErrors.ErrInternal, "ledger references unknown stage "+pos.StageID)
		}
		stage := stages[idx]
		var next *models.Stage
		if idx+1 < len(stages) {
			next = &stages[idx+1]
		}

		newPos, _, err := Step(pos, stage, next, entry.Outcome, entry.PageNumber)
		if err != nil {
			// Historic entries were accepted against the position of their
			// time; a step error here means the ledger itself is inconsistent.
			return models.Position{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status,
				"ledger replay failed at entry "+entry.ID)
		}
		pos = newPos
	}

	return pos, nil
}
