package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/halaqat-app/progress-api/internal/models"
)

// ApplyDecision is the progression engine's verdict for one evaluation,
// computed while the student row is locked.
type ApplyDecision struct {
	NewPosition    models.Position
	StageCompleted bool
	Entry          models.LedgerEntry
	UpsertDay      bool
}

// ProgressRepository owns the transactional unit of work for an evaluation:
// lock student row, apply the decision, update the position cache, and write
// the ledger entry atomically. Domain logic stays in the service; this type
// only sequences SQL.
type ProgressRepository struct {
	db       *sqlx.DB
	students *StudentRepository
	ledger   *LedgerRepository
}

// NewProgressRepository constructs the repository.
func NewProgressRepository(db *sqlx.DB, students *StudentRepository, ledger *LedgerRepository) *ProgressRepository {
	return &ProgressRepository{db: db, students: students, ledger: ledger}
}

// Apply runs decide against the locked student and commits its decision.
// A nil error from decide with a nil decision is invalid; decide errors roll
// the transaction back untouched.
func (r *ProgressRepository) Apply(ctx context.Context, studentID string, decide func(*models.Student) (*ApplyDecision, error)) (*models.Student, *models.LedgerEntry, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin evaluation tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback() //nolint:errcheck
		}
	}()

	student, err := r.students.FindByIDForUpdate(ctx, tx, studentID)
	if err != nil {
		return nil, nil, err
	}

	decision, err := decide(student)
	if err != nil {
		return nil, nil, err
	}

	if decision.NewPosition != student.Position() {
		if err := r.students.UpdatePosition(ctx, tx, student.ID, decision.NewPosition); err != nil {
			return nil, nil, err
		}
		student.CurrentStageID = decision.NewPosition.StageID
		student.CurrentPage = decision.NewPosition.Page
		student.Version++
	}

	entry := decision.Entry
	if decision.UpsertDay {
		err = r.ledger.UpsertDailyRating(ctx, tx, &entry)
	} else {
		err = r.ledger.Append(ctx, tx, &entry)
	}
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit evaluation tx: %w", err)
	}
	committed = true
	return student, &entry, nil
}

// RewritePosition force-sets the cached position under the row lock, used by
// the ledger replay repair path.
func (r *ProgressRepository) RewritePosition(ctx context.Context, studentID string, pos models.Position) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rewrite tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback() //nolint:errcheck
		}
	}()

	if _, err := r.students.FindByIDForUpdate(ctx, tx, studentID); err != nil {
		return err
	}
	if err := r.students.UpdatePosition(ctx, tx, studentID, pos); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rewrite tx: %w", err)
	}
	committed = true
	return nil
}

// IsSerializationFailure reports whether err is a Postgres serialization or
// deadlock failure that is safe to retry.
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "40001", "40P01", "55P03":
		return true
	default:
		return false
	}
}
