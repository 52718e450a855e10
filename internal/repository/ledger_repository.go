package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/halaqat-app/progress-api/internal/models"
)

// LedgerRepository handles the append-only progress ledger. Entries are
// immutable once written; the single exception is the per-day upsert for
// direct daily ratings.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository constructs the repository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Append inserts a ledger entry inside the caller's transaction.
func (r *LedgerRepository) Append(ctx context.Context, tx *sqlx.Tx, entry *models.LedgerEntry) error {
	prepareEntry(entry)
	const query = `INSERT INTO progress_ledger (id, student_id, teacher_id, stage_id, page_number, outcome, raw_grade, source, occurred_on, created_at)
        VALUES (:id, :student_id, :teacher_id, :stage_id, :page_number, :outcome, :raw_grade, :source, :occurred_on, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// UpsertDailyRating inserts or replaces the single DIRECT_RATING row for the
// student and day, matching the partial unique index that backs the one-entry
// -per-day constraint.
func (r *LedgerRepository) UpsertDailyRating(ctx context.Context, tx *sqlx.Tx, entry *models.LedgerEntry) error {
	prepareEntry(entry)
	const query = `INSERT INTO progress_ledger (id, student_id, teacher_id, stage_id, page_number, outcome, raw_grade, source, occurred_on, created_at)
        VALUES (:id, :student_id, :teacher_id, :stage_id, :page_number, :outcome, :raw_grade, :source, :occurred_on, :created_at)
        ON CONFLICT (student_id, occurred_on) WHERE source = 'DIRECT_RATING'
        DO UPDATE SET teacher_id = EXCLUDED.teacher_id, stage_id = EXCLUDED.stage_id,
            page_number = EXCLUDED.page_number, outcome = EXCLUDED.outcome, raw_grade = EXCLUDED.raw_grade`
	if _, err := tx.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("upsert daily rating: %w", err)
	}
	return nil
}

// HistoryByStudent returns the full replay-ordered history for one student,
// optionally bounded by calendar dates.
func (r *LedgerRepository) HistoryByStudent(ctx context.Context, studentID string, from, to *models.Date) ([]models.LedgerEntry, error) {
	query := `SELECT id, student_id, teacher_id, stage_id, page_number, outcome, raw_grade, source, occurred_on, created_at
        FROM progress_ledger WHERE student_id = $1`
	args := []interface{}{studentID}
	if from != nil {
		query += fmt.Sprintf(" AND occurred_on >= $%d", len(args)+1)
		args = append(args, *from)
	}
	if to != nil {
		query += fmt.Sprintf(" AND occurred_on <= $%d", len(args)+1)
		args = append(args, *to)
	}
	query += " ORDER BY occurred_on ASC, created_at ASC"
	var entries []models.LedgerEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("ledger history: %w", err)
	}
	return entries, nil
}

// Range returns all entries for a set of students within [from, to], ordered
// for the timetable projector.
func (r *LedgerRepository) Range(ctx context.Context, studentIDs []string, from, to models.Date) ([]models.LedgerEntry, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(studentIDs))
	args := make([]interface{}, 0, len(studentIDs)+2)
	for i, id := range studentIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, id)
	}
	args = append(args, from, to)
	query := fmt.Sprintf(`SELECT id, student_id, teacher_id, stage_id, page_number, outcome, raw_grade, source, occurred_on, created_at
        FROM progress_ledger
        WHERE student_id IN (%s) AND occurred_on >= $%d AND occurred_on <= $%d
        ORDER BY student_id ASC, occurred_on ASC, created_at ASC`,
		strings.Join(placeholders, ","), len(args)-1, len(args))
	var entries []models.LedgerEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("ledger range: %w", err)
	}
	return entries, nil
}

// StageCompletionEntry returns the entry proving the student closed out the
// stage. Escalation jumps into the next stage from any page, so for a stage
// with a successor any ESCALATE entry counts, as does an ADVANCE at the final
// page. The last stage has nowhere to escalate into; there only an entry at
// the final page completes it. sql.ErrNoRows means the stage was never
// completed.
func (r *LedgerRepository) StageCompletionEntry(ctx context.Context, studentID, stageID string, totalPages int, finalStage bool) (*models.LedgerEntry, error) {
	predicate := `(outcome = 'ESCALATE' OR (outcome = 'ADVANCE' AND page_number = $3))`
	if finalStage {
		predicate = `(outcome IN ('ADVANCE', 'ESCALATE') AND page_number = $3)`
	}
	query := `SELECT id, student_id, teacher_id, stage_id, page_number, outcome, raw_grade, source, occurred_on, created_at
        FROM progress_ledger
        WHERE student_id = $1 AND stage_id = $2 AND ` + predicate + `
        ORDER BY occurred_on DESC, created_at DESC LIMIT 1`
	var entry models.LedgerEntry
	if err := r.db.GetContext(ctx, &entry, query, studentID, stageID, totalPages); err != nil {
		return nil, err
	}
	return &entry, nil
}

// HasStageEntryAfter reports whether the student re-entered the stage after
// the given entry, which voids a previous completion.
func (r *LedgerRepository) HasStageEntryAfter(ctx context.Context, studentID, stageID string, after models.LedgerEntry) (bool, error) {
	const query = `SELECT COUNT(*) FROM progress_ledger
        WHERE student_id = $1 AND stage_id = $2
        AND (occurred_on > $3 OR (occurred_on = $3 AND created_at > $4))`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID, stageID, after.OccurredOn, after.CreatedAt); err != nil {
		return false, fmt.Errorf("check later stage entries: %w", err)
	}
	return count > 0, nil
}

func prepareEntry(entry *models.LedgerEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
}
