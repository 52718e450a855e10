package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/halaqat-app/progress-api/internal/models"
)

// CertificateRepository persists certificate requests.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs the repository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// Create inserts a new PENDING request.
func (r *CertificateRepository) Create(ctx context.Context, req *models.CertificateRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.IssuedAt.IsZero() {
		req.IssuedAt = time.Now().UTC()
	}
	req.Status = models.CertificatePending
	const query = `INSERT INTO certificate_requests (id, student_id, teacher_id, stage_id, status, issued_at)
        VALUES (:id, :student_id, :teacher_id, :stage_id, :status, :issued_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create certificate request: %w", err)
	}
	return nil
}

// FindByID returns a request by ID.
func (r *CertificateRepository) FindByID(ctx context.Context, id string) (*models.CertificateRequest, error) {
	const query = `SELECT id, student_id, teacher_id, stage_id, status, issued_at, approved_at
        FROM certificate_requests WHERE id = $1`
	var req models.CertificateRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// List returns requests matching the filter, newest first.
func (r *CertificateRepository) List(ctx context.Context, filter models.CertificateFilter) ([]models.CertificateRequest, error) {
	query, args := filteredQuery(`SELECT id, student_id, teacher_id, stage_id, status, issued_at, approved_at
        FROM certificate_requests`, filter)
	query += " ORDER BY issued_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, filter.Limit, filter.Offset)
	}
	var requests []models.CertificateRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, fmt.Errorf("list certificate requests: %w", err)
	}
	return requests, nil
}

// Count returns how many requests match the filter, ignoring paging.
func (r *CertificateRepository) Count(ctx context.Context, filter models.CertificateFilter) (int, error) {
	query, args := filteredQuery(`SELECT COUNT(*) FROM certificate_requests`, filter)
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("count certificate requests: %w", err)
	}
	return total, nil
}

func filteredQuery(base string, filter models.CertificateFilter) (string, []interface{}) {
	query := base + " WHERE 1=1"
	var args []interface{}
	if filter.StudentID != "" {
		query += fmt.Sprintf(" AND student_id = $%d", len(args)+1)
		args = append(args, filter.StudentID)
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, *filter.Status)
	}
	return query, args
}

// ExistsActive reports whether a PENDING or APPROVED request already covers
// the student and stage.
func (r *CertificateRepository) ExistsActive(ctx context.Context, studentID, stageID string) (bool, error) {
	const query = `SELECT 1 FROM certificate_requests
        WHERE student_id = $1 AND stage_id = $2 AND status IN ('PENDING', 'APPROVED') LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, stageID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active certificate request: %w", err)
	}
	return true, nil
}

// UpdateStatus transitions a PENDING request. Returns sql.ErrNoRows when the
// request is missing or already decided.
func (r *CertificateRepository) UpdateStatus(ctx context.Context, id string, status models.CertificateStatus, decidedAt time.Time) error {
	const query = `UPDATE certificate_requests SET status = $1, approved_at = $2
        WHERE id = $3 AND status = 'PENDING'`
	result, err := r.db.ExecContext(ctx, query, status, decidedAt, id)
	if err != nil {
		return fmt.Errorf("update certificate status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check updated certificate rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
