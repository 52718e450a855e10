package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/halaqat-app/progress-api/internal/models"
)

// StudentRepository persists students and their engine-owned position cache.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// Create inserts a student seeded at the given starting position.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, full_name, current_stage_id, current_page, version, created_at, updated_at)
        VALUES (:id, :full_name, :current_stage_id, :current_page, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// FindByID returns a student by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, full_name, current_stage_id, current_page, version, created_at, updated_at
        FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByIDForUpdate loads a student inside tx holding a row lock, serializing
// concurrent evaluations for the same student.
func (r *StudentRepository) FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Student, error) {
	const query = `SELECT id, full_name, current_stage_id, current_page, version, created_at, updated_at
        FROM students WHERE id = $1 FOR UPDATE`
	var student models.Student
	if err := tx.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// UpdatePosition writes the position cache within the caller's transaction
// and bumps the version counter.
func (r *StudentRepository) UpdatePosition(ctx context.Context, tx *sqlx.Tx, studentID string, pos models.Position) error {
	const query = `UPDATE students
        SET current_stage_id = $1, current_page = $2, version = version + 1, updated_at = $3
        WHERE id = $4`
	if _, err := tx.ExecContext(ctx, query, pos.StageID, pos.Page, time.Now().UTC(), studentID); err != nil {
		return fmt.Errorf("update student position: %w", err)
	}
	return nil
}
