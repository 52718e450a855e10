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

// AssignmentRepository persists teacher-student assignments. The schema keeps
// at most one row per student, so assigning a new teacher replaces the old
// one.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Upsert creates or replaces the student's active teacher assignment.
func (r *AssignmentRepository) Upsert(ctx context.Context, assignment *models.TeacherAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = now
	}
	assignment.UpdatedAt = now
	const query = `INSERT INTO teacher_assignments (id, teacher_id, student_id, created_at, updated_at)
        VALUES (:id, :teacher_id, :student_id, :created_at, :updated_at)
        ON CONFLICT (student_id)
        DO UPDATE SET teacher_id = EXCLUDED.teacher_id, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("upsert teacher assignment: %w", err)
	}
	return nil
}

// FindByStudent returns the student's active assignment.
func (r *AssignmentRepository) FindByStudent(ctx context.Context, studentID string) (*models.TeacherAssignment, error) {
	const query = `SELECT id, teacher_id, student_id, created_at, updated_at
        FROM teacher_assignments WHERE student_id = $1`
	var assignment models.TeacherAssignment
	if err := r.db.GetContext(ctx, &assignment, query, studentID); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// IsAssigned reports whether the teacher currently holds the student.
func (r *AssignmentRepository) IsAssigned(ctx context.Context, teacherID, studentID string) (bool, error) {
	const query = `SELECT 1 FROM teacher_assignments WHERE teacher_id = $1 AND student_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, teacherID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check teacher assignment: %w", err)
	}
	return true, nil
}

// ListStudentsByTeacher returns the teacher's current roster ordered by name.
func (r *AssignmentRepository) ListStudentsByTeacher(ctx context.Context, teacherID string) ([]models.AssignedStudent, error) {
	const query = `SELECT s.id AS student_id, s.full_name AS student_name
        FROM teacher_assignments ta
        JOIN students s ON s.id = ta.student_id
        WHERE ta.teacher_id = $1
        ORDER BY s.full_name ASC`
	var students []models.AssignedStudent
	if err := r.db.SelectContext(ctx, &students, query, teacherID); err != nil {
		return nil, fmt.Errorf("list assigned students: %w", err)
	}
	return students, nil
}
