package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/halaqat-app/progress-api/internal/models"
)

// StageRepository reads the immutable curriculum catalog.
type StageRepository struct {
	db *sqlx.DB
}

// NewStageRepository constructs the repository.
func NewStageRepository(db *sqlx.DB) *StageRepository {
	return &StageRepository{db: db}
}

// List returns all stages in curriculum order.
func (r *StageRepository) List(ctx context.Context) ([]models.Stage, error) {
	const query = `SELECT id, order_index, total_pages, display_name, created_at
        FROM stages ORDER BY order_index ASC`
	var stages []models.Stage
	if err := r.db.SelectContext(ctx, &stages, query); err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	return stages, nil
}

// FindByID returns a single stage.
func (r *StageRepository) FindByID(ctx context.Context, id string) (*models.Stage, error) {
	const query = `SELECT id, order_index, total_pages, display_name, created_at
        FROM stages WHERE id = $1`
	var stage models.Stage
	if err := r.db.GetContext(ctx, &stage, query, id); err != nil {
		return nil, err
	}
	return &stage, nil
}

// First returns the stage with the lowest order index, where every student
// starts.
func (r *StageRepository) First(ctx context.Context) (*models.Stage, error) {
	const query = `SELECT id, order_index, total_pages, display_name, created_at
        FROM stages ORDER BY order_index ASC LIMIT 1`
	var stage models.Stage
	if err := r.db.GetContext(ctx, &stage, query); err != nil {
		return nil, err
	}
	return &stage, nil
}

// FindNext returns the stage with the smallest order index greater than the
// given one, or sql.ErrNoRows at the end of the curriculum.
func (r *StageRepository) FindNext(ctx context.Context, orderIndex int) (*models.Stage, error) {
	const query = `SELECT id, order_index, total_pages, display_name, created_at
        FROM stages WHERE order_index > $1 ORDER BY order_index ASC LIMIT 1`
	var stage models.Stage
	if err := r.db.GetContext(ctx, &stage, query, orderIndex); err != nil {
		return nil, err
	}
	return &stage, nil
}
