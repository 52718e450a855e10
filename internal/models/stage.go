package models

import "time"

// Stage is an ordered curriculum unit with a fixed page count. Stages are
// immutable reference data; the engine never writes them.
type Stage struct {
	ID          string    `db:"id" json:"id"`
	OrderIndex  int       `db:"order_index" json:"order_index"`
	TotalPages  int       `db:"total_pages" json:"total_pages"`
	DisplayName string    `db:"display_name" json:"display_name"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
