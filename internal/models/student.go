package models

import "time"

// Student carries the engine-owned position cache. current_stage_id and
// current_page mutate only inside progression transactions and must always
// equal the replay of the student's ledger.
type Student struct {
	ID             string    `db:"id" json:"id"`
	FullName       string    `db:"full_name" json:"full_name"`
	CurrentStageID string    `db:"current_stage_id" json:"current_stage_id"`
	CurrentPage    int       `db:"current_page" json:"current_page"`
	Version        int       `db:"version" json:"version"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Position is the (stage, page) pair the progression engine moves.
type Position struct {
	StageID string `json:"stage_id"`
	Page    int    `json:"page"`
}

// Position returns the student's cached position.
func (s *Student) Position() Position {
	return Position{StageID: s.CurrentStageID, Page: s.CurrentPage}
}

// StudentPosition is the read model exposed to dashboards.
type StudentPosition struct {
	StudentID  string `json:"student_id"`
	StageID    string `json:"stage_id"`
	StageName  string `json:"stage_name,omitempty"`
	Page       int    `json:"page"`
	TotalPages int    `json:"total_pages,omitempty"`
}
