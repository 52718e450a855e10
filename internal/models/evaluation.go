package models

import (
	"strconv"
	"time"
)

// Outcome is the canonical classifier result for an evaluation.
type Outcome string

const (
	OutcomeAdvance  Outcome = "ADVANCE"
	OutcomeHold     Outcome = "HOLD"
	OutcomeEscalate Outcome = "ESCALATE"
)

// Valid returns true when the outcome is a supported value.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeAdvance, OutcomeHold, OutcomeEscalate:
		return true
	default:
		return false
	}
}

// EvaluationSource identifies which entry point produced an evaluation.
type EvaluationSource string

const (
	SourceSubmission   EvaluationSource = "SUBMISSION"
	SourceVoice        EvaluationSource = "VOICE"
	SourceDirectRating EvaluationSource = "DIRECT_RATING"
)

// Valid returns true when the source is a supported value.
func (s EvaluationSource) Valid() bool {
	switch s {
	case SourceSubmission, SourceVoice, SourceDirectRating:
		return true
	default:
		return false
	}
}

// RawGrade is a teacher's grade as received: either a qualitative label or a
// numeric 1-5 score, never both.
type RawGrade struct {
	Label string `json:"label,omitempty"`
	Score *int   `json:"score,omitempty"`
}

// String renders the grade for ledger storage.
func (g RawGrade) String() string {
	if g.Label != "" {
		return g.Label
	}
	if g.Score != nil {
		return strconv.Itoa(*g.Score)
	}
	return ""
}

// Evaluation is the transient input to the progression engine. It is never
// persisted as-is; an accepted evaluation becomes exactly one ledger entry.
type Evaluation struct {
	StudentID   string
	TeacherID   string
	Source      EvaluationSource
	Grade       RawGrade
	ClaimedPage int
	OccurredOn  Date
}

// LedgerEntry is the persisted, immutable record of one accepted evaluation.
// The ledger is the authoritative history of a student's trajectory; the
// cached Student position must equal its replay.
type LedgerEntry struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	TeacherID  string           `db:"teacher_id" json:"teacher_id"`
	StageID    string           `db:"stage_id" json:"stage_id"`
	PageNumber int              `db:"page_number" json:"page_number"`
	Outcome    Outcome          `db:"outcome" json:"outcome"`
	RawGrade   string           `db:"raw_grade" json:"raw_grade"`
	Source     EvaluationSource `db:"source" json:"source"`
	OccurredOn Date             `db:"occurred_on" json:"occurred_on"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
}

// LedgerFilter scopes ledger reads.
type LedgerFilter struct {
	StudentID  string
	StudentIDs []string
	From       *Date
	To         *Date
}

// EvaluationResult summarises a committed evaluation for API responses.
type EvaluationResult struct {
	Entry          LedgerEntry `json:"entry"`
	NewStageID     string      `json:"new_stage_id"`
	NewPage        int         `json:"new_page"`
	StageCompleted bool        `json:"stage_completed"`
}
