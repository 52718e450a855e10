package models

// TimetableCell is one (student, day) slot in the projected grid. Absent is
// the default: a cell exists for every requested day even when the ledger has
// no entry.
type TimetableCell struct {
	Present  bool    `json:"present"`
	Outcome  Outcome `json:"outcome,omitempty"`
	RawGrade string  `json:"raw_grade,omitempty"`
	StageID  string  `json:"stage_id,omitempty"`
	Page     int     `json:"page,omitempty"`
}

// TimetableRow holds one student's dense cells keyed by YYYY-MM-DD day.
type TimetableRow struct {
	StudentID   string                   `json:"student_id"`
	StudentName string                   `json:"student_name"`
	Days        map[string]TimetableCell `json:"days"`
}

// TimetableGrid is the dense (student × calendar-day) projection for a
// teacher's roster over a date range.
type TimetableGrid struct {
	TeacherID string         `json:"teacher_id"`
	From      Date           `json:"from"`
	To        Date           `json:"to"`
	Days      []string       `json:"days"`
	Rows      []TimetableRow `json:"rows"`
}
