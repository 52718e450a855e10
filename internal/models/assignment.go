package models

import "time"

// TeacherAssignment binds a student to their single active teacher. It is the
// authorization boundary for evaluations: a submission is accepted only when
// its issuing teacher matches the student's current assignment.
type TeacherAssignment struct {
	ID        string    `db:"id" json:"id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AssignedStudent is a roster row for the timetable projector.
type AssignedStudent struct {
	StudentID   string `db:"student_id" json:"student_id"`
	StudentName string `db:"student_name" json:"student_name"`
}
