package models

import "time"

// CertificateStatus is the two-phase certificate workflow state.
type CertificateStatus string

const (
	CertificatePending  CertificateStatus = "PENDING"
	CertificateApproved CertificateStatus = "APPROVED"
	CertificateRejected CertificateStatus = "REJECTED"
)

// Valid returns true when the status is a supported value.
func (s CertificateStatus) Valid() bool {
	switch s {
	case CertificatePending, CertificateApproved, CertificateRejected:
		return true
	default:
		return false
	}
}

// CertificateRequest records a teacher-issued certificate request awaiting
// admin review. Creation is gated by stage completion; the engine never
// drives the PENDING → APPROVED/REJECTED transition itself.
type CertificateRequest struct {
	ID         string            `db:"id" json:"id"`
	StudentID  string            `db:"student_id" json:"student_id"`
	TeacherID  string            `db:"teacher_id" json:"teacher_id"`
	StageID    string            `db:"stage_id" json:"stage_id"`
	Status     CertificateStatus `db:"status" json:"status"`
	IssuedAt   time.Time         `db:"issued_at" json:"issued_at"`
	ApprovedAt *time.Time        `db:"approved_at" json:"approved_at,omitempty"`
}

// CertificateFilter scopes certificate listings. Limit zero disables paging.
type CertificateFilter struct {
	StudentID string
	Status    *CertificateStatus
	Limit     int
	Offset    int
}
