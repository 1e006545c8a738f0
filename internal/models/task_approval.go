package models

import "time"

type ApprovalDecision string

const (
	DecisionPending       ApprovalDecision = "PENDING"
	DecisionApproved      ApprovalDecision = "APPROVED"
	DecisionRejected      ApprovalDecision = "REJECTED"
	DecisionNeedsRevision ApprovalDecision = "NEEDS_REVISION"
)

// TaskApproval records a parent's decision on a submission. TaskID duplicates
// the submission's task reference for listing; status changes always resolve
// the task through the submission.
type TaskApproval struct {
	ID           uint64           `gorm:"primarykey" json:"id"`
	SubmissionID uint64           `gorm:"not null;index" json:"submission_id"`
	TaskID       uint64           `gorm:"not null;index" json:"task_id"`
	ApproverID   uint64           `gorm:"not null" json:"approver_id"`
	Decision     ApprovalDecision `gorm:"type:varchar(20);not null" json:"decision"`
	Rating       *int             `json:"rating"`
	Comments     string           `gorm:"type:text" json:"comments"`
	DecidedAt    time.Time        `gorm:"not null" json:"decided_at"`

	// Relations
	Approver User `gorm:"foreignKey:ApproverID" json:"approver,omitempty"`
}
