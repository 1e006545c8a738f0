package models

import (
	"time"
)

// TaskSubmission is one attempt by the assignee to prove a task was done.
// Submissions are append-only.
type TaskSubmission struct {
	ID          uint64    `gorm:"primarykey" json:"id"`
	TaskID      uint64    `gorm:"not null;index" json:"task_id"`
	SubmitterID uint64    `gorm:"not null;index" json:"submitter_id"`
	Proofs      []string  `gorm:"serializer:json;type:text;not null" json:"proofs"`
	Notes       string    `gorm:"type:text" json:"notes"`
	SubmittedAt time.Time `gorm:"not null;index" json:"submitted_at"`

	// Relations
	Task      Task           `gorm:"foreignKey:TaskID" json:"-"`
	Submitter User           `gorm:"foreignKey:SubmitterID" json:"submitter,omitempty"`
	Approvals []TaskApproval `gorm:"foreignKey:SubmissionID" json:"approvals,omitempty"`
}
