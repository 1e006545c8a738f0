package models

import (
	"time"
)

type TaskStatus string

const (
	TaskStatusDraft      TaskStatus = "DRAFT"
	TaskStatusAssigned   TaskStatus = "ASSIGNED"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusSubmitted  TaskStatus = "SUBMITTED"
	TaskStatusApproved   TaskStatus = "APPROVED"
	TaskStatusRejected   TaskStatus = "REJECTED"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusExpired    TaskStatus = "EXPIRED"
)

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusDraft, TaskStatusAssigned, TaskStatusInProgress, TaskStatusSubmitted,
		TaskStatusApproved, TaskStatusRejected, TaskStatusCompleted, TaskStatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition can leave the status.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusExpired
}

type TaskCategory string

const (
	CategoryCleaning TaskCategory = "CLEANING"
	CategoryCooking  TaskCategory = "COOKING"
	CategoryLaundry  TaskCategory = "LAUNDRY"
	CategoryDishes   TaskCategory = "DISHES"
	CategoryYardWork TaskCategory = "YARD_WORK"
	CategoryPetCare  TaskCategory = "PET_CARE"
	CategoryHomework TaskCategory = "HOMEWORK"
	CategoryErrands  TaskCategory = "ERRANDS"
	CategoryOther    TaskCategory = "OTHER"
)

func (c TaskCategory) Valid() bool {
	switch c {
	case CategoryCleaning, CategoryCooking, CategoryLaundry, CategoryDishes,
		CategoryYardWork, CategoryPetCare, CategoryHomework, CategoryErrands, CategoryOther:
		return true
	}
	return false
}

type TaskDifficulty string

const (
	DifficultyEasy   TaskDifficulty = "EASY"
	DifficultyMedium TaskDifficulty = "MEDIUM"
	DifficultyHard   TaskDifficulty = "HARD"
)

func (d TaskDifficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

type Task struct {
	ID           uint64         `gorm:"primarykey" json:"id"`
	Title        string         `gorm:"not null" json:"title"`
	Description  string         `gorm:"type:text" json:"description"`
	Category     TaskCategory   `gorm:"type:varchar(20);not null" json:"category"`
	Difficulty   TaskDifficulty `gorm:"type:varchar(20);not null" json:"difficulty"`
	RewardAmount int64          `gorm:"not null" json:"reward_amount"`
	Status       TaskStatus     `gorm:"type:varchar(20);not null;default:'DRAFT';index" json:"status"`
	Priority     int            `gorm:"not null;default:3" json:"priority"`
	DueDate      *time.Time     `gorm:"index" json:"due_date"`
	FamilyID     uint64         `gorm:"not null;index" json:"family_id"`
	CreatorID    uint64         `gorm:"not null;index" json:"creator_id"`
	AssignedToID *uint64        `gorm:"index" json:"assigned_to_id"`
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`

	// Relations
	Creator     User             `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	AssignedTo  *User            `gorm:"foreignKey:AssignedToID" json:"assigned_to,omitempty"`
	Submissions []TaskSubmission `gorm:"foreignKey:TaskID" json:"submissions,omitempty"`
}
