package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/yukikurage/chore-reward-api/internal/database"
	"github.com/yukikurage/chore-reward-api/internal/models"
	"github.com/yukikurage/chore-reward-api/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormTaskRepository is a GORM implementation of TaskRepository
type GormTaskRepository struct {
	db *gorm.DB
}

// NewTaskRepository creates a new TaskRepository
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &GormTaskRepository{db: db}
}

// Create creates a new task
func (r *GormTaskRepository) Create(task *models.Task) error {
	return r.db.Create(task).Error
}

// FindByID finds a task by ID with optional preloading
func (r *GormTaskRepository) FindByID(id uint64, preload ...string) (*models.Task, error) {
	var task models.Task
	query := r.db

	// Apply preloading if specified
	for _, p := range preload {
		query = query.Preload(p)
	}

	if err := query.First(&task, id).Error; err != nil {
		return nil, err
	}

	return &task, nil
}

// List retrieves tasks with filtering and pagination
func (r *GormTaskRepository) List(filter TaskFilter) ([]models.Task, int64, error) {
	var tasks []models.Task

	query := r.db.Model(&models.Task{}).Where("tasks.family_id = ?", filter.FamilyID)

	// Apply filters
	if filter.Status != nil {
		query = query.Where("tasks.status = ?", *filter.Status)
	}
	if filter.AssignedUserID != nil {
		query = query.Where("tasks.assigned_to_id = ?", *filter.AssignedUserID)
	}

	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	listQuery := query.Scopes(database.NewestFirst("tasks.created_at"))
	if filter.Page > 0 && filter.PageSize > 0 {
		listQuery = listQuery.Scopes(database.Paginate(utils.NewPaginationParams(filter.Page, filter.PageSize)))
	}

	if err := listQuery.Preload("Creator").Preload("AssignedTo").Find(&tasks).Error; err != nil {
		return nil, 0, err
	}

	return tasks, total, nil
}

// UpdateDetails saves editable fields, guarded on the status the caller read.
func (r *GormTaskRepository) UpdateDetails(task *models.Task) error {
	result := r.db.Model(&models.Task{}).
		Where("id = ? AND status = ?", task.ID, task.Status).
		Select("title", "description", "category", "difficulty", "reward_amount", "priority", "due_date", "updated_at").
		Updates(task)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

// Assign sets the assignee and moves the task to ASSIGNED
func (r *GormTaskRepository) Assign(taskID, childID uint64, from ...models.TaskStatus) error {
	result := r.db.Model(&models.Task{}).
		Where("id = ? AND status IN ?", taskID, from).
		Updates(map[string]interface{}{
			"assigned_to_id": childID,
			"status":         models.TaskStatusAssigned,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

// TransitionStatus moves a task from one of from to to
func (r *GormTaskRepository) TransitionStatus(taskID uint64, to models.TaskStatus, from ...models.TaskStatus) error {
	result := r.db.Model(&models.Task{}).
		Where("id = ? AND status IN ?", taskID, from).
		Update("status", to)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

// Delete removes a task that has no submissions
func (r *GormTaskRepository) Delete(taskID uint64, statuses ...models.TaskStatus) error {
	noSubmissions := r.db.Model(&models.TaskSubmission{}).Select("1").Where("task_submissions.task_id = tasks.id")
	result := r.db.
		Where("id = ? AND status IN ?", taskID, statuses).
		Where("NOT EXISTS (?)", noSubmissions).
		Delete(&models.Task{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

// CountSubmissions counts submissions recorded against a task
func (r *GormTaskRepository) CountSubmissions(taskID uint64) (int64, error) {
	var count int64
	err := r.db.Model(&models.TaskSubmission{}).Where("task_id = ?", taskID).Count(&count).Error
	return count, err
}

// CreateSubmission inserts a submission and moves its task to SUBMITTED in
// one transaction. The task row is locked first so a concurrent decision
// sees either the whole submission or none of it.
func (r *GormTaskRepository) CreateSubmission(submission *models.TaskSubmission, from ...models.TaskStatus) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if _, err := lockTask(tx, submission.TaskID); err != nil {
			return err
		}

		result := tx.Model(&models.Task{}).
			Where("id = ? AND status IN ? AND assigned_to_id = ?", submission.TaskID, from, submission.SubmitterID).
			Update("status", models.TaskStatusSubmitted)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrStaleState
		}

		if err := tx.Create(submission).Error; err != nil {
			return fmt.Errorf("create submission: %w", err)
		}
		return nil
	})
}

// FindSubmission finds a submission by ID
func (r *GormTaskRepository) FindSubmission(id uint64) (*models.TaskSubmission, error) {
	var submission models.TaskSubmission
	if err := r.db.First(&submission, id).Error; err != nil {
		return nil, err
	}
	return &submission, nil
}

// LatestSubmission finds the task's most recent submission
func (r *GormTaskRepository) LatestSubmission(taskID uint64) (*models.TaskSubmission, error) {
	var submission models.TaskSubmission
	if err := r.db.Where("task_id = ?", taskID).
		Scopes(database.NewestFirst("submitted_at")).
		First(&submission).Error; err != nil {
		return nil, err
	}
	return &submission, nil
}

// ListSubmissions lists a task's submissions with their approvals, oldest first
func (r *GormTaskRepository) ListSubmissions(taskID uint64) ([]models.TaskSubmission, error) {
	var submissions []models.TaskSubmission
	if err := r.db.
		Preload("Submitter").
		Preload("Approvals", func(db *gorm.DB) *gorm.DB {
			return db.Scopes(database.OldestFirst("decided_at"))
		}).
		Preload("Approvals.Approver").
		Where("task_id = ?", taskID).
		Scopes(database.OldestFirst("submitted_at")).
		Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}

// LatestApproval finds the authoritative decision for a submission
func (r *GormTaskRepository) LatestApproval(submissionID uint64) (*models.TaskApproval, error) {
	var approval models.TaskApproval
	if err := r.db.Where("submission_id = ?", submissionID).
		Scopes(database.NewestFirst("decided_at")).
		First(&approval).Error; err != nil {
		return nil, err
	}
	return &approval, nil
}

// RecordDecision inserts an approval and moves its task from one of from to
// to in one transaction. The submission must still be the task's latest,
// by the same ordering LatestSubmission uses; otherwise nothing is written.
func (r *GormTaskRepository) RecordDecision(approval *models.TaskApproval, to models.TaskStatus, from ...models.TaskStatus) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if _, err := lockTask(tx, approval.TaskID); err != nil {
			return err
		}

		var latest models.TaskSubmission
		if err := tx.Where("task_id = ?", approval.TaskID).
			Scopes(database.NewestFirst("submitted_at")).
			First(&latest).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrStaleState
			}
			return err
		}
		if latest.ID != approval.SubmissionID {
			return ErrStaleState
		}

		result := tx.Model(&models.Task{}).
			Where("id = ? AND status IN ?", approval.TaskID, from).
			Update("status", to)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrStaleState
		}

		if err := tx.Create(approval).Error; err != nil {
			return fmt.Errorf("create approval: %w", err)
		}
		return nil
	})
}

// lockTask reads the task row FOR UPDATE, serializing writers of one task's
// submission history. A missing task is reported as ErrStaleState.
func lockTask(tx *gorm.DB, taskID uint64) (*models.Task, error) {
	var task models.Task
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&task, taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStaleState
		}
		return nil, err
	}
	return &task, nil
}

// ExpireOverdue moves overdue tasks to EXPIRED
func (r *GormTaskRepository) ExpireOverdue(now time.Time, statuses ...models.TaskStatus) (int64, error) {
	result := r.db.Model(&models.Task{}).
		Where("status IN ? AND due_date IS NOT NULL AND due_date < ?", statuses, now).
		Update("status", models.TaskStatusExpired)
	return result.RowsAffected, result.Error
}
