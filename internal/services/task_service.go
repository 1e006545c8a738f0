package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yukikurage/chore-reward-api/internal/constants"
	"github.com/yukikurage/chore-reward-api/internal/metrics"
	"github.com/yukikurage/chore-reward-api/internal/models"
	"github.com/yukikurage/chore-reward-api/internal/notify"
	"github.com/yukikurage/chore-reward-api/internal/repository"
	"gorm.io/gorm"
)

// TaskService handles task business logic
type TaskService struct {
	taskRepo     repository.TaskRepository
	familyRepo   repository.FamilyRepository
	transactions repository.TransactionRepository
	notifier     notify.Notifier
	log          logrus.FieldLogger
	now          func() time.Time
}

// NewTaskService creates a new TaskService
func NewTaskService(taskRepo repository.TaskRepository, familyRepo repository.FamilyRepository, transactions repository.TransactionRepository, notifier notify.Notifier, log logrus.FieldLogger) *TaskService {
	return &TaskService{
		taskRepo:     taskRepo,
		familyRepo:   familyRepo,
		transactions: transactions,
		notifier:     notifier,
		log:          log,
		now:          time.Now,
	}
}

// ListTasksInput represents filters for listing tasks
type ListTasksInput struct {
	UserID       uint64
	AssignedToMe bool
	Status       *models.TaskStatus
	Page         int
	PageSize     int
}

// CreateTaskInput represents input for creating a task
type CreateTaskInput struct {
	Title        string
	Description  string
	Category     models.TaskCategory
	Difficulty   models.TaskDifficulty
	RewardAmount int64
	Priority     *int
	DueDate      *time.Time
	AssignedToID *uint64
}

// UpdateTaskInput represents input for updating a task. Status is the only
// field a child may send.
type UpdateTaskInput struct {
	Title        *string
	Description  *string
	Category     *models.TaskCategory
	Difficulty   *models.TaskDifficulty
	RewardAmount *int64
	Priority     *int
	DueDate      *time.Time
	ClearDueDate bool
	Status       *models.TaskStatus
}

func (in UpdateTaskInput) editsDetails() bool {
	return in.Title != nil || in.Description != nil || in.Category != nil || in.Difficulty != nil ||
		in.RewardAmount != nil || in.Priority != nil || in.DueDate != nil || in.ClearDueDate
}

// TaskDetail is a task with its submission history and reward transactions.
type TaskDetail struct {
	Task         *models.Task
	Submissions  []models.TaskSubmission
	Transactions []models.Transaction
}

// ListTasks returns the caller's family tasks, newest first
func (s *TaskService) ListTasks(input ListTasksInput) ([]models.Task, int64, error) {
	member, err := activeMembership(s.familyRepo, input.UserID)
	if err != nil {
		return nil, 0, err
	}

	filter := repository.TaskFilter{
		FamilyID: member.FamilyID,
		Status:   input.Status,
		Page:     input.Page,
		PageSize: input.PageSize,
	}
	if input.AssignedToMe {
		filter.AssignedUserID = &input.UserID
	}

	tasks, total, err := s.taskRepo.List(filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, total, nil
}

// GetTask returns a task with its history. Tasks outside the caller's
// family are reported as not found.
func (s *TaskService) GetTask(userID, taskID uint64) (*TaskDetail, error) {
	task, err := s.findTask(taskID, "Creator", "AssignedTo")
	if err != nil {
		return nil, err
	}
	if _, err := memberOf(s.familyRepo, userID, task.FamilyID, ErrTaskNotFound); err != nil {
		return nil, err
	}

	submissions, err := s.taskRepo.ListSubmissions(taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	transactions, err := s.transactions.ListByTask(taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	return &TaskDetail{Task: task, Submissions: submissions, Transactions: transactions}, nil
}

// CreateTask creates a task in the parent's family. A task created with an
// assignee starts ASSIGNED, otherwise DRAFT.
func (s *TaskService) CreateTask(ctx context.Context, actorID uint64, input CreateTaskInput) (*models.Task, error) {
	member, err := activeParent(s.familyRepo, actorID)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	if input.Category == "" {
		input.Category = models.CategoryOther
	}
	if !input.Category.Valid() {
		return nil, invalidInput("unknown category")
	}
	if input.Difficulty == "" {
		input.Difficulty = models.DifficultyMedium
	}
	if !input.Difficulty.Valid() {
		return nil, invalidInput("unknown difficulty")
	}
	if input.RewardAmount <= 0 {
		return nil, invalidInput("reward amount must be positive")
	}
	priority := constants.DefaultTaskPriority
	if input.Priority != nil {
		priority = *input.Priority
	}
	if err := validatePriority(priority); err != nil {
		return nil, err
	}
	if input.DueDate != nil && !input.DueDate.After(s.now()) {
		return nil, invalidInput("due date must be in the future")
	}

	task := &models.Task{
		Title:        title,
		Description:  strings.TrimSpace(input.Description),
		Category:     input.Category,
		Difficulty:   input.Difficulty,
		RewardAmount: input.RewardAmount,
		Status:       models.TaskStatusDraft,
		Priority:     priority,
		DueDate:      input.DueDate,
		FamilyID:     member.FamilyID,
		CreatorID:    actorID,
	}

	if input.AssignedToID != nil {
		if err := s.ensureAssignable(*input.AssignedToID, member.FamilyID); err != nil {
			return nil, err
		}
		assignee := *input.AssignedToID
		task.AssignedToID = &assignee
		task.Status = models.TaskStatusAssigned
	}

	if err := s.taskRepo.Create(task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"task_id":   task.ID,
		"family_id": task.FamilyID,
		"status":    task.Status,
	}).Info("task created")

	if task.Status == models.TaskStatusAssigned {
		metrics.RecordTransition("NEW", string(models.TaskStatusAssigned))
		s.notifyAssigned(ctx, task)
	}

	return s.findTask(task.ID, "Creator", "AssignedTo")
}

// UpdateTask edits a task. Parents may edit details; a child may only start
// a task assigned to them. Status values never move through this path
// otherwise.
func (s *TaskService) UpdateTask(ctx context.Context, actorID, taskID uint64, input UpdateTaskInput) (*models.Task, error) {
	task, err := s.findTask(taskID)
	if err != nil {
		return nil, err
	}
	member, err := memberOf(s.familyRepo, actorID, task.FamilyID, ErrTaskNotFound)
	if err != nil {
		return nil, err
	}

	if member.Role == models.RoleChild {
		if input.editsDetails() {
			return nil, ErrForbidden
		}
		if input.Status == nil {
			return s.findTask(taskID, "Creator", "AssignedTo")
		}
		return s.startTask(task, actorID, *input.Status)
	}

	if input.Status != nil && *input.Status != task.Status {
		return nil, ErrForbiddenTransition
	}
	if !input.editsDetails() {
		return s.findTask(taskID, "Creator", "AssignedTo")
	}

	// An approved task owes a reward computed from its current details.
	if task.Status.IsTerminal() || task.Status == models.TaskStatusApproved {
		return nil, ErrInvalidTransition
	}

	if err := s.applyDetails(task, input); err != nil {
		return nil, err
	}

	if err := s.taskRepo.UpdateDetails(task); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	return s.findTask(taskID, "Creator", "AssignedTo")
}

func (s *TaskService) startTask(task *models.Task, actorID uint64, to models.TaskStatus) (*models.Task, error) {
	if task.AssignedToID == nil || *task.AssignedToID != actorID {
		return nil, ErrForbiddenTransition
	}
	if !CanTransition(task.Status, to, TriggerStart) {
		return nil, ErrForbiddenTransition
	}

	if err := s.taskRepo.TransitionStatus(task.ID, to, task.Status); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("failed to update task status: %w", err)
	}
	metrics.RecordTransition(string(task.Status), string(to))

	return s.findTask(task.ID, "Creator", "AssignedTo")
}

func (s *TaskService) applyDetails(task *models.Task, input UpdateTaskInput) error {
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if err := validateTitle(title); err != nil {
			return err
		}
		task.Title = title
	}
	if input.Description != nil {
		task.Description = strings.TrimSpace(*input.Description)
	}
	if input.Category != nil {
		if !input.Category.Valid() {
			return invalidInput("unknown category")
		}
		task.Category = *input.Category
	}
	if input.Difficulty != nil {
		if !input.Difficulty.Valid() {
			return invalidInput("unknown difficulty")
		}
		task.Difficulty = *input.Difficulty
	}
	if input.Priority != nil {
		if err := validatePriority(*input.Priority); err != nil {
			return err
		}
		task.Priority = *input.Priority
	}
	if input.ClearDueDate {
		task.DueDate = nil
	} else if input.DueDate != nil {
		if !input.DueDate.After(s.now()) {
			return invalidInput("due date must be in the future")
		}
		task.DueDate = input.DueDate
	}
	if input.RewardAmount != nil && *input.RewardAmount != task.RewardAmount {
		if *input.RewardAmount <= 0 {
			return invalidInput("reward amount must be positive")
		}
		count, err := s.taskRepo.CountSubmissions(task.ID)
		if err != nil {
			return fmt.Errorf("failed to count submissions: %w", err)
		}
		if count > 0 {
			return ErrRewardLocked
		}
		task.RewardAmount = *input.RewardAmount
	}
	return nil
}

// AssignTask assigns a DRAFT task, or reassigns an ASSIGNED one, to an
// active child of the family.
func (s *TaskService) AssignTask(ctx context.Context, actorID, taskID, childID uint64) (*models.Task, error) {
	task, err := s.findTask(taskID)
	if err != nil {
		return nil, err
	}
	if _, err := parentOf(s.familyRepo, actorID, task.FamilyID, ErrTaskNotFound); err != nil {
		return nil, err
	}
	if !CanTransition(task.Status, models.TaskStatusAssigned, TriggerAssign) {
		return nil, ErrInvalidTransition
	}
	if err := s.ensureAssignable(childID, task.FamilyID); err != nil {
		return nil, err
	}

	if task.Status == models.TaskStatusAssigned && task.AssignedToID != nil && *task.AssignedToID == childID {
		return s.findTask(taskID, "Creator", "AssignedTo")
	}

	if err := s.taskRepo.Assign(taskID, childID, task.Status); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("failed to assign task: %w", err)
	}
	metrics.RecordTransition(string(task.Status), string(models.TaskStatusAssigned))

	task.AssignedToID = &childID
	task.Status = models.TaskStatusAssigned
	s.notifyAssigned(ctx, task)

	return s.findTask(taskID, "Creator", "AssignedTo")
}

// DeleteTask removes a DRAFT or ASSIGNED task that has no submissions.
func (s *TaskService) DeleteTask(actorID, taskID uint64) error {
	task, err := s.findTask(taskID)
	if err != nil {
		return err
	}
	if _, err := parentOf(s.familyRepo, actorID, task.FamilyID, ErrTaskNotFound); err != nil {
		return err
	}

	count, err := s.taskRepo.CountSubmissions(taskID)
	if err != nil {
		return fmt.Errorf("failed to count submissions: %w", err)
	}
	if count > 0 {
		return ErrTaskHasSubmissions
	}
	if task.Status != models.TaskStatusDraft && task.Status != models.TaskStatusAssigned {
		return ErrInvalidTransition
	}

	if err := s.taskRepo.Delete(taskID, models.TaskStatusDraft, models.TaskStatusAssigned); err != nil {
		if !errors.Is(err, repository.ErrStaleState) {
			return fmt.Errorf("failed to delete task: %w", err)
		}
		// Lost a race with a submission or status change.
		if count, cerr := s.taskRepo.CountSubmissions(taskID); cerr == nil && count > 0 {
			return ErrTaskHasSubmissions
		}
		return ErrInvalidTransition
	}

	s.log.WithField("task_id", taskID).Info("task deleted")
	return nil
}

// ExpireOverdue moves every overdue task in an expirable state to EXPIRED.
// It is safe to run repeatedly.
func (s *TaskService) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.taskRepo.ExpireOverdue(now, expirableStatuses...)
	if err != nil {
		return 0, fmt.Errorf("failed to expire tasks: %w", err)
	}
	metrics.RecordExpired(n)
	if n > 0 {
		s.log.WithField("count", n).Info("expired overdue tasks")
	}
	return n, nil
}

func (s *TaskService) ensureAssignable(childID, familyID uint64) error {
	ok, err := activeChild(s.familyRepo, childID, familyID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidAssignee
	}
	return nil
}

func (s *TaskService) notifyAssigned(ctx context.Context, task *models.Task) {
	if task.AssignedToID == nil {
		return
	}
	notify.Send(ctx, s.notifier, s.log, notify.Notification{
		UserID:  *task.AssignedToID,
		Type:    notify.TaskAssigned,
		Title:   "New task",
		Message: fmt.Sprintf("You have been assigned %q", task.Title),
		Data: map[string]interface{}{
			"task_id":       task.ID,
			"reward_amount": task.RewardAmount,
		},
	})
}

func (s *TaskService) findTask(taskID uint64, preload ...string) (*models.Task, error) {
	task, err := s.taskRepo.FindByID(taskID, preload...)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return task, nil
}

func validateTitle(title string) error {
	if title == "" {
		return invalidInput("title cannot be empty")
	}
	if len(title) > constants.MaxTitleLength {
		return invalidInput("title is too long")
	}
	return nil
}

func validatePriority(priority int) error {
	if priority < constants.MinTaskPriority || priority > constants.MaxTaskPriority {
		return invalidInput(fmt.Sprintf("priority must be between %d and %d", constants.MinTaskPriority, constants.MaxTaskPriority))
	}
	return nil
}
