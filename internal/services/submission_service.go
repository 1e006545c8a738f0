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

// SubmissionService records children's submissions and parents' decisions.
// Both are append-only; the task's current submission is the newest by
// (submitted_at, id) and a submission's authoritative decision the newest
// by (decided_at, id).
type SubmissionService struct {
	taskRepo   repository.TaskRepository
	familyRepo repository.FamilyRepository
	settlement *SettlementService
	notifier   notify.Notifier
	log        logrus.FieldLogger
	now        func() time.Time
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(taskRepo repository.TaskRepository, familyRepo repository.FamilyRepository, settlement *SettlementService, notifier notify.Notifier, log logrus.FieldLogger) *SubmissionService {
	return &SubmissionService{
		taskRepo:   taskRepo,
		familyRepo: familyRepo,
		settlement: settlement,
		notifier:   notifier,
		log:        log,
		now:        time.Now,
	}
}

// SubmitInput is the proof a child sends for a task.
type SubmitInput struct {
	Proofs []string
	Notes  string
}

// DecideInput is a parent's verdict on a submission.
type DecideInput struct {
	Decision models.ApprovalDecision
	Rating   *int
	Comments string
}

// SettlementOutcome reports what happened to the reward after an approval.
// Status is CONFIRMED, FAILED (with Reason, Retryable) or PENDING when the
// outcome is not yet known.
type SettlementOutcome struct {
	Status      models.TransactionStatus
	Transaction *models.Transaction
	Reason      string
	Retryable   bool
}

// DecisionResult is the recorded approval, the task after the decision, and
// for approvals the settlement outcome.
type DecisionResult struct {
	Approval   *models.TaskApproval
	Task       *models.Task
	Settlement *SettlementOutcome
}

// Submit records a submission by the task's assignee and moves the task to SUBMITTED.
func (s *SubmissionService) Submit(ctx context.Context, submitterID, taskID uint64, input SubmitInput) (*models.TaskSubmission, error) {
	task, err := s.findTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.AssignedToID == nil || *task.AssignedToID != submitterID {
		return nil, ErrForbidden
	}
	if _, err := memberOf(s.familyRepo, submitterID, task.FamilyID, ErrForbidden); err != nil {
		return nil, err
	}

	switch {
	case task.Status == models.TaskStatusApproved || task.Status == models.TaskStatusCompleted:
		return nil, ErrTaskAlreadyCompleted
	case !CanTransition(task.Status, models.TaskStatusSubmitted, TriggerSubmit):
		return nil, ErrInvalidTransition
	}

	proofs, err := cleanProofs(input.Proofs)
	if err != nil {
		return nil, err
	}

	submission := &models.TaskSubmission{
		TaskID:      task.ID,
		SubmitterID: submitterID,
		Proofs:      proofs,
		Notes:       strings.TrimSpace(input.Notes),
		SubmittedAt: s.now(),
	}
	if err := s.taskRepo.CreateSubmission(submission, task.Status); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}
	metrics.RecordTransition(string(task.Status), string(models.TaskStatusSubmitted))

	s.log.WithFields(logrus.Fields{
		"task_id":       task.ID,
		"submission_id": submission.ID,
		"user_id":       submitterID,
	}).Info("task submitted")

	notify.Send(ctx, s.notifier, s.log, notify.Notification{
		UserID:  task.CreatorID,
		Type:    notify.TaskSubmitted,
		Title:   "Task submitted",
		Message: fmt.Sprintf("%q is ready for review", task.Title),
		Data: map[string]interface{}{
			"task_id":       task.ID,
			"submission_id": submission.ID,
		},
	})

	return submission, nil
}

// Decide records a parent's decision on the task's current submission. An
// approval settles the reward before returning; a failed transfer does not
// fail the decision and is reported in the result instead.
func (s *SubmissionService) Decide(ctx context.Context, approverID, submissionID uint64, input DecideInput) (*DecisionResult, error) {
	var to models.TaskStatus
	switch input.Decision {
	case models.DecisionApproved:
		to = models.TaskStatusApproved
	case models.DecisionRejected, models.DecisionNeedsRevision:
		to = models.TaskStatusRejected
	default:
		return nil, invalidInput("decision must be APPROVED, REJECTED or NEEDS_REVISION")
	}
	if input.Rating != nil && (*input.Rating < constants.MinRating || *input.Rating > constants.MaxRating) {
		return nil, invalidInput(fmt.Sprintf("rating must be between %d and %d", constants.MinRating, constants.MaxRating))
	}

	submission, err := s.taskRepo.FindSubmission(submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to find submission: %w", err)
	}
	task, err := s.findTask(submission.TaskID)
	if err != nil {
		return nil, err
	}
	if _, err := parentOf(s.familyRepo, approverID, task.FamilyID, ErrForbidden); err != nil {
		if errors.Is(err, ErrParentRequired) {
			return nil, ErrForbidden
		}
		return nil, err
	}

	if err := s.ensureLatest(task.ID, submission.ID); err != nil {
		return nil, err
	}
	if !CanTransition(task.Status, to, TriggerDecide) {
		return nil, ErrInvalidTransition
	}

	logger := s.log.WithFields(logrus.Fields{
		"task_id":       task.ID,
		"submission_id": submission.ID,
	})

	prior, err := s.taskRepo.LatestApproval(submission.ID)
	switch {
	case err == nil && prior.Decision != models.DecisionPending:
		logger.WithFields(logrus.Fields{
			"approval_id": prior.ID,
			"decision":    prior.Decision,
		}).Error("submission already decided while task is still SUBMITTED")
		return nil, ErrInvariantViolation
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("failed to find approval: %w", err)
	}

	approval := &models.TaskApproval{
		SubmissionID: submission.ID,
		TaskID:       task.ID,
		ApproverID:   approverID,
		Decision:     input.Decision,
		Rating:       input.Rating,
		Comments:     strings.TrimSpace(input.Comments),
		DecidedAt:    s.now(),
	}
	if err := s.taskRepo.RecordDecision(approval, to, task.Status); err != nil {
		if !errors.Is(err, repository.ErrStaleState) {
			return nil, fmt.Errorf("failed to record decision: %w", err)
		}
		if lerr := s.ensureLatest(task.ID, submission.ID); lerr != nil {
			return nil, lerr
		}
		return nil, ErrInvalidTransition
	}
	metrics.RecordTransition(string(task.Status), string(to))

	logger.WithField("decision", input.Decision).Info("submission decided")
	s.notifyDecision(ctx, task, submission, input.Decision)

	result := &DecisionResult{Approval: approval}
	if input.Decision == models.DecisionApproved {
		result.Settlement = s.settle(ctx, logger, task.ID, submission.ID)
	}

	result.Task, err = s.findTask(task.ID)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SubmissionService) settle(ctx context.Context, logger logrus.FieldLogger, taskID, submissionID uint64) *SettlementOutcome {
	txn, err := s.settlement.Settle(ctx, taskID, submissionID)
	switch {
	case err == nil:
		return &SettlementOutcome{Status: txn.Status, Transaction: txn}
	case errors.Is(err, ErrTransferFailed) && txn != nil:
		return &SettlementOutcome{
			Status:      models.TransactionFailed,
			Transaction: txn,
			Reason:      txn.FailureReason,
			Retryable:   true,
		}
	default:
		logger.WithError(err).Error("settlement did not complete after approval")
		return &SettlementOutcome{
			Status:    models.TransactionPending,
			Reason:    "settlement could not be completed; retry settlement for this task",
			Retryable: true,
		}
	}
}

func (s *SubmissionService) ensureLatest(taskID, submissionID uint64) error {
	latest, err := s.taskRepo.LatestSubmission(taskID)
	if err != nil {
		return fmt.Errorf("failed to find latest submission: %w", err)
	}
	if latest.ID != submissionID {
		return ErrStaleSubmission
	}
	return nil
}

func (s *SubmissionService) notifyDecision(ctx context.Context, task *models.Task, submission *models.TaskSubmission, decision models.ApprovalDecision) {
	kind := notify.TaskRejected
	message := fmt.Sprintf("%q needs another try", task.Title)
	if decision == models.DecisionApproved {
		kind = notify.TaskApproved
		message = fmt.Sprintf("%q was approved", task.Title)
	}
	notify.Send(ctx, s.notifier, s.log, notify.Notification{
		UserID:  submission.SubmitterID,
		Type:    kind,
		Title:   "Task reviewed",
		Message: message,
		Data: map[string]interface{}{
			"task_id":       task.ID,
			"submission_id": submission.ID,
			"decision":      decision,
		},
	})
}

func (s *SubmissionService) findTask(taskID uint64) (*models.Task, error) {
	task, err := s.taskRepo.FindByID(taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return task, nil
}

func cleanProofs(proofs []string) ([]string, error) {
	if len(proofs) == 0 {
		return nil, invalidInput("at least one proof is required")
	}
	if len(proofs) > constants.MaxProofsPerSubmit {
		return nil, invalidInput(fmt.Sprintf("at most %d proofs per submission", constants.MaxProofsPerSubmit))
	}
	out := make([]string, 0, len(proofs))
	for _, p := range proofs {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, invalidInput("proof references cannot be blank")
		}
		out = append(out, p)
	}
	return out, nil
}
