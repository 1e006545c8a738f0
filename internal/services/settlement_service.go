package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/yukikurage/chore-reward-api/internal/constants"
	"github.com/yukikurage/chore-reward-api/internal/ledger"
	"github.com/yukikurage/chore-reward-api/internal/metrics"
	"github.com/yukikurage/chore-reward-api/internal/models"
	"github.com/yukikurage/chore-reward-api/internal/notify"
	"github.com/yukikurage/chore-reward-api/internal/repository"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// SettlementService pays the reward for an approved submission exactly once.
//
// The (task, submission, TASK_REWARD) unique index is the source of truth
// for at-most-once; the singleflight group only saves duplicate work when
// the same process sees concurrent calls for one key. The ledger is always
// called outside any database transaction, with the PENDING row as the
// durable in-flight marker. A PENDING row untouched for longer than one
// bounded transfer plus a margin belongs to a settler that is gone and may
// be taken over; the row's reference keeps the repeated transfer idempotent
// at the ledger.
type SettlementService struct {
	taskRepo     repository.TaskRepository
	familyRepo   repository.FamilyRepository
	transactions repository.TransactionRepository
	users        repository.UserRepository
	ledger       ledger.Client
	notifier     notify.Notifier
	log          logrus.FieldLogger
	timeout      time.Duration
	staleAfter   time.Duration
	group        singleflight.Group
	now          func() time.Time
}

// NewSettlementService creates a new SettlementService.
func NewSettlementService(
	taskRepo repository.TaskRepository,
	familyRepo repository.FamilyRepository,
	transactions repository.TransactionRepository,
	users repository.UserRepository,
	ledgerClient ledger.Client,
	notifier notify.Notifier,
	log logrus.FieldLogger,
	timeout time.Duration,
) *SettlementService {
	if timeout <= 0 {
		timeout = constants.DefaultLedgerTimeout
	}
	return &SettlementService{
		taskRepo:     taskRepo,
		familyRepo:   familyRepo,
		transactions: transactions,
		users:        users,
		ledger:       ledgerClient,
		notifier:     notifier,
		log:          log,
		timeout:      timeout,
		staleAfter:   timeout + constants.SettlementStaleMargin,
		now:          time.Now,
	}
}

// Settle pays the reward for submissionID of taskID. An existing CONFIRMED
// or in-flight PENDING transaction is returned unchanged; a FAILED,
// CANCELLED or stalled PENDING one is re-attempted on the same row. When the transfer fails the
// FAILED transaction is returned together with ErrTransferFailed.
func (s *SettlementService) Settle(ctx context.Context, taskID, submissionID uint64) (*models.Transaction, error) {
	key := fmt.Sprintf("%d:%d", taskID, submissionID)
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.settle(context.WithoutCancel(ctx), taskID, submissionID)
	})
	txn, _ := v.(*models.Transaction)
	if txn != nil {
		// Callers sharing a flight must not share one struct.
		copied := *txn
		txn = &copied
	}
	return txn, err
}

// SettleLatest retries settlement for the latest submission of a task on
// behalf of a parent of its family.
func (s *SettlementService) SettleLatest(ctx context.Context, actorID, taskID uint64) (*models.Transaction, error) {
	task, err := s.taskRepo.FindByID(taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	if _, err := parentOf(s.familyRepo, actorID, task.FamilyID, ErrTaskNotFound); err != nil {
		return nil, err
	}

	latest, err := s.taskRepo.LatestSubmission(taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotApproved
		}
		return nil, fmt.Errorf("failed to find submission: %w", err)
	}
	return s.Settle(ctx, taskID, latest.ID)
}

// RetryFailed re-attempts up to limit FAILED or stalled PENDING reward
// transactions and returns how many were confirmed.
func (s *SettlementService) RetryFailed(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = constants.SettlementRetryBatch
	}
	failed, err := s.transactions.ListRetryable(limit, s.staleBefore())
	if err != nil {
		return 0, fmt.Errorf("failed to list retryable transactions: %w", err)
	}

	confirmed := 0
	for _, txn := range failed {
		if ctx.Err() != nil {
			return confirmed, ctx.Err()
		}
		if txn.TaskID == nil || txn.SubmissionID == nil {
			continue
		}
		result, err := s.Settle(ctx, *txn.TaskID, *txn.SubmissionID)
		if err != nil && !errors.Is(err, ErrTransferFailed) {
			s.log.WithError(err).WithField("transaction_id", txn.ID).Warn("settlement retry failed")
			continue
		}
		if result != nil && result.Status == models.TransactionConfirmed {
			confirmed++
		}
	}

	if len(failed) > 0 {
		s.log.WithFields(logrus.Fields{
			"attempted": len(failed),
			"confirmed": confirmed,
		}).Info("settlement retry pass finished")
	}
	return confirmed, nil
}

func (s *SettlementService) settle(ctx context.Context, taskID, submissionID uint64) (*models.Transaction, error) {
	task, err := s.taskRepo.FindByID(taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	submission, err := s.taskRepo.FindSubmission(submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to find submission: %w", err)
	}
	if submission.TaskID != task.ID {
		return nil, ErrSubmissionNotFound
	}
	if task.Status != models.TaskStatusApproved && task.Status != models.TaskStatusCompleted {
		return nil, ErrNotApproved
	}
	approval, err := s.taskRepo.LatestApproval(submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotApproved
		}
		return nil, fmt.Errorf("failed to find approval: %w", err)
	}
	if approval.Decision != models.DecisionApproved {
		return nil, ErrNotApproved
	}

	logger := s.log.WithFields(logrus.Fields{
		"task_id":       taskID,
		"submission_id": submissionID,
	})

	var owned bool
	txn, err := s.transactions.FindBySettlementKey(taskID, submissionID)
	switch {
	case err == nil:
		switch {
		case txn.Status.Reclaimable():
			txn, owned, err = s.reclaim(txn, submission.SubmitterID)
		case s.stalled(txn):
			logger.WithField("transaction_id", txn.ID).Warn("taking over stalled settlement")
			txn, owned, err = s.takeOver(txn)
		default:
			metrics.RecordSettlement("existing")
			return txn, nil
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		txn, owned, err = s.open(task, submission)
	default:
		return nil, fmt.Errorf("failed to find transaction: %w", err)
	}
	if err != nil {
		return nil, err
	}
	if !owned {
		metrics.RecordSettlement("existing")
		return txn, nil
	}

	return s.attempt(ctx, logger, task, txn)
}

// open inserts the PENDING reward row. owned is false when another settler
// inserted the row first; that settler's row is returned instead.
func (s *SettlementService) open(task *models.Task, submission *models.TaskSubmission) (txn *models.Transaction, owned bool, err error) {
	recipient, err := s.users.FindByID(submission.SubmitterID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to find recipient: %w", err)
	}

	taskID, submissionID := task.ID, submission.ID
	txn = &models.Transaction{
		UserID:       recipient.ID,
		TaskID:       &taskID,
		SubmissionID: &submissionID,
		Type:         models.TransactionTaskReward,
		Amount:       decimal.NewFromInt(task.RewardAmount).String(),
		Status:       models.TransactionPending,
		Reference:    uuid.NewString(),
		ToAddress:    recipient.WalletAddress,
		Attempts:     1,
	}
	if err := s.transactions.Create(txn); err != nil {
		if !errors.Is(err, repository.ErrSettlementExists) {
			return nil, false, fmt.Errorf("failed to create transaction: %w", err)
		}
		existing, err := s.transactions.FindBySettlementKey(task.ID, submission.ID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to re-read transaction: %w", err)
		}
		return existing, false, nil
	}
	return txn, true, nil
}

// reclaim moves a FAILED or CANCELLED row back to PENDING with the
// recipient's current wallet address. Only one caller wins the claim.
func (s *SettlementService) reclaim(txn *models.Transaction, recipientID uint64) (*models.Transaction, bool, error) {
	recipient, err := s.users.FindByID(recipientID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to find recipient: %w", err)
	}

	owned := true
	if err := s.transactions.ClaimForRetry(txn.ID, recipient.WalletAddress); err != nil {
		if !errors.Is(err, repository.ErrStaleState) {
			return nil, false, fmt.Errorf("failed to reclaim transaction: %w", err)
		}
		owned = false
	}

	current, err := s.transactions.FindByID(txn.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to re-read transaction: %w", err)
	}
	return current, owned, nil
}

func (s *SettlementService) staleBefore() time.Time {
	return s.now().Add(-s.staleAfter)
}

func (s *SettlementService) stalled(txn *models.Transaction) bool {
	return txn.Status == models.TransactionPending && txn.UpdatedAt.Before(s.staleBefore())
}

// takeOver claims a stalled PENDING row. Only one caller wins the claim.
func (s *SettlementService) takeOver(txn *models.Transaction) (*models.Transaction, bool, error) {
	owned := true
	if err := s.transactions.ClaimStale(txn.ID, s.staleBefore(), s.now()); err != nil {
		if !errors.Is(err, repository.ErrStaleState) {
			return nil, false, fmt.Errorf("failed to take over transaction: %w", err)
		}
		owned = false
	}

	current, err := s.transactions.FindByID(txn.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to re-read transaction: %w", err)
	}
	return current, owned, nil
}

func (s *SettlementService) attempt(ctx context.Context, logger logrus.FieldLogger, task *models.Task, txn *models.Transaction) (*models.Transaction, error) {
	logger = logger.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"attempt":        txn.Attempts,
	})

	result, transferErr := s.transfer(ctx, txn)
	if transferErr != nil {
		if err := s.transactions.MarkFailed(txn.ID, transferErr.Error()); err != nil {
			if errors.Is(err, repository.ErrStaleState) {
				return s.settledElsewhere(txn.ID)
			}
			return nil, fmt.Errorf("failed to record transfer failure: %w", err)
		}
		txn.Status = models.TransactionFailed
		txn.FailureReason = transferErr.Error()
		metrics.RecordSettlement("failed")
		logger.WithError(transferErr).Warn("reward transfer failed")
		return txn, ErrTransferFailed
	}

	confirmedAt := s.now()
	completeFrom := SourcesFor(models.TaskStatusCompleted, TriggerSettle)
	if err := s.transactions.MarkConfirmed(txn.ID, result.TxHash, confirmedAt, completeFrom...); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return s.settledElsewhere(txn.ID)
		}
		// The ledger has paid; the row stays PENDING until a retry pass takes
		// it over and the ledger replays the transfer for the same reference.
		logger.WithError(err).WithField("tx_hash", result.TxHash).Error("transfer succeeded but could not be recorded")
		return nil, fmt.Errorf("failed to record confirmed transfer: %w", err)
	}

	txn.Status = models.TransactionConfirmed
	txn.TxHash = result.TxHash
	txn.ConfirmedAt = &confirmedAt
	txn.FailureReason = ""
	metrics.RecordSettlement("confirmed")
	if task.Status == models.TaskStatusApproved {
		metrics.RecordTransition(string(models.TaskStatusApproved), string(models.TaskStatusCompleted))
	}
	logger.WithField("tx_hash", result.TxHash).Info("reward settled")

	notify.Send(ctx, s.notifier, s.log, notify.Notification{
		UserID:  txn.UserID,
		Type:    notify.RewardSent,
		Title:   "Reward sent",
		Message: fmt.Sprintf("You earned %s for %q", txn.Amount, task.Title),
		Data: map[string]interface{}{
			"task_id":        task.ID,
			"transaction_id": txn.ID,
			"tx_hash":        result.TxHash,
		},
	})

	return txn, nil
}

// settledElsewhere returns the row after another settler moved it out of
// PENDING while this one was waiting on the ledger.
func (s *SettlementService) settledElsewhere(id uint64) (*models.Transaction, error) {
	current, err := s.transactions.FindByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read transaction: %w", err)
	}
	if current.Status == models.TransactionFailed {
		return current, ErrTransferFailed
	}
	return current, nil
}

func (s *SettlementService) transfer(ctx context.Context, txn *models.Transaction) (*ledger.TransferResult, error) {
	if txn.ToAddress == "" {
		return nil, fmt.Errorf("%w: recipient has no wallet address", ledger.ErrTransferFailed)
	}
	amount, err := txn.AmountDecimal()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid amount %q", ledger.ErrTransferFailed, txn.Amount)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	result, err := s.ledger.Transfer(ctx, ledger.TransferRequest{
		Reference: txn.Reference,
		ToAddress: txn.ToAddress,
		Amount:    amount,
	})
	metrics.ObserveTransfer(time.Since(start))
	if err != nil {
		return nil, err
	}
	return result, nil
}
