package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/yukikurage/chore-reward-api/internal/models"
	"gorm.io/gorm"
)

// GormTransactionRepository is a GORM implementation of TransactionRepository
type GormTransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new TransactionRepository
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &GormTransactionRepository{db: db}
}

// Create inserts a transaction. The settlement key's unique index rejects a
// second reward for the same task submission.
func (r *GormTransactionRepository) Create(txn *models.Transaction) error {
	if err := r.db.Create(txn).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrSettlementExists
		}
		return err
	}
	return nil
}

// FindByID finds a transaction by ID
func (r *GormTransactionRepository) FindByID(id uint64) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.First(&txn, id).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// FindBySettlementKey finds the reward transaction for a task submission
func (r *GormTransactionRepository) FindBySettlementKey(taskID, submissionID uint64) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.Where("task_id = ? AND submission_id = ? AND type = ?", taskID, submissionID, models.TransactionTaskReward).
		First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// ClaimForRetry moves a FAILED or CANCELLED transaction back to PENDING
// with the given destination. Only one caller can win the claim.
func (r *GormTransactionRepository) ClaimForRetry(id uint64, toAddress string) error {
	result := r.db.Model(&models.Transaction{}).
		Where("id = ? AND status IN ?", id, []models.TransactionStatus{models.TransactionFailed, models.TransactionCancelled}).
		Updates(map[string]interface{}{
			"status":         models.TransactionPending,
			"to_address":     toAddress,
			"failure_reason": "",
			"attempts":       gorm.Expr("attempts + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

// ClaimStale takes over a PENDING transaction last touched before
// staleBefore. The destination and reference are kept so the ledger can
// deduplicate a transfer the previous settler may already have made.
func (r *GormTransactionRepository) ClaimStale(id uint64, staleBefore, now time.Time) error {
	result := r.db.Model(&models.Transaction{}).
		Where("id = ? AND status = ? AND updated_at < ?", id, models.TransactionPending, staleBefore).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

// MarkConfirmed confirms a PENDING transaction and moves its task from one of
// from to COMPLETED in the same database transaction.
func (r *GormTransactionRepository) MarkConfirmed(id uint64, txHash string, at time.Time, from ...models.TaskStatus) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var txn models.Transaction
		if err := tx.First(&txn, id).Error; err != nil {
			return err
		}

		result := tx.Model(&models.Transaction{}).
			Where("id = ? AND status = ?", id, models.TransactionPending).
			Updates(map[string]interface{}{
				"status":       models.TransactionConfirmed,
				"tx_hash":      txHash,
				"confirmed_at": at,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrStaleState
		}

		if txn.TaskID == nil || len(from) == 0 {
			return nil
		}
		if err := tx.Model(&models.Task{}).
			Where("id = ? AND status IN ?", *txn.TaskID, from).
			Update("status", models.TaskStatusCompleted).Error; err != nil {
			return fmt.Errorf("complete task: %w", err)
		}
		return nil
	})
}

// MarkFailed records a failed attempt on a PENDING transaction
func (r *GormTransactionRepository) MarkFailed(id uint64, reason string) error {
	result := r.db.Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, models.TransactionPending).
		Updates(map[string]interface{}{
			"status":         models.TransactionFailed,
			"failure_reason": reason,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

// ListByTask lists a task's transactions, newest first
func (r *GormTransactionRepository) ListByTask(taskID uint64) ([]models.Transaction, error) {
	var txns []models.Transaction
	if err := r.db.Where("task_id = ?", taskID).Order("id DESC").Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// ListRetryable lists reward transactions a retry pass should pick up,
// oldest first: FAILED ones and PENDING ones last touched before staleBefore.
func (r *GormTransactionRepository) ListRetryable(limit int, staleBefore time.Time) ([]models.Transaction, error) {
	var txns []models.Transaction
	if err := r.db.
		Where("type = ?", models.TransactionTaskReward).
		Where(r.db.Where("status = ?", models.TransactionFailed).
			Or("status = ? AND updated_at < ?", models.TransactionPending, staleBefore)).
		Order("updated_at ASC").
		Limit(limit).
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}
