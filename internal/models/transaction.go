package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTaskReward TransactionType = "TASK_REWARD"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionConfirmed TransactionStatus = "CONFIRMED"
	TransactionFailed    TransactionStatus = "FAILED"
	TransactionCancelled TransactionStatus = "CANCELLED"
)

// Reclaimable reports whether a settlement with this status may be attempted
// again on the same row. Only CONFIRMED and in-flight PENDING rows settle a
// submission for good.
func (s TransactionStatus) Reclaimable() bool {
	return s == TransactionFailed || s == TransactionCancelled
}

// Transaction records a reward payout. The unique index over
// (task_id, submission_id, type) is the settlement idempotency key.
type Transaction struct {
	ID            uint64            `gorm:"primarykey" json:"id"`
	UserID        uint64            `gorm:"not null;index" json:"user_id"`
	TaskID        *uint64           `gorm:"uniqueIndex:idx_transactions_settlement_key" json:"task_id"`
	SubmissionID  *uint64           `gorm:"uniqueIndex:idx_transactions_settlement_key" json:"submission_id"`
	Type          TransactionType   `gorm:"type:varchar(20);not null;uniqueIndex:idx_transactions_settlement_key" json:"type"`
	Amount        string            `gorm:"type:varchar(78);not null" json:"amount"`
	Status        TransactionStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Reference     string            `gorm:"type:varchar(36);uniqueIndex;not null" json:"reference"`
	ToAddress     string            `gorm:"type:varchar(128)" json:"to_address"`
	TxHash        string            `gorm:"type:varchar(128)" json:"tx_hash"`
	Attempts      int               `gorm:"not null;default:0" json:"attempts"`
	FailureReason string            `gorm:"type:text" json:"failure_reason,omitempty"`
	ConfirmedAt   *time.Time        `json:"confirmed_at"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// AmountDecimal parses the stored amount.
func (t Transaction) AmountDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(t.Amount)
}
