package dto

import (
	"time"

	"github.com/yukikurage/chore-reward-api/internal/models"
	"github.com/yukikurage/chore-reward-api/internal/services"
	"github.com/yukikurage/chore-reward-api/internal/utils"
)

// UserDTO represents a user in API responses
type UserDTO struct {
	ID          uint64          `json:"id"`
	DisplayName string          `json:"display_name"`
	Role        models.UserRole `json:"role"`
}

// ProfileDTO is the authenticated user as returned by /api/me
type ProfileDTO struct {
	UserDTO
	WalletAddress string         `json:"wallet_address"`
	FamilyID      *uint64        `json:"family_id"`
	Membership    *MembershipDTO `json:"membership,omitempty"`
}

// TaskDTO represents a task in API responses
type TaskDTO struct {
	ID           uint64                `json:"id"`
	Title        string                `json:"title"`
	Description  string                `json:"description"`
	Category     models.TaskCategory   `json:"category"`
	Difficulty   models.TaskDifficulty `json:"difficulty"`
	RewardAmount int64                 `json:"reward_amount"`
	Status       models.TaskStatus     `json:"status"`
	Priority     int                   `json:"priority"`
	DueDate      *time.Time            `json:"due_date"`
	FamilyID     uint64                `json:"family_id"`
	CreatorID    uint64                `json:"creator_id"`
	AssignedToID *uint64               `json:"assigned_to_id"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
	Creator      *UserDTO              `json:"creator,omitempty"`
	AssignedTo   *UserDTO              `json:"assigned_to,omitempty"`
}

// TaskListResponse represents a paginated list of tasks
type TaskListResponse struct {
	Tasks      []TaskDTO `json:"tasks"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	TotalCount int64     `json:"total_count"`
	TotalPages int       `json:"total_pages"`
}

// ApprovalDTO represents a decision on a submission
type ApprovalDTO struct {
	ID         uint64                  `json:"id"`
	ApproverID uint64                  `json:"approver_id"`
	Decision   models.ApprovalDecision `json:"decision"`
	Rating     *int                    `json:"rating"`
	Comments   string                  `json:"comments"`
	DecidedAt  time.Time               `json:"decided_at"`
}

// SubmissionDTO represents a submission with its decisions
type SubmissionDTO struct {
	ID          uint64        `json:"id"`
	TaskID      uint64        `json:"task_id"`
	SubmitterID uint64        `json:"submitter_id"`
	Proofs      []string      `json:"proofs"`
	Notes       string        `json:"notes"`
	SubmittedAt time.Time     `json:"submitted_at"`
	Approvals   []ApprovalDTO `json:"approvals"`
}

// TransactionDTO represents a reward payout
type TransactionDTO struct {
	ID            uint64                   `json:"id"`
	UserID        uint64                   `json:"user_id"`
	TaskID        *uint64                  `json:"task_id"`
	SubmissionID  *uint64                  `json:"submission_id"`
	Type          models.TransactionType   `json:"type"`
	Amount        string                   `json:"amount"`
	Status        models.TransactionStatus `json:"status"`
	ToAddress     string                   `json:"to_address"`
	TxHash        string                   `json:"tx_hash,omitempty"`
	Attempts      int                      `json:"attempts"`
	FailureReason string                   `json:"failure_reason,omitempty"`
	ConfirmedAt   *time.Time               `json:"confirmed_at"`
	CreatedAt     time.Time                `json:"created_at"`
}

// TaskDetailDTO is a task with its full history
type TaskDetailDTO struct {
	TaskDTO
	Submissions  []SubmissionDTO  `json:"submissions"`
	Transactions []TransactionDTO `json:"transactions"`
}

// SettlementDTO reports what happened to the reward after an approval
type SettlementDTO struct {
	Status      models.TransactionStatus `json:"status"`
	Transaction *TransactionDTO          `json:"transaction,omitempty"`
	Reason      string                   `json:"reason,omitempty"`
	Retryable   bool                     `json:"retryable"`
}

// DecisionDTO is the response to a decision
type DecisionDTO struct {
	Approval   ApprovalDTO    `json:"approval"`
	Task       TaskDTO        `json:"task"`
	Settlement *SettlementDTO `json:"settlement,omitempty"`
}

// Conversion functions

// ToUserDTO converts a User model to UserDTO
func ToUserDTO(user models.User) UserDTO {
	return UserDTO{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Role:        user.Role,
	}
}

// ToProfileDTO converts a profile to ProfileDTO
func ToProfileDTO(profile services.Profile) ProfileDTO {
	dto := ProfileDTO{
		UserDTO:       ToUserDTO(*profile.User),
		WalletAddress: profile.User.WalletAddress,
		FamilyID:      profile.User.FamilyID,
	}
	if profile.Membership != nil {
		member := ToMembershipDTO(*profile.Membership)
		member.User = dto.UserDTO
		dto.Membership = &member
	}
	return dto
}

// ToTaskDTO converts a Task model to TaskDTO
func ToTaskDTO(task models.Task) TaskDTO {
	dto := TaskDTO{
		ID:           task.ID,
		Title:        task.Title,
		Description:  task.Description,
		Category:     task.Category,
		Difficulty:   task.Difficulty,
		RewardAmount: task.RewardAmount,
		Status:       task.Status,
		Priority:     task.Priority,
		DueDate:      task.DueDate,
		FamilyID:     task.FamilyID,
		CreatorID:    task.CreatorID,
		AssignedToID: task.AssignedToID,
		CreatedAt:    task.CreatedAt,
		UpdatedAt:    task.UpdatedAt,
	}

	// Include creator if preloaded
	if task.Creator.ID != 0 {
		creator := ToUserDTO(task.Creator)
		dto.Creator = &creator
	}

	// Include assignee if preloaded
	if task.AssignedTo != nil && task.AssignedTo.ID != 0 {
		assignee := ToUserDTO(*task.AssignedTo)
		dto.AssignedTo = &assignee
	}

	return dto
}

// ToTaskListResponse converts a slice of tasks to TaskListResponse
func ToTaskListResponse(tasks []models.Task, page, pageSize int, totalCount int64) TaskListResponse {
	items := make([]TaskDTO, len(tasks))
	for i, task := range tasks {
		items[i] = ToTaskDTO(task)
	}

	return TaskListResponse{
		Tasks:      items,
		Page:       page,
		PageSize:   pageSize,
		TotalCount: totalCount,
		TotalPages: utils.NewPaginationParams(page, pageSize).TotalPages(totalCount),
	}
}

// ToApprovalDTO converts a TaskApproval model to ApprovalDTO
func ToApprovalDTO(approval models.TaskApproval) ApprovalDTO {
	return ApprovalDTO{
		ID:         approval.ID,
		ApproverID: approval.ApproverID,
		Decision:   approval.Decision,
		Rating:     approval.Rating,
		Comments:   approval.Comments,
		DecidedAt:  approval.DecidedAt,
	}
}

// ToSubmissionDTO converts a TaskSubmission model to SubmissionDTO
func ToSubmissionDTO(sub models.TaskSubmission) SubmissionDTO {
	approvals := make([]ApprovalDTO, len(sub.Approvals))
	for i, approval := range sub.Approvals {
		approvals[i] = ToApprovalDTO(approval)
	}
	return SubmissionDTO{
		ID:          sub.ID,
		TaskID:      sub.TaskID,
		SubmitterID: sub.SubmitterID,
		Proofs:      sub.Proofs,
		Notes:       sub.Notes,
		SubmittedAt: sub.SubmittedAt,
		Approvals:   approvals,
	}
}

// ToTransactionDTO converts a Transaction model to TransactionDTO
func ToTransactionDTO(txn models.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:            txn.ID,
		UserID:        txn.UserID,
		TaskID:        txn.TaskID,
		SubmissionID:  txn.SubmissionID,
		Type:          txn.Type,
		Amount:        txn.Amount,
		Status:        txn.Status,
		ToAddress:     txn.ToAddress,
		TxHash:        txn.TxHash,
		Attempts:      txn.Attempts,
		FailureReason: txn.FailureReason,
		ConfirmedAt:   txn.ConfirmedAt,
		CreatedAt:     txn.CreatedAt,
	}
}

// ToTaskDetailDTO converts a task with its history to TaskDetailDTO
func ToTaskDetailDTO(detail services.TaskDetail) TaskDetailDTO {
	dto := TaskDetailDTO{
		TaskDTO:      ToTaskDTO(*detail.Task),
		Submissions:  make([]SubmissionDTO, len(detail.Submissions)),
		Transactions: make([]TransactionDTO, len(detail.Transactions)),
	}
	for i, sub := range detail.Submissions {
		dto.Submissions[i] = ToSubmissionDTO(sub)
	}
	for i, txn := range detail.Transactions {
		dto.Transactions[i] = ToTransactionDTO(txn)
	}
	return dto
}

// ToSettlementDTO converts a settlement outcome to SettlementDTO
func ToSettlementDTO(outcome services.SettlementOutcome) SettlementDTO {
	dto := SettlementDTO{
		Status:    outcome.Status,
		Reason:    outcome.Reason,
		Retryable: outcome.Retryable,
	}
	if outcome.Transaction != nil {
		txn := ToTransactionDTO(*outcome.Transaction)
		dto.Transaction = &txn
	}
	return dto
}

// ToDecisionDTO converts a decision result to DecisionDTO
func ToDecisionDTO(result services.DecisionResult) DecisionDTO {
	dto := DecisionDTO{
		Approval: ToApprovalDTO(*result.Approval),
		Task:     ToTaskDTO(*result.Task),
	}
	if result.Settlement != nil {
		settlement := ToSettlementDTO(*result.Settlement)
		dto.Settlement = &settlement
	}
	return dto
}
