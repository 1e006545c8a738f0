package repository

import (
	"errors"
	"time"

	"github.com/yukikurage/chore-reward-api/internal/models"
)

var (
	// ErrStaleState is returned when a conditional update matched no rows
	// because another writer changed the row first.
	ErrStaleState = errors.New("repository: row changed concurrently")
	// ErrInviteUnavailable is returned when an invite is inactive, expired or exhausted.
	ErrInviteUnavailable = errors.New("repository: invite unavailable")
	// ErrLiveMembershipExists is returned when a user already holds a PENDING or ACTIVE membership.
	ErrLiveMembershipExists = errors.New("repository: live membership exists")
	// ErrInviteCodeTaken is returned when a generated invite code collides with an existing one.
	ErrInviteCodeTaken = errors.New("repository: invite code taken")
	// ErrSettlementExists is returned when a reward transaction already exists for the settlement key.
	ErrSettlementExists = errors.New("repository: settlement already recorded")
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	// Create creates a new user
	Create(user *models.User) error

	// FindByID finds a user by ID
	FindByID(id uint64) (*models.User, error)

	// FindByLineUserID finds a user by the identity provider's user ID
	FindByLineUserID(lineUserID string) (*models.User, error)

	// UpdateProfile refreshes the display name
	UpdateProfile(id uint64, displayName string) error

	// UpdateWallet sets the reward destination address
	UpdateWallet(id uint64, address string) error

	// SetActive activates or deactivates a user
	SetActive(id uint64, active bool) error
}

// FamilyRepository defines the interface for family, membership and invite data access
type FamilyRepository interface {
	// CreateWithFounder creates a family, the founder's membership and the
	// first invite within a single transaction.
	CreateWithFounder(family *models.Family, founder *models.FamilyMembership, invite *models.InviteCode) error

	// FindByID finds a family by ID
	FindByID(id uint64) (*models.Family, error)

	// FindLiveMembership finds the user's PENDING or ACTIVE membership
	FindLiveMembership(userID uint64) (*models.FamilyMembership, error)

	// FindMembership finds the newest membership of a user in a family
	FindMembership(familyID, userID uint64) (*models.FamilyMembership, error)

	// ListMembers lists memberships of a family, optionally filtered by status
	ListMembers(familyID uint64, statuses ...models.MembershipStatus) ([]models.FamilyMembership, error)

	// TransitionMembership moves a membership between statuses atomically and
	// keeps the user's family reference in step.
	TransitionMembership(membershipID uint64, from, to models.MembershipStatus, at time.Time) error

	// FindActiveInvite finds the family's active invite
	FindActiveInvite(familyID uint64) (*models.InviteCode, error)

	// RotateInvite deactivates the family's active invite and stores invite
	// as the new active one.
	RotateInvite(invite *models.InviteCode) error

	// RedeemInvite consumes one use of the invite and inserts member as a
	// PENDING membership of its family, atomically.
	RedeemInvite(code string, member *models.FamilyMembership, now time.Time) (*models.InviteCode, error)
}

// TaskRepository defines the interface for task, submission and approval data access
type TaskRepository interface {
	// Create creates a new task
	Create(task *models.Task) error

	// FindByID finds a task by ID with optional preloading
	FindByID(id uint64, preload ...string) (*models.Task, error)

	// List retrieves tasks with filtering and pagination
	List(filter TaskFilter) ([]models.Task, int64, error)

	// UpdateDetails saves the editable fields of a task whose status is still task.Status
	UpdateDetails(task *models.Task) error

	// Assign sets the assignee and moves the task from one of from to ASSIGNED
	Assign(taskID, childID uint64, from ...models.TaskStatus) error

	// TransitionStatus moves a task from one of from to to
	TransitionStatus(taskID uint64, to models.TaskStatus, from ...models.TaskStatus) error

	// Delete removes a task that has no submissions and is in one of statuses
	Delete(taskID uint64, statuses ...models.TaskStatus) error

	// CountSubmissions counts submissions recorded against a task
	CountSubmissions(taskID uint64) (int64, error)

	// CreateSubmission inserts a submission and moves the task to SUBMITTED
	CreateSubmission(submission *models.TaskSubmission, from ...models.TaskStatus) error

	// FindSubmission finds a submission by ID
	FindSubmission(id uint64) (*models.TaskSubmission, error)

	// LatestSubmission finds the task's most recent submission
	LatestSubmission(taskID uint64) (*models.TaskSubmission, error)

	// ListSubmissions lists a task's submissions with their approvals, oldest first
	ListSubmissions(taskID uint64) ([]models.TaskSubmission, error)

	// LatestApproval finds the authoritative decision for a submission
	LatestApproval(submissionID uint64) (*models.TaskApproval, error)

	// RecordDecision inserts approval and moves its task from one of from to
	// to, provided the submission is still the task's latest.
	RecordDecision(approval *models.TaskApproval, to models.TaskStatus, from ...models.TaskStatus) error

	// ExpireOverdue moves tasks in one of statuses with a due date before now to EXPIRED
	ExpireOverdue(now time.Time, statuses ...models.TaskStatus) (int64, error)
}

// TransactionRepository defines the interface for reward transaction data access
type TransactionRepository interface {
	// Create inserts a transaction; ErrSettlementExists on a duplicate settlement key
	Create(txn *models.Transaction) error

	// FindByID finds a transaction by ID
	FindByID(id uint64) (*models.Transaction, error)

	// FindBySettlementKey finds the reward transaction for a task submission
	FindBySettlementKey(taskID, submissionID uint64) (*models.Transaction, error)

	// ClaimForRetry moves a FAILED or CANCELLED transaction back to PENDING for another attempt
	ClaimForRetry(id uint64, toAddress string) error

	// ClaimStale takes over a PENDING transaction last touched before staleBefore
	ClaimStale(id uint64, staleBefore, now time.Time) error

	// MarkConfirmed confirms a PENDING transaction and moves its task from one of from to COMPLETED
	MarkConfirmed(id uint64, txHash string, at time.Time, from ...models.TaskStatus) error

	// MarkFailed records a failed attempt on a PENDING transaction
	MarkFailed(id uint64, reason string) error

	// ListByTask lists a task's transactions, newest first
	ListByTask(taskID uint64) ([]models.Transaction, error)

	// ListRetryable lists FAILED and stalled PENDING reward transactions, oldest first
	ListRetryable(limit int, staleBefore time.Time) ([]models.Transaction, error)
}

// TaskFilter holds filtering options for listing tasks
type TaskFilter struct {
	FamilyID       uint64
	Status         *models.TaskStatus
	AssignedUserID *uint64
	Page           int
	PageSize       int
}
