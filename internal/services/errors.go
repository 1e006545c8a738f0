package services

import (
	apierrors "github.com/yukikurage/chore-reward-api/internal/errors"
)

func domainErr(kind apierrors.Kind, code, message string) *apierrors.DomainError {
	return apierrors.NewDomainError(kind, code, message)
}

// invalidInput returns an InvalidInput error carrying message. All such
// errors compare equal to ErrInvalidInput.
func invalidInput(message string) error {
	return domainErr(apierrors.KindInvalidInput, apierrors.ErrCodeInvalidInput, message)
}

var (
	ErrInvalidInput = invalidInput("invalid input")

	ErrUserNotFound       = domainErr(apierrors.KindNotFound, "USER_NOT_FOUND", "user not found")
	ErrFamilyNotFound     = domainErr(apierrors.KindNotFound, "FAMILY_NOT_FOUND", "family not found")
	ErrMemberNotFound     = domainErr(apierrors.KindNotFound, "MEMBER_NOT_FOUND", "family member not found")
	ErrTaskNotFound       = domainErr(apierrors.KindNotFound, "TASK_NOT_FOUND", "task not found")
	ErrSubmissionNotFound = domainErr(apierrors.KindNotFound, "SUBMISSION_NOT_FOUND", "submission not found")

	ErrForbidden            = domainErr(apierrors.KindForbidden, apierrors.ErrCodeForbidden, "access denied")
	ErrParentRequired       = domainErr(apierrors.KindForbidden, "PARENT_REQUIRED", "only an active parent of the family can do this")
	ErrNotFamilyMember      = domainErr(apierrors.KindForbidden, "NOT_FAMILY_MEMBER", "you are not an active member of a family")
	ErrForbiddenTransition  = domainErr(apierrors.KindForbidden, "FORBIDDEN_TRANSITION", "this status change is not allowed")
	ErrCannotRemoveYourself = domainErr(apierrors.KindForbidden, "CANNOT_REMOVE_YOURSELF", "cannot remove yourself from the family")

	ErrInvalidAssignee = domainErr(apierrors.KindInvalidInput, "INVALID_ASSIGNEE", "assignee must be an active child of the family")

	ErrInvalidTransition    = domainErr(apierrors.KindInvalidTransition, apierrors.ErrCodeInvalidTransition, "task is not in a state that allows this")
	ErrTaskHasSubmissions   = domainErr(apierrors.KindInvalidTransition, "TASK_HAS_SUBMISSIONS", "task has submissions and cannot be deleted")
	ErrRewardLocked         = domainErr(apierrors.KindInvalidTransition, "REWARD_LOCKED", "reward amount cannot change after a submission")
	ErrTaskAlreadyCompleted = domainErr(apierrors.KindInvalidTransition, "TASK_ALREADY_COMPLETED", "task is already approved or completed")
	ErrStaleSubmission      = domainErr(apierrors.KindInvalidTransition, "STALE_SUBMISSION", "a newer submission supersedes this one")
	ErrNotApproved          = domainErr(apierrors.KindInvalidTransition, "NOT_APPROVED", "submission has no approved decision")

	ErrAlreadyInFamily        = domainErr(apierrors.KindAlreadyExists, "ALREADY_IN_FAMILY", "user already belongs to or is pending in a family")
	ErrInvalidOrExpiredInvite = domainErr(apierrors.KindExpired, "INVALID_OR_EXPIRED_INVITE", "invite code is invalid, expired or used up")

	ErrTransferFailed     = domainErr(apierrors.KindExternalFailure, "TRANSFER_FAILED", "reward transfer failed; it can be retried")
	ErrInvariantViolation = domainErr(apierrors.KindInvariantViolation, apierrors.ErrCodeInvariantViolation, "conflicting records detected")

	ErrInviteCodeGenerationFailed = domainErr(apierrors.KindInternal, apierrors.ErrCodeInternalError, "failed to generate invite code")
	ErrSuggestionsUnavailable     = domainErr(apierrors.KindUnavailable, apierrors.ErrCodeServiceUnavailable, "chore suggestions are not configured")
)
