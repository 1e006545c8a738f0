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
	"github.com/yukikurage/chore-reward-api/internal/utils"
	"gorm.io/gorm"
)

// InviteDefaults configures invites created without explicit limits.
type InviteDefaults struct {
	MaxUses int
	TTL     time.Duration
}

// FamilyService provides business logic for families, memberships and invites.
type FamilyService struct {
	families repository.FamilyRepository
	users    repository.UserRepository
	notifier notify.Notifier
	log      logrus.FieldLogger
	invites  InviteDefaults
	now      func() time.Time
}

// NewFamilyService creates a new FamilyService.
func NewFamilyService(families repository.FamilyRepository, users repository.UserRepository, notifier notify.Notifier, log logrus.FieldLogger, invites InviteDefaults) *FamilyService {
	if invites.MaxUses <= 0 {
		invites.MaxUses = constants.DefaultInviteMaxUses
	}
	if invites.TTL <= 0 {
		invites.TTL = constants.DefaultInviteTTL
	}
	return &FamilyService{
		families: families,
		users:    users,
		notifier: notifier,
		log:      log,
		invites:  invites,
		now:      time.Now,
	}
}

// FamilyOverview is a family as seen by one of its members. Members and the
// invite are only filled in for viewers entitled to see them.
type FamilyOverview struct {
	Family     *models.Family
	Membership *models.FamilyMembership
	Members    []models.FamilyMembership
	Invite     *models.InviteCode
}

// CreateFamily creates a family founded by an active parent with no live
// membership. The founder becomes an ACTIVE admin and the family gets its
// first invite.
func (s *FamilyService) CreateFamily(ctx context.Context, founderID uint64, name string) (*FamilyOverview, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalidInput("family name cannot be empty")
	}
	if len(name) > constants.MaxTitleLength {
		return nil, invalidInput("family name is too long")
	}

	founder, err := s.findUser(founderID)
	if err != nil {
		return nil, err
	}
	if founder.Role != models.RoleParent {
		return nil, ErrParentRequired
	}
	if err := s.ensureNoLiveMembership(founderID); err != nil {
		return nil, err
	}

	now := s.now()
	for attempt := 0; attempt < constants.InviteCodeMaxAttempts; attempt++ {
		code, err := utils.GenerateInviteCode()
		if err != nil {
			return nil, ErrInviteCodeGenerationFailed
		}

		family := &models.Family{
			Name:       name,
			InviteCode: code,
			CreatorID:  founderID,
		}
		activeUserID := founderID
		member := &models.FamilyMembership{
			UserID:       founderID,
			ActiveUserID: &activeUserID,
			Role:         models.RoleParent,
			Status:       models.MembershipActive,
			IsAdmin:      true,
			JoinedAt:     &now,
		}
		invite := &models.InviteCode{
			Code:        code,
			CreatedByID: founderID,
			MaxUses:     s.invites.MaxUses,
			IsActive:    true,
			ExpiresAt:   now.Add(s.invites.TTL),
		}

		err = s.families.CreateWithFounder(family, member, invite)
		switch {
		case err == nil:
			s.log.WithFields(logrus.Fields{
				"family_id": family.ID,
				"user_id":   founderID,
			}).Info("family created")
			return &FamilyOverview{
				Family:     family,
				Membership: member,
				Members:    []models.FamilyMembership{*member},
				Invite:     invite,
			}, nil
		case errors.Is(err, repository.ErrInviteCodeTaken):
			continue
		case errors.Is(err, repository.ErrLiveMembershipExists):
			return nil, ErrAlreadyInFamily
		default:
			return nil, fmt.Errorf("failed to create family: %w", err)
		}
	}

	return nil, ErrInviteCodeGenerationFailed
}

// GetFamily returns the caller's family. A PENDING member sees only the
// family itself; active members see the roster; active parents also see
// the current invite.
func (s *FamilyService) GetFamily(ctx context.Context, userID uint64) (*FamilyOverview, error) {
	member, err := s.families.FindLiveMembership(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFamilyNotFound
		}
		return nil, fmt.Errorf("failed to find membership: %w", err)
	}

	family, err := s.families.FindByID(member.FamilyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFamilyNotFound
		}
		return nil, fmt.Errorf("failed to find family: %w", err)
	}

	overview := &FamilyOverview{Family: family, Membership: member}
	if member.Status != models.MembershipActive {
		return overview, nil
	}

	overview.Members, err = s.families.ListMembers(family.ID, models.MembershipPending, models.MembershipActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list family members: %w", err)
	}

	if member.IsActiveParent() {
		invite, err := s.families.FindActiveInvite(family.ID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to find invite: %w", err)
		}
		overview.Invite = invite
	}

	return overview, nil
}

// CreateInviteInput holds the limits for a new invite. Zero values use the
// configured defaults.
type CreateInviteInput struct {
	MaxUses int
	TTL     time.Duration
}

// CreateInvite replaces the family's active invite with a new one.
func (s *FamilyService) CreateInvite(ctx context.Context, parentID uint64, input CreateInviteInput) (*models.InviteCode, error) {
	member, err := activeParent(s.families, parentID)
	if err != nil {
		return nil, err
	}

	maxUses := input.MaxUses
	if maxUses == 0 {
		maxUses = s.invites.MaxUses
	}
	if maxUses < 1 || maxUses > constants.MaxInviteUses {
		return nil, invalidInput(fmt.Sprintf("max uses must be between 1 and %d", constants.MaxInviteUses))
	}
	ttl := input.TTL
	if ttl == 0 {
		ttl = s.invites.TTL
	}
	if ttl < time.Minute || ttl > constants.MaxInviteTTL {
		return nil, invalidInput("invite lifetime must be between one minute and 30 days")
	}

	now := s.now()
	for attempt := 0; attempt < constants.InviteCodeMaxAttempts; attempt++ {
		code, err := utils.GenerateInviteCode()
		if err != nil {
			return nil, ErrInviteCodeGenerationFailed
		}

		invite := &models.InviteCode{
			FamilyID:    member.FamilyID,
			Code:        code,
			CreatedByID: parentID,
			MaxUses:     maxUses,
			ExpiresAt:   now.Add(ttl),
		}
		err = s.families.RotateInvite(invite)
		if err == nil {
			s.log.WithFields(logrus.Fields{
				"family_id": member.FamilyID,
				"user_id":   parentID,
			}).Info("invite rotated")
			return invite, nil
		}
		if !errors.Is(err, repository.ErrInviteCodeTaken) {
			return nil, fmt.Errorf("failed to create invite: %w", err)
		}
	}

	return nil, ErrInviteCodeGenerationFailed
}

// RedeemInvite records a PENDING membership for userID in the family that
// owns code and asks the family's parents to approve it.
func (s *FamilyService) RedeemInvite(ctx context.Context, userID uint64, code string) (*models.FamilyMembership, error) {
	code = utils.NormalizeInviteCode(code)
	if code == "" {
		metrics.RecordRedemption("invalid")
		return nil, ErrInvalidOrExpiredInvite
	}

	user, err := s.findUser(userID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNoLiveMembership(userID); err != nil {
		metrics.RecordRedemption("already_member")
		return nil, err
	}

	member := &models.FamilyMembership{
		UserID: userID,
		Role:   user.Role,
	}
	invite, err := s.families.RedeemInvite(code, member, s.now())
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrInviteUnavailable):
		metrics.RecordRedemption("invalid")
		return nil, ErrInvalidOrExpiredInvite
	case errors.Is(err, repository.ErrLiveMembershipExists):
		metrics.RecordRedemption("already_member")
		return nil, ErrAlreadyInFamily
	default:
		return nil, fmt.Errorf("failed to redeem invite: %w", err)
	}
	metrics.RecordRedemption("accepted")

	s.log.WithFields(logrus.Fields{
		"family_id": invite.FamilyID,
		"user_id":   userID,
	}).Info("invite redeemed")

	parents, err := s.families.ListMembers(invite.FamilyID, models.MembershipActive)
	if err != nil {
		s.log.WithError(err).WithField("family_id", invite.FamilyID).Warn("could not list parents to notify")
		return member, nil
	}
	for _, p := range parents {
		if p.Role != models.RoleParent {
			continue
		}
		notify.Send(ctx, s.notifier, s.log, notify.Notification{
			UserID:  p.UserID,
			Type:    notify.MembershipRequested,
			Title:   "New join request",
			Message: fmt.Sprintf("%s wants to join your family", user.DisplayName),
			Data: map[string]interface{}{
				"family_id": invite.FamilyID,
				"user_id":   userID,
			},
		})
	}

	return member, nil
}

// ApproveMembership accepts or rejects a PENDING member of the approver's family.
func (s *FamilyService) ApproveMembership(ctx context.Context, approverID, memberUserID uint64, approved bool) (*models.FamilyMembership, error) {
	approver, err := activeParent(s.families, approverID)
	if err != nil {
		return nil, err
	}

	target, err := s.families.FindMembership(approver.FamilyID, memberUserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to find member: %w", err)
	}
	if target.Status != models.MembershipPending {
		return nil, ErrInvalidTransition
	}

	to := models.MembershipRemoved
	kind := notify.MembershipRejected
	message := "Your request to join the family was declined"
	if approved {
		to = models.MembershipActive
		kind = notify.MembershipApproved
		message = "You are now a member of the family"
	}

	now := s.now()
	if err := s.families.TransitionMembership(target.ID, models.MembershipPending, to, now); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("failed to update membership: %w", err)
	}

	target.Status = to
	if approved {
		target.JoinedAt = &now
	} else {
		target.ActiveUserID = nil
	}

	s.log.WithFields(logrus.Fields{
		"family_id": approver.FamilyID,
		"user_id":   memberUserID,
		"status":    to,
	}).Info("membership decided")

	notify.Send(ctx, s.notifier, s.log, notify.Notification{
		UserID:  memberUserID,
		Type:    kind,
		Title:   "Family membership",
		Message: message,
		Data:    map[string]interface{}{"family_id": approver.FamilyID},
	})

	return target, nil
}

// RemoveMember ends an ACTIVE member's membership. Only the family admin can
// remove members, and never themselves.
func (s *FamilyService) RemoveMember(ctx context.Context, actorID, memberUserID uint64) error {
	actor, err := activeParent(s.families, actorID)
	if err != nil {
		return err
	}
	if !actor.IsAdmin {
		return ErrForbidden
	}
	if actorID == memberUserID {
		return ErrCannotRemoveYourself
	}

	target, err := s.families.FindMembership(actor.FamilyID, memberUserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMemberNotFound
		}
		return fmt.Errorf("failed to find member: %w", err)
	}
	if target.Status != models.MembershipActive {
		return ErrInvalidTransition
	}

	if err := s.families.TransitionMembership(target.ID, models.MembershipActive, models.MembershipRemoved, s.now()); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return ErrInvalidTransition
		}
		return fmt.Errorf("failed to remove member: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"family_id": actor.FamilyID,
		"user_id":   memberUserID,
	}).Info("member removed")
	return nil
}

func (s *FamilyService) findUser(userID uint64) (*models.User, error) {
	user, err := s.users.FindByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrForbidden
	}
	return user, nil
}

func (s *FamilyService) ensureNoLiveMembership(userID uint64) error {
	_, err := s.families.FindLiveMembership(userID)
	if err == nil {
		return ErrAlreadyInFamily
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	return nil
}
