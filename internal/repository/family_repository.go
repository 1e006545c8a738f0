package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/yukikurage/chore-reward-api/internal/models"
	"gorm.io/gorm"
)

// GormFamilyRepository is a GORM implementation of FamilyRepository
type GormFamilyRepository struct {
	db *gorm.DB
}

// NewFamilyRepository creates a new FamilyRepository
func NewFamilyRepository(db *gorm.DB) FamilyRepository {
	return &GormFamilyRepository{db: db}
}

// CreateWithFounder creates a family, its founder membership and first invite atomically.
func (r *GormFamilyRepository) CreateWithFounder(family *models.Family, founder *models.FamilyMembership, invite *models.InviteCode) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(family).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrInviteCodeTaken
			}
			return fmt.Errorf("create family: %w", err)
		}

		founder.FamilyID = family.ID
		if err := tx.Create(founder).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrLiveMembershipExists
			}
			return fmt.Errorf("create founder membership: %w", err)
		}

		invite.FamilyID = family.ID
		familyID := family.ID
		invite.ActiveFamilyID = &familyID
		if err := tx.Create(invite).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrInviteCodeTaken
			}
			return fmt.Errorf("create invite: %w", err)
		}

		return tx.Model(&models.User{}).
			Where("id = ?", founder.UserID).
			Update("family_id", family.ID).Error
	})
}

// FindByID finds a family by ID
func (r *GormFamilyRepository) FindByID(id uint64) (*models.Family, error) {
	var family models.Family
	if err := r.db.First(&family, id).Error; err != nil {
		return nil, err
	}
	return &family, nil
}

// FindLiveMembership finds the user's PENDING or ACTIVE membership
func (r *GormFamilyRepository) FindLiveMembership(userID uint64) (*models.FamilyMembership, error) {
	var member models.FamilyMembership
	if err := r.db.Where("active_user_id = ?", userID).First(&member).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

// FindMembership finds the newest membership of a user in a family
func (r *GormFamilyRepository) FindMembership(familyID, userID uint64) (*models.FamilyMembership, error) {
	var member models.FamilyMembership
	if err := r.db.Where("family_id = ? AND user_id = ?", familyID, userID).
		Order("id DESC").
		First(&member).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

// ListMembers lists memberships of a family, optionally filtered by status
func (r *GormFamilyRepository) ListMembers(familyID uint64, statuses ...models.MembershipStatus) ([]models.FamilyMembership, error) {
	var members []models.FamilyMembership
	query := r.db.Preload("User").Where("family_id = ?", familyID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	if err := query.Order("id ASC").Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

// TransitionMembership moves a membership between statuses and keeps the
// user's family reference and live-membership key consistent.
func (r *GormFamilyRepository) TransitionMembership(membershipID uint64, from, to models.MembershipStatus, at time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var member models.FamilyMembership
		if err := tx.First(&member, membershipID).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{"status": to}
		switch to {
		case models.MembershipActive:
			updates["joined_at"] = at
		case models.MembershipRemoved:
			updates["active_user_id"] = nil
		}

		result := tx.Model(&models.FamilyMembership{}).
			Where("id = ? AND status = ?", membershipID, from).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrStaleState
		}

		userUpdate := tx.Model(&models.User{}).Where("id = ?", member.UserID)
		switch to {
		case models.MembershipActive:
			return userUpdate.Update("family_id", member.FamilyID).Error
		case models.MembershipRemoved:
			return userUpdate.Where("family_id = ?", member.FamilyID).Update("family_id", nil).Error
		}
		return nil
	})
}

// FindActiveInvite finds the family's active invite
func (r *GormFamilyRepository) FindActiveInvite(familyID uint64) (*models.InviteCode, error) {
	var invite models.InviteCode
	if err := r.db.Where("active_family_id = ?", familyID).First(&invite).Error; err != nil {
		return nil, err
	}
	return &invite, nil
}

// RotateInvite deactivates the current invite and activates the new one.
func (r *GormFamilyRepository) RotateInvite(invite *models.InviteCode) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.InviteCode{}).
			Where("active_family_id = ?", invite.FamilyID).
			Updates(map[string]interface{}{"is_active": false, "active_family_id": nil}).Error; err != nil {
			return fmt.Errorf("deactivate invite: %w", err)
		}

		familyID := invite.FamilyID
		invite.ActiveFamilyID = &familyID
		invite.IsActive = true
		if err := tx.Create(invite).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrInviteCodeTaken
			}
			return fmt.Errorf("create invite: %w", err)
		}

		return tx.Model(&models.Family{}).
			Where("id = ?", invite.FamilyID).
			Update("invite_code", invite.Code).Error
	})
}

// RedeemInvite consumes one use of an invite and records a PENDING
// membership. The use counter is bumped with a conditional update so two
// redeemers racing for the last slot cannot both succeed.
func (r *GormFamilyRepository) RedeemInvite(code string, member *models.FamilyMembership, now time.Time) (*models.InviteCode, error) {
	var invite models.InviteCode
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("code = ?", code).First(&invite).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInviteUnavailable
			}
			return err
		}

		result := tx.Model(&models.InviteCode{}).
			Where("id = ? AND is_active = ? AND used_count < max_uses AND expires_at > ?", invite.ID, true, now).
			Update("used_count", gorm.Expr("used_count + 1"))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrInviteUnavailable
		}

		member.FamilyID = invite.FamilyID
		member.Status = models.MembershipPending
		if member.InvitedByID == nil {
			inviter := invite.CreatedByID
			member.InvitedByID = &inviter
		}
		userID := member.UserID
		member.ActiveUserID = &userID
		if err := tx.Create(member).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrLiveMembershipExists
			}
			return err
		}

		invite.UsedCount++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &invite, nil
}
