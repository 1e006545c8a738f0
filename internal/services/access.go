package services

import (
	"errors"
	"fmt"

	"github.com/yukikurage/chore-reward-api/internal/models"
	"github.com/yukikurage/chore-reward-api/internal/repository"
	"gorm.io/gorm"
)

// activeMembership returns the user's ACTIVE membership, or
// ErrNotFamilyMember if the user has none.
func activeMembership(families repository.FamilyRepository, userID uint64) (*models.FamilyMembership, error) {
	member, err := families.FindLiveMembership(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFamilyMember
		}
		return nil, fmt.Errorf("failed to find membership: %w", err)
	}
	if member.Status != models.MembershipActive {
		return nil, ErrNotFamilyMember
	}
	return member, nil
}

// memberOf returns the user's ACTIVE membership in familyID. notMember is
// returned when the user is not an active member of that family, so callers
// can choose between hiding the resource and refusing the action.
func memberOf(families repository.FamilyRepository, userID, familyID uint64, notMember error) (*models.FamilyMembership, error) {
	member, err := activeMembership(families, userID)
	if err != nil {
		if errors.Is(err, ErrNotFamilyMember) {
			return nil, notMember
		}
		return nil, err
	}
	if member.FamilyID != familyID {
		return nil, notMember
	}
	return member, nil
}

// parentOf returns the user's membership if they are an ACTIVE PARENT of familyID.
func parentOf(families repository.FamilyRepository, userID, familyID uint64, notMember error) (*models.FamilyMembership, error) {
	member, err := memberOf(families, userID, familyID, notMember)
	if err != nil {
		return nil, err
	}
	if !member.IsActiveParent() {
		return nil, ErrParentRequired
	}
	return member, nil
}

// activeParent returns the user's membership if they are an ACTIVE PARENT of any family.
func activeParent(families repository.FamilyRepository, userID uint64) (*models.FamilyMembership, error) {
	member, err := activeMembership(families, userID)
	if err != nil {
		return nil, err
	}
	if !member.IsActiveParent() {
		return nil, ErrParentRequired
	}
	return member, nil
}

// activeChild reports whether userID is an ACTIVE CHILD member of familyID.
func activeChild(families repository.FamilyRepository, userID, familyID uint64) (bool, error) {
	member, err := families.FindLiveMembership(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to find membership: %w", err)
	}
	return member.FamilyID == familyID &&
		member.Status == models.MembershipActive &&
		member.Role == models.RoleChild, nil
}
