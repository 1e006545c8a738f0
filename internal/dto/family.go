package dto

import (
	"time"

	"github.com/yukikurage/chore-reward-api/internal/models"
	"github.com/yukikurage/chore-reward-api/internal/services"
)

// FamilyDTO represents a family in API responses
type FamilyDTO struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	CreatorID uint64    `json:"creator_id"`
	CreatedAt time.Time `json:"created_at"`
}

// MembershipDTO represents a family member in API responses
type MembershipDTO struct {
	FamilyID    uint64                  `json:"family_id"`
	User        UserDTO                 `json:"user"`
	Role        models.UserRole         `json:"role"`
	Status      models.MembershipStatus `json:"status"`
	IsAdmin     bool                    `json:"is_admin"`
	InvitedByID *uint64                 `json:"invited_by_id,omitempty"`
	JoinedAt    *time.Time              `json:"joined_at"`
}

// InviteDTO represents an invite code; only parents ever receive one
type InviteDTO struct {
	Code       string    `json:"code"`
	MaxUses    int       `json:"max_uses"`
	UsedCount  int       `json:"used_count"`
	ExpiresAt  time.Time `json:"expires_at"`
	Redeemable bool      `json:"redeemable"`
}

// FamilyOverviewDTO is the caller's family with what they may see of it
type FamilyOverviewDTO struct {
	Family     FamilyDTO       `json:"family"`
	Membership *MembershipDTO  `json:"membership,omitempty"`
	Members    []MembershipDTO `json:"members,omitempty"`
	Invite     *InviteDTO      `json:"invite,omitempty"`
}

// ToFamilyDTO converts a Family model to FamilyDTO
func ToFamilyDTO(family models.Family) FamilyDTO {
	return FamilyDTO{
		ID:        family.ID,
		Name:      family.Name,
		CreatorID: family.CreatorID,
		CreatedAt: family.CreatedAt,
	}
}

// ToMembershipDTO converts a FamilyMembership model to MembershipDTO. The
// user is filled from the preloaded relation when present.
func ToMembershipDTO(member models.FamilyMembership) MembershipDTO {
	user := ToUserDTO(member.User)
	if member.User.ID == 0 {
		user = UserDTO{ID: member.UserID, Role: member.Role}
	}
	return MembershipDTO{
		FamilyID:    member.FamilyID,
		User:        user,
		Role:        member.Role,
		Status:      member.Status,
		IsAdmin:     member.IsAdmin,
		InvitedByID: member.InvitedByID,
		JoinedAt:    member.JoinedAt,
	}
}

// ToInviteDTO converts an InviteCode model to InviteDTO
func ToInviteDTO(invite models.InviteCode) InviteDTO {
	return InviteDTO{
		Code:       invite.Code,
		MaxUses:    invite.MaxUses,
		UsedCount:  invite.UsedCount,
		ExpiresAt:  invite.ExpiresAt,
		Redeemable: invite.Redeemable(time.Now()),
	}
}

// ToFamilyOverviewDTO converts a service overview to its response shape
func ToFamilyOverviewDTO(overview services.FamilyOverview) FamilyOverviewDTO {
	dto := FamilyOverviewDTO{Family: ToFamilyDTO(*overview.Family)}

	if overview.Membership != nil {
		member := ToMembershipDTO(*overview.Membership)
		dto.Membership = &member
	}
	if len(overview.Members) > 0 {
		dto.Members = make([]MembershipDTO, len(overview.Members))
		for i, member := range overview.Members {
			dto.Members[i] = ToMembershipDTO(member)
		}
	}
	if overview.Invite != nil {
		invite := ToInviteDTO(*overview.Invite)
		dto.Invite = &invite
	}

	return dto
}
