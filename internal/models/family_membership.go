package models

import "time"

type MembershipStatus string

const (
	MembershipPending MembershipStatus = "PENDING"
	MembershipActive  MembershipStatus = "ACTIVE"
	MembershipRemoved MembershipStatus = "REMOVED"
)

// FamilyMembership binds a user to a family. Rows are never deleted; a
// membership ends by moving to REMOVED.
//
// ActiveUserID mirrors UserID while the membership is PENDING or ACTIVE and
// is NULL once REMOVED. Its unique index is what guarantees a user holds at
// most one live membership across all families.
type FamilyMembership struct {
	ID           uint64           `gorm:"primarykey" json:"id"`
	FamilyID     uint64           `gorm:"not null;index" json:"family_id"`
	UserID       uint64           `gorm:"not null;index" json:"user_id"`
	ActiveUserID *uint64          `gorm:"uniqueIndex" json:"-"`
	Role         UserRole         `gorm:"type:varchar(20);not null" json:"role"`
	Status       MembershipStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	IsAdmin      bool             `gorm:"not null;default:false" json:"is_admin"`
	InvitedByID  *uint64          `json:"invited_by_id"`
	JoinedAt     *time.Time       `json:"joined_at"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`

	// Relations
	Family Family `gorm:"foreignKey:FamilyID" json:"family,omitempty"`
	User   User   `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// Live reports whether the membership still counts toward the one-family rule.
func (m FamilyMembership) Live() bool {
	return m.Status == MembershipPending || m.Status == MembershipActive
}

// IsActiveParent reports whether the member may act as a parent of the family.
func (m FamilyMembership) IsActiveParent() bool {
	return m.Status == MembershipActive && m.Role == RoleParent
}
