package models

import "time"

// InviteCode is a bounded-use, time-limited token for joining a family.
// ActiveFamilyID is set only while IsActive is true; its unique index keeps a
// single active invite per family.
type InviteCode struct {
	ID             uint64    `gorm:"primarykey" json:"id"`
	FamilyID       uint64    `gorm:"not null;index" json:"family_id"`
	ActiveFamilyID *uint64   `gorm:"uniqueIndex" json:"-"`
	Code           string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"`
	CreatedByID    uint64    `gorm:"not null" json:"created_by_id"`
	MaxUses        int       `gorm:"not null" json:"max_uses"`
	UsedCount      int       `gorm:"not null;default:0" json:"used_count"`
	IsActive       bool      `gorm:"not null;default:true" json:"is_active"`
	ExpiresAt      time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Redeemable reports whether the invite can still be used at now.
func (i InviteCode) Redeemable(now time.Time) bool {
	return i.IsActive && i.UsedCount < i.MaxUses && now.Before(i.ExpiresAt)
}
