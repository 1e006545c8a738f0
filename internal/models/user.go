package models

import (
	"time"
)

type UserRole string

const (
	RoleParent UserRole = "PARENT"
	RoleChild  UserRole = "CHILD"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	return r == RoleParent || r == RoleChild
}

type User struct {
	ID            uint64    `gorm:"primarykey" json:"id"`
	LineUserID    string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"line_user_id"`
	DisplayName   string    `gorm:"type:varchar(255);not null" json:"display_name"`
	Role          UserRole  `gorm:"type:varchar(20);not null" json:"role"`
	FamilyID      *uint64   `gorm:"index" json:"family_id"`
	WalletAddress string    `gorm:"type:varchar(128)" json:"wallet_address"`
	IsActive      bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Relations
	Memberships []FamilyMembership `gorm:"foreignKey:UserID" json:"-"`
}
