package models

import (
	"time"
)

type Family struct {
	ID         uint64    `gorm:"primarykey" json:"id"`
	Name       string    `gorm:"type:varchar(255);not null" json:"name"`
	InviteCode string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"invite_code"`
	CreatorID  uint64    `gorm:"not null" json:"creator_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Relations
	Creator     User               `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	Memberships []FamilyMembership `gorm:"foreignKey:FamilyID" json:"members,omitempty"`
	Tasks       []Task             `gorm:"foreignKey:FamilyID" json:"tasks,omitempty"`
}
