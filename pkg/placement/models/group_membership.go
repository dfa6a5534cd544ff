package models

import (
	"time"

	"gorm.io/gorm"
)

// GroupRole represents a user's role within a specific chat group
type GroupRole string

const (
	GroupRoleModerator GroupRole = "moderator"
	GroupRoleMember    GroupRole = "member"
)

// GroupMembership links users to the chat groups they can read and post in
type GroupMembership struct {
	ID         uint           `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
	UserID     uint           `gorm:"not null;uniqueIndex:idx_user_group" json:"user_id"`
	GroupID    uint           `gorm:"not null;uniqueIndex:idx_user_group" json:"group_id"`
	Role       GroupRole      `gorm:"type:varchar(20);default:'member'" json:"role"`
	LastReadAt *time.Time     `json:"last_read_at"` // Drives the unread count

	// Relationships
	User  User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Group Group `gorm:"foreignKey:GroupID" json:"group,omitempty"`
}
