package models

import (
	"time"

	"gorm.io/gorm"
)

// Group is a chat room scoped to one drive or department cohort
type Group struct {
	ID          uint           `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	Name        string         `gorm:"not null" json:"name"`
	Department  string         `gorm:"index" json:"department"`
	Description string         `json:"description"`
	DriveID     *uint          `gorm:"index" json:"drive_id"`
	CreatedByID uint           `json:"created_by_id"`

	// Relationships
	Drive    *Drive            `gorm:"foreignKey:DriveID" json:"drive,omitempty"`
	Members  []GroupMembership `gorm:"foreignKey:GroupID" json:"members,omitempty"`
	Messages []Message         `gorm:"foreignKey:GroupID" json:"messages,omitempty"`
}
