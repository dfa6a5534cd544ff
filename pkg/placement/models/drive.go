package models

import (
	"time"

	"gorm.io/gorm"
)

// DriveStatus is the lifecycle state of a placement drive
type DriveStatus string

const (
	DriveStatusUpcoming  DriveStatus = "upcoming"
	DriveStatusOpen      DriveStatus = "open"
	DriveStatusClosed    DriveStatus = "closed"
	DriveStatusCompleted DriveStatus = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s DriveStatus) Valid() bool {
	switch s {
	case DriveStatusUpcoming, DriveStatusOpen, DriveStatusClosed, DriveStatusCompleted:
		return true
	}
	return false
}

// Drive is a recruiting drive run by a company
type Drive struct {
	ID          uint           `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	Company     string         `gorm:"not null;index" json:"company"`
	Position    string         `gorm:"not null" json:"position"`
	Description string         `json:"description"`
	Department  string         `gorm:"index" json:"department"` // Empty means open to all departments
	Status      DriveStatus    `gorm:"type:varchar(20);default:'upcoming'" json:"status"`
	Deadline    *time.Time     `json:"deadline"`
	CreatedByID uint           `gorm:"not null" json:"created_by_id"`

	// Relationships
	CreatedBy User    `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`
	Groups    []Group `gorm:"foreignKey:DriveID" json:"groups,omitempty"`
}
