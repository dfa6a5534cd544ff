package models

import (
	"time"

	"gorm.io/gorm"
)

// SystemRole represents a user's campus-wide role
type SystemRole string

const (
	SystemRoleAdmin   SystemRole = "admin"
	SystemRoleTPO     SystemRole = "tpo"
	SystemRoleStudent SystemRole = "student"
)

// IsStaff reports whether the role belongs to placement office staff.
func (r SystemRole) IsStaff() bool {
	return r == SystemRoleAdmin || r == SystemRoleTPO
}

// Valid reports whether r is one of the known roles.
func (r SystemRole) Valid() bool {
	switch r {
	case SystemRoleAdmin, SystemRoleTPO, SystemRoleStudent:
		return true
	}
	return false
}

// User represents a student or staff account
type User struct {
	ID           uint           `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `json:"-"`
	Name         string         `gorm:"not null" json:"name"`
	StudentID    string         `gorm:"index" json:"student_id,omitempty"` // Roll number, students only
	Department   string         `gorm:"index" json:"department"`
	Active       bool           `gorm:"default:true" json:"active"`
	SystemRole   SystemRole     `gorm:"type:varchar(20);default:'student'" json:"system_role"`

	// Relationships
	GroupMemberships []GroupMembership `gorm:"foreignKey:UserID" json:"group_memberships,omitempty"`
	APIKeys          []APIKey          `gorm:"foreignKey:UserID" json:"api_keys,omitempty"`
}
