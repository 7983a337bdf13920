package models

import (
	"time"
)

// User represents a dashboard account. Whether an account may actually use the
// management surface is decided by the configured allow-list, not stored here.
type User struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `gorm:"not null" json:"name"`
}
