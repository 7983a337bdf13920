package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Link represents a shortened URL
type Link struct {
	ID        string     `gorm:"type:varchar(36);primarykey" json:"id"`
	Slug      string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"slug"`
	URL       string     `gorm:"not null" json:"url"`
	IsActive  bool       `gorm:"default:true;index" json:"is_active"`
	ExpiresAt *time.Time `json:"expires_at"`
	CreatedAt time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// Relationships
	Clicks []Click `gorm:"foreignKey:LinkID;constraint:OnDelete:CASCADE" json:"clicks,omitempty"`
}

// BeforeCreate assigns a UUID primary key if none was supplied
func (l *Link) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// IsExpired reports whether the link's expiry has passed.
// A link whose expiry equals the current instant counts as expired.
func (l *Link) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(now)
}
