package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Click represents one recorded redirect event. Clicks are append-only:
// they are inserted by the redirect path and deleted only when their Link is.
type Click struct {
	ID        string    `gorm:"type:varchar(36);primarykey" json:"id"`
	LinkID    string    `gorm:"type:varchar(36);not null;index;index:idx_clicks_link_clicked,priority:1" json:"link_id"`
	Country   *string   `gorm:"type:varchar(2);index" json:"country"`
	Referrer  *string   `gorm:"type:varchar(1024)" json:"referrer"`
	ClickedAt time.Time `gorm:"index;index:idx_clicks_link_clicked,priority:2" json:"clicked_at"`
}

// BeforeCreate assigns a UUID primary key if none was supplied
func (c *Click) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
