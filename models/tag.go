package models

import (
	"time"

	"gorm.io/gorm"
)

// Tag is a free-form label attached to many posts.
type Tag struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"size:128;not null" json:"title"`
	Slug      string    `gorm:"size:200;uniqueIndex;not null" json:"slug"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (t *Tag) BeforeCreate(tx *gorm.DB) error {
	if t.Slug == "" {
		t.Slug = Slugify(t.Title)
	}
	return nil
}
