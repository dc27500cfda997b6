package models

import (
	"time"

	"gorm.io/gorm"
)

// Category groups posts; every post belongs to exactly one.
type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"size:128;not null" json:"title"`
	Slug      string    `gorm:"size:200;uniqueIndex;not null" json:"slug"`
	CreatedAt time.Time `json:"-"`
}

// BeforeCreate derives the slug from the title when it was not set explicitly.
func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.Slug == "" {
		c.Slug = Slugify(c.Title)
	}
	return nil
}
