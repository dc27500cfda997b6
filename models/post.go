package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Post represents a blog entry written by a user.
type Post struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"index;not null" json:"user_id"`
	CategoryID uint      `gorm:"index;not null" json:"category_id"`
	Title      string    `gorm:"size:255;not null" json:"title"`
	Slug       string    `gorm:"size:255;uniqueIndex;not null" json:"slug"`
	Body       string    `gorm:"type:text;not null" json:"body"`
	Image      string    `gorm:"size:512" json:"image"` // public URL under the media root
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	User       User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
	Category   Category  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"category"`
	Tags       []Tag     `gorm:"many2many:post_tags;" json:"tags"`
	Likes      []User    `gorm:"many2many:post_likes;" json:"-"`
	Comments   []Comment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"comments,omitempty"`
}

// BeforeCreate derives a unique slug from the title, suffixing -2, -3, ... on collision.
func (p *Post) BeforeCreate(tx *gorm.DB) error {
	base := p.Slug
	if base == "" {
		base = Slugify(p.Title)
	}
	if base == "" {
		base = "post"
	}

	q := tx.Session(&gorm.Session{NewDB: true})
	candidate := base
	for i := 2; ; i++ {
		var count int64
		if err := q.Model(&Post{}).Where("slug = ?", candidate).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			break
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	p.Slug = candidate
	return nil
}
