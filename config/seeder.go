package config

import (
	"strings"

	"gorm.io/gorm"

	"github.com/cppla/blogsite/models"
)

// SeedCategories makes sure every configured category title exists, matching on slug.
func SeedCategories(conn *gorm.DB, titles []string) error {
	for _, title := range titles {
		title = strings.TrimSpace(title)
		slug := models.Slugify(title)
		if slug == "" {
			continue
		}
		category := models.Category{Title: title, Slug: slug}
		if err := conn.Where(models.Category{Slug: slug}).FirstOrCreate(&category).Error; err != nil {
			return err
		}
	}
	return nil
}
