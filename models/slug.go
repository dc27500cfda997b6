package models

import (
	"strings"

	"github.com/gosimple/slug"
)

const maxSlugLength = 200

// Slugify derives a URL-safe identifier from a title.
func Slugify(title string) string {
	s := slug.Make(strings.TrimSpace(title))
	if len(s) > maxSlugLength {
		s = strings.TrimRight(s[:maxSlugLength], "-")
	}
	return s
}
