package utils

import "github.com/microcosm-cc/bluemonday"

var (
	ugcPolicy    = bluemonday.UGCPolicy()
	strictPolicy = bluemonday.StrictPolicy()
)

// Sanitize cleans post bodies, keeping the safe subset of user generated HTML.
func Sanitize(input string) string {
	return ugcPolicy.Sanitize(input)
}

// SanitizeText strips all markup, for titles, comments and replies.
func SanitizeText(input string) string {
	return strictPolicy.Sanitize(input)
}
