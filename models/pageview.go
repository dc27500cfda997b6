package models

import "time"

// PageView counts successful page renders per day and request path.
// PostID is set when the path is a post detail page so per-post totals need no path matching.
type PageView struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Day       time.Time `gorm:"index:idx_pv_day_path,unique;type:date;not null" json:"day"`
	Path      string    `gorm:"index:idx_pv_day_path,unique;size:255;not null" json:"path"`
	PostID    *uint     `gorm:"index" json:"post_id,omitempty"`
	Count     int64     `gorm:"not null;default:0" json:"count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PageViewDay truncates t to local midnight, the bucket a view is counted in.
func PageViewDay(t time.Time) time.Time {
	t = t.In(time.Local)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
