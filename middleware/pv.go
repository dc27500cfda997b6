package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/blogsite/config"
	"github.com/cppla/blogsite/models"
	"github.com/cppla/blogsite/utils"
)

// ContextPostIDKey is set by the post detail handler so the view is attributed to the post.
const ContextPostIDKey = "pv_post_id"

// PageViewRecorder records successful HTML page views per day and path.
func PageViewRecorder(db *gorm.DB) gin.HandlerFunc {
	mediaPrefix := strings.TrimRight(config.Get().MediaURL, "/") + "/"
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method != "GET" {
			return
		}
		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}

		path := c.Request.URL.Path
		if skipPageView(path, mediaPrefix) {
			return
		}

		now := time.Now()
		pv := models.PageView{Day: models.PageViewDay(now), Path: path, Count: 1, UpdatedAt: now}
		if id, ok := c.Get(ContextPostIDKey); ok {
			if postID, ok := id.(uint); ok {
				pv.PostID = &postID
			}
		}

		// upsert keeps concurrent first hits of the day from colliding on the unique index
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "day"}, {Name: "path"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + 1"), "updated_at": now}),
		}).Create(&pv).Error
		if err != nil {
			utils.Sugar.Warnw("record page view failed", "path", path, "error", err)
		}
	}
}

func skipPageView(path, mediaPrefix string) bool {
	switch {
	case path == "/health", path == "/favicon.ico", path == "/captcha":
		return true
	case strings.HasPrefix(path, "/api/"), strings.HasPrefix(path, "/static/"):
		return true
	case mediaPrefix != "/" && strings.HasPrefix(path, mediaPrefix):
		return true
	}
	return false
}
