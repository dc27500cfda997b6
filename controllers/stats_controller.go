package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/blogsite/models"
	"github.com/cppla/blogsite/utils"
)

// StatsController provides blog statistics such as counts and daily page views.
type StatsController struct {
	db *gorm.DB
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB) *StatsController {
	return &StatsController{db: db}
}

// GetStats returns aggregate statistics for the blog.
func (s *StatsController) GetStats(ctx *gin.Context) {
	counts := map[string]interface{}{
		"user_count":    &models.User{},
		"post_count":    &models.Post{},
		"comment_count": &models.Comment{},
		"reply_count":   &models.Reply{},
		"tag_count":     &models.Tag{},
	}
	out := gin.H{}
	for key, model := range counts {
		var n int64
		if err := s.db.Model(model).Count(&n).Error; err != nil {
			// fall back to 0 instead of failing the whole endpoint
			utils.Sugar.Warnw("stats count failed", "key", key, "error", err)
		}
		out[key] = n
	}

	var likes int64
	if err := s.db.Table("post_likes").Count(&likes).Error; err != nil {
		utils.Sugar.Warnw("stats count failed", "key", "like_count", "error", err)
	}
	out["like_count"] = likes

	var todayPV int64
	if err := s.db.Model(&models.PageView{}).
		Where("day = ?", models.PageViewDay(time.Now())).
		Select("COALESCE(SUM(count),0)").
		Scan(&todayPV).Error; err != nil {
		utils.Sugar.Warnw("stats page views failed", "error", err)
	}
	out["today_page_views"] = todayPV

	utils.Success(ctx, out)
}

// GetPostStats returns the page views, likes and comments of one post.
func (s *StatsController) GetPostStats(ctx *gin.Context) {
	var post models.Post
	if err := s.db.Select("id", "slug").Where("slug = ?", ctx.Param("slug")).First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40401, "post not found")
			return
		}
		utils.Sugar.Errorw("load post failed", "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to load post")
		return
	}

	var pv int64
	if err := s.db.Model(&models.PageView{}).
		Where("post_id = ?", post.ID).
		Select("COALESCE(SUM(count),0)").
		Scan(&pv).Error; err != nil {
		pv = 0
	}

	var comments int64
	if err := s.db.Model(&models.Comment{}).Where("post_id = ?", post.ID).Count(&comments).Error; err != nil {
		comments = 0
	}

	likes, err := countLikes(s.db, post.ID)
	if err != nil {
		likes = 0
	}

	utils.Success(ctx, gin.H{
		"slug":           post.Slug,
		"pv":             pv,
		"comments_count": comments,
		"likes_count":    likes,
	})
}
