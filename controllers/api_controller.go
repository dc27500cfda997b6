package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/blogsite/models"
	"github.com/cppla/blogsite/utils"
)

const apiPageSize = 10

// APIController exposes the read-only JSON API over posts and tags.
type APIController struct {
	db *gorm.DB
}

// NewAPIController creates a new APIController instance.
func NewAPIController(db *gorm.DB) *APIController {
	return &APIController{db: db}
}

type postSummary struct {
	models.Post
	LikeCount    int64 `json:"like_count"`
	CommentCount int64 `json:"comment_count"`
}

// ListPosts returns one page of posts, newest first.
func (a *APIController) ListPosts(ctx *gin.Context) {
	pageSize := utils.ParsePageSize(ctx.Query("page_size"), apiPageSize)

	var total int64
	if err := a.db.Model(&models.Post{}).Count(&total).Error; err != nil {
		utils.Sugar.Errorw("count posts failed", "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to count posts")
		return
	}
	page := utils.NewPaginator(total, pageSize).Page(ctx.Query("page"))

	cacheKey := utils.PostListCacheKey(page.Number, pageSize)
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	var posts []models.Post
	if err := withAuthor(a.db).Order(newestFirst).Offset(page.Offset()).Limit(page.Limit()).Find(&posts).Error; err != nil {
		utils.Sugar.Errorw("list posts failed", "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to list posts")
		return
	}

	items, err := a.summarize(posts)
	if err != nil {
		utils.Sugar.Errorw("count post activity failed", "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50024, "failed to list posts")
		return
	}

	payload := gin.H{
		"items": items,
		"pagination": gin.H{
			"page":        page.Number,
			"page_size":   pageSize,
			"total":       total,
			"total_pages": page.NumPages,
		},
	}
	utils.CacheSetJSON(cacheKey, utils.SuccessEnvelope(payload))
	utils.Success(ctx, payload)
}

// summarize attaches like and comment counts to posts, counted with one query for the whole page.
func (a *APIController) summarize(posts []models.Post) ([]postSummary, error) {
	items := make([]postSummary, 0, len(posts))
	if len(posts) == 0 {
		return items, nil
	}
	ids := make([]uint, 0, len(posts))
	for _, post := range posts {
		ids = append(ids, post.ID)
	}

	var counts []struct {
		ID           uint
		LikeCount    int64
		CommentCount int64
	}
	err := a.db.Model(&models.Post{}).
		Select("posts.id, "+
			"(SELECT COUNT(*) FROM post_likes WHERE post_likes.post_id = posts.id) AS like_count, "+
			"(SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id) AS comment_count").
		Where("posts.id IN ?", ids).
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]int, len(counts))
	for i, c := range counts {
		byID[c.ID] = i
	}

	for _, post := range posts {
		item := postSummary{Post: post}
		if i, ok := byID[post.ID]; ok {
			item.LikeCount = counts[i].LikeCount
			item.CommentCount = counts[i].CommentCount
		}
		items = append(items, item)
	}
	return items, nil
}

// GetPost returns a single post with comments and replies.
func (a *APIController) GetPost(ctx *gin.Context) {
	slug := ctx.Param("slug")
	cacheKey := utils.PostDetailCacheKey(slug)
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	post, err := loadPost(a.db, slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40401, "post not found")
			return
		}
		utils.Sugar.Errorw("load post failed", "slug", slug, "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to load post")
		return
	}

	items, err := a.summarize([]models.Post{*post})
	if err != nil {
		utils.Sugar.Errorw("count post activity failed", "slug", slug, "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50024, "failed to load post")
		return
	}

	payload := gin.H{"post": items[0]}
	utils.CacheSetJSON(cacheKey, utils.SuccessEnvelope(payload))
	utils.Success(ctx, payload)
}

// ListTags returns every tag with the number of posts carrying it.
func (a *APIController) ListTags(ctx *gin.Context) {
	if b, ok := utils.CacheGetBytes(utils.CacheTagListKey); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	type tagCount struct {
		models.Tag
		PostCount int64 `json:"post_count"`
	}
	var tags []tagCount
	err := a.db.Model(&models.Tag{}).
		Select("tags.*, COUNT(post_tags.post_id) AS post_count").
		Joins("LEFT JOIN post_tags ON post_tags.tag_id = tags.id").
		Group("tags.id").
		Order("tags.created_at DESC, tags.id DESC").
		Scan(&tags).Error
	if err != nil {
		utils.Sugar.Errorw("list tags failed", "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50024, "failed to list tags")
		return
	}

	payload := gin.H{"items": tags}
	utils.CacheSetJSON(utils.CacheTagListKey, utils.SuccessEnvelope(payload))
	utils.Success(ctx, payload)
}
