package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/blogsite/config"
	"github.com/cppla/blogsite/forms"
	"github.com/cppla/blogsite/middleware"
	"github.com/cppla/blogsite/models"
	"github.com/cppla/blogsite/utils"
)

const (
	blogsPerPage    = 4
	categoryPerPage = 2
	tagPerPage      = 2
	myBlogsPerPage  = 3

	sidebarPostLimit = 5
	sidebarTagLimit  = 5
	tagPageTagLimit  = 9

	newestFirst = "posts.created_at DESC, posts.id DESC"
	oldestFirst = "posts.created_at ASC, posts.id ASC"
)

// PostController serves the blog pages: listings, filters, post detail with comments,
// replies, likes, search and post creation.
type PostController struct {
	pages
	db *gorm.DB
}

// NewPostController creates a new PostController instance.
func NewPostController(db *gorm.DB) *PostController {
	return &PostController{pages: pages{db: db}, db: db}
}

// withAuthor preloads what a post card shows.
func withAuthor(q *gorm.DB) *gorm.DB {
	return q.Preload("User").Preload("Category").Preload("Tags")
}

func (p *PostController) tags(order string, limit int) ([]models.Tag, error) {
	var tags []models.Tag
	q := p.db.Order(order)
	if limit > 0 {
		q = q.Limit(limit)
	}
	return tags, q.Find(&tags).Error
}

func (p *PostController) recentPosts(limit int) ([]models.Post, error) {
	var posts []models.Post
	return posts, withAuthor(p.db).Order(newestFirst).Limit(limit).Find(&posts).Error
}

// paginate counts the posts selected by scope and loads the requested page, newest first.
func (p *PostController) paginate(scope func(*gorm.DB) *gorm.DB, perPage int, raw string) ([]models.Post, utils.Page, error) {
	var total int64
	if err := scope(p.db.Model(&models.Post{})).Count(&total).Error; err != nil {
		return nil, utils.Page{}, err
	}
	page := utils.NewPaginator(total, perPage).Page(raw)

	var posts []models.Post
	err := withAuthor(scope(p.db)).Order(newestFirst).Offset(page.Offset()).Limit(page.Limit()).Find(&posts).Error
	return posts, page, err
}

func allPosts(q *gorm.DB) *gorm.DB { return q }

// Home lists every post and every tag, newest first.
func (p *PostController) Home(ctx *gin.Context) {
	var posts []models.Post
	if err := withAuthor(p.db).Order(newestFirst).Find(&posts).Error; err != nil {
		p.serverError(ctx, err, "load home posts failed")
		return
	}
	tags, err := p.tags("created_at DESC", 0)
	if err != nil {
		p.serverError(ctx, err, "load tags failed")
		return
	}
	p.render(ctx, http.StatusOK, "home.html", gin.H{"Posts": posts, "Tags": tags})
}

// Blogs is the paginated list of all posts.
func (p *PostController) Blogs(ctx *gin.Context) {
	posts, page, err := p.paginate(allPosts, blogsPerPage, ctx.Query("page"))
	if err != nil {
		p.serverError(ctx, err, "list posts failed")
		return
	}
	tags, err := p.tags("created_at DESC", 0)
	if err != nil {
		p.serverError(ctx, err, "load tags failed")
		return
	}
	p.render(ctx, http.StatusOK, "blogs.html", gin.H{"Posts": posts, "Page": page, "Tags": tags})
}

// CategoryBlogs lists the posts of one category.
func (p *PostController) CategoryBlogs(ctx *gin.Context) {
	var category models.Category
	if err := p.db.Where("slug = ?", ctx.Param("slug")).First(&category).Error; err != nil {
		p.lookupFailed(ctx, err, "load category failed")
		return
	}

	posts, page, err := p.paginate(func(q *gorm.DB) *gorm.DB {
		return q.Where("posts.category_id = ?", category.ID)
	}, categoryPerPage, ctx.Query("page"))
	if err != nil {
		p.serverError(ctx, err, "list category posts failed")
		return
	}
	p.renderFiltered(ctx, "category_blogs.html", sidebarTagLimit, gin.H{
		"Category": category, "Posts": posts, "Page": page,
	})
}

// TagBlogs lists the posts carrying one tag.
func (p *PostController) TagBlogs(ctx *gin.Context) {
	var tag models.Tag
	if err := p.db.Where("slug = ?", ctx.Param("slug")).First(&tag).Error; err != nil {
		p.lookupFailed(ctx, err, "load tag failed")
		return
	}

	tagged := p.db.Table("post_tags").Select("post_id").Where("tag_id = ?", tag.ID)
	posts, page, err := p.paginate(func(q *gorm.DB) *gorm.DB {
		return q.Where("posts.id IN (?)", tagged)
	}, tagPerPage, ctx.Query("page"))
	if err != nil {
		p.serverError(ctx, err, "list tag posts failed")
		return
	}
	p.renderFiltered(ctx, "tag_blogs.html", tagPageTagLimit, gin.H{
		"Tag": tag, "Posts": posts, "Page": page,
	})
}

// renderFiltered adds the sidebar shared by the category and tag pages.
func (p *PostController) renderFiltered(ctx *gin.Context, name string, tagLimit int, data gin.H) {
	tags, err := p.tags("created_at DESC", tagLimit)
	if err != nil {
		p.serverError(ctx, err, "load tags failed")
		return
	}
	recent, err := p.recentPosts(sidebarPostLimit)
	if err != nil {
		p.serverError(ctx, err, "load recent posts failed")
		return
	}
	data["Tags"] = tags
	data["RecentPosts"] = recent
	p.render(ctx, http.StatusOK, name, data)
}

func (p *PostController) lookupFailed(ctx *gin.Context, err error, msg string) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		p.notFound(ctx)
		return
	}
	p.serverError(ctx, err, msg)
}

// loadPost fetches a post by slug with its comments, replies and their authors.
func loadPost(db *gorm.DB, slug string) (*models.Post, error) {
	var post models.Post
	err := withAuthor(db).
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("comments.created_at ASC, comments.id ASC") }).
		Preload("Comments.User").
		Preload("Comments.Replies", func(db *gorm.DB) *gorm.DB { return db.Order("replies.created_at ASC, replies.id ASC") }).
		Preload("Comments.Replies.User").
		Where("slug = ?", slug).
		First(&post).Error
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// BlogDetails shows one post with its comments. A POST from a signed in user adds a comment;
// anonymous POSTs just render the page.
func (p *PostController) BlogDetails(ctx *gin.Context) {
	post, err := loadPost(p.db, ctx.Param("slug"))
	if err != nil {
		p.lookupFailed(ctx, err, "load post failed")
		return
	}
	ctx.Set(middleware.ContextPostIDKey, post.ID)

	var form forms.TextForm
	errs := forms.FieldErrors{}
	status := http.StatusOK

	if userID, ok := middleware.UserID(ctx); ok && ctx.Request.Method == http.MethodPost {
		errs = forms.Bind(ctx, &form)
		if !errs.Any() {
			comment := models.Comment{PostID: post.ID, UserID: userID, Text: utils.SanitizeText(form.Text)}
			if err := p.db.Create(&comment).Error; err != nil {
				p.serverError(ctx, err, "create comment failed")
				return
			}
			utils.InvalidatePost(post.Slug)
			ctx.Redirect(http.StatusSeeOther, "/blog/"+post.Slug)
			return
		}
		utils.Sugar.Warnw("invalid comment form", "post", post.Slug, "errors", errs)
		status = http.StatusBadRequest
	}

	p.renderDetail(ctx, status, post, form, errs)
}

func (p *PostController) renderDetail(ctx *gin.Context, status int, post *models.Post, form forms.TextForm, errs forms.FieldErrors) {
	var related []models.Post
	if err := withAuthor(p.db).Where("posts.category_id = ?", post.CategoryID).Order(newestFirst).Find(&related).Error; err != nil {
		p.serverError(ctx, err, "load related posts failed")
		return
	}
	tags, err := p.tags("created_at DESC", sidebarTagLimit)
	if err != nil {
		p.serverError(ctx, err, "load tags failed")
		return
	}
	likes, err := countLikes(p.db, post.ID)
	if err != nil {
		p.serverError(ctx, err, "count likes failed")
		return
	}
	likedBy := false
	if userID, ok := middleware.UserID(ctx); ok {
		if likedBy, err = hasLiked(p.db, post.ID, userID); err != nil {
			p.serverError(ctx, err, "load like state failed")
			return
		}
	}

	p.render(ctx, status, "blog_details.html", gin.H{
		"Post":      post,
		"Related":   related,
		"Tags":      tags,
		"LikedBy":   likedBy,
		"LikeCount": likes,
		"Form":      form,
		"Errors":    errs,
	})
}

func countLikes(db *gorm.DB, postID uint) (int64, error) {
	var n int64
	err := db.Table("post_likes").Where("post_id = ?", postID).Count(&n).Error
	return n, err
}

func hasLiked(db *gorm.DB, postID, userID uint) (bool, error) {
	var n int64
	err := db.Table("post_likes").Where("post_id = ? AND user_id = ?", postID, userID).Count(&n).Error
	return n > 0, err
}

func parseID(raw string) (uint, bool) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// AddReply answers a comment of a post, then returns to the post. Requests other than POST,
// such as the redirect back after logging in, just go to the post.
func (p *PostController) AddReply(ctx *gin.Context) {
	postID, ok := parseID(ctx.Param("blog_id"))
	if !ok {
		p.notFound(ctx)
		return
	}
	var post models.Post
	if err := p.db.Select("id", "slug").First(&post, postID).Error; err != nil {
		p.lookupFailed(ctx, err, "load post failed")
		return
	}
	detailURL := "/blog/" + post.Slug
	if ctx.Request.Method != http.MethodPost {
		ctx.Redirect(http.StatusSeeOther, detailURL)
		return
	}

	var form forms.TextForm
	if errs := forms.Bind(ctx, &form); errs.Any() {
		utils.Sugar.Warnw("invalid reply form", "post", post.Slug, "errors", errs)
		ctx.Redirect(http.StatusSeeOther, detailURL)
		return
	}

	commentID, ok := parseID(ctx.Param("comment_id"))
	if !ok {
		p.notFound(ctx)
		return
	}
	var comment models.Comment
	err := p.db.Where("id = ? AND post_id = ?", commentID, post.ID).First(&comment).Error
	if err != nil {
		p.lookupFailed(ctx, err, "load comment failed")
		return
	}

	userID, _ := middleware.UserID(ctx)
	reply := models.Reply{CommentID: comment.ID, UserID: userID, Text: utils.SanitizeText(form.Text)}
	if err := p.db.Create(&reply).Error; err != nil {
		p.serverError(ctx, err, "create reply failed")
		return
	}
	utils.InvalidatePost(post.Slug)
	ctx.Redirect(http.StatusSeeOther, detailURL)
}

// LikeBlog toggles the viewer's like on a post and reports the new state as JSON.
func (p *PostController) LikeBlog(ctx *gin.Context) {
	postID, ok := parseID(ctx.Param("id"))
	if !ok {
		utils.Error(ctx, http.StatusNotFound, 40401, "post not found")
		return
	}
	userID, _ := middleware.UserID(ctx)

	var post models.Post
	if err := p.db.Select("id", "slug").First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40401, "post not found")
			return
		}
		utils.Sugar.Errorw("load post failed", "post_id", postID, "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to load post")
		return
	}

	liked, count, err := toggleLike(p.db, post.ID, userID)
	if err != nil {
		utils.Sugar.Errorw("toggle like failed", "post_id", post.ID, "user_id", userID, "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50002, "failed to update like")
		return
	}
	utils.InvalidatePost(post.Slug)
	ctx.JSON(http.StatusOK, gin.H{"liked": liked, "like": count})
}

// toggleLike adds or removes userID from the likers of postID and returns the new state.
func toggleLike(db *gorm.DB, postID, userID uint) (bool, int64, error) {
	var liked bool
	var count int64
	err := db.Transaction(func(tx *gorm.DB) error {
		already, err := hasLiked(tx, postID, userID)
		if err != nil {
			return err
		}
		if already {
			err = tx.Exec("DELETE FROM post_likes WHERE post_id = ? AND user_id = ?", postID, userID).Error
		} else {
			err = tx.Exec("INSERT INTO post_likes (post_id, user_id) VALUES (?, ?)", postID, userID).Error
		}
		if err != nil {
			return err
		}
		liked = !already
		count, err = countLikes(tx, postID)
		return err
	})
	return liked, count, err
}

// likePattern builds a contains pattern; LIKE wildcards in the query match literally
// (escape character '!'). Case folding is left to LOWER() on both sides of the comparison.
func likePattern(q string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return "%" + r.Replace(q) + "%"
}

// SearchBlogs finds posts whose title, category, author or tags contain the query.
func (p *PostController) SearchBlogs(ctx *gin.Context) {
	query := strings.TrimSpace(ctx.Query("search"))
	if query == "" {
		ctx.Redirect(http.StatusFound, "/")
		return
	}

	posts, err := searchPosts(p.db, query)
	if err != nil {
		p.serverError(ctx, err, "search posts failed")
		return
	}
	var recent []models.Post
	if err := withAuthor(p.db).Order(oldestFirst).Find(&recent).Error; err != nil {
		p.serverError(ctx, err, "load recent posts failed")
		return
	}
	tags, err := p.tags("created_at ASC", 0)
	if err != nil {
		p.serverError(ctx, err, "load tags failed")
		return
	}
	p.render(ctx, http.StatusOK, "search.html", gin.H{
		"Posts": posts, "RecentPosts": recent, "Tags": tags, "Query": query,
	})
}

func searchPosts(db *gorm.DB, query string) ([]models.Post, error) {
	pattern := likePattern(query)
	categories := db.Model(&models.Category{}).Select("id").Where("LOWER(title) LIKE LOWER(?) ESCAPE '!'", pattern)
	authors := db.Model(&models.User{}).Select("id").Where("LOWER(username) LIKE LOWER(?) ESCAPE '!'", pattern)
	tagged := db.Table("post_tags").Select("post_tags.post_id").
		Joins("JOIN tags ON tags.id = post_tags.tag_id").
		Where("LOWER(tags.title) LIKE LOWER(?) ESCAPE '!'", pattern)

	var posts []models.Post
	err := withAuthor(db).
		Where("LOWER(posts.title) LIKE LOWER(?) ESCAPE '!'", pattern).
		Or("posts.category_id IN (?)", categories).
		Or("posts.user_id IN (?)", authors).
		Or("posts.id IN (?)", tagged).
		Order(oldestFirst).
		Find(&posts).Error
	return posts, err
}

// MyBlogs lists the viewer's own posts.
func (p *PostController) MyBlogs(ctx *gin.Context) {
	userID, _ := middleware.UserID(ctx)
	posts, page, err := p.paginate(func(q *gorm.DB) *gorm.DB {
		return q.Where("posts.user_id = ?", userID)
	}, myBlogsPerPage, ctx.Query("page"))
	if err != nil {
		p.serverError(ctx, err, "list user posts failed")
		return
	}
	p.render(ctx, http.StatusOK, "my_blogs.html", gin.H{"Posts": posts, "Page": page})
}

// AddBlogForm shows the empty post creation form.
func (p *PostController) AddBlogForm(ctx *gin.Context) {
	p.renderAddBlog(ctx, http.StatusOK, forms.AddPostForm{}, forms.FieldErrors{})
}

func (p *PostController) renderAddBlog(ctx *gin.Context, status int, form forms.AddPostForm, errs forms.FieldErrors) {
	var categories []models.Category
	if err := p.db.Order("title ASC").Find(&categories).Error; err != nil {
		p.serverError(ctx, err, "load categories failed")
		return
	}
	p.render(ctx, status, "add_blog.html", gin.H{"Form": form, "Errors": errs, "Categories": categories})
}

// AddBlog creates a post with its optional image and tags.
func (p *PostController) AddBlog(ctx *gin.Context) {
	userID, _ := middleware.UserID(ctx)

	var form forms.AddPostForm
	errs := forms.Bind(ctx, &form)
	header, fileErr := ctx.FormFile("image")
	if fileErr != nil && !errors.Is(fileErr, http.ErrMissingFile) && !errors.Is(fileErr, http.ErrNotMultipart) {
		errs.Add("image", "The uploaded file could not be read.")
	}
	if errs.Any() {
		utils.Sugar.Warnw("invalid post form", "user_id", userID, "errors", errs)
		p.renderAddBlog(ctx, http.StatusBadRequest, form, errs)
		return
	}

	var category models.Category
	if err := p.db.First(&category, form.Category).Error; err != nil {
		p.lookupFailed(ctx, err, "load category failed")
		return
	}

	var image string
	if header != nil {
		url, err := utils.SaveImage(header)
		switch {
		case errors.Is(err, utils.ErrImageTooLarge):
			errs.Add("image", fmt.Sprintf("The image must be at most %d MB.", config.Get().MaxUploadMB))
		case errors.Is(err, utils.ErrNotAnImage):
			errs.Add("image", "Upload a valid image.")
		case err != nil:
			p.serverError(ctx, err, "store post image failed")
			return
		}
		if errs.Any() {
			utils.Sugar.Warnw("rejected post image", "user_id", userID, "error", err)
			p.renderAddBlog(ctx, http.StatusBadRequest, form, errs)
			return
		}
		image = url
	}

	post := models.Post{
		UserID:     userID,
		CategoryID: category.ID,
		Title:      form.Title,
		Body:       utils.Sanitize(form.Body),
		Image:      image,
	}
	err := p.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&post).Error; err != nil {
			return err
		}
		tags, err := reconcileTags(tx, form.TagTitles())
		if err != nil {
			return err
		}
		if len(tags) == 0 {
			return nil
		}
		return tx.Model(&post).Association("Tags").Append(tags)
	})
	if err != nil {
		utils.RemoveMedia(image)
		p.serverError(ctx, err, "create post failed")
		return
	}

	utils.Sugar.Infow("post created", "post_id", post.ID, "slug", post.Slug, "user_id", userID)
	utils.InvalidatePost(post.Slug)
	utils.SetFlash(ctx, "success", "Blog Added Successfully")
	ctx.Redirect(http.StatusSeeOther, "/blog/"+post.Slug)
}

// reconcileTags maps tag titles to stored tags. A tag whose title matches case-insensitively
// and whose slug matches is reused, then a tag with the same slug, otherwise a new tag is
// created. Titles without any slug characters are skipped and each tag is returned once.
func reconcileTags(tx *gorm.DB, titles []string) ([]models.Tag, error) {
	seen := make(map[uint]bool, len(titles))
	tags := make([]models.Tag, 0, len(titles))
	for _, title := range titles {
		slug := models.Slugify(title)
		if slug == "" {
			continue
		}

		var tag models.Tag
		err := tx.Where("LOWER(title) = LOWER(?) AND slug = ?", title, slug).First(&tag).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = tx.Where(models.Tag{Slug: slug}).Attrs(models.Tag{Title: title}).FirstOrCreate(&tag).Error
		}
		if err != nil {
			return nil, err
		}
		if !seen[tag.ID] {
			seen[tag.ID] = true
			tags = append(tags, tag)
		}
	}
	return tags, nil
}
