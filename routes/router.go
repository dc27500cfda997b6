package routes

import (
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/blogsite/config"
	"github.com/cppla/blogsite/controllers"
	"github.com/cppla/blogsite/middleware"
	"github.com/cppla/blogsite/templates"
	"github.com/cppla/blogsite/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// access log goes to its own rolling file when configured, otherwise to the app logger
	accessLog := utils.Logger
	if cfg.GinPath != "" {
		gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
		if err != nil {
			utils.Sugar.Warnf("gin access log disabled: %v", err)
		} else {
			accessLog = gl
		}
	}
	r.Use(ginzap.Ginzap(accessLog, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(accessLog, true))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.Use(middleware.CurrentUser(db))
	r.Use(middleware.PageViewRecorder(db))

	r.SetHTMLTemplate(template.Must(templates.Load()))
	r.StaticFS("/static", http.FS(templates.Static()))
	r.Static(cfg.MediaURL, cfg.MediaRoot)

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	postController := controllers.NewPostController(db)
	authController := controllers.NewAuthController(db)
	apiController := controllers.NewAPIController(db)
	statsController := controllers.NewStatsController(db)
	configController := controllers.NewConfigController()

	limit := middleware.RateLimitMiddleware()

	r.GET("/", postController.Home)
	r.GET("/blogs", postController.Blogs)
	r.GET("/category/:slug", postController.CategoryBlogs)
	r.GET("/tag/:slug", postController.TagBlogs)
	r.GET("/blog/:slug", postController.BlogDetails)
	r.POST("/blog/:slug", limit, postController.BlogDetails)
	r.GET("/search", postController.SearchBlogs)
	r.POST("/like/:id", middleware.AuthRequired(), limit, postController.LikeBlog)

	member := r.Group("")
	member.Use(middleware.LoginRequired())
	member.GET("/reply/:blog_id/:comment_id", postController.AddReply)
	member.POST("/reply/:blog_id/:comment_id", limit, postController.AddReply)
	member.GET("/my-blogs", postController.MyBlogs)
	member.GET("/add-blog", postController.AddBlogForm)
	member.POST("/add-blog", limit, postController.AddBlog)

	guest := r.Group("")
	guest.Use(middleware.AnonymousOnly())
	guest.GET("/login", authController.LoginPage)
	guest.POST("/login", limit, authController.Login)
	guest.GET("/register", authController.RegisterPage)
	guest.POST("/register", limit, authController.Register)
	guest.GET("/oauth/:provider/login", authController.OAuthRedirect)
	guest.GET("/oauth/:provider/callback", authController.OAuthCallback)

	r.POST("/logout", authController.Logout)
	r.GET("/captcha", limit, authController.Captcha)

	api := r.Group("/api/v1")
	api.GET("/posts", apiController.ListPosts)
	api.GET("/posts/:slug", apiController.GetPost)
	api.GET("/posts/:slug/stats", statsController.GetPostStats)
	api.GET("/tags", apiController.ListTags)
	api.GET("/stats", statsController.GetStats)
	api.GET("/config/site", configController.GetSite)
	api.GET("/config/notice", configController.GetNotice)

	r.NoRoute(func(ctx *gin.Context) {
		path := ctx.Request.URL.Path
		if strings.HasPrefix(path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		if strings.HasPrefix(path, "/static/") || strings.HasPrefix(path, cfg.MediaURL+"/") {
			ctx.Status(http.StatusNotFound)
			return
		}
		postController.NotFound(ctx)
	})

	return r
}
