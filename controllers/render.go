package controllers

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/blogsite/config"
	"github.com/cppla/blogsite/middleware"
	"github.com/cppla/blogsite/models"
	"github.com/cppla/blogsite/utils"
)

// pages renders HTML templates with the data shared by every page: the viewer, a pending
// flash message, the site settings and the category navigation.
type pages struct {
	db *gorm.DB
}

func (p pages) render(ctx *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	cfg := config.Get()

	var categories []models.Category
	if err := p.db.Order("title ASC").Find(&categories).Error; err != nil {
		utils.Sugar.Warnw("load navigation categories failed", "error", err)
	}

	for _, key := range []string{"Title", "Query"} {
		if _, ok := data[key]; !ok {
			data[key] = ""
		}
	}
	data["Viewer"] = middleware.User(ctx)
	data["Flash"] = utils.PopFlash(ctx)
	data["SiteName"] = cfg.SiteName
	data["NoticeTitle"] = cfg.NoticeTitle
	data["NoticeHTML"] = template.HTML(utils.Sanitize(cfg.NoticeHTML))
	data["NavCategories"] = categories
	data["Path"] = ctx.Request.URL.Path
	ctx.HTML(status, name, data)
}

func (p pages) notFound(ctx *gin.Context) {
	p.render(ctx, http.StatusNotFound, "error.html", gin.H{
		"Status":  http.StatusNotFound,
		"Message": "The page you are looking for does not exist.",
	})
}

func (p pages) serverError(ctx *gin.Context, err error, msg string) {
	utils.Logger.Error(msg, zap.Error(err), zap.String("path", ctx.Request.URL.Path))
	p.render(ctx, http.StatusInternalServerError, "error.html", gin.H{
		"Status":  http.StatusInternalServerError,
		"Message": "Something went wrong on our side.",
	})
}

// NotFound renders the 404 page for unmatched routes.
func (p *PostController) NotFound(ctx *gin.Context) {
	p.notFound(ctx)
}
