package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/blogsite/config"
	"github.com/cppla/blogsite/utils"
)

// ConfigController serves site settings to API clients.
type ConfigController struct{}

func NewConfigController() *ConfigController { return &ConfigController{} }

// GetSite returns the public site settings.
func (c *ConfigController) GetSite(ctx *gin.Context) {
	cfg := config.Get()
	utils.Success(ctx, gin.H{
		"name":             cfg.SiteName,
		"media_url":        cfg.MediaURL,
		"max_upload_mb":    cfg.MaxUploadMB,
		"captcha_required": cfg.RegisterCaptchaEnabled,
		"oauth": gin.H{
			"github": cfg.GitHubClientID != "",
			"google": cfg.GoogleClientID != "",
		},
	})
}

// GetNotice returns the announcement configured for the site.
func (c *ConfigController) GetNotice(ctx *gin.Context) {
	cfg := config.Get()
	utils.Success(ctx, gin.H{
		"title": cfg.NoticeTitle,
		"html":  utils.Sanitize(cfg.NoticeHTML),
	})
}
