package utils

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/blogsite/config"
)

const (
	// AuthCookieName holds the session JWT for browser clients.
	AuthCookieName  = "blog_token"
	flashCookieName = "blog_flash"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Level   string
	Message string
}

// SetAuthCookie stores the session token in an HttpOnly cookie.
func SetAuthCookie(ctx *gin.Context, token string) {
	cfg := config.Get()
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(AuthCookieName, token, cfg.TokenTTLHours*3600, "/", "", cfg.CookieSecure, true)
}

// ClearAuthCookie expires the session cookie.
func ClearAuthCookie(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(AuthCookieName, "", -1, "/", "", config.Get().CookieSecure, true)
}

// SetFlash queues a message for the next page render.
func SetFlash(ctx *gin.Context, level, message string) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(flashCookieName, level+"|"+message, 60, "/", "", config.Get().CookieSecure, true)
}

// PopFlash returns and clears the queued message, if any.
func PopFlash(ctx *gin.Context) *Flash {
	raw, err := ctx.Cookie(flashCookieName)
	if err != nil || raw == "" {
		return nil
	}
	ctx.SetCookie(flashCookieName, "", -1, "/", "", config.Get().CookieSecure, true)
	level, message, ok := strings.Cut(raw, "|")
	if !ok {
		return &Flash{Level: "info", Message: raw}
	}
	return &Flash{Level: level, Message: message}
}
