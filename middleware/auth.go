package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/blogsite/models"
	"github.com/cppla/blogsite/utils"
)

const (
	// ContextUserIDKey is the key used to store authenticated user ID in Gin context.
	ContextUserIDKey = "user_id"
	// ContextUsernameKey stores the username inside Gin context.
	ContextUsernameKey = "username"
	// ContextUserKey stores the loaded *models.User.
	ContextUserKey = "user"
	// ContextTokenKey stores the raw session token, needed for logout.
	ContextTokenKey = "token"
)

// CurrentUser resolves the session token from the auth cookie or an Authorization bearer
// header and, when valid and not revoked, loads the user into the context. Anonymous
// requests pass through untouched.
func CurrentUser(db *gorm.DB) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := tokenFromRequest(ctx)
		if token == "" {
			ctx.Next()
			return
		}

		claims, err := utils.ParseToken(token)
		if err != nil || utils.IsTokenBlacklisted(token) {
			utils.ClearAuthCookie(ctx)
			ctx.Next()
			return
		}

		var user models.User
		if err := db.First(&user, claims.UserID).Error; err != nil {
			utils.ClearAuthCookie(ctx)
			ctx.Next()
			return
		}

		ctx.Set(ContextUserIDKey, user.ID)
		ctx.Set(ContextUsernameKey, user.Username)
		ctx.Set(ContextUserKey, &user)
		ctx.Set(ContextTokenKey, token)
		ctx.Next()
	}
}

func tokenFromRequest(ctx *gin.Context) string {
	if authHeader := ctx.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if c, err := ctx.Cookie(utils.AuthCookieName); err == nil {
		return c
	}
	return ""
}

// AuthRequired rejects anonymous requests with a JSON 401, for JSON endpoints.
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if _, ok := UserID(ctx); !ok {
			utils.AbortError(ctx, http.StatusUnauthorized, 40101, "authentication required")
			return
		}
		ctx.Next()
	}
}

// LoginRequired redirects anonymous visitors to the login page, remembering where they were going.
func LoginRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if _, ok := UserID(ctx); !ok {
			next := ctx.Request.URL.RequestURI()
			ctx.Redirect(http.StatusFound, "/login?next="+url.QueryEscape(next))
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// AnonymousOnly sends authenticated users home, for the login and registration pages.
func AnonymousOnly() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if _, ok := UserID(ctx); ok {
			ctx.Redirect(http.StatusFound, "/")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// UserID returns the authenticated user id set by CurrentUser.
func UserID(ctx *gin.Context) (uint, bool) {
	v, ok := ctx.Get(ContextUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id != 0
}

// User returns the authenticated user, or nil for anonymous requests.
func User(ctx *gin.Context) *models.User {
	if v, ok := ctx.Get(ContextUserKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}

// Token returns the raw session token of the authenticated request.
func Token(ctx *gin.Context) string {
	return ctx.GetString(ContextTokenKey)
}
