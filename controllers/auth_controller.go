package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"

	"github.com/cppla/blogsite/config"
	"github.com/cppla/blogsite/forms"
	"github.com/cppla/blogsite/middleware"
	"github.com/cppla/blogsite/models"
	"github.com/cppla/blogsite/utils"
)

const oauthStateTTL = 10 * time.Minute

// AuthController handles login, registration, logout and OAuth sign in.
type AuthController struct {
	pages
	db *gorm.DB
}

// NewAuthController creates a new AuthController instance.
func NewAuthController(db *gorm.DB) *AuthController {
	return &AuthController{pages: pages{db: db}, db: db}
}

// safeNext only accepts local absolute paths so the login redirect cannot leave the site.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

// LoginPage renders the sign in form.
func (a *AuthController) LoginPage(ctx *gin.Context) {
	a.renderLogin(ctx, http.StatusOK, forms.LoginForm{Next: ctx.Query("next")}, forms.FieldErrors{})
}

func (a *AuthController) renderLogin(ctx *gin.Context, status int, form forms.LoginForm, errs forms.FieldErrors) {
	form.Password = ""
	cfg := config.Get()
	a.render(ctx, status, "login.html", gin.H{
		"Form":        form,
		"Errors":      errs,
		"GitHubOAuth": cfg.GitHubClientID != "",
		"GoogleOAuth": cfg.GoogleClientID != "",
	})
}

// Login verifies the credentials and starts a session.
func (a *AuthController) Login(ctx *gin.Context) {
	var form forms.LoginForm
	errs := forms.Bind(ctx, &form)
	if errs.Any() {
		utils.Sugar.Warnw("invalid login form", "errors", errs)
		a.renderLogin(ctx, http.StatusBadRequest, form, errs)
		return
	}

	var user models.User
	err := a.db.Where("username = ?", form.Username).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		a.serverError(ctx, err, "load user failed")
		return
	}
	if err != nil || !utils.CheckPassword(user.PasswordHash, form.Password) {
		utils.Sugar.Infow("login rejected", "username", form.Username, "ip", ctx.ClientIP())
		errs.AddNonField("Please enter a correct username and password.")
		a.renderLogin(ctx, http.StatusBadRequest, form, errs)
		return
	}

	if err := a.startSession(ctx, &user); err != nil {
		a.serverError(ctx, err, "issue token failed")
		return
	}
	ctx.Redirect(http.StatusSeeOther, safeNext(form.Next))
}

func (a *AuthController) startSession(ctx *gin.Context, user *models.User) error {
	token, err := utils.GenerateToken(user.ID, user.Username, utils.TokenTTL())
	if err != nil {
		return err
	}
	utils.SetAuthCookie(ctx, token)
	utils.Sugar.Infow("user signed in", "user_id", user.ID, "provider", fallback(user.Provider, "password"))
	return nil
}

// RegisterPage renders the sign up form.
func (a *AuthController) RegisterPage(ctx *gin.Context) {
	a.renderRegister(ctx, http.StatusOK, forms.RegisterForm{}, forms.FieldErrors{})
}

func (a *AuthController) renderRegister(ctx *gin.Context, status int, form forms.RegisterForm, errs forms.FieldErrors) {
	form.Password, form.Confirm, form.CaptchaAnswer = "", "", ""
	data := gin.H{"Form": form, "Errors": errs}
	if config.Get().RegisterCaptchaEnabled {
		id, image, err := utils.GenerateCaptcha()
		if err != nil {
			a.serverError(ctx, err, "generate captcha failed")
			return
		}
		data["CaptchaID"] = id
		data["CaptchaImage"] = template.URL(image)
	}
	a.render(ctx, status, "register.html", data)
}

// Register creates a password account and signs it in.
func (a *AuthController) Register(ctx *gin.Context) {
	var form forms.RegisterForm
	errs := forms.Bind(ctx, &form)
	if config.Get().RegisterCaptchaEnabled && !utils.VerifyCaptcha(form.CaptchaID, form.CaptchaAnswer) {
		errs.Add("captcha_answer", "The captcha answer is incorrect.")
	}
	if !errs.Any() {
		var count int64
		if err := a.db.Model(&models.User{}).Where("username = ?", form.Username).Count(&count).Error; err != nil {
			a.serverError(ctx, err, "check username failed")
			return
		}
		if count > 0 {
			errs.Add("username", "A user with that username already exists.")
		}
	}
	if errs.Any() {
		utils.Sugar.Warnw("invalid registration form", "username", form.Username, "errors", errs)
		a.renderRegister(ctx, http.StatusBadRequest, form, errs)
		return
	}

	hash, err := utils.HashPassword(form.Password)
	if err != nil {
		a.serverError(ctx, err, "hash password failed")
		return
	}
	user := models.User{Username: form.Username, Email: form.Email, PasswordHash: hash}
	if err := a.db.Create(&user).Error; err != nil {
		a.serverError(ctx, err, "create user failed")
		return
	}
	if err := a.startSession(ctx, &user); err != nil {
		a.serverError(ctx, err, "issue token failed")
		return
	}
	utils.SetFlash(ctx, "success", "Welcome, "+user.Username+"!")
	ctx.Redirect(http.StatusSeeOther, "/")
}

// Captcha issues a fresh registration captcha as JSON.
func (a *AuthController) Captcha(ctx *gin.Context) {
	id, image, err := utils.GenerateCaptcha()
	if err != nil {
		utils.Sugar.Errorw("generate captcha failed", "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50007, "failed to generate captcha")
		return
	}
	utils.Success(ctx, gin.H{"captcha_id": id, "image": image})
}

// Logout revokes the session token until it would have expired and clears the cookie.
func (a *AuthController) Logout(ctx *gin.Context) {
	if token := middleware.Token(ctx); token != "" {
		claims, _ := utils.ParseToken(token)
		utils.BlacklistToken(token, utils.TokenExpiry(claims))
	}
	utils.ClearAuthCookie(ctx)
	ctx.Redirect(http.StatusSeeOther, "/")
}

// OAuthRedirect sends the browser to the provider's consent page.
func (a *AuthController) OAuthRedirect(ctx *gin.Context) {
	cfg, err := oauthConfig(ctx.Param("provider"))
	if err != nil {
		a.notFound(ctx)
		return
	}

	state := uuid.NewString()
	utils.SaveState(state, oauthStateTTL)
	ctx.Redirect(http.StatusFound, cfg.AuthCodeURL(state))
}

// OAuthCallback exchanges the authorization code for a user identity and starts a session.
func (a *AuthController) OAuthCallback(ctx *gin.Context) {
	provider := strings.ToLower(ctx.Param("provider"))
	cfg, err := oauthConfig(provider)
	if err != nil {
		a.notFound(ctx)
		return
	}

	code, state := ctx.Query("code"), ctx.Query("state")
	if code == "" || !utils.ConsumeState(state) {
		utils.Sugar.Warnw("oauth callback rejected", "provider", provider, "has_code", code != "")
		utils.SetFlash(ctx, "danger", "Sign in failed, please try again.")
		ctx.Redirect(http.StatusFound, "/login")
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), 15*time.Second)
	defer cancel()

	token, err := cfg.Exchange(reqCtx, code)
	if err != nil {
		utils.Sugar.Warnw("oauth exchange failed", "provider", provider, "error", err)
		utils.SetFlash(ctx, "danger", "Sign in failed, please try again.")
		ctx.Redirect(http.StatusFound, "/login")
		return
	}

	info, err := fetchOAuthUser(reqCtx, cfg.Client(reqCtx, token), provider)
	if err != nil {
		a.serverError(ctx, err, "fetch oauth user failed")
		return
	}
	user, err := a.findOrCreateOAuthUser(provider, info)
	if err != nil {
		a.serverError(ctx, err, "persist oauth user failed")
		return
	}
	if err := a.startSession(ctx, user); err != nil {
		a.serverError(ctx, err, "issue token failed")
		return
	}
	ctx.Redirect(http.StatusFound, "/")
}

func oauthConfig(provider string) (*oauth2.Config, error) {
	cfg := config.Get()
	switch strings.ToLower(provider) {
	case "github":
		if cfg.GitHubClientID == "" || cfg.GitHubClientSecret == "" {
			return nil, fmt.Errorf("github oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  fmt.Sprintf("%s/oauth/github/callback", cfg.OAuthRedirectBase),
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		}, nil
	case "google":
		if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
			return nil, fmt.Errorf("google oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  fmt.Sprintf("%s/oauth/google/callback", cfg.OAuthRedirectBase),
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

type oauthUser struct {
	ID        string
	Username  string
	Email     string
	AvatarURL string
}

func fetchOAuthUser(ctx context.Context, client *http.Client, provider string) (*oauthUser, error) {
	switch provider {
	case "github":
		var payload struct {
			ID        int64  `json:"id"`
			Login     string `json:"login"`
			Email     string `json:"email"`
			AvatarURL string `json:"avatar_url"`
		}
		if err := getJSON(ctx, client, "https://api.github.com/user", &payload); err != nil {
			return nil, err
		}
		return &oauthUser{
			ID:        fmt.Sprintf("%d", payload.ID),
			Username:  payload.Login,
			Email:     payload.Email,
			AvatarURL: payload.AvatarURL,
		}, nil
	case "google":
		var payload struct {
			ID      string `json:"id"`
			Email   string `json:"email"`
			Picture string `json:"picture"`
		}
		if err := getJSON(ctx, client, "https://www.googleapis.com/oauth2/v2/userinfo", &payload); err != nil {
			return nil, err
		}
		local, _, _ := strings.Cut(payload.Email, "@")
		return &oauthUser{ID: payload.ID, Username: local, Email: payload.Email, AvatarURL: payload.Picture}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func getJSON(ctx context.Context, client *http.Client, url string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("user info request failed: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

func (a *AuthController) findOrCreateOAuthUser(provider string, data *oauthUser) (*models.User, error) {
	var user models.User
	err := a.db.Where("provider = ? AND provider_id = ?", provider, data.ID).First(&user).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{"avatar_url": data.AvatarURL}
		if email := strings.TrimSpace(data.Email); email != "" {
			updates["email"] = email
		}
		if err := a.db.Model(&user).Updates(updates).Error; err != nil {
			utils.Sugar.Warnw("refresh oauth profile failed", "user_id", user.ID, "error", err)
		}
		return &user, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	username, err := a.ensureUniqueUsername(data.Username, provider, data.ID)
	if err != nil {
		return nil, err
	}
	user = models.User{
		Username:   username,
		Email:      strings.TrimSpace(data.Email),
		Provider:   provider,
		ProviderID: data.ID,
		AvatarURL:  data.AvatarURL,
	}
	if err := a.db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func fallback(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func sanitizeUsername(input string) string {
	input = strings.ToLower(strings.TrimSpace(input))
	var builder strings.Builder
	for _, r := range input {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '_' || r == '-' || r == '.':
			builder.WriteRune('_')
		}
	}
	return strings.Trim(builder.String(), "_")
}

// ensureUniqueUsername derives a free username, appending _1, _2, ... when taken.
func (a *AuthController) ensureUniqueUsername(base, provider, id string) (string, error) {
	base = sanitizeUsername(base)
	if len(base) < 3 {
		base = sanitizeUsername(provider + "_" + id)
	}
	if len(base) > 56 {
		base = base[:56]
	}

	candidate := base
	for suffix := 1; ; suffix++ {
		var count int64
		if err := a.db.Model(&models.User{}).Where("username = ?", candidate).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d", base, suffix)
	}
}
