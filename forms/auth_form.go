package forms

import "strings"

// LoginForm binds the username/password login form.
type LoginForm struct {
	Username string `form:"username" validate:"required,max=64"`
	Password string `form:"password" validate:"required,max=72"`
	Next     string `form:"next"`
}

func (f *LoginForm) Clean() {
	f.Username = strings.TrimSpace(f.Username)
}

// RegisterForm binds the account registration form.
type RegisterForm struct {
	Username      string `form:"username" validate:"required,min=3,max=64,username"`
	Email         string `form:"email" validate:"omitempty,email,max=255"`
	Password      string `form:"password" validate:"required,min=8,max=72"`
	Confirm       string `form:"confirm" validate:"required,eqfield=Password"`
	CaptchaID     string `form:"captcha_id"`
	CaptchaAnswer string `form:"captcha_answer"`
}

func (f *RegisterForm) Clean() {
	f.Username = strings.TrimSpace(f.Username)
	f.Email = strings.TrimSpace(f.Email)
	f.CaptchaAnswer = strings.TrimSpace(f.CaptchaAnswer)
}
