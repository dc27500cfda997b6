package forms

import "strings"

// TextForm is the single text area used for comments and replies.
type TextForm struct {
	Text string `form:"text" validate:"required,max=2000"`
}

func (f *TextForm) Clean() {
	f.Text = strings.TrimSpace(f.Text)
}
