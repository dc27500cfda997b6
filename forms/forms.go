// Package forms binds and validates the HTML form submissions of the blog.
package forms

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("form"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("username", validUsername)
	_ = v.RegisterValidation("tagtitles", validTagTitles)
	return v
}

// validUsername allows letters, digits and - _ . in usernames.
func validUsername(fl validator.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}

// validTagTitles bounds every comma separated tag by MaxTagTitleLength runes.
func validTagTitles(fl validator.FieldLevel) bool {
	for _, title := range splitTags(fl.Field().String()) {
		if utf8.RuneCountInString(title) > MaxTagTitleLength {
			return false
		}
	}
	return true
}

// Form is implemented by every form; Clean normalises the bound values before validation.
type Form interface {
	Clean()
}

// FieldErrors maps a form field name to a human readable message.
// The "__all__" key holds errors that are not tied to a single field.
type FieldErrors map[string]string

const nonFieldKey = "__all__"

// Any reports whether at least one error is present.
func (fe FieldErrors) Any() bool { return len(fe) > 0 }

// Add records msg for field unless the field already has an error.
func (fe FieldErrors) Add(field, msg string) {
	if _, ok := fe[field]; !ok {
		fe[field] = msg
	}
}

// AddNonField records an error that belongs to the form as a whole.
func (fe FieldErrors) AddNonField(msg string) { fe.Add(nonFieldKey, msg) }

// NonField returns the form level error, if any.
func (fe FieldErrors) NonField() string { return fe[nonFieldKey] }

// Bind decodes the request form (urlencoded or multipart) into form, cleans it and validates it.
func Bind(ctx *gin.Context, form Form) FieldErrors {
	errs := FieldErrors{}
	if err := ctx.ShouldBindWith(form, binding.Form); err != nil {
		errs.Add(nonFieldKey, "The submitted form could not be read.")
		return errs
	}
	form.Clean()
	return Validate(form)
}

// Validate runs the struct validation rules of form.
func Validate(form Form) FieldErrors {
	errs := FieldErrors{}
	err := validate.Struct(form)
	if err == nil {
		return errs
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs.Add(nonFieldKey, err.Error())
		return errs
	}
	for _, fe := range verrs {
		errs.Add(fe.Field(), message(fe))
	}
	return errs
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return fmt.Sprintf("Ensure this value has at most %s characters.", fe.Param())
	case "min":
		return fmt.Sprintf("Ensure this value has at least %s characters.", fe.Param())
	case "gt":
		return "Select a valid choice."
	case "tagtitles":
		return fmt.Sprintf("Each tag must have at most %d characters.", MaxTagTitleLength)
	case "username":
		return "Use only letters, digits and - _ . characters."
	case "eqfield":
		return "The two fields didn't match."
	case "email":
		return "Enter a valid email address."
	default:
		return "Enter a valid value."
	}
}
