package handler

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// bdPhone matches Bangladeshi mobile numbers such as 01712345678.
var bdPhone = regexp.MustCompile(`^01[3-9]\d{8}$`)

// RequestValidator plugs go-playground/validator into echo.  Field names
// in messages are the JSON names.
type RequestValidator struct {
	validate *validator.Validate
}

func NewValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("bdphone", func(fl validator.FieldLevel) bool {
		return bdPhone.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return &RequestValidator{validate: v}
}

// Validate implements echo.Validator.  The returned error message names the
// first offending field and is safe to show to clients.
func (rv *RequestValidator) Validate(i interface{}) error {
	err := rv.validate.Struct(i)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return fmt.Errorf("%s: %s", fe.Field(), message(fe))
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters long", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters long", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	case "bdphone":
		return "must be a valid 11-digit phone number (e.g., 017...)"
	default:
		return fmt.Sprintf("is invalid (%s)", fe.Tag())
	}
}
