package service

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/noah-isme/enrollment-api/pkg/errors"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

// NewValidator returns a validator reporting json field names and knowing the
// "phone" rule.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return v
}

// validationError converts validator output into a VALIDATION_ERROR carrying
// one detail per offending field.
func validationError(err error, message string) *appErrors.Error {
	out := appErrors.Validation(err, message)
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		out.Details = make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			out.Details[fe.Field()] = fe.Tag()
		}
	}
	return out
}

// fieldError reports a single invalid field outside of struct tags.
func fieldError(field, rule, message string) *appErrors.Error {
	out := appErrors.Validation(nil, message)
	out.Details = map[string]string{field: rule}
	return out
}
