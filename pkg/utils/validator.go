package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)

// SanitizeString strips control characters (keeping tab and newlines) and surrounding space
func SanitizeString(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, ""))
}

// NewValidator returns a validator with the engine's custom tags registered
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// notblank rejects strings that are empty after trimming
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	// currency is a three-letter upper-case ISO 4217 code
	_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if len(s) != 3 {
			return false
		}
		return strings.ToUpper(s) == s && strings.IndexFunc(s, func(r rune) bool { return r < 'A' || r > 'Z' }) < 0
	})

	return v
}

// DescribeValidationError turns validator errors into a single readable sentence
func DescribeValidationError(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}

	parts := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
