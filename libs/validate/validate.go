// Package validate wraps go-playground/validator with the custom tags used by
// the kiosk apps.
package validate

import (
	"net/url"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	validate *validator.Validate

	// Digits with an optional leading plus, dashes and spaces allowed.
	phoneRegex = regexp.MustCompile(`^\+?[0-9][0-9 \-]{5,19}$`)

	sessionIDRegex = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,128}$`)
)

func init() {
	validate = validator.New()

	validate.RegisterValidation("phone", validatePhone)
	validate.RegisterValidation("sessionid", validateSessionID)
	validate.RegisterValidation("httpurl", validateHTTPURL)
}

// Struct validates a struct using its validate tags.
func Struct(s interface{}) error {
	return validate.Struct(s)
}

// Var validates a single value against a tag expression.
func Var(field interface{}, tag string) error {
	return validate.Var(field, tag)
}

func validatePhone(fl validator.FieldLevel) bool {
	return phoneRegex.MatchString(fl.Field().String())
}

func validateSessionID(fl validator.FieldLevel) bool {
	return sessionIDRegex.MatchString(fl.Field().String())
}

func validateHTTPURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}
