package gateway

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Tanzanian mobile numbers in +255XXXXXXXXX or 0XXXXXXXXX form.
var phonePattern = regexp.MustCompile(`^(\+255|0)\d{9}$`)

var validate = NewValidator()

// NewValidator returns a validator that knows the tzphone tag and reports
// fields by their json names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("tzphone", func(fl validator.FieldLevel) bool {
		return ValidPhone(fl.Field().String())
	})
	return v
}

// ValidPhone reports whether phone is an accepted mobile money number.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(strings.TrimSpace(phone))
}

// Validate checks req without touching the network.
func (req CreateOrderRequest) Validate() error {
	return ValidateStruct(req)
}

// ValidateStruct runs struct validation and converts the first failure into
// a ValidationError.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Tag() == "tzphone" {
			return &ValidationError{
				Field:   fe.Field(),
				Message: "invalid phone number format, use +255XXXXXXXXX or 0XXXXXXXXX",
			}
		}
		return &ValidationError{Field: fe.Field(), Message: "failed on '" + fe.Tag() + "' rule"}
	}
	return &ValidationError{Message: err.Error()}
}
