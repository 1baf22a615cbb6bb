package circulation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	tagNotBlank = "notblank"
	tagPhone    = "phone"
	tagEmail    = "email"
	tagRequired = "required"

	fieldName  = "name"
	fieldEmail = "email"
	fieldPhone = "phone"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

var contactValidator = newContactValidator()

// Contact holds the reachable identity of a holder.
type Contact struct {
	Name  string `validate:"notblank"`
	Email string `validate:"required,email"`
	Phone string `validate:"required,phone"`
}

// Normalized returns the contact with surrounding blanks removed and the email lower-cased.
func (c Contact) Normalized() Contact {
	return Contact{
		Name:  strings.TrimSpace(c.Name),
		Email: strings.ToLower(strings.TrimSpace(c.Email)),
		Phone: strings.TrimSpace(c.Phone),
	}
}

// Validate checks every field and reports the first violation as a ValidationError.
func (c Contact) Validate() error {
	if err := contactValidator.Struct(c); err != nil {
		return toValidationError(err)
	}

	return nil
}

func validateName(name string) error {
	return validateField(fieldName, strings.TrimSpace(name), tagNotBlank)
}

func validateEmail(email string) error {
	return validateField(fieldEmail, strings.ToLower(strings.TrimSpace(email)), tagRequired+","+tagEmail)
}

func validatePhone(phone string) error {
	return validateField(fieldPhone, strings.TrimSpace(phone), tagRequired+","+tagPhone)
}

func validateField(field string, value string, tags string) error {
	if err := contactValidator.Var(value, tags); err != nil {
		vErr := toValidationError(err)
		vErr.Field = field

		return vErr
	}

	return nil
}

func newContactValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// registration only fails for empty tags or nil funcs
	_ = v.RegisterValidation(tagNotBlank, func(fl validator.FieldLevel) bool {
		field := fl.Field()
		if field.Kind() != reflect.String {
			return false
		}

		return strings.TrimSpace(field.String()) != ""
	})

	_ = v.RegisterValidation(tagPhone, func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})

	return v
}

func toValidationError(err error) ValidationError {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return ValidationError{Field: "contact", Reason: err.Error()}
	}

	first := fieldErrs[0]

	return ValidationError{
		Field:  strings.ToLower(first.Field()),
		Reason: reasonFor(first.Tag()),
	}
}

func reasonFor(tag string) string {
	switch tag {
	case tagNotBlank:
		return "must not be blank"
	case tagRequired:
		return "must not be empty"
	case tagEmail:
		return "must be a valid email address"
	case tagPhone:
		return "must be 10 to 15 digits with an optional leading +"
	default:
		return "is invalid (" + tag + ")"
	}
}
