package validator

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Tags registered on top of the go-playground built-ins.
const (
	TagGender = "gender"
	TagStage  = "stage"
)

const (
	minStage = 0
	maxStage = 4
)

var genders = map[string]struct{}{
	"male":   {},
	"female": {},
	"other":  {},
}

// Validator provides validation functionality
type Validator interface {
	Validate(interface{}) error
	ValidateField(field string, value interface{}, rules ...string) error
}

type structValidator struct {
	v *validator.Validate
}

func New() Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterCustom(v); err != nil {
		panic(err)
	}
	return &structValidator{v: v}
}

// RegisterCustom installs the domain tags and json field naming on v.
// It is shared with gin's binding engine so both layers agree.
func RegisterCustom(v *validator.Validate) error {
	if err := v.RegisterValidation(TagGender, validateGender); err != nil {
		return fmt.Errorf("register %s: %w", TagGender, err)
	}
	if err := v.RegisterValidation(TagStage, validateStage); err != nil {
		return fmt.Errorf("register %s: %w", TagStage, err)
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return nil
}

func (s *structValidator) Validate(obj interface{}) error {
	if err := s.v.Struct(obj); err != nil {
		return humanize(err)
	}
	return nil
}

func (s *structValidator) ValidateField(field string, value interface{}, rules ...string) error {
	if err := s.v.Var(value, strings.Join(rules, ",")); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			return fmt.Errorf("%s %s", field, message(errs[0]))
		}
		return err
	}
	return nil
}

func validateGender(fl validator.FieldLevel) bool {
	_, ok := genders[fl.Field().String()]
	return ok
}

func validateStage(fl validator.FieldLevel) bool {
	switch fl.Field().Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		s := fl.Field().Int()
		return s >= minStage && s <= maxStage
	default:
		return false
	}
}

// humanize turns the first field error into a short sentence and keeps
// the rest reachable through errors.As on the returned value.
func humanize(err error) error {
	errs, ok := err.(validator.ValidationErrors)
	if !ok || len(errs) == 0 {
		return err
	}
	return &FieldError{Field: errs[0].Field(), Message: message(errs[0]), all: errs}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "gt":
		return "must be greater than " + fe.Param()
	case TagGender:
		return "must be one of male, female, other"
	case TagStage:
		return fmt.Sprintf("must be between %d and %d", minStage, maxStage)
	default:
		return "failed on " + fe.Tag()
	}
}

// FieldError describes the first failing field of a struct.
type FieldError struct {
	Field   string
	Message string
	all     validator.ValidationErrors
}

func (e *FieldError) Error() string {
	return e.Field + " " + e.Message
}

// Unwrap exposes the underlying go-playground errors.
func (e *FieldError) Unwrap() error {
	return e.all
}
