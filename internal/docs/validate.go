package docs

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	validate    = newValidator()
	tagNameExpr = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("doctype", func(fl validator.FieldLevel) bool {
		return DocumentType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("deptype", func(fl validator.FieldLevel) bool {
		switch DependencyType(fl.Field().String()) {
		case DepTypeData, DepTypeInterface, DepTypeConfig:
			return true
		}
		return false
	})
	_ = v.RegisterValidation("tagname", func(fl validator.FieldLevel) bool {
		return tagNameExpr.MatchString(fl.Field().String())
	})
	return v
}

// ValidationError names the first offending field and a user-facing reason.
type ValidationError struct {
	Field  string
	Code   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Validate checks s against its validate tags and returns a *ValidationError for the
// first failing field.
func Validate(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	return formatFieldError(fieldErrs[0])
}

func formatFieldError(e validator.FieldError) *ValidationError {
	field := e.Field()
	out := &ValidationError{Field: field, Code: "VALIDATION_ERROR"}
	switch e.Tag() {
	case "required":
		out.Reason = fmt.Sprintf("%s is required", field)
		if field == "dependency_type" {
			out.Code = "MISSING_DEPENDENCY_TYPE"
		}
	case "nefield":
		out.Code = "SELF_REFERENCE"
		out.Reason = "a document cannot reference itself"
	case "eq":
		out.Code = "INVALID_RELATION_TYPE"
		out.Reason = fmt.Sprintf("%s must be %s", field, e.Param())
	case "max":
		out.Reason = fmt.Sprintf("%s must be at most %s characters", field, e.Param())
	case "min":
		out.Reason = fmt.Sprintf("%s must be at least %s characters", field, e.Param())
	case "doctype":
		out.Reason = fmt.Sprintf("%s is not a known document type", field)
	case "tagname":
		out.Reason = "tag name must be 1-50 letters, digits, underscores or dashes"
	case "deptype":
		out.Reason = fmt.Sprintf("%s must be one of: data interface config", field)
	default:
		out.Reason = fmt.Sprintf("%s is invalid", field)
	}
	return out
}
