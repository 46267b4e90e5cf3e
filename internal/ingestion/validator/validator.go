// Package validator checks ingestion payloads against their struct tags
// (including the custom dataset-name tag) and returns per-field error
// details.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/smartgrocer/basket-analytics-platform/internal/dataset"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names instead of Go field names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	validate.RegisterValidation("dataset", func(fl validator.FieldLevel) bool {
		return dataset.ValidName(fl.Field().String())
	})
}

// ValidationError holds per-field validation failure messages, keyed by the
// JSON field path.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	return strings.Join(parts, "; ")
}

// Validate runs struct-tag validation on a request type and converts
// failures into a ValidationError.
func Validate(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe)] = message(fe)
	}
	return &ValidationError{Fields: fields}
}

// fieldPath strips the root struct name, so
// "BatchRequest.transactions[2].item" becomes "transactions[2].item".
func fieldPath(fe validator.FieldError) string {
	path := fe.Namespace()
	if i := strings.Index(path, "."); i >= 0 {
		path = path[i+1:]
	}
	return path
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must have at most %s elements", fe.Param())
		}
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must have at least %s elements", fe.Param())
	case "datetime":
		return fmt.Sprintf("must match the %s date format", fe.Param())
	case "dataset":
		return "must be 1-64 letters, digits, dots, dashes or underscores"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
