// Package validation checks the shape and numeric ranges of every write
// request before it reaches a store.
package validation

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/pkg/errors"

	"github.com/vikasavnish/botbridge/internal/apperr"
)

var keySafe = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// Validator wraps a configured go-playground validator. It is safe for
// concurrent use.
type Validator struct {
	validate *validator.Validate
}

// New returns a validator that reports fields by their json names.
func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// NaN and Inf pass every numeric comparison tag, so they are rejected
	// explicitly.
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		switch fl.Field().Kind() {
		case reflect.Float32, reflect.Float64:
			f := fl.Field().Float()
			return !math.IsNaN(f) && !math.IsInf(f, 0)
		}
		return true
	})
	_ = v.RegisterValidation("keysafe", func(fl validator.FieldLevel) bool {
		return keySafe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("notblank", validators.NotBlank)

	return &Validator{validate: v}
}

// Struct validates s and returns an apperr validation error listing every
// rejected field.
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.Internal(err, "validate input")
	}
	fields := make([]apperr.FieldError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, apperr.FieldError{
			Field:   fieldPath(fe),
			Message: describe(fe),
		})
	}
	return apperr.ValidationFields(fields)
}

// fieldPath drops the struct name from the namespace, so nested fields read
// as "spot_adds[0].entry_price".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gte":
		return "must be >= " + fe.Param()
	case "gt":
		return "must be > " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	case "min":
		return "must have at least " + fe.Param() + " entries"
	case "max":
		return "must be at most " + fe.Param() + " long"
	case "unique":
		return "must not contain duplicates"
	case "finite":
		return "must be a finite number"
	case "keysafe":
		return "may only contain letters, digits, '_', '.' and '-'"
	case "notblank":
		return "must not be blank"
	case "datetime":
		return "must be an RFC 3339 timestamp"
	}
	return fmt.Sprintf("failed %q check", fe.Tag())
}
