package httputil

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator that reports fields by their json names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// FieldErrors flattens validator errors into field → message.
// messages is keyed by "field.tag"; unmatched failures fall back to the tag name.
func FieldErrors(err error, messages map[string]string) map[string]string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}

	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		if _, seen := fields[fe.Field()]; seen {
			continue
		}
		if msg, ok := messages[fe.Field()+"."+fe.Tag()]; ok {
			fields[fe.Field()] = msg
			continue
		}
		fields[fe.Field()] = "failed on " + fe.Tag()
	}
	return fields
}
