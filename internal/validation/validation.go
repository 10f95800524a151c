// Package validation checks request structs with the same "binding" rules gin uses
// and turns failures into messages fit for a form.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// Validator returns the shared validator. It reads the "binding" tag and reports
// fields by their json name.
func Validator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.SetTagName("binding")
		validate.RegisterTagNameFunc(jsonName)
	})
	return validate
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

// Error lists the fields that failed validation, each with one message.
type Error struct {
	Fields map[string]string
	order  []string
}

func (e *Error) Error() string {
	if len(e.order) == 0 {
		return "validation failed"
	}
	return e.Fields[e.order[0]]
}

// First returns the message of the first failing field.
func (e *Error) First() string {
	return e.Error()
}

// Struct validates s. It returns nil or an *Error.
func Struct(s any) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}
	if d, ok := Describe(s, err); ok {
		return d
	}
	return err
}

// Describe converts a validator failure for obj into an *Error. Messages come from the
// field's "message" tag when present. ok is false when err is not a validation failure.
func Describe(obj any, err error) (*Error, bool) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, false
	}

	t := reflect.TypeOf(obj)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	out := &Error{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		// gin's own validator reports Go field names, so resolve the json name here.
		name, msg := fe.Field(), ""
		if t != nil && t.Kind() == reflect.Struct {
			if sf, ok := t.FieldByName(fe.StructField()); ok {
				if n := jsonName(sf); n != "" {
					name = n
				}
				msg = sf.Tag.Get("message")
			}
		}
		if _, seen := out.Fields[name]; seen {
			continue
		}
		if msg == "" {
			msg = message(name, fe)
		}
		out.Fields[name] = msg
		out.order = append(out.order, name)
	}
	return out, true
}

func message(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return "Invalid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "datetime":
		return fmt.Sprintf("Invalid %s format", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
