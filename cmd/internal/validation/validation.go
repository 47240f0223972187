// Package validation holds the input schemas for chat messages, credentials and the
// lead-capture forms. Each schema is a plain struct plus a function returning either
// the normalized value or an *Error listing field violations.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid matches every *Error via errors.Is.
var ErrInvalid = errors.New("validation failed")

// Violation is one failed rule on one field.
type Violation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Error carries the violations of one schema check, in field declaration order.
type Error struct {
	Violations []Violation
}

func (e *Error) Error() string { return e.First() }

func (e *Error) Is(target error) bool { return target == ErrInvalid }

// First is the message shown when only one notice fits (a toast, a chat error).
func (e *Error) First() string {
	if e == nil || len(e.Violations) == 0 {
		return ""
	}
	return e.Violations[0].Message
}

// Fields maps each field to its first violation message, for inline form errors.
func (e *Error) Fields() map[string]string {
	out := make(map[string]string, len(e.Violations))
	for _, v := range e.Violations {
		if _, ok := out[v.Field]; !ok {
			out[v.Field] = v.Message
		}
	}
	return out
}

// messages maps "field.rule" to the human text; unmapped pairs get a generic line.
type messages map[string]string

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	mustRegister(v, "demo_role", oneOfSet(DemoRoles))
	mustRegister(v, "company_size", oneOfSet(CompanySizes))
	mustRegister(v, "interest_area", oneOfSet(InterestAreas))
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %s: %v", tag, err))
	}
}

func oneOfSet(values []string) validator.Func {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return func(fl validator.FieldLevel) bool {
		_, ok := set[fl.Field().String()]
		return ok
	}
}

// check runs the struct rules and translates failures through msgs.
func check(v any, msgs messages) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := &Error{Violations: make([]Violation, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		field := fieldName(fe)
		msg, ok := msgs[field+"."+fe.Tag()]
		if !ok {
			msg = fmt.Sprintf("%s is invalid", humanize(field))
		}
		out.Violations = append(out.Violations, Violation{Field: field, Rule: fe.Tag(), Message: msg})
	}
	return out
}

// fieldName strips the struct prefix and any slice index ("interested_areas[2]").
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		ns = rest
	}
	if i := strings.IndexByte(ns, '['); i >= 0 {
		ns = ns[:i]
	}
	return ns
}

func humanize(field string) string {
	s := strings.ReplaceAll(field, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
