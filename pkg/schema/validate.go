package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// FieldError is a single rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field that violated the Scheme constraints,
// in declaration order.
type ValidationError struct {
	Errors []FieldError
}

// Error joins the field messages the way they are reported to API clients.
func (e *ValidationError) Error() string {
	return strings.Join(e.Messages(), ", ")
}

// Messages returns the human-readable message of each field error.
func (e *ValidationError) Messages() []string {
	out := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		out = append(out, fe.Message)
	}
	return out
}

// fieldOrder is the order in which field errors are reported.
var fieldOrder = []string{
	"name", "description", "category", "eligibility", "status", "startDate", "endDate",
}

var requiredMessages = map[string]string{
	"name":        "Scheme name is required",
	"description": "Description is required",
	"category":    "Category is required",
	"eligibility": "Eligibility criteria is required",
	"startDate":   "Start date is required",
}

// dateLayouts are tried in order when decoding startDate and endDate.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("scheme_category", func(fl validator.FieldLevel) bool {
			return Category(fl.Field().String()).IsValid()
		})
		_ = v.RegisterValidation("scheme_status", func(fl validator.FieldLevel) bool {
			return Status(fl.Field().String()).IsValid()
		})
		validate = v
	})
	return validate
}

// Prepare merges in onto a copy of current, or onto a fresh scheme with
// defaults when current is nil, then validates the result. The returned
// error is a *ValidationError when the merged record is not storable.
func Prepare(current *Scheme, in SchemeInput) (*Scheme, error) {
	var s *Scheme
	if current == nil {
		s = NewScheme()
	} else {
		s = current.Clone()
	}

	casts := map[string]string{}

	if in.Name != nil {
		s.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		s.Description = strings.TrimSpace(*in.Description)
	}
	if in.Category != nil {
		s.Category = Category(*in.Category)
	}
	if in.Eligibility != nil {
		s.Eligibility = *in.Eligibility
	}
	if in.Benefits != nil {
		s.Benefits = append([]string{}, (*in.Benefits)...)
	}
	if in.Status != nil {
		s.Status = Status(*in.Status)
	}
	if in.StartDate != nil {
		t, err := parseDate(*in.StartDate)
		switch {
		case err != nil:
			casts["startDate"] = castMessage(*in.StartDate, "startDate")
		case t == nil:
			s.StartDate = time.Time{}
		default:
			s.StartDate = *t
		}
	}
	if in.EndDate != nil {
		t, err := parseDate(*in.EndDate)
		if err != nil {
			casts["endDate"] = castMessage(*in.EndDate, "endDate")
		} else {
			s.EndDate = t
		}
	}
	if s.Benefits == nil {
		s.Benefits = []string{}
	}

	if err := Validate(s, casts); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks s against the struct-tag rules. extra carries messages
// for fields that already failed before validation (date casts); they take
// precedence over rule violations on the same field.
func Validate(s *Scheme, extra map[string]string) error {
	found := map[string]string{}

	err := structValidator().Struct(s)
	if err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate scheme: %w", err)
		}
		for _, fe := range verrs {
			found[fe.Field()] = ruleMessage(fe)
		}
	}
	for field, msg := range extra {
		found[field] = msg
	}
	if len(found) == 0 {
		return nil
	}

	verr := &ValidationError{}
	for _, field := range fieldOrder {
		if msg, ok := found[field]; ok {
			verr.Errors = append(verr.Errors, FieldError{Field: field, Message: msg})
		}
	}
	return verr
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		if msg, ok := requiredMessages[fe.Field()]; ok {
			return msg
		}
		return fmt.Sprintf("Path `%s` is required.", fe.Field())
	case "scheme_category", "scheme_status":
		return fmt.Sprintf("`%v` is not a valid enum value for path `%s`.", fe.Value(), fe.Field())
	default:
		return fmt.Sprintf("Path `%s` failed %s validation.", fe.Field(), fe.Tag())
	}
}

func castMessage(value, field string) string {
	return fmt.Sprintf("Cast to date failed for value %q at path %q", value, field)
}

// parseDate decodes a client supplied date. An empty string clears the
// field and yields a nil time.
func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC().Truncate(time.Millisecond)
			return &t, nil
		}
	}
	return nil, fmt.Errorf("parse date %q", raw)
}
