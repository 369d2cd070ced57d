// Package validation turns untrusted request payloads into validated
// domain.PatientInput values.
package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/diapredict/diapredict/internal/domain"
)

// Request field names
const (
	FieldAge        = "age"
	FieldBloodGroup = "bloodGroup"
	FieldGender     = "gender"
	FieldWeight     = "weight"
	FieldHeight     = "height"
)

// maxBloodGroupLen bounds the blood group token in characters
const maxBloodGroupLen = 8

// result is the outcome of validating a single field: either a value or
// one or more violations
type result[T any] struct {
	Value  T
	Errors []*domain.ValidationError
}

func (r result[T]) ok() bool { return len(r.Errors) == 0 }

func (r *result[T]) fail(field, message string, value interface{}) {
	r.Errors = append(r.Errors, domain.NewValidationError(field, message, value))
}

// numberRule describes the constraints for a numeric field
type numberRule struct {
	field    string
	label    string
	min, max float64
	integer  bool
	minMsg   string
	maxMsg   string
	intMsg   string
}

var (
	ageRule = numberRule{
		field:   FieldAge,
		label:   "Age",
		min:     domain.MinAge,
		max:     domain.MaxAge,
		integer: true,
		minMsg:  "Age must be at least 1.",
		maxMsg:  "Age seems unrealistic.",
		intMsg:  "Age must be a whole number.",
	}
	weightRule = numberRule{
		field:  FieldWeight,
		label:  "Weight",
		min:    domain.MinWeight,
		max:    domain.MaxWeight,
		minMsg: "Weight must be positive.",
		maxMsg: "Weight seems unrealistic.",
	}
	heightRule = numberRule{
		field:   FieldHeight,
		label:   "Height",
		min:     domain.MinHeight,
		max:     domain.MaxHeight,
		integer: true,
		minMsg:  "Height must be at least 50cm.",
		maxMsg:  "Height seems unrealistic.",
		intMsg:  "Height must be a whole number (cm).",
	}
)

// ValidatePatient validates a decoded request object. On success it returns
// the typed input; otherwise it returns a *domain.InputValidationError with
// every violation keyed by field name. Unknown keys are ignored.
func ValidatePatient(raw map[string]interface{}) (domain.PatientInput, error) {
	age := validateAge(raw)
	bloodGroup := validateBloodGroup(raw)
	gender := validateGender(raw)
	weight := validateWeight(raw)
	height := validateHeight(raw)

	fields := domain.FieldErrors{}
	collect(fields, age.Errors)
	collect(fields, bloodGroup.Errors)
	collect(fields, gender.Errors)
	collect(fields, weight.Errors)
	collect(fields, height.Errors)

	if len(fields) > 0 {
		return domain.PatientInput{}, domain.NewInputValidationError(fields)
	}

	return domain.PatientInput{
		Age:        age.Value,
		BloodGroup: bloodGroup.Value,
		Gender:     gender.Value,
		Weight:     weight.Value,
		Height:     height.Value,
	}, nil
}

func collect(fields domain.FieldErrors, errs []*domain.ValidationError) {
	for _, e := range errs {
		fields.Add(e.Field, e.Message)
	}
}

func validateAge(raw map[string]interface{}) result[int] {
	n := validateNumber(raw, ageRule)
	return result[int]{Value: int(n.Value), Errors: n.Errors}
}

func validateWeight(raw map[string]interface{}) result[float64] {
	return validateNumber(raw, weightRule)
}

func validateHeight(raw map[string]interface{}) result[int] {
	n := validateNumber(raw, heightRule)
	return result[int]{Value: int(n.Value), Errors: n.Errors}
}

func validateBloodGroup(raw map[string]interface{}) result[string] {
	var r result[string]

	v, present := raw[FieldBloodGroup]
	if !present || v == nil {
		r.fail(FieldBloodGroup, "Blood group is required.", v)
		return r
	}

	s, ok := v.(string)
	if !ok {
		r.fail(FieldBloodGroup, "Blood group must be a string.", v)
		return r
	}

	s = strings.TrimSpace(s)
	if s == "" {
		r.fail(FieldBloodGroup, "Blood group is required.", v)
		return r
	}
	if utf8.RuneCountInString(s) > maxBloodGroupLen {
		r.fail(FieldBloodGroup, fmt.Sprintf("Blood group must be at most %d characters.", maxBloodGroupLen), v)
	}
	if strings.IndexFunc(s, func(c rune) bool { return unicode.IsSpace(c) || unicode.IsControl(c) }) >= 0 {
		r.fail(FieldBloodGroup, "Blood group must not contain spaces or control characters.", v)
	}
	if !r.ok() {
		return r
	}

	r.Value = s
	return r
}

func validateGender(raw map[string]interface{}) result[domain.Gender] {
	var r result[domain.Gender]

	v, present := raw[FieldGender]
	if !present || v == nil {
		r.fail(FieldGender, "Gender is required.", v)
		return r
	}

	s, _ := v.(string)
	g := domain.Gender(s)
	if !g.Valid() {
		r.fail(FieldGender, "Gender must be one of Male, Female, Other.", v)
		return r
	}

	r.Value = g
	return r
}

// validateNumber coerces and range-checks a numeric field. Range and
// integer checks are all reported, so 0.5 for age yields two messages.
func validateNumber(raw map[string]interface{}, rule numberRule) result[float64] {
	var r result[float64]

	v, present := raw[rule.field]
	if !present || v == nil {
		r.fail(rule.field, rule.label+" is required.", v)
		return r
	}

	f, ok := CoerceNumber(v)
	if !ok {
		r.fail(rule.field, rule.label+" must be a number.", v)
		return r
	}

	if f < rule.min {
		r.fail(rule.field, rule.minMsg, v)
	}
	if f > rule.max {
		r.fail(rule.field, rule.maxMsg, v)
	}
	if rule.integer && f != math.Trunc(f) {
		r.fail(rule.field, rule.intMsg, v)
	}

	if r.ok() {
		r.Value = f
	}
	return r
}

// CoerceNumber converts JSON numbers, Go numeric types and numeric-looking
// strings to float64. Booleans, null, containers, blank strings, NaN and
// infinities are not coercible.
func CoerceNumber(v interface{}) (float64, bool) {
	var f float64

	switch x := v.(type) {
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// DescribeField returns a human readable description of a request field,
// used for usage documentation.
func DescribeField(field string) string {
	switch field {
	case FieldAge:
		return fmt.Sprintf("integer (%d-%d) - The patient's age in years.", domain.MinAge, domain.MaxAge)
	case FieldBloodGroup:
		return "string (up to 8 characters, no spaces) - The patient's blood group (e.g., A+, O-)."
	case FieldGender:
		return "'Male' | 'Female' | 'Other' - The patient's gender."
	case FieldWeight:
		return fmt.Sprintf("number (%g-%g) - The patient's weight in kilograms.", domain.MinWeight, domain.MaxWeight)
	case FieldHeight:
		return fmt.Sprintf("integer (%d-%d) - The patient's height in centimeters.", domain.MinHeight, domain.MaxHeight)
	default:
		return ""
	}
}

// Fields lists the request fields in presentation order
func Fields() []string {
	return []string{FieldAge, FieldBloodGroup, FieldGender, FieldWeight, FieldHeight}
}
