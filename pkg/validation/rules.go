package validation

import (
	"fmt"
	"regexp"
)

// CheckKind identifies a field check
type CheckKind string

const (
	KindString  CheckKind = "string"
	KindInteger CheckKind = "integer"
	KindNumber  CheckKind = "number"
	KindBoolean CheckKind = "boolean"
	KindUUID    CheckKind = "uuid"
	KindISODate CheckKind = "iso_date"
	KindEmail   CheckKind = "email"
	KindPhone   CheckKind = "phone"
	KindLength  CheckKind = "length"
	KindOneOf   CheckKind = "one_of"
	KindPattern CheckKind = "pattern"
)

var knownKinds = map[CheckKind]struct{}{
	KindString: {}, KindInteger: {}, KindNumber: {}, KindBoolean: {}, KindUUID: {}, KindISODate: {},
	KindEmail: {}, KindPhone: {}, KindLength: {}, KindOneOf: {}, KindPattern: {},
}

// ParseCheckKind validates a check kind name
func ParseCheckKind(s string) (CheckKind, error) {
	k := CheckKind(s)
	if _, ok := knownKinds[k]; !ok {
		return "", fmt.Errorf("unknown check kind %q", s)
	}
	return k, nil
}

// Check is one test applied to a field value. Which parameters apply depends on Kind:
// Min/Max bound Integer and Number values and Length rune counts, Values lists
// OneOf members, Pattern is matched by Pattern.
type Check struct {
	Kind    CheckKind
	Min     *float64
	Max     *float64
	Values  []string
	Pattern *regexp.Regexp
	// Message replaces the generated failure message
	Message string
}

// FieldRule is the ordered list of checks for one field
type FieldRule struct {
	Field    string
	Optional bool
	Checks   []Check
}

// RuleSet is evaluated in declaration order
type RuleSet []FieldRule

// Required declares a field that must be present and non-empty
func Required(field string, checks ...Check) FieldRule {
	return FieldRule{Field: field, Checks: checks}
}

// Optional declares a field that is only checked when present
func Optional(field string, checks ...Check) FieldRule {
	return FieldRule{Field: field, Optional: true, Checks: checks}
}

func bound(v float64) *float64 { return &v }

// IsString requires a string value
func IsString() Check { return Check{Kind: KindString} }

// IsInteger requires an integral value (numeric strings allowed)
func IsInteger() Check { return Check{Kind: KindInteger} }

// IntegerRange requires an integer within [lo, hi]
func IntegerRange(lo, hi int64) Check {
	return Check{Kind: KindInteger, Min: bound(float64(lo)), Max: bound(float64(hi))}
}

// IsNumber requires a numeric value
func IsNumber() Check { return Check{Kind: KindNumber} }

// NumberRange requires a number within [lo, hi]
func NumberRange(lo, hi float64) Check {
	return Check{Kind: KindNumber, Min: bound(lo), Max: bound(hi)}
}

// IsBoolean requires true or false
func IsBoolean() Check { return Check{Kind: KindBoolean} }

// IsUUID requires a canonical UUID string
func IsUUID() Check { return Check{Kind: KindUUID} }

// IsISODate requires YYYY-MM-DD or an RFC 3339 timestamp
func IsISODate() Check { return Check{Kind: KindISODate} }

// IsEmail requires a bare email address
func IsEmail() Check { return Check{Kind: KindEmail} }

// IsPhone requires an E.164 phone number
func IsPhone() Check { return Check{Kind: KindPhone} }

// Length bounds the rune count of a string; hi <= 0 means unbounded
func Length(lo, hi int) Check {
	c := Check{Kind: KindLength, Min: bound(float64(lo))}
	if hi > 0 {
		c.Max = bound(float64(hi))
	}
	return c
}

// OneOf requires the value to be one of values
func OneOf(values ...string) Check {
	return Check{Kind: KindOneOf, Values: values}
}

// Matches requires the string to match pattern
func Matches(pattern string) (Check, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Check{}, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return Check{Kind: KindPattern, Pattern: re}, nil
}

// WithMessage returns c with a custom failure message
func (c Check) WithMessage(msg string) Check {
	c.Message = msg
	return c
}
