package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatekeeper/pkg/accesserr"
)

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

// Validate applies every rule in order. Each field contributes at most one
// failure (its first failing check) and a bad field never stops later fields
// from being checked. The result is nil or a ValidationFailed rejection.
func Validate(p *Payload, rules RuleSet) error {
	var failures []accesserr.Failure

	for _, rule := range rules {
		v, present := p.Get(rule.Field)
		if isAbsent(v, present) {
			if !rule.Optional {
				failures = append(failures, accesserr.Failure{
					Field:   rule.Field,
					Message: rule.Field + " is required",
				})
			}
			continue
		}

		for _, c := range rule.Checks {
			if msg, ok := evaluate(c, v); !ok {
				if c.Message != "" {
					msg = c.Message
				}
				failures = append(failures, accesserr.Failure{
					Field:   rule.Field,
					Message: rule.Field + " " + msg,
				})
				break
			}
		}
	}

	if len(failures) > 0 {
		return accesserr.ValidationFailed(failures)
	}
	return nil
}

func isAbsent(v interface{}, present bool) bool {
	if !present || v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// evaluate runs one check; on failure it returns the message suffix
func evaluate(c Check, v interface{}) (string, bool) {
	switch c.Kind {
	case KindString:
		_, ok := v.(string)
		return "must be a string", ok

	case KindInteger:
		n, ok := toFloat(v)
		if !ok || n != math.Trunc(n) || math.IsInf(n, 0) {
			return "must be an integer", false
		}
		return checkRange(c, n)

	case KindNumber:
		n, ok := toFloat(v)
		if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
			return "must be a number", false
		}
		return checkRange(c, n)

	case KindBoolean:
		switch val := v.(type) {
		case bool:
			return "", true
		case string:
			if val == "true" || val == "false" {
				return "", true
			}
		}
		return "must be true or false", false

	case KindUUID:
		s, ok := v.(string)
		if !ok {
			return "must be a valid UUID", false
		}
		if _, err := uuid.Parse(s); err != nil || len(s) != 36 {
			return "must be a valid UUID", false
		}
		return "", true

	case KindISODate:
		s, ok := v.(string)
		if ok && isISODate(s) {
			return "", true
		}
		return "must be a date (YYYY-MM-DD or RFC 3339)", false

	case KindEmail:
		s, ok := v.(string)
		if !ok {
			return "must be a valid email address", false
		}
		addr, err := mail.ParseAddress(s)
		if err != nil || addr.Address != s || addr.Name != "" {
			return "must be a valid email address", false
		}
		return "", true

	case KindPhone:
		s, ok := v.(string)
		if ok && e164.MatchString(s) {
			return "", true
		}
		return "must be a phone number in E.164 format", false

	case KindLength:
		s, ok := v.(string)
		if !ok {
			return "must be a string", false
		}
		n := float64(utf8.RuneCountInString(s))
		if (c.Min != nil && n < *c.Min) || (c.Max != nil && n > *c.Max) {
			return lengthMessage(c), false
		}
		return "", true

	case KindOneOf:
		s, ok := scalarString(v)
		if ok {
			for _, allowed := range c.Values {
				if s == allowed {
					return "", true
				}
			}
		}
		return "must be one of: " + strings.Join(c.Values, ", "), false

	case KindPattern:
		s, ok := v.(string)
		if ok && c.Pattern != nil && c.Pattern.MatchString(s) {
			return "", true
		}
		return "has an invalid format", false

	default:
		return fmt.Sprintf("has an unsupported check %q", c.Kind), false
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func checkRange(c Check, n float64) (string, bool) {
	if c.Min != nil && n < *c.Min {
		return "must be at least " + formatBound(*c.Min), false
	}
	if c.Max != nil && n > *c.Max {
		return "must be at most " + formatBound(*c.Max), false
	}
	return "", true
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func lengthMessage(c Check) string {
	switch {
	case c.Min != nil && c.Max != nil:
		return fmt.Sprintf("must be between %s and %s characters", formatBound(*c.Min), formatBound(*c.Max))
	case c.Max != nil:
		return fmt.Sprintf("must be at most %s characters", formatBound(*c.Max))
	default:
		return fmt.Sprintf("must be at least %s characters", formatBound(*c.Min))
	}
}

func isISODate(s string) bool {
	if _, err := time.Parse("2006-01-02", s); err == nil {
		return true
	}
	_, err := time.Parse(time.RFC3339, s)
	return err == nil
}
