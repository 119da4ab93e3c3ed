// Package validation checks request fields against a declared rule set and
// reports every bad field at once.
//
// # Rules
//
//	rules := validation.RuleSet{
//		validation.Required("restaurant_id", validation.IsUUID()),
//		validation.Required("quantity", validation.IntegerRange(1, 50)),
//		validation.Optional("delivery_date", validation.IsISODate()),
//		validation.Required("payment_method", validation.OneOf("card", "upi", "cod")),
//	}
//
// A required field that is absent, null or an empty string fails with
// "<field> is required". Optional fields are skipped when absent.
//
// # Evaluation
//
//	payload, err := validation.FromRequest(r)
//	err = validation.Validate(payload, rules)
//
// Fields are checked in declaration order. A field reports only its first
// failing check; every field is always checked. The error is an
// accesserr ValidationFailed carrying the failures in rule order.
//
// Field names may be dotted to reach nested body objects ("address.city").
package validation
