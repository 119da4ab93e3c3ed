package ratelimit

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Default policy names
const (
	PolicyLogin   = "login"
	PolicyOTP     = "otp"
	PolicyPayment = "payment"
	PolicyAPI     = "api"
)

type strategyKind int

const (
	strategyClientIP strategyKind = iota
	strategySubject
	strategyField
)

// KeyStrategy decides which part of a request a policy counts against
type KeyStrategy struct {
	kind  strategyKind
	field string
}

var (
	// ByClientIP counts per caller address
	ByClientIP = KeyStrategy{kind: strategyClientIP}
	// BySubject counts per authenticated subject, falling back to the client IP
	BySubject = KeyStrategy{kind: strategySubject}
)

// ByField counts per value of a request field (e.g. the phone number an OTP is
// sent to), falling back to the client IP when the field is absent
func ByField(name string) KeyStrategy {
	return KeyStrategy{kind: strategyField, field: name}
}

// ParseKeyStrategy parses "client_ip", "subject" or "field:<name>"
func ParseKeyStrategy(s string) (KeyStrategy, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || s == "client_ip" || s == "ip":
		return ByClientIP, nil
	case s == "subject":
		return BySubject, nil
	case strings.HasPrefix(s, "field:"):
		name := strings.TrimSpace(strings.TrimPrefix(s, "field:"))
		if name == "" {
			return KeyStrategy{}, fmt.Errorf("key strategy %q has no field name", s)
		}
		return ByField(name), nil
	default:
		return KeyStrategy{}, fmt.Errorf("unknown key strategy %q", s)
	}
}

// NeedsSubject reports whether resolving the key wants the caller's subject
func (k KeyStrategy) NeedsSubject() bool {
	return k.kind == strategySubject
}

// Field returns the payload field a field strategy reads
func (k KeyStrategy) Field() string {
	return k.field
}

func (k KeyStrategy) String() string {
	switch k.kind {
	case strategySubject:
		return "subject"
	case strategyField:
		return "field:" + k.field
	default:
		return "client_ip"
	}
}

// KeySource is what a strategy may read from the current request
type KeySource struct {
	ClientIP string
	Subject  string
	// Field looks up a request field; nil when no payload is available
	Field func(name string) (string, bool)
}

// Resolve returns the client key for a request
func (k KeyStrategy) Resolve(src KeySource) string {
	switch k.kind {
	case strategySubject:
		if src.Subject != "" {
			return "sub:" + src.Subject
		}
	case strategyField:
		if src.Field != nil {
			if v, ok := src.Field(k.field); ok && v != "" {
				return k.field + ":" + v
			}
		}
	}
	return "ip:" + src.ClientIP
}

// Policy is a named fixed-window limit
type Policy struct {
	Name   string
	Window time.Duration
	Max    int
	Key    KeyStrategy
}

// Validate checks the policy is usable
func (p Policy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("policy name is required")
	}
	if strings.Contains(p.Name, ":") {
		return fmt.Errorf("policy %s: name must not contain ':'", p.Name)
	}
	if p.Window < time.Millisecond {
		return fmt.Errorf("policy %s: window must be at least 1ms", p.Name)
	}
	if p.Max < 1 {
		return fmt.Errorf("policy %s: max must be positive", p.Name)
	}
	return nil
}

// DefaultPolicies returns the platform's four named policies
func DefaultPolicies() []Policy {
	return []Policy{
		{Name: PolicyLogin, Window: 15 * time.Minute, Max: 5, Key: ByClientIP},
		{Name: PolicyOTP, Window: 10 * time.Minute, Max: 3, Key: ByField("phone")},
		{Name: PolicyPayment, Window: time.Minute, Max: 10, Key: BySubject},
		{Name: PolicyAPI, Window: time.Minute, Max: 100, Key: ByClientIP},
	}
}

// Registry holds the configured policies by name
type Registry struct {
	policies map[string]Policy
}

// NewRegistry validates and indexes policies. Duplicate names are an error.
func NewRegistry(policies ...Policy) (*Registry, error) {
	r := &Registry{policies: make(map[string]Policy, len(policies))}
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, exists := r.policies[p.Name]; exists {
			return nil, fmt.Errorf("duplicate policy %s", p.Name)
		}
		r.policies[p.Name] = p
	}
	return r, nil
}

// Get returns the named policy
func (r *Registry) Get(name string) (Policy, bool) {
	p, ok := r.policies[name]
	return p, ok
}

// Names returns the policy names in lexical order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
