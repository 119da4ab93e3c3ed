package routes

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/gatekeeper/pkg/pipeline"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/ratelimit"
	"github.com/platinummonkey/gatekeeper/pkg/validation"
)

//go:embed default.yaml
var defaultTable []byte

// Default returns the built-in platform route table
func Default() *Table {
	t, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("built-in route table is invalid: %v", err))
	}
	return t
}

// Load reads a route table from a YAML file
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read route table: %w", err)
	}
	return Parse(data)
}

// Parse decodes a route table. Unknown keys are rejected so typos in rule
// names do not silently drop a check.
func Parse(data []byte) (*Table, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var t Table
	if err := dec.Decode(&t); err != nil {
		if errors.Is(err, io.EOF) {
			return &Table{}, nil
		}
		return nil, fmt.Errorf("failed to parse route table: %w", err)
	}
	return &t, nil
}

// Compiled is a route together with its pipeline spec
type Compiled struct {
	Route Route
	Spec  pipeline.Spec
}

var allowedMethods = map[string]struct{}{
	http.MethodGet:    {},
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
}

// Compile checks every route and turns it into a pipeline spec. policies is
// the set of rate limit policies routes may reference. All problems are
// reported together.
func (t *Table) Compile(policies *ratelimit.Registry) ([]Compiled, error) {
	var errs []error
	names := make(map[string]struct{}, len(t.Routes))
	endpoints := make(map[string]string, len(t.Routes))
	out := make([]Compiled, 0, len(t.Routes))

	for i, r := range t.Routes {
		label := r.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}

		if _, dup := names[r.Name]; dup && r.Name != "" {
			errs = append(errs, fmt.Errorf("route %s: duplicate name", label))
		}
		names[r.Name] = struct{}{}

		endpoint := strings.ToUpper(r.Method) + " " + r.Path
		if other, dup := endpoints[endpoint]; dup {
			errs = append(errs, fmt.Errorf("route %s: %s already declared by %s", label, endpoint, other))
		}
		endpoints[endpoint] = label

		spec, err := r.compile(policies)
		if err != nil {
			errs = append(errs, fmt.Errorf("route %s: %w", label, err))
			continue
		}
		r.Method = strings.ToUpper(r.Method)
		out = append(out, Compiled{Route: r, Spec: spec})
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

func (r Route) compile(policies *ratelimit.Registry) (pipeline.Spec, error) {
	spec := pipeline.Spec{Name: r.Name, Policy: r.Policy}

	if r.Name == "" {
		return spec, errors.New("name is required")
	}
	if _, ok := allowedMethods[strings.ToUpper(r.Method)]; !ok {
		return spec, fmt.Errorf("unsupported method %q", r.Method)
	}
	if !strings.HasPrefix(r.Path, "/") {
		return spec, fmt.Errorf("path %q must start with /", r.Path)
	}
	if r.Policy != "" {
		if policies == nil {
			return spec, fmt.Errorf("policy %q: no policies configured", r.Policy)
		}
		if _, ok := policies.Get(r.Policy); !ok {
			return spec, fmt.Errorf("unknown policy %q", r.Policy)
		}
	}

	mode, err := pipeline.ParseAuthMode(r.Auth)
	if err != nil {
		return spec, err
	}
	spec.Auth = mode

	if len(r.Roles) > 0 {
		if mode != pipeline.AuthRequired {
			return spec, fmt.Errorf("roles need auth: %s", pipeline.AuthRequired)
		}
		req, err := rbac.ParseRequirement(r.Roles)
		if err != nil {
			return spec, err
		}
		spec.Require = &req
	}

	rules, err := compileRules(r.Rules)
	if err != nil {
		return spec, err
	}
	spec.Rules = rules
	return spec, nil
}

func compileRules(in []FieldRule) (validation.RuleSet, error) {
	if len(in) == 0 {
		return nil, nil
	}
	rules := make(validation.RuleSet, 0, len(in))
	for _, fr := range in {
		if fr.Field == "" {
			return nil, errors.New("rule field is required")
		}
		rule := validation.FieldRule{Field: fr.Field, Optional: fr.Optional}
		for _, c := range fr.Checks {
			check, err := compileCheck(c)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", fr.Field, err)
			}
			rule.Checks = append(rule.Checks, check)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func compileCheck(c Check) (validation.Check, error) {
	kind, err := validation.ParseCheckKind(c.Kind)
	if err != nil {
		return validation.Check{}, err
	}
	if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
		return validation.Check{}, fmt.Errorf("%s: min %v is greater than max %v", kind, *c.Min, *c.Max)
	}

	out := validation.Check{Kind: kind, Min: c.Min, Max: c.Max, Message: c.Message}
	switch kind {
	case validation.KindLength:
		if c.Min == nil && c.Max == nil {
			return validation.Check{}, errors.New("length: min or max is required")
		}
	case validation.KindOneOf:
		if len(c.Values) == 0 {
			return validation.Check{}, errors.New("one_of: values are required")
		}
		out.Values = c.Values
	case validation.KindPattern:
		if c.Pattern == "" {
			return validation.Check{}, errors.New("pattern: pattern is required")
		}
		m, err := validation.Matches(c.Pattern)
		if err != nil {
			return validation.Check{}, err
		}
		out.Pattern = m.Pattern
	}
	return out, nil
}
