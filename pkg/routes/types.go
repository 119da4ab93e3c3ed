package routes

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Table is the route table file
type Table struct {
	Routes []Route `yaml:"routes"`
}

// Route declares the gate in front of one upstream endpoint
type Route struct {
	Name   string `yaml:"name"`
	Method string `yaml:"method"`
	// Path is a gorilla/mux path template, e.g. /orders/{order_id}
	Path   string      `yaml:"path"`
	Policy string      `yaml:"policy,omitempty"`
	Auth   string      `yaml:"auth,omitempty"`
	Roles  StringList  `yaml:"roles,omitempty"`
	Rules  []FieldRule `yaml:"rules,omitempty"`
}

// FieldRule is the YAML form of validation.FieldRule
type FieldRule struct {
	Field    string  `yaml:"field"`
	Optional bool    `yaml:"optional,omitempty"`
	Checks   []Check `yaml:"checks,omitempty"`
}

// Check is the YAML form of validation.Check
type Check struct {
	Kind    string   `yaml:"kind"`
	Min     *float64 `yaml:"min,omitempty"`
	Max     *float64 `yaml:"max,omitempty"`
	Values  []string `yaml:"values,omitempty"`
	Pattern string   `yaml:"pattern,omitempty"`
	Message string   `yaml:"message,omitempty"`
}

// StringList accepts either a single scalar or a sequence, so
// `roles: staff` and `roles: [hr, admins]` both work
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", node.Line)
	}
}
