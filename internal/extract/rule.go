package extract

import (
	"fmt"
	"regexp"

	"cdpcrawler/internal/domain"
)

// SlotSpec declares a named value slot
type SlotSpec struct {
	Name   string   `yaml:"name"`
	Shape  Shape    `yaml:"shape"`
	Values []string `yaml:"values,omitempty"` // allowed tokens for ShapeEnum
	List   bool     `yaml:"list,omitempty"`   // collect distinct values instead of overwriting
}

// PatternSpec is one line pattern. Named capture groups bind the slot of the
// same name.
type PatternSpec struct {
	Regex    string `yaml:"regex"`
	Boundary bool   `yaml:"boundary,omitempty"` // a match opens a new record
}

// RuleSet is the declarative, loadable form of an extraction table
type RuleSet struct {
	Name     string        `yaml:"name"`
	Command  string        `yaml:"command,omitempty"`
	Identity string        `yaml:"identity,omitempty"` // slot that must be bound for a boundary flush
	Slots    []SlotSpec    `yaml:"slots"`
	Patterns []PatternSpec `yaml:"patterns"`
}

type slot struct {
	name  string
	shape Shape
	enum  []string
	list  bool
}

type binding struct {
	group int
	slot  *slot
}

type pattern struct {
	re       *regexp.Regexp
	boundary bool
	bindings []binding
}

// Template is a compiled, immutable RuleSet. It is safe for concurrent use.
type Template struct {
	name     string
	command  string
	identity string
	slots    []*slot
	patterns []pattern
}

// Name returns the rule set name
func (t *Template) Name() string { return t.name }

// Command returns the CLI command whose output the template parses
func (t *Template) Command() string { return t.command }

// Identity returns the identity slot name, or empty
func (t *Template) Identity() string { return t.identity }

// SlotNames returns the declared slot names in declaration order
func (t *Template) SlotNames() []string {
	names := make([]string, len(t.slots))
	for i, s := range t.slots {
		names[i] = s.name
	}
	return names
}

// Compile validates rs and builds a Template. Every problem is reported as a
// *domain.ConfigurationError.
func Compile(rs RuleSet) (*Template, error) {
	source := rs.Name
	if source == "" {
		return nil, domain.NewConfigurationError("rule set", "name is required")
	}

	fail := func(format string, args ...any) *domain.ConfigurationError {
		return domain.NewConfigurationError("rule set "+source, fmt.Sprintf(format, args...))
	}

	if len(rs.Patterns) == 0 {
		return nil, fail("no patterns declared")
	}

	t := &Template{
		name:     rs.Name,
		command:  rs.Command,
		identity: rs.Identity,
	}

	byName := make(map[string]*slot, len(rs.Slots))
	for _, spec := range rs.Slots {
		if spec.Name == "" {
			return nil, fail("slot with empty name")
		}
		if _, dup := byName[spec.Name]; dup {
			return nil, fail("duplicate slot %q", spec.Name)
		}
		shape := spec.Shape
		if shape == "" {
			shape = ShapeText
		}
		if !shape.valid() {
			return nil, fail("slot %q has unknown shape %q", spec.Name, spec.Shape)
		}
		if shape == ShapeEnum && len(spec.Values) == 0 {
			return nil, fail("enum slot %q declares no values", spec.Name)
		}
		s := &slot{name: spec.Name, shape: shape, enum: spec.Values, list: spec.List}
		byName[spec.Name] = s
		t.slots = append(t.slots, s)
	}

	if rs.Identity != "" {
		if _, ok := byName[rs.Identity]; !ok {
			return nil, fail("identity slot %q is not declared", rs.Identity)
		}
	}

	identityBound := false
	hasBoundary := false
	for i, spec := range rs.Patterns {
		re, err := regexp.Compile(spec.Regex)
		if err != nil {
			cfgErr := fail("pattern %d does not compile", i)
			cfgErr.Err = err
			return nil, cfgErr
		}

		p := pattern{re: re, boundary: spec.Boundary}
		seen := make(map[string]bool)
		for group, name := range re.SubexpNames() {
			if group == 0 || name == "" {
				continue
			}
			s, ok := byName[name]
			if !ok {
				return nil, fail("pattern %d binds undeclared slot %q", i, name)
			}
			if seen[name] {
				return nil, fail("pattern %d binds slot %q twice", i, name)
			}
			seen[name] = true
			if name == rs.Identity {
				identityBound = true
			}
			p.bindings = append(p.bindings, binding{group: group, slot: s})
		}
		if spec.Boundary {
			hasBoundary = true
		}
		t.patterns = append(t.patterns, p)
	}

	if hasBoundary {
		if rs.Identity == "" {
			return nil, fail("boundary pattern declared without an identity slot")
		}
		if !identityBound {
			return nil, fail("identity slot %q is never bound by a pattern", rs.Identity)
		}
	}

	return t, nil
}

// MustCompile is like Compile but panics on error. It is meant for rule sets
// that ship with the binary.
func MustCompile(rs RuleSet) *Template {
	t, err := Compile(rs)
	if err != nil {
		panic(err)
	}
	return t
}
