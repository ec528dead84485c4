package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed schema.yaml
var defaultSchema string

// ErrUnknownAttribute is returned when an attribute is not declared for a class
var ErrUnknownAttribute = errors.New("unknown attribute")

// ErrUnknownClass is returned when a class name is not declared in the schema
var ErrUnknownClass = errors.New("unknown class")

// Attribute value types
const (
	TypeInstance = "instance"
	TypeString   = "string"
	TypeInteger  = "integer"
)

// Attribute describes one declared attribute of a class
type Attribute struct {
	Name     string   `yaml:"name"`
	Type     string   `yaml:"type"`
	Multiple bool     `yaml:"multiple"`
	Allowed  []string `yaml:"allowed"`
}

// Class is a schema class with its inherited attributes resolved
type Class struct {
	Name  string
	Super *Class

	attributes map[string]*Attribute
	ancestors  map[string]bool
}

// IsA reports whether the class is name or one of its subclasses
func (c *Class) IsA(name string) bool {
	if c == nil {
		return false
	}
	return c.ancestors[name]
}

// Attribute returns the declared attribute, searching inherited ones too
func (c *Class) Attribute(name string) (*Attribute, bool) {
	if c == nil {
		return nil, false
	}
	a, ok := c.attributes[name]
	return a, ok
}

// AttributeNames returns all attribute names of the class, sorted
func (c *Class) AttributeNames() []string {
	names := make([]string, 0, len(c.attributes))
	for n := range c.attributes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Schema holds every class of the knowledge base
type Schema struct {
	classes map[string]*Class
	// attribute name -> declared anywhere
	attributes map[string]bool
}

type classDef struct {
	Name       string      `yaml:"name"`
	Super      string      `yaml:"super"`
	Attributes []Attribute `yaml:"attributes"`
}

type document struct {
	Classes []classDef `yaml:"classes"`
}

var (
	defaultOnce sync.Once
	defaultInst *Schema
)

// Default returns the embedded schema, loaded once per process
func Default() *Schema {
	defaultOnce.Do(func() {
		s, err := Load(strings.NewReader(defaultSchema))
		if err != nil {
			panic(fmt.Sprintf("embedded schema: %v", err))
		}
		defaultInst = s
	})
	return defaultInst
}

// Load parses a schema description
func Load(r io.Reader) (*Schema, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	defs := make(map[string]classDef, len(doc.Classes))
	for _, d := range doc.Classes {
		if d.Name == "" {
			return nil, fmt.Errorf("class without name")
		}
		if _, dup := defs[d.Name]; dup {
			return nil, fmt.Errorf("duplicate class %s", d.Name)
		}
		defs[d.Name] = d
	}

	s := &Schema{
		classes:    make(map[string]*Class, len(defs)),
		attributes: make(map[string]bool),
	}

	var resolve func(name string, visiting map[string]bool) (*Class, error)
	resolve = func(name string, visiting map[string]bool) (*Class, error) {
		if c, ok := s.classes[name]; ok {
			return c, nil
		}
		d, ok := defs[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownClass, name)
		}
		if visiting[name] {
			return nil, fmt.Errorf("inheritance cycle at %s", name)
		}
		visiting[name] = true

		c := &Class{
			Name:       name,
			attributes: make(map[string]*Attribute),
			ancestors:  map[string]bool{name: true},
		}
		if d.Super != "" {
			super, err := resolve(d.Super, visiting)
			if err != nil {
				return nil, fmt.Errorf("class %s: %w", name, err)
			}
			c.Super = super
			for n, a := range super.attributes {
				c.attributes[n] = a
			}
			for n := range super.ancestors {
				c.ancestors[n] = true
			}
		}
		for i := range d.Attributes {
			a := d.Attributes[i]
			switch a.Type {
			case TypeInstance, TypeString, TypeInteger:
			default:
				return nil, fmt.Errorf("class %s attribute %s: bad type %q", name, a.Name, a.Type)
			}
			c.attributes[a.Name] = &a
			s.attributes[a.Name] = true
		}
		s.classes[name] = c
		return c, nil
	}

	for name := range defs {
		if _, err := resolve(name, map[string]bool{}); err != nil {
			return nil, err
		}
	}

	// Allowed classes must exist
	for _, c := range s.classes {
		for _, a := range c.attributes {
			for _, allowed := range a.Allowed {
				if _, ok := s.classes[allowed]; !ok {
					return nil, fmt.Errorf("class %s attribute %s: %w: %s", c.Name, a.Name, ErrUnknownClass, allowed)
				}
			}
		}
	}

	return s, nil
}

// Class returns the named class
func (s *Schema) Class(name string) (*Class, bool) {
	c, ok := s.classes[name]
	return c, ok
}

// MustClass returns the named class or panics
func (s *Schema) MustClass(name string) *Class {
	c, ok := s.classes[name]
	if !ok {
		panic(fmt.Sprintf("schema: %v: %s", ErrUnknownClass, name))
	}
	return c
}

// Validate checks that attr is declared for class
func (s *Schema) Validate(class, attr string) error {
	c, ok := s.classes[class]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClass, class)
	}
	if _, ok := c.attributes[attr]; !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownAttribute, class, attr)
	}
	return nil
}

// Declared reports whether any class declares attr
func (s *Schema) Declared(attr string) bool {
	return s.attributes[attr]
}

// Subclasses returns name and all of its descendants, sorted
func (s *Schema) Subclasses(name string) []string {
	var out []string
	for n, c := range s.classes {
		if c.IsA(name) {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}
