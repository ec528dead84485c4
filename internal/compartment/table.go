// Package compartment checks that containers and their contents agree on
// where they are located.
package compartment

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pbaille/pathwayqa/internal/domain"
)

//go:embed compartments.yaml
var defaultTable []byte

type compartmentDef struct {
	ID        domain.ID   `yaml:"id"`
	Name      string      `yaml:"name"`
	Neighbors []domain.ID `yaml:"neighbors"`
}

type exceptionDef struct {
	Reaction domain.ID `yaml:"reaction"`
	Entity   domain.ID `yaml:"entity"`
}

type tableDoc struct {
	Compartments []compartmentDef `yaml:"compartments"`
	Exceptions   []exceptionDef   `yaml:"exceptions"`
}

type pair struct {
	reaction, entity domain.ID
}

// Table is the static neighbor table plus the reaction exception list
type Table struct {
	names      map[domain.ID]string
	neighbors  map[domain.ID]domain.IDSet
	exceptions map[pair]struct{}
}

var (
	defaultOnce sync.Once
	defaultTab  *Table
)

// DefaultTable returns the embedded table
func DefaultTable() *Table {
	defaultOnce.Do(func() {
		t, err := ParseTable(bytes.NewReader(defaultTable))
		if err != nil {
			panic(fmt.Sprintf("embedded compartment table: %v", err))
		}
		defaultTab = t
	})
	return defaultTab
}

// LoadTable reads a table file; an empty path selects the embedded table
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open compartment table: %w", err)
	}
	defer f.Close()
	return ParseTable(f)
}

// ParseTable decodes a YAML table and makes neighbor relations symmetric
func ParseTable(r io.Reader) (*Table, error) {
	var doc tableDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode compartment table: %w", err)
	}

	t := &Table{
		names:      make(map[domain.ID]string),
		neighbors:  make(map[domain.ID]domain.IDSet),
		exceptions: make(map[pair]struct{}),
	}
	for _, c := range doc.Compartments {
		if c.ID <= 0 {
			return nil, fmt.Errorf("compartment %q: invalid id %d", c.Name, c.ID)
		}
		if _, dup := t.names[c.ID]; dup {
			return nil, fmt.Errorf("compartment %d listed twice", c.ID)
		}
		t.names[c.ID] = c.Name
	}
	for _, c := range doc.Compartments {
		for _, n := range c.Neighbors {
			if n == c.ID {
				continue
			}
			t.link(c.ID, n)
			t.link(n, c.ID)
		}
	}
	for _, e := range doc.Exceptions {
		t.exceptions[pair{e.Reaction, e.Entity}] = struct{}{}
	}
	return t, nil
}

func (t *Table) link(a, b domain.ID) {
	set, ok := t.neighbors[a]
	if !ok {
		set = make(domain.IDSet)
		t.neighbors[a] = set
	}
	set.Add(b)
}

// Adjacent reports whether a and b are registered neighbors
func (t *Table) Adjacent(a, b domain.ID) bool {
	return t.neighbors[a].Has(b)
}

// Neighbors returns the neighbors of id in ascending order
func (t *Table) Neighbors(id domain.ID) []domain.ID {
	return t.neighbors[id].Sorted()
}

// Excepted reports whether a reaction located in reactionComp may have a
// participant in entityComp without containing it.
func (t *Table) Excepted(reactionComp, entityComp domain.ID) bool {
	_, ok := t.exceptions[pair{reactionComp, entityComp}]
	return ok
}

// Name returns the table name of a compartment, or "" when unlisted
func (t *Table) Name(id domain.ID) string {
	return t.names[id]
}

// Len returns the number of listed compartments
func (t *Table) Len() int {
	return len(t.names)
}
