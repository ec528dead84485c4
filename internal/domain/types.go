package domain

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/pbaille/pathwayqa/internal/schema"
)

// ID is the stable integer identifier of a knowledge base instance
type ID int64

func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Instance is a typed node of the knowledge base graph.
// Attribute values are either *Instance references or strings, depending on
// the schema attribute type. Values are only present once loaded.
type Instance struct {
	ID          ID
	Class       *schema.Class
	DisplayName string

	attrs map[string][]any
}

// NewInstance creates an instance shell with no loaded attributes
func NewInstance(id ID, class *schema.Class, displayName string) *Instance {
	return &Instance{
		ID:          id,
		Class:       class,
		DisplayName: displayName,
		attrs:       make(map[string][]any),
	}
}

// ClassName returns the schema class name
func (i *Instance) ClassName() string {
	if i.Class == nil {
		return ""
	}
	return i.Class.Name
}

// IsA reports whether the instance class is name or a subclass of it
func (i *Instance) IsA(name string) bool {
	return i.Class.IsA(name)
}

// Set replaces the loaded values of attr
func (i *Instance) Set(attr string, values ...any) {
	if i.attrs == nil {
		i.attrs = make(map[string][]any)
	}
	i.attrs[attr] = values
}

// Loaded reports whether attr has been hydrated
func (i *Instance) Loaded(attr string) bool {
	_, ok := i.attrs[attr]
	return ok
}

// Refs returns the instance values of attr in stored order
func (i *Instance) Refs(attr string) []*Instance {
	var out []*Instance
	for _, v := range i.attrs[attr] {
		if ref, ok := v.(*Instance); ok && ref != nil {
			out = append(out, ref)
		}
	}
	return out
}

// Ref returns the first instance value of attr, or nil
func (i *Instance) Ref(attr string) *Instance {
	for _, v := range i.attrs[attr] {
		if ref, ok := v.(*Instance); ok && ref != nil {
			return ref
		}
	}
	return nil
}

// Strings returns the string values of attr
func (i *Instance) Strings(attr string) []string {
	var out []string
	for _, v := range i.attrs[attr] {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Str returns the first string value of attr, or ""
func (i *Instance) Str(attr string) string {
	for _, v := range i.attrs[attr] {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (i *Instance) String() string {
	return fmt.Sprintf("%s [%s:%d]", i.DisplayName, i.ClassName(), i.ID)
}

// IDs returns the ids of instances, keeping order and duplicates
func IDs(instances []*Instance) []ID {
	out := make([]ID, 0, len(instances))
	for _, inst := range instances {
		out = append(out, inst.ID)
	}
	return out
}

// IDSet is a set of instance ids
type IDSet map[ID]struct{}

// NewIDSet builds a set from ids
func NewIDSet(ids ...ID) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id
func (s IDSet) Add(id ID) {
	s[id] = struct{}{}
}

// Has reports membership
func (s IDSet) Has(id ID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending order
func (s IDSet) Sorted() []ID {
	out := make([]ID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// ContainsAll reports whether every member of other is in s
func (s IDSet) ContainsAll(other IDSet) bool {
	for id := range other {
		if !s.Has(id) {
			return false
		}
	}
	return true
}

// Equal reports set equality
func (s IDSet) Equal(other IDSet) bool {
	return len(s) == len(other) && s.ContainsAll(other)
}

// Dedup returns instances with duplicate ids removed, keeping first occurrence
func Dedup(instances []*Instance) []*Instance {
	seen := make(IDSet, len(instances))
	out := make([]*Instance, 0, len(instances))
	for _, inst := range instances {
		if seen.Has(inst.ID) {
			continue
		}
		seen.Add(inst.ID)
		out = append(out, inst)
	}
	return out
}

// SortByID sorts instances in ascending id order
func SortByID(instances []*Instance) {
	sort.Slice(instances, func(a, b int) bool { return instances[a].ID < instances[b].ID })
}
