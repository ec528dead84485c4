// Package testhelpers provides an in-memory knowledge base for tests.
package testhelpers

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pbaille/pathwayqa/internal/domain"
	"github.com/pbaille/pathwayqa/internal/schema"
)

// Graph is an in-memory EntityGraphClient and DiagramDocumentStore.
// Instances are stored fully hydrated, so LoadAttributes only validates.
type Graph struct {
	Schema *schema.Schema

	mu        sync.RWMutex
	instances map[domain.ID]*domain.Instance
	documents map[domain.ID][]byte

	// Errors injected per method name, e.g. "LoadAttributes".
	Fail map[string]error
	// Calls counts method invocations per method name.
	Calls map[string]int
}

var _ domain.EntityGraphClient = (*Graph)(nil)
var _ domain.DiagramDocumentStore = (*Graph)(nil)

// NewGraph creates an empty graph using the default schema
func NewGraph() *Graph {
	return &Graph{
		Schema:    schema.Default(),
		instances: make(map[domain.ID]*domain.Instance),
		documents: make(map[domain.ID][]byte),
		Fail:      make(map[string]error),
		Calls:     make(map[string]int),
	}
}

// Add creates and stores an instance
func (g *Graph) Add(id domain.ID, class, name string) *domain.Instance {
	inst := domain.NewInstance(id, g.Schema.MustClass(class), name)
	g.mu.Lock()
	g.instances[id] = inst
	g.mu.Unlock()
	return inst
}

// Remove deletes an instance while leaving references to it in place
func (g *Graph) Remove(id domain.ID) {
	g.mu.Lock()
	delete(g.instances, id)
	g.mu.Unlock()
}

// SetDocument stores a raw diagram document
func (g *Graph) SetDocument(diagramID domain.ID, raw string) {
	g.mu.Lock()
	g.documents[diagramID] = []byte(raw)
	g.mu.Unlock()
}

// Compartment adds a compartment contained in parents via componentOf
func (g *Graph) Compartment(id domain.ID, name string, parents ...*domain.Instance) *domain.Instance {
	c := g.Add(id, "EntityCompartment", name)
	c.Set("componentOf", refs(parents)...)
	return c
}

// Entity adds a physical entity located in compartments
func (g *Graph) Entity(id domain.ID, class, name string, compartments ...*domain.Instance) *domain.Instance {
	e := g.Add(id, class, name)
	e.Set("compartment", refs(compartments)...)
	return e
}

// Diagram adds a PathwayDiagram representing pathway with the given document
func (g *Graph) Diagram(id domain.ID, pathway *domain.Instance, raw string) *domain.Instance {
	d := g.Add(id, "PathwayDiagram", fmt.Sprintf("Diagram of %s", pathway.DisplayName))
	d.Set("representedPathway", pathway)
	if raw != "" {
		g.SetDocument(id, raw)
	}
	return d
}

// Refs converts instances to attribute values
func Refs(instances ...*domain.Instance) []any {
	return refs(instances)
}

func refs(instances []*domain.Instance) []any {
	out := make([]any, len(instances))
	for i, inst := range instances {
		out[i] = inst
	}
	return out
}

func (g *Graph) enter(method string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls[method]++
	if err, ok := g.Fail[method]; ok {
		return domain.StoreError(method, err)
	}
	return nil
}

func (g *Graph) FetchByID(ctx context.Context, id domain.ID) (*domain.Instance, error) {
	if err := g.enter("FetchByID"); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.instances[id], nil
}

func (g *Graph) FetchByClass(ctx context.Context, class string) ([]*domain.Instance, error) {
	if err := g.enter("FetchByClass"); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*domain.Instance
	for _, inst := range g.instances {
		if inst.IsA(class) {
			out = append(out, inst)
		}
	}
	domain.SortByID(out)
	return out, nil
}

func (g *Graph) FetchByAttribute(ctx context.Context, class, attr string, op domain.Op, value any) ([]*domain.Instance, error) {
	if err := g.enter("FetchByAttribute"); err != nil {
		return nil, err
	}
	if !g.Schema.Declared(attr) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownAttribute, attr)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*domain.Instance
	for _, inst := range g.instances {
		if !inst.IsA(class) {
			continue
		}
		refs := inst.Refs(attr)
		strs := inst.Strings(attr)
		empty := len(refs) == 0 && len(strs) == 0
		switch op {
		case domain.OpIsNull:
			if empty {
				out = append(out, inst)
			}
		case domain.OpIsNotNull:
			if !empty {
				out = append(out, inst)
			}
		case domain.OpEquals:
			if matches(refs, strs, value) {
				out = append(out, inst)
			}
		default:
			return nil, fmt.Errorf("unsupported operator %q", op)
		}
	}
	domain.SortByID(out)
	return out, nil
}

func matches(refs []*domain.Instance, strs []string, value any) bool {
	switch v := value.(type) {
	case domain.ID:
		for _, r := range refs {
			if r.ID == v {
				return true
			}
		}
	case string:
		for _, s := range strs {
			if s == v {
				return true
			}
		}
	}
	return false
}

func (g *Graph) LoadAttributes(ctx context.Context, instances []*domain.Instance, attrs ...string) error {
	if err := g.enter("LoadAttributes"); err != nil {
		return err
	}
	for _, attr := range attrs {
		if !g.Schema.Declared(attr) {
			return fmt.Errorf("%w: %s", domain.ErrUnknownAttribute, attr)
		}
	}
	return nil
}

func (g *Graph) Existing(ctx context.Context, ids []domain.ID) (domain.IDSet, error) {
	if err := g.enter("Existing"); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(domain.IDSet)
	for _, id := range ids {
		if _, ok := g.instances[id]; ok {
			out.Add(id)
		}
	}
	return out, nil
}

func (g *Graph) ReverseReferences(ctx context.Context, target *domain.Instance, attr string) ([]*domain.Instance, error) {
	if err := g.enter("ReverseReferences"); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*domain.Instance
	for _, inst := range g.instances {
		for _, r := range inst.Refs(attr) {
			if r.ID == target.ID {
				out = append(out, inst)
				break
			}
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (g *Graph) GetRawDocument(ctx context.Context, diagramID domain.ID) ([]byte, error) {
	if err := g.enter("GetRawDocument"); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.documents[diagramID], nil
}
