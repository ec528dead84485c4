package compartment

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pbaille/pathwayqa/internal/domain"
)

// Issue categories
const (
	CategoryTooManyCompartments         domain.Category = "too many compartments"
	CategoryNotAdjacent                 domain.Category = "compartments not adjacent"
	CategoryNoReactionCompartment       domain.Category = "no reaction compartment"
	CategoryTooManyReactionCompartments domain.Category = "too many reaction compartments"
	CategoryMismatch                    domain.Category = "compartments mismatch"
	CategoryNoComplexCompartment        domain.Category = "no complex compartment"
	CategoryTooManyComplexCompartments  domain.Category = "too many complex compartments"
	CategoryTooManySubunitCompartments  domain.Category = "too many subunit compartments"
	CategoryTooManyMemberCompartments   domain.Category = "too many member compartments"
)

// containment attributes followed upward from a compartment
var containmentAttrs = []string{"componentOf", "instanceOf"}

// Policy is the container-kind specific compartment rule
type Policy interface {
	// Class is the schema class the policy applies to.
	Class() string
	// Check returns the first rule violation of container, or nil.
	Check(ctx context.Context, e *Engine, container *domain.Instance) (*domain.Issue, error)
}

// Engine evaluates compartment policies. The containment closure memo is
// keyed by compartment id and belongs to one check run.
type Engine struct {
	client domain.EntityGraphClient
	table  *Table
	logger *zap.Logger

	ancestors map[domain.ID]domain.IDSet
}

// NewEngine creates a run-scoped engine
func NewEngine(client domain.EntityGraphClient, table *Table, logger *zap.Logger) *Engine {
	if table == nil {
		table = DefaultTable()
	}
	return &Engine{
		client:    client,
		table:     table,
		logger:    logger.Named("compartment-engine"),
		ancestors: make(map[domain.ID]domain.IDSet),
	}
}

// Table returns the neighbor table in use
func (e *Engine) Table() *Table {
	return e.table
}

// CheckContainer applies policy to container
func (e *Engine) CheckContainer(ctx context.Context, policy Policy, container *domain.Instance) (*domain.Issue, error) {
	if !container.IsA(policy.Class()) {
		return nil, &domain.InvalidCandidateTypeError{ID: container.ID, Class: container.ClassName(), Want: policy.Class()}
	}
	return policy.Check(ctx, e, container)
}

// Ancestors returns the containment closure of a compartment, itself included
func (e *Engine) Ancestors(ctx context.Context, comp *domain.Instance) (domain.IDSet, error) {
	if set, ok := e.ancestors[comp.ID]; ok {
		return set, nil
	}
	set := domain.NewIDSet(comp.ID)
	queue := []*domain.Instance{comp}
	for len(queue) > 0 {
		if err := e.client.LoadAttributes(ctx, queue, containmentAttrs...); err != nil {
			return nil, fmt.Errorf("load containment of %d: %w", comp.ID, err)
		}
		var next []*domain.Instance
		for _, c := range queue {
			for _, attr := range containmentAttrs {
				for _, p := range c.Refs(attr) {
					if set.Has(p.ID) {
						continue
					}
					set.Add(p.ID)
					next = append(next, p)
				}
			}
		}
		queue = next
	}
	e.ancestors[comp.ID] = set
	return set, nil
}

// Contains reports whether outer equals inner or is a containment ancestor of it
func (e *Engine) Contains(ctx context.Context, outer, inner *domain.Instance) (bool, error) {
	anc, err := e.Ancestors(ctx, inner)
	if err != nil {
		return false, err
	}
	return anc.Has(outer.ID), nil
}

// Compartments returns the distinct compartments of entities, by ascending id
func (e *Engine) Compartments(ctx context.Context, entities []*domain.Instance) ([]*domain.Instance, error) {
	if len(entities) == 0 {
		return nil, nil
	}
	if err := e.client.LoadAttributes(ctx, entities, "compartment"); err != nil {
		return nil, fmt.Errorf("load compartments: %w", err)
	}
	var out []*domain.Instance
	for _, ent := range entities {
		out = append(out, ent.Refs("compartment")...)
	}
	out = domain.Dedup(out)
	domain.SortByID(out)
	return out, nil
}

// allAdjacent reports whether every pair of comps is registered as neighbors
func (e *Engine) allAdjacent(comps []*domain.Instance) bool {
	for i := range comps {
		for j := i + 1; j < len(comps); j++ {
			if !e.table.Adjacent(comps[i].ID, comps[j].ID) {
				return false
			}
		}
	}
	return true
}

// matchDeclared tries to pair every declared compartment with a distinct
// participant compartment it contains, or is excepted for.
func (e *Engine) matchDeclared(ctx context.Context, declared, participants []*domain.Instance) (bool, error) {
	if len(declared) > len(participants) {
		return false, nil
	}
	fits := func(d, p *domain.Instance) (bool, error) {
		if e.table.Excepted(d.ID, p.ID) {
			return true, nil
		}
		return e.Contains(ctx, d, p)
	}

	switch len(declared) {
	case 1:
		for _, p := range participants {
			ok, err := fits(declared[0], p)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	case 2:
		// every ordered pair (p, q) covers both assignments
		for i, p := range participants {
			a, err := fits(declared[0], p)
			if err != nil {
				return false, err
			}
			if !a {
				continue
			}
			for j, q := range participants {
				if i == j {
					continue
				}
				b, err := fits(declared[1], q)
				if err != nil {
					return false, err
				}
				if b {
					return true, nil
				}
			}
		}
		return false, nil
	}
	return false, nil
}

func sameSet(a, b []*domain.Instance) bool {
	return domain.NewIDSet(domain.IDs(a)...).Equal(domain.NewIDSet(domain.IDs(b)...))
}

func names(comps []*domain.Instance) string {
	if len(comps) == 0 {
		return "-"
	}
	parts := make([]string, len(comps))
	for i, c := range comps {
		parts[i] = c.DisplayName
	}
	return strings.Join(parts, ", ")
}

func describe(label string, comps []*domain.Instance, otherLabel string, other []*domain.Instance) string {
	if otherLabel == "" {
		return fmt.Sprintf("%s: %s", label, names(comps))
	}
	return fmt.Sprintf("%s: %s; %s: %s", label, names(comps), otherLabel, names(other))
}
