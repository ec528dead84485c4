package compartment

import (
	"context"
	"fmt"

	"github.com/pbaille/pathwayqa/internal/domain"
)

// Container policies
var (
	Reaction  Policy = reactionPolicy{}
	Complex   Policy = complexPolicy{}
	EntitySet Policy = entitySetPolicy{}
)

type reactionPolicy struct{}

func (reactionPolicy) Class() string { return "ReactionlikeEvent" }

// Check applies, in order: participant cardinality, participant adjacency,
// declared cardinality, then the declared-to-participant containment match.
func (reactionPolicy) Check(ctx context.Context, e *Engine, rxn *domain.Instance) (*domain.Issue, error) {
	rxns := []*domain.Instance{rxn}
	if err := e.client.LoadAttributes(ctx, rxns, "input", "output", "catalystActivity", "compartment"); err != nil {
		return nil, fmt.Errorf("load reaction %d: %w", rxn.ID, err)
	}
	cas := rxn.Refs("catalystActivity")
	if err := e.client.LoadAttributes(ctx, cas, "physicalEntity"); err != nil {
		return nil, fmt.Errorf("load catalysts of %d: %w", rxn.ID, err)
	}

	var participants []*domain.Instance
	participants = append(participants, rxn.Refs("input")...)
	participants = append(participants, rxn.Refs("output")...)
	for _, ca := range cas {
		participants = append(participants, ca.Refs("physicalEntity")...)
	}
	comps, err := e.Compartments(ctx, domain.Dedup(participants))
	if err != nil {
		return nil, err
	}
	declared := domain.Dedup(rxn.Refs("compartment"))

	issue := func(cat domain.Category) *domain.Issue {
		return domain.NewIssue(cat, rxn).WithDetail(describe("reaction", declared, "participants", comps))
	}

	switch {
	case len(comps) > 2:
		return issue(CategoryTooManyCompartments), nil
	case len(comps) == 2 && !e.table.Adjacent(comps[0].ID, comps[1].ID):
		return issue(CategoryNotAdjacent), nil
	case len(declared) == 0:
		return issue(CategoryNoReactionCompartment), nil
	case len(declared) > 2:
		return issue(CategoryTooManyReactionCompartments), nil
	case len(comps) == 0:
		return nil, nil
	}

	ok, err := e.matchDeclared(ctx, declared, comps)
	if err != nil {
		return nil, err
	}
	if !ok {
		return issue(CategoryMismatch), nil
	}
	return nil, nil
}

type complexPolicy struct{}

func (complexPolicy) Class() string { return "Complex" }

func (complexPolicy) Check(ctx context.Context, e *Engine, cx *domain.Instance) (*domain.Issue, error) {
	if err := e.client.LoadAttributes(ctx, []*domain.Instance{cx}, "hasComponent", "compartment", "includedLocation"); err != nil {
		return nil, fmt.Errorf("load complex %d: %w", cx.ID, err)
	}
	declared := domain.Dedup(cx.Refs("compartment"))
	switch len(declared) {
	case 0:
		return domain.NewIssue(CategoryNoComplexCompartment, cx), nil
	case 1:
	default:
		return domain.NewIssue(CategoryTooManyComplexCompartments, cx).
			WithDetail(describe("complex", declared, "", nil)), nil
	}

	subunits, err := e.Compartments(ctx, domain.Dedup(cx.Refs("hasComponent")))
	if err != nil {
		return nil, err
	}
	if len(subunits) == 0 {
		return nil, nil
	}

	included := domain.Dedup(cx.Refs("includedLocation"))
	if len(included) == 0 {
		detail := describe("complex", declared, "subunits", subunits)
		if len(subunits) > 1 {
			return domain.NewIssue(CategoryTooManySubunitCompartments, cx).WithDetail(detail), nil
		}
		if !sameSet(subunits, declared) {
			return domain.NewIssue(CategoryMismatch, cx).WithDetail(detail), nil
		}
		return nil, nil
	}

	union := domain.Dedup(append(append([]*domain.Instance{}, declared...), included...))
	domain.SortByID(union)
	detail := describe("complex and included", union, "subunits", subunits)
	if !sameSet(union, subunits) {
		return domain.NewIssue(CategoryMismatch, cx).WithDetail(detail), nil
	}
	if !e.allAdjacent(union) {
		return domain.NewIssue(CategoryNotAdjacent, cx).WithDetail(detail), nil
	}
	return nil, nil
}

type entitySetPolicy struct{}

func (entitySetPolicy) Class() string { return "EntitySet" }

func (entitySetPolicy) Check(ctx context.Context, e *Engine, set *domain.Instance) (*domain.Issue, error) {
	if err := e.client.LoadAttributes(ctx, []*domain.Instance{set}, "hasMember", "hasCandidate", "compartment"); err != nil {
		return nil, fmt.Errorf("load entity set %d: %w", set.ID, err)
	}
	members := append(append([]*domain.Instance{}, set.Refs("hasMember")...), set.Refs("hasCandidate")...)
	comps, err := e.Compartments(ctx, domain.Dedup(members))
	if err != nil {
		return nil, err
	}
	if len(comps) == 0 {
		return nil, nil
	}
	declared := domain.Dedup(set.Refs("compartment"))
	domain.SortByID(declared)
	detail := describe("set", declared, "members", comps)
	if len(comps) > 2 {
		return domain.NewIssue(CategoryTooManyMemberCompartments, set).WithDetail(detail), nil
	}
	if !sameSet(comps, declared) {
		return domain.NewIssue(CategoryMismatch, set).WithDetail(detail), nil
	}
	return nil, nil
}
