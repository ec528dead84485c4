package checks

import (
	"context"
	"fmt"
	"strings"

	"github.com/pbaille/pathwayqa/internal/compartment"
	"github.com/pbaille/pathwayqa/internal/domain"
	"github.com/pbaille/pathwayqa/internal/qa"
)

// CategorySpeciesMismatch is raised by ComplexSpecies
const CategorySpeciesMismatch domain.Category = "subunit species not in complex"

func compartmentCheck(name, description string, policy compartment.Policy) *qa.Check {
	return &qa.Check{
		Name:           name,
		Description:    description,
		CandidateClass: policy.Class(),
		Attributes:     []string{"compartment"},
		Batch:          true,
		Inspect: qa.Single(func(ctx context.Context, rc *qa.RunContext, e *domain.Instance) (*domain.Issue, error) {
			return rc.Compartments.CheckContainer(ctx, policy, e)
		}),
	}
}

// ReactionCompartment checks reaction compartments against participants
func ReactionCompartment() *qa.Check {
	return compartmentCheck("reaction_compartment",
		"Reaction compartments inconsistent with participant compartments", compartment.Reaction)
}

// ComplexCompartment checks complex compartments against subunits
func ComplexCompartment() *qa.Check {
	return compartmentCheck("complex_compartment",
		"Complex compartments inconsistent with subunit compartments", compartment.Complex)
}

// EntitySetCompartment checks entity set compartments against members
func EntitySetCompartment() *qa.Check {
	return compartmentCheck("entity_set_compartment",
		"Entity set compartments different from member compartments", compartment.EntitySet)
}

// ComplexSpecies reports complexes with a subunit from a species the complex
// does not declare.
func ComplexSpecies() *qa.Check {
	return &qa.Check{
		Name:           "complex_species",
		Description:    "Subunit species not declared on the complex",
		CandidateClass: "Complex",
		Attributes:     []string{"hasComponent", "species"},
		Batch:          true,
		Inspect: qa.Single(func(ctx context.Context, rc *qa.RunContext, cx *domain.Instance) (*domain.Issue, error) {
			subunits := domain.Dedup(cx.Refs("hasComponent"))
			if len(subunits) == 0 {
				return nil, nil
			}
			if err := rc.Client.LoadAttributes(ctx, subunits, "species"); err != nil {
				return nil, fmt.Errorf("load subunit species of %d: %w", cx.ID, err)
			}
			declared := domain.NewIDSet(domain.IDs(cx.Refs("species"))...)

			var extra []*domain.Instance
			for _, s := range subunits {
				for _, sp := range s.Refs("species") {
					if !declared.Has(sp.ID) {
						extra = append(extra, sp)
					}
				}
			}
			extra = domain.Dedup(extra)
			if len(extra) == 0 {
				return nil, nil
			}
			domain.SortByID(extra)
			names := make([]string, len(extra))
			for i, sp := range extra {
				names[i] = sp.DisplayName
			}
			return domain.NewIssue(CategorySpeciesMismatch, cx).WithDetail(strings.Join(names, ", ")), nil
		}),
	}
}
