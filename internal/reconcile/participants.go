package reconcile

import (
	"context"
	"fmt"

	"github.com/pbaille/pathwayqa/internal/diagram"
	"github.com/pbaille/pathwayqa/internal/domain"
)

// Participants returns the model-side ids of a reaction grouped by role.
// Input and output keep duplicates; catalysts come from
// catalystActivity.physicalEntity and regulators are split into activators
// and inhibitors by regulation class.
func Participants(ctx context.Context, client domain.EntityGraphClient, rxn *domain.Instance) (map[Role][]domain.ID, error) {
	if !rxn.IsA("ReactionlikeEvent") {
		return nil, &domain.InvalidCandidateTypeError{ID: rxn.ID, Class: rxn.ClassName(), Want: "ReactionlikeEvent"}
	}
	rxns := []*domain.Instance{rxn}
	if err := client.LoadAttributes(ctx, rxns, "input", "output", "catalystActivity", "regulatedBy"); err != nil {
		return nil, fmt.Errorf("load participants of %d: %w", rxn.ID, err)
	}

	out := map[Role][]domain.ID{
		RoleInput:  domain.IDs(rxn.Refs("input")),
		RoleOutput: domain.IDs(rxn.Refs("output")),
	}

	cas := rxn.Refs("catalystActivity")
	if len(cas) > 0 {
		if err := client.LoadAttributes(ctx, cas, "physicalEntity"); err != nil {
			return nil, fmt.Errorf("load catalysts of %d: %w", rxn.ID, err)
		}
		for _, ca := range cas {
			if pe := ca.Ref("physicalEntity"); pe != nil {
				out[RoleCatalyst] = append(out[RoleCatalyst], pe.ID)
			}
		}
	}

	regs := rxn.Refs("regulatedBy")
	if len(regs) > 0 {
		if err := client.LoadAttributes(ctx, regs, "regulator"); err != nil {
			return nil, fmt.Errorf("load regulators of %d: %w", rxn.ID, err)
		}
		for _, reg := range regs {
			regulator := reg.Ref("regulator")
			if regulator == nil {
				continue
			}
			switch {
			case reg.IsA("NegativeRegulation"):
				out[RoleInhibitor] = append(out[RoleInhibitor], regulator.ID)
			case reg.IsA("PositiveRegulation"):
				out[RoleActivator] = append(out[RoleActivator], regulator.ID)
			}
		}
	}
	return out, nil
}

// CompareReaction reconciles a reaction with one of its drawn edges.
// The returned issue references the reaction.
func CompareReaction(ctx context.Context, client domain.EntityGraphClient, rxn *domain.Instance, e *diagram.Edge) (*domain.Issue, error) {
	model, err := Participants(ctx, client, rxn)
	if err != nil {
		return nil, err
	}
	issue := CompareRoles(model, DiagramRoles(e), DiagramStoichiometry(e))
	if issue != nil {
		issue.Entities = []*domain.Instance{rxn}
	}
	return issue, nil
}
