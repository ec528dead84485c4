package checks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pbaille/pathwayqa/internal/diagram"
	"github.com/pbaille/pathwayqa/internal/domain"
	"github.com/pbaille/pathwayqa/internal/qa"
)

// Event check categories
const (
	CategoryNotEmbedded     domain.Category = "reactions missing from ancestor diagram"
	CategoryReactionUndrawn domain.Category = "reaction not drawn"
)

// SubpathwayNotEmbedded reports pathways without their own diagram whose
// reactions are not all drawn in the diagram of the nearest drawn ancestor.
// Pathways with no drawn ancestor are left out.
func SubpathwayNotEmbedded() *qa.Check {
	return &qa.Check{
		Name:           "subpathway_not_embedded",
		Description:    "Reactions of an undrawn sub-pathway missing from the diagram of its nearest drawn ancestor",
		Header:         []string{"pathway_id", "pathway", "issue", "ids", "entities", "detail"},
		CandidateClass: "Pathway",
		Batch:          true,
		Rows: func(pw *domain.Instance, issue *domain.Issue) []string {
			return []string{pw.ID.String(), pw.DisplayName, string(issue.Category), issue.EntityIDList(), issue.EntityList(), issue.Detail}
		},
		Candidates: func(ctx context.Context, rc *qa.RunContext) ([]*domain.Instance, error) {
			idx, err := rc.Usage(ctx)
			if err != nil {
				return nil, err
			}
			pathways, err := rc.Client.FetchByClass(ctx, "Pathway")
			if err != nil {
				return nil, fmt.Errorf("fetch pathways: %w", err)
			}
			var out []*domain.Instance
			for _, pw := range pathways {
				if len(idx.DiagramsForPathway(pw.ID)) == 0 {
					out = append(out, pw)
				}
			}
			return out, nil
		},
		Inspect: qa.Single(func(ctx context.Context, rc *qa.RunContext, pw *domain.Instance) (*domain.Issue, error) {
			ancestor, err := rc.Resolver.FindEmbeddingAncestor(ctx, pw)
			if err != nil || ancestor == nil {
				return nil, err
			}
			diagrams, err := rc.Resolver.Diagrams(ctx, ancestor)
			if err != nil {
				return nil, err
			}

			drawn := make(domain.IDSet)
			for _, d := range diagrams {
				g, err := rc.Diagrams.Graph(ctx, d.ID)
				if errors.Is(err, domain.ErrMalformedDiagram) {
					continue
				}
				if err != nil {
					return nil, err
				}
				for id := range diagram.ExtractEntityIDs(g) {
					drawn.Add(id)
				}
			}

			missing, err := rc.Resolver.MissingReactions(ctx, pw, drawn, rc.Options.ExcludeDiseaseReactions)
			if err != nil || len(missing) == 0 {
				return nil, err
			}
			return domain.NewIssue(CategoryNotEmbedded, missing...).
				WithDetail(fmt.Sprintf("ancestor %s", ancestor)), nil
		}),
	}
}

// ReactionNotDrawn reports reaction-like events drawn in no diagram. With
// disease reactions excluded, a disease variant is fine when its normal
// reaction is drawn.
func ReactionNotDrawn() *qa.Check {
	return &qa.Check{
		Name:           "reaction_not_drawn",
		Description:    "Reaction-like events not drawn in any diagram",
		CandidateClass: "ReactionlikeEvent",
		Attributes:     []string{"disease", "normalReaction"},
		Batch:          true,
		Inspect: qa.Single(func(ctx context.Context, rc *qa.RunContext, rxn *domain.Instance) (*domain.Issue, error) {
			idx, err := rc.Usage(ctx)
			if err != nil {
				return nil, err
			}
			if idx.IsDrawn(rxn.ID) {
				return nil, nil
			}
			if rc.Options.ExcludeDiseaseReactions && len(rxn.Refs("disease")) > 0 {
				if normal := rxn.Ref("normalReaction"); normal != nil && idx.IsDrawn(normal.ID) {
					rc.Logger.Debug("Undrawn disease reaction covered by its normal reaction",
						zap.Int64("entity_id", int64(rxn.ID)),
						zap.Int64("normal_id", int64(normal.ID)))
					return nil, nil
				}
			}
			return domain.NewIssue(CategoryReactionUndrawn, rxn), nil
		}),
	}
}

// SubpathwayEmbeddings maps every pathway without its own diagram to the
// diagrams drawing all reactions below it. Pathways embedded nowhere are
// left out.
func SubpathwayEmbeddings(ctx context.Context, rc *qa.RunContext) (map[domain.ID]domain.IDSet, error) {
	idx, err := rc.Usage(ctx)
	if err != nil {
		return nil, err
	}
	diagrams, err := rc.AllDiagrams(ctx)
	if err != nil {
		return nil, err
	}
	pathways, err := rc.Client.FetchByClass(ctx, "Pathway")
	if err != nil {
		return nil, fmt.Errorf("fetch pathways: %w", err)
	}
	var undrawn []*domain.Instance
	for _, pw := range pathways {
		if len(idx.DiagramsForPathway(pw.ID)) == 0 {
			undrawn = append(undrawn, pw)
		}
	}
	emb, err := rc.UsageBuilder().BuildSubpathwayEmbedding(ctx, diagrams, undrawn)
	if err != nil {
		return nil, fmt.Errorf("build subpathway embedding: %w", err)
	}
	return emb, nil
}

// DiagramUsage renders, for reporting, the diagrams drawing each reaction
func DiagramUsage(ids domain.IDSet) string {
	return joinIDs(ids.Sorted())
}
