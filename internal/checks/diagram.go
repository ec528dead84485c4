// Package checks defines the reconciliation checks run by pathwayqa.
package checks

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/pbaille/pathwayqa/internal/diagram"
	"github.com/pbaille/pathwayqa/internal/domain"
	"github.com/pbaille/pathwayqa/internal/qa"
	"github.com/pbaille/pathwayqa/internal/reconcile"
)

// Issue categories of the diagram checks
const (
	CategoryReactionsNotDrawn    domain.Category = "reactions not drawn"
	CategoryDeletedEntitiesDrawn domain.Category = "deleted entities drawn"
	CategoryOrphanEntities       domain.Category = "entities not connected"
)

var diagramHeader = []string{"diagram_id", "diagram", "issue", "ids", "entities", "detail"}

// diagramRow puts the checked diagram in front of the issue columns
func diagramRow(d *domain.Instance, issue *domain.Issue) []string {
	return []string{d.ID.String(), d.DisplayName, string(issue.Category), issue.EntityIDList(), issue.EntityList(), issue.Detail}
}

func joinIDs(ids []domain.ID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(int64(id), 10)
	}
	return strings.Join(parts, "|")
}

// DiagramMissingReactions reports reactions of a diagram's pathway that the
// diagram does not draw. Reactions of sub-pathways with their own diagram
// are left to those diagrams, and drawn ids unknown to the pathway are
// ignored here; see DiagramDeletedEntities.
func DiagramMissingReactions() *qa.Check {
	return &qa.Check{
		Name:           "diagram_missing_reactions",
		Description:    "Reactions of the represented pathway that are not drawn in its diagram",
		Header:         diagramHeader,
		CandidateClass: "PathwayDiagram",
		Attributes:     []string{"representedPathway"},
		Batch:          true,
		Rows:           diagramRow,
		Inspect: func(ctx context.Context, rc *qa.RunContext, d *domain.Instance) ([]*domain.Issue, error) {
			g, err := rc.Diagrams.Graph(ctx, d.ID)
			if err != nil {
				return nil, err
			}
			drawn := g.ReactionIDs()

			var issues []*domain.Issue
			for _, pw := range d.Refs("representedPathway") {
				missing, err := rc.Resolver.MissingReactions(ctx, pw, drawn, rc.Options.ExcludeDiseaseReactions)
				if err != nil {
					return nil, err
				}
				if len(missing) == 0 {
					continue
				}
				issues = append(issues, domain.NewIssue(CategoryReactionsNotDrawn, missing...).
					WithDetail(fmt.Sprintf("pathway %s", pw)))
			}
			return issues, nil
		},
	}
}

// DiagramDeletedEntities reports ids drawn in a diagram that no longer exist.
// It scans the raw document instead of parsing it.
func DiagramDeletedEntities() *qa.Check {
	return &qa.Check{
		Name:           "diagram_deleted_entities",
		Description:    "Entity ids drawn in a diagram that are absent from the knowledge base",
		Header:         diagramHeader,
		CandidateClass: "PathwayDiagram",
		Batch:          true,
		Rows:           diagramRow,
		Inspect: qa.Single(func(ctx context.Context, rc *qa.RunContext, d *domain.Instance) (*domain.Issue, error) {
			ids, err := rc.Diagrams.EntityIDs(ctx, d.ID, true)
			if err != nil {
				return nil, err
			}
			if len(ids) == 0 {
				return nil, nil
			}
			existing, err := rc.Client.Existing(ctx, ids.Sorted())
			if err != nil {
				return nil, fmt.Errorf("look up drawn ids of %d: %w", d.ID, err)
			}
			var deleted []domain.ID
			for _, id := range ids.Sorted() {
				if !existing.Has(id) {
					deleted = append(deleted, id)
				}
			}
			if len(deleted) == 0 {
				return nil, nil
			}
			return domain.NewIssue(CategoryDeletedEntitiesDrawn, d).WithDetail(joinIDs(deleted)), nil
		}),
	}
}

// DiagramOrphanEntities reports entity nodes attached to no reaction edge
func DiagramOrphanEntities() *qa.Check {
	return &qa.Check{
		Name:           "diagram_orphan_entities",
		Description:    "Entity nodes of a diagram not connected to any reaction",
		Header:         diagramHeader,
		CandidateClass: "PathwayDiagram",
		Batch:          true,
		Rows:           diagramRow,
		Inspect: qa.Single(func(ctx context.Context, rc *qa.RunContext, d *domain.Instance) (*domain.Issue, error) {
			g, err := rc.Diagrams.Graph(ctx, d.ID)
			if err != nil {
				return nil, err
			}
			orphans := g.OrphanNodes()
			if len(orphans) == 0 {
				return nil, nil
			}
			ids := make(domain.IDSet)
			for _, n := range orphans {
				ids.Add(n.EntityID)
			}
			return domain.NewIssue(CategoryOrphanEntities, d).WithDetail(joinIDs(ids.Sorted())), nil
		}),
	}
}

// DiagramReactionSync compares every drawn reaction with its participants.
// A reaction that cannot be compared is logged and its siblings still are.
func DiagramReactionSync() *qa.Check {
	return &qa.Check{
		Name:           "diagram_reaction_sync",
		Description:    "Drawn reactions whose connected nodes disagree with the reaction participants",
		Header:         diagramHeader,
		CandidateClass: "PathwayDiagram",
		Batch:          true,
		Rows:           diagramRow,
		Inspect: func(ctx context.Context, rc *qa.RunContext, d *domain.Instance) ([]*domain.Issue, error) {
			g, err := rc.Diagrams.Graph(ctx, d.ID)
			if err != nil {
				return nil, err
			}
			logger := rc.Logger.With(zap.Int64("diagram_id", int64(d.ID)))

			var issues []*domain.Issue
			for _, e := range g.ReactionEdges() {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				issue, err := syncEdge(ctx, rc, e, logger)
				if err != nil {
					if errors.Is(err, domain.ErrBackingStore) || ctx.Err() != nil {
						return nil, err
					}
					logger.Warn("Skipping drawn reaction",
						zap.Int64("entity_id", int64(e.EntityID)),
						zap.Error(err))
					continue
				}
				if issue != nil {
					issues = append(issues, issue)
				}
			}
			return issues, nil
		},
	}
}

func syncEdge(ctx context.Context, rc *qa.RunContext, e *diagram.Edge, logger *zap.Logger) (*domain.Issue, error) {
	if e.EntityID == 0 {
		return nil, nil
	}
	rxn, err := rc.Client.FetchByID(ctx, e.EntityID)
	if err != nil {
		return nil, err
	}
	if rxn == nil {
		// reported by diagram_deleted_entities
		logger.Debug("Drawn reaction does not exist", zap.Int64("entity_id", int64(e.EntityID)))
		return nil, nil
	}
	if !rxn.IsA("ReactionlikeEvent") {
		return nil, &domain.InvalidCandidateTypeError{ID: rxn.ID, Class: rxn.ClassName(), Want: "ReactionlikeEvent"}
	}
	return reconcile.CompareReaction(ctx, rc.Client, rxn, e)
}
