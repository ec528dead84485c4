// Package embedding resolves which diagram draws the contents of a pathway
// that has no diagram of its own.
package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pbaille/pathwayqa/internal/domain"
)

type ancestor struct {
	pathway *domain.Instance
}

// Resolver answers diagram ownership and embedding questions for pathways.
// Its memo tables are keyed by id and belong to one check run.
type Resolver struct {
	client domain.EntityGraphClient
	logger *zap.Logger

	diagrams  map[domain.ID][]*domain.Instance
	parents   map[domain.ID][]*domain.Instance
	ancestors map[domain.ID]ancestor
}

// NewResolver creates a run-scoped resolver
func NewResolver(client domain.EntityGraphClient, logger *zap.Logger) *Resolver {
	return &Resolver{
		client:    client,
		logger:    logger.Named("embedding-resolver"),
		diagrams:  make(map[domain.ID][]*domain.Instance),
		parents:   make(map[domain.ID][]*domain.Instance),
		ancestors: make(map[domain.ID]ancestor),
	}
}

// Diagrams returns the diagrams whose representedPathway is pw
func (r *Resolver) Diagrams(ctx context.Context, pw *domain.Instance) ([]*domain.Instance, error) {
	if ds, ok := r.diagrams[pw.ID]; ok {
		return ds, nil
	}
	refs, err := r.client.ReverseReferences(ctx, pw, "representedPathway")
	if err != nil {
		return nil, fmt.Errorf("find diagrams of %d: %w", pw.ID, err)
	}
	var ds []*domain.Instance
	for _, ref := range refs {
		if ref.IsA("PathwayDiagram") {
			ds = append(ds, ref)
		}
	}
	r.diagrams[pw.ID] = ds
	return ds, nil
}

// OwnsDiagram reports whether pw has its own diagram
func (r *Resolver) OwnsDiagram(ctx context.Context, pw *domain.Instance) (bool, error) {
	ds, err := r.Diagrams(ctx, pw)
	if err != nil {
		return false, err
	}
	return len(ds) > 0, nil
}

// Parents returns the pathways listing ev in hasEvent, by ascending id
func (r *Resolver) Parents(ctx context.Context, ev *domain.Instance) ([]*domain.Instance, error) {
	if ps, ok := r.parents[ev.ID]; ok {
		return ps, nil
	}
	refs, err := r.client.ReverseReferences(ctx, ev, "hasEvent")
	if err != nil {
		return nil, fmt.Errorf("find containers of %d: %w", ev.ID, err)
	}
	var ps []*domain.Instance
	for _, ref := range refs {
		if ref.IsA("Pathway") {
			ps = append(ps, ref)
		}
	}
	domain.SortByID(ps)
	r.parents[ev.ID] = ps
	return ps, nil
}

// FindEmbeddingAncestor returns the nearest containing pathway that owns a
// diagram, or nil when no ancestor does. All containers are searched breadth
// first; when several diagram owners are equally near, the lowest id wins and
// the ambiguity is logged.
func (r *Resolver) FindEmbeddingAncestor(ctx context.Context, pw *domain.Instance) (*domain.Instance, error) {
	if a, ok := r.ancestors[pw.ID]; ok {
		return a.pathway, nil
	}

	visited := domain.NewIDSet(pw.ID)
	frontier, err := r.Parents(ctx, pw)
	if err != nil {
		return nil, err
	}
	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var owners, next []*domain.Instance
		for _, p := range frontier {
			visited.Add(p.ID)
			owns, err := r.OwnsDiagram(ctx, p)
			if err != nil {
				return nil, err
			}
			if owns {
				owners = append(owners, p)
			}
		}
		if len(owners) > 0 {
			if len(owners) > 1 {
				r.logger.Warn("Several diagram-owning ancestors at the same depth",
					zap.Int64("entity_id", int64(pw.ID)),
					zap.Any("ancestors", domain.IDs(owners)),
					zap.Int64("chosen", int64(owners[0].ID)))
			}
			r.ancestors[pw.ID] = ancestor{pathway: owners[0]}
			return owners[0], nil
		}
		for _, p := range frontier {
			ps, err := r.Parents(ctx, p)
			if err != nil {
				return nil, err
			}
			for _, gp := range ps {
				if !visited.Has(gp.ID) {
					visited.Add(gp.ID)
					next = append(next, gp)
				}
			}
		}
		domain.SortByID(next)
		frontier = next
	}

	r.ancestors[pw.ID] = ancestor{}
	return nil, nil
}

// CollectOwnReactions gathers the reaction-like events below pw that are not
// drawn by a sub-diagram: child pathways owning a diagram are not descended.
func (r *Resolver) CollectOwnReactions(ctx context.Context, pw *domain.Instance) ([]*domain.Instance, error) {
	var out []*domain.Instance
	seen := make(domain.IDSet)
	if err := r.collect(ctx, pw, seen, &out); err != nil {
		return nil, err
	}
	domain.SortByID(out)
	return out, nil
}

func (r *Resolver) collect(ctx context.Context, pw *domain.Instance, seen domain.IDSet, out *[]*domain.Instance) error {
	seen.Add(pw.ID)
	if err := r.client.LoadAttributes(ctx, []*domain.Instance{pw}, "hasEvent"); err != nil {
		return fmt.Errorf("load events of %d: %w", pw.ID, err)
	}
	for _, ev := range pw.Refs("hasEvent") {
		if seen.Has(ev.ID) {
			continue
		}
		switch {
		case ev.IsA("ReactionlikeEvent"):
			seen.Add(ev.ID)
			*out = append(*out, ev)
		case ev.IsA("Pathway"):
			owns, err := r.OwnsDiagram(ctx, ev)
			if err != nil {
				return err
			}
			if owns {
				continue
			}
			if err := r.collect(ctx, ev, seen, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// MissingReactions returns the own reactions of pw absent from drawn.
// With excludeDisease, disease variants whose normal reaction is drawn may
// stay undrawn: when only such variants are missing, nothing is reported.
func (r *Resolver) MissingReactions(ctx context.Context, pw *domain.Instance, drawn domain.IDSet, excludeDisease bool) ([]*domain.Instance, error) {
	own, err := r.CollectOwnReactions(ctx, pw)
	if err != nil {
		return nil, err
	}
	var missing []*domain.Instance
	for _, rxn := range own {
		if !drawn.Has(rxn.ID) {
			missing = append(missing, rxn)
		}
	}
	if !excludeDisease || len(missing) == 0 {
		return missing, nil
	}

	if err := r.client.LoadAttributes(ctx, missing, "disease", "normalReaction"); err != nil {
		return nil, fmt.Errorf("load disease attributes: %w", err)
	}
	for _, rxn := range missing {
		if !isCoveredVariant(rxn, drawn) {
			return missing, nil
		}
	}
	return nil, nil
}

func isCoveredVariant(rxn *domain.Instance, drawn domain.IDSet) bool {
	if len(rxn.Refs("disease")) == 0 {
		return false
	}
	normal := rxn.Ref("normalReaction")
	return normal != nil && drawn.Has(normal.ID)
}
