// Package usage indexes which diagrams draw which events.
package usage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pbaille/pathwayqa/internal/diagram"
	"github.com/pbaille/pathwayqa/internal/domain"
)

// Index maps events to the diagrams that draw or own them
type Index struct {
	// Reactions maps a reaction id to diagrams with an edge representing it.
	Reactions map[domain.ID]domain.IDSet
	// ProcessNodes maps a pathway id to diagrams drawing it as a process node.
	ProcessNodes map[domain.ID]domain.IDSet
	// Represented maps a pathway id to the diagrams that own it.
	Represented map[domain.ID]domain.IDSet
	// Skipped lists diagrams whose documents could not be parsed.
	Skipped []domain.ID
}

func newIndex() *Index {
	return &Index{
		Reactions:    make(map[domain.ID]domain.IDSet),
		ProcessNodes: make(map[domain.ID]domain.IDSet),
		Represented:  make(map[domain.ID]domain.IDSet),
	}
}

// DiagramsForReaction returns the diagrams drawing a reaction
func (x *Index) DiagramsForReaction(id domain.ID) domain.IDSet {
	return x.Reactions[id]
}

// DiagramsForPathway returns the diagrams owning a pathway
func (x *Index) DiagramsForPathway(id domain.ID) domain.IDSet {
	return x.Represented[id]
}

// IsDrawn reports whether a reaction appears in any diagram
func (x *Index) IsDrawn(id domain.ID) bool {
	return len(x.Reactions[id]) > 0
}

func add(m map[domain.ID]domain.IDSet, key, diagramID domain.ID) {
	set, ok := m[key]
	if !ok {
		set = make(domain.IDSet)
		m[key] = set
	}
	set.Add(diagramID)
}

// Builder scans diagrams to build usage maps. A Builder memoizes transitive
// pathway contents and belongs to one check run.
type Builder struct {
	client domain.EntityGraphClient
	loader *diagram.Loader
	logger *zap.Logger

	reactions map[domain.ID]domain.IDSet
}

// NewBuilder creates a run-scoped builder
func NewBuilder(client domain.EntityGraphClient, loader *diagram.Loader, logger *zap.Logger) *Builder {
	return &Builder{
		client:    client,
		loader:    loader,
		logger:    logger.Named("usage-index"),
		reactions: make(map[domain.ID]domain.IDSet),
	}
}

// Build scans every diagram once. Malformed documents are logged and
// skipped; drawn ids absent from the repository are logged and left out.
func (b *Builder) Build(ctx context.Context, diagrams []*domain.Instance) (*Index, error) {
	idx := newIndex()
	if err := b.client.LoadAttributes(ctx, diagrams, "representedPathway"); err != nil {
		return nil, fmt.Errorf("load represented pathways: %w", err)
	}

	drawn := make(domain.IDSet)
	for _, d := range diagrams {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, pw := range d.Refs("representedPathway") {
			add(idx.Represented, pw.ID, d.ID)
		}

		g, err := b.loader.Graph(ctx, d.ID)
		if err != nil {
			if errors.Is(err, domain.ErrMalformedDiagram) {
				idx.Skipped = append(idx.Skipped, d.ID)
				continue
			}
			return nil, err
		}
		for id := range g.ReactionIDs() {
			add(idx.Reactions, id, d.ID)
			drawn.Add(id)
		}
		for id := range g.ProcessNodeIDs() {
			add(idx.ProcessNodes, id, d.ID)
			drawn.Add(id)
		}
	}

	existing, err := b.client.Existing(ctx, drawn.Sorted())
	if err != nil {
		return nil, fmt.Errorf("look up drawn events: %w", err)
	}
	for _, id := range drawn.Sorted() {
		if existing.Has(id) {
			continue
		}
		b.logger.Warn("Drawn event does not exist, skipping",
			zap.Int64("entity_id", int64(id)),
			zap.Any("diagrams", idsOf(idx.Reactions[id], idx.ProcessNodes[id])))
		delete(idx.Reactions, id)
		delete(idx.ProcessNodes, id)
	}
	return idx, nil
}

func idsOf(sets ...domain.IDSet) []domain.ID {
	all := make(domain.IDSet)
	for _, s := range sets {
		for id := range s {
			all.Add(id)
		}
	}
	return all.Sorted()
}

// BuildSubpathwayEmbedding associates each pathway with the diagrams whose
// entity id set contains every reaction transitively contained in it.
// Pathways without reactions are never associated.
func (b *Builder) BuildSubpathwayEmbedding(ctx context.Context, diagrams, pathways []*domain.Instance) (map[domain.ID]domain.IDSet, error) {
	drawn := make(map[domain.ID]domain.IDSet, len(diagrams))
	var order []domain.ID
	for _, d := range diagrams {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g, err := b.loader.Graph(ctx, d.ID)
		if err != nil {
			if errors.Is(err, domain.ErrMalformedDiagram) {
				continue
			}
			return nil, err
		}
		drawn[d.ID] = diagram.ExtractEntityIDs(g)
		order = append(order, d.ID)
	}

	out := make(map[domain.ID]domain.IDSet)
	for _, pw := range pathways {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		reactions, err := b.TransitiveReactions(ctx, pw)
		if err != nil {
			return nil, err
		}
		if len(reactions) == 0 {
			continue
		}
		for _, did := range order {
			if drawn[did].ContainsAll(reactions) {
				add(out, pw.ID, did)
			}
		}
	}
	return out, nil
}

// TransitiveReactions returns every reaction-like event below a pathway,
// following hasEvent through all sub-pathways. Results are memoized per
// pathway id.
func (b *Builder) TransitiveReactions(ctx context.Context, pw *domain.Instance) (domain.IDSet, error) {
	set, _, err := b.transitive(ctx, pw, make(domain.IDSet))
	return set, err
}

// transitive also returns the ancestors whose expansion was cut by a cycle.
// A set computed under an open cut lacks the ancestor's other events, so it
// is only memoized once every cut has closed.
func (b *Builder) transitive(ctx context.Context, pw *domain.Instance, visiting domain.IDSet) (domain.IDSet, domain.IDSet, error) {
	if set, ok := b.reactions[pw.ID]; ok {
		return set, nil, nil
	}
	if visiting.Has(pw.ID) {
		b.logger.Warn("Event hierarchy cycle", zap.Int64("entity_id", int64(pw.ID)))
		return domain.IDSet{}, domain.NewIDSet(pw.ID), nil
	}
	visiting.Add(pw.ID)
	defer delete(visiting, pw.ID)

	if err := b.client.LoadAttributes(ctx, []*domain.Instance{pw}, "hasEvent"); err != nil {
		return nil, nil, fmt.Errorf("load events of %d: %w", pw.ID, err)
	}
	set := make(domain.IDSet)
	open := make(domain.IDSet)
	for _, ev := range pw.Refs("hasEvent") {
		switch {
		case ev.IsA("ReactionlikeEvent"):
			set.Add(ev.ID)
		case ev.IsA("Pathway"):
			sub, cut, err := b.transitive(ctx, ev, visiting)
			if err != nil {
				return nil, nil, err
			}
			for id := range sub {
				set.Add(id)
			}
			for id := range cut {
				open.Add(id)
			}
		}
	}
	delete(open, pw.ID)
	if len(open) == 0 {
		b.reactions[pw.ID] = set
	}
	return set, open, nil
}
