package qa

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pbaille/pathwayqa/internal/compartment"
	"github.com/pbaille/pathwayqa/internal/diagram"
	"github.com/pbaille/pathwayqa/internal/domain"
	"github.com/pbaille/pathwayqa/internal/embedding"
	"github.com/pbaille/pathwayqa/internal/usage"
)

// Options tune check behavior
type Options struct {
	// ExcludeDiseaseReactions lets disease variants stay undrawn when their
	// normal reaction is drawn.
	ExcludeDiseaseReactions bool
}

// RunContext owns every cache of one check run. It is never shared between
// runs, so a run always sees the backing store as it was when it started.
type RunContext struct {
	Client       domain.EntityGraphClient
	Documents    domain.DiagramDocumentStore
	Diagrams     *diagram.Loader
	Resolver     *embedding.Resolver
	Compartments *compartment.Engine
	Options      Options
	Logger       *zap.Logger

	usage       *usage.Builder
	index       *usage.Index
	allDiagrams []*domain.Instance
}

// NewRunContext creates fresh run-scoped caches over client and docs
func NewRunContext(client domain.EntityGraphClient, docs domain.DiagramDocumentStore, table *compartment.Table, opts Options, logger *zap.Logger) *RunContext {
	loader := diagram.NewLoader(docs, logger)
	return &RunContext{
		Client:       client,
		Documents:    docs,
		Diagrams:     loader,
		Resolver:     embedding.NewResolver(client, logger),
		Compartments: compartment.NewEngine(client, table, logger),
		Options:      opts,
		Logger:       logger,
		usage:        usage.NewBuilder(client, loader, logger),
	}
}

// Usage returns the event usage index of every diagram, built on first use
func (rc *RunContext) Usage(ctx context.Context) (*usage.Index, error) {
	if rc.index != nil {
		return rc.index, nil
	}
	diagrams, err := rc.AllDiagrams(ctx)
	if err != nil {
		return nil, err
	}
	idx, err := rc.usage.Build(ctx, diagrams)
	if err != nil {
		return nil, fmt.Errorf("build usage index: %w", err)
	}
	rc.index = idx
	return idx, nil
}

// UsageBuilder returns the run's usage builder, for embedding queries
func (rc *RunContext) UsageBuilder() *usage.Builder {
	return rc.usage
}

// AllDiagrams returns every PathwayDiagram, fetched once per run
func (rc *RunContext) AllDiagrams(ctx context.Context) ([]*domain.Instance, error) {
	if rc.allDiagrams != nil {
		return rc.allDiagrams, nil
	}
	ds, err := rc.Client.FetchByClass(ctx, "PathwayDiagram")
	if err != nil {
		return nil, fmt.Errorf("fetch diagrams: %w", err)
	}
	if ds == nil {
		ds = []*domain.Instance{}
	}
	rc.allDiagrams = ds
	return ds, nil
}
