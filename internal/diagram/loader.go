package diagram

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pbaille/pathwayqa/internal/domain"
)

var extractTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pathwayqa_diagrams_extracted_total",
	Help: "Diagram documents extracted by outcome",
}, []string{"result"})

type loaded struct {
	graph *Graph
	err   error
}

// Loader extracts diagram graphs on demand and memoizes them per diagram id.
// A Loader belongs to one check run; it is safe for concurrent use.
type Loader struct {
	docs   domain.DiagramDocumentStore
	logger *zap.Logger

	mu     sync.Mutex
	graphs map[domain.ID]loaded
	scans  map[domain.ID]domain.IDSet
	flight singleflight.Group
}

// NewLoader creates a run-scoped loader reading from docs
func NewLoader(docs domain.DiagramDocumentStore, logger *zap.Logger) *Loader {
	return &Loader{
		docs:   docs,
		logger: logger.Named("diagram-loader"),
		graphs: make(map[domain.ID]loaded),
		scans:  make(map[domain.ID]domain.IDSet),
	}
}

// Graph returns the extracted graph of a diagram. Malformed documents
// return a *domain.MalformedDiagramError and are remembered as such.
func (l *Loader) Graph(ctx context.Context, diagramID domain.ID) (*Graph, error) {
	l.mu.Lock()
	if r, ok := l.graphs[diagramID]; ok {
		l.mu.Unlock()
		return r.graph, r.err
	}
	l.mu.Unlock()

	key := strconv.FormatInt(int64(diagramID), 10)
	v, err, _ := l.flight.Do(key, func() (interface{}, error) {
		raw, err := l.docs.GetRawDocument(ctx, diagramID)
		var g *Graph
		switch {
		case errors.Is(err, domain.ErrMalformedDiagram):
			// rejected by the document store itself
		case err != nil:
			// store failures are not memoized
			return nil, domain.StoreError("get diagram document", err)
		default:
			g, err = Extract(raw)
		}
		if err != nil {
			var mde *domain.MalformedDiagramError
			if errors.As(err, &mde) && mde.DiagramID == 0 {
				mde.DiagramID = diagramID
			}
			extractTotal.WithLabelValues("malformed").Inc()
			l.logger.Warn("Skipping malformed diagram",
				zap.Int64("diagram_id", int64(diagramID)),
				zap.Error(err))
		} else if g.Empty() {
			extractTotal.WithLabelValues("empty").Inc()
		} else {
			extractTotal.WithLabelValues("ok").Inc()
		}

		l.mu.Lock()
		l.graphs[diagramID] = loaded{graph: g, err: err}
		l.mu.Unlock()
		return loaded{graph: g, err: err}, nil
	})
	if err != nil {
		return nil, err
	}
	r := v.(loaded)
	return r.graph, r.err
}

// EntityIDs returns the entity ids drawn in a diagram. With fast set, the raw
// document is scanned with a regular expression instead of being parsed,
// which also picks up feature and root ids and never reports malformation.
func (l *Loader) EntityIDs(ctx context.Context, diagramID domain.ID, fast bool) (domain.IDSet, error) {
	if !fast {
		g, err := l.Graph(ctx, diagramID)
		if err != nil {
			return nil, err
		}
		return ExtractEntityIDs(g), nil
	}

	l.mu.Lock()
	if ids, ok := l.scans[diagramID]; ok {
		l.mu.Unlock()
		return ids, nil
	}
	l.mu.Unlock()

	raw, err := l.docs.GetRawDocument(ctx, diagramID)
	if errors.Is(err, domain.ErrMalformedDiagram) {
		l.logger.Warn("Skipping rejected diagram document",
			zap.Int64("diagram_id", int64(diagramID)),
			zap.Error(err))
		raw, err = nil, nil
	}
	if err != nil {
		return nil, domain.StoreError("get diagram document", err)
	}
	ids := ScanEntityIDs(raw)

	l.mu.Lock()
	l.scans[diagramID] = ids
	l.mu.Unlock()
	return ids, nil
}
