package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/pbaille/pathwayqa/internal/domain"
)

// Fixture is a YAML snapshot of part of a knowledge base
type Fixture struct {
	Instances []FixtureInstance `yaml:"instances"`
	Documents []FixtureDocument `yaml:"documents"`
}

// FixtureInstance is one instance with its attribute values. Instance-typed
// attributes list referenced ids.
type FixtureInstance struct {
	ID         domain.ID      `yaml:"id"`
	Class      string         `yaml:"class"`
	Name       string         `yaml:"name"`
	Attributes map[string]any `yaml:"attributes"`
}

// FixtureDocument is a diagram document, inline or read from File
type FixtureDocument struct {
	Diagram domain.ID `yaml:"diagram"`
	File    string    `yaml:"file"`
	Content string    `yaml:"content"`
}

// ImportStats counts what an import wrote
type ImportStats struct {
	Instances  int
	Attributes int
	Documents  int
}

// ImportFile loads the fixture at path. Document files are resolved relative
// to the fixture directory.
func (s *Store) ImportFile(ctx context.Context, path string) (ImportStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImportStats{}, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()
	return s.Import(ctx, f, filepath.Dir(path))
}

// Import writes a fixture in a single transaction
func (s *Store) Import(ctx context.Context, r io.Reader, baseDir string) (ImportStats, error) {
	var fx Fixture
	if err := yaml.NewDecoder(r).Decode(&fx); err != nil {
		return ImportStats{}, fmt.Errorf("decode fixture: %w", err)
	}

	var stats ImportStats
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, domain.StoreError("begin", err)
	}
	defer tx.Rollback()

	// Instances first so attributes may reference later entries.
	for _, inst := range fx.Instances {
		if inst.ID <= 0 {
			return stats, fmt.Errorf("instance %q: id must be positive", inst.Name)
		}
		if err := putInstance(ctx, tx, s.schema, inst.ID, inst.Class, inst.Name); err != nil {
			return stats, fmt.Errorf("instance %d: %w", inst.ID, err)
		}
		stats.Instances++
	}
	for _, inst := range fx.Instances {
		for attr, raw := range inst.Attributes {
			if err := putAttribute(ctx, tx, s.schema, inst.ID, attr, fixtureValues(raw)); err != nil {
				return stats, fmt.Errorf("instance %d: %w", inst.ID, err)
			}
			stats.Attributes++
		}
	}
	for _, doc := range fx.Documents {
		content := []byte(doc.Content)
		if doc.File != "" {
			path := doc.File
			if !filepath.IsAbs(path) {
				path = filepath.Join(baseDir, path)
			}
			if content, err = os.ReadFile(path); err != nil {
				return stats, fmt.Errorf("diagram %d: %w", doc.Diagram, err)
			}
		}
		if err := putDiagramDocument(ctx, tx, doc.Diagram, content); err != nil {
			return stats, err
		}
		stats.Documents++
	}

	if err := tx.Commit(); err != nil {
		return stats, domain.StoreError("commit", err)
	}
	s.logger.Info("Imported fixture",
		zap.Int("instances", stats.Instances),
		zap.Int("attributes", stats.Attributes),
		zap.Int("documents", stats.Documents))
	return stats, nil
}

// fixtureValues turns a YAML scalar or list into attribute values
func fixtureValues(raw any) []any {
	switch v := raw.(type) {
	case nil:
		return nil
	case []any:
		return v
	default:
		return []any{v}
	}
}
