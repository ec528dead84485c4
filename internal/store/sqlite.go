package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/pbaille/pathwayqa/internal/domain"
	"github.com/pbaille/pathwayqa/internal/schema"
)

//go:embed schema.sql
var ddl string

// chunkSize bounds the number of ids bound in one IN clause
const chunkSize = 500

// Store holds the knowledge base instances, their attribute values and the
// diagram documents
type Store struct {
	db     *sql.DB
	schema *schema.Schema
	logger *zap.Logger
}

// execer is satisfied by *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens the database at dbPath and creates missing tables
func New(dbPath string, sch *schema.Schema, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Initialize schema
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	if sch == nil {
		sch = schema.Default()
	}
	return &Store{db: db, schema: sch, logger: logger.Named("store")}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Schema returns the schema instances are validated against
func (s *Store) Schema() *schema.Schema {
	return s.schema
}

// PutInstance creates or renames an instance
func (s *Store) PutInstance(ctx context.Context, id domain.ID, class, displayName string) error {
	return putInstance(ctx, s.db, s.schema, id, class, displayName)
}

func putInstance(ctx context.Context, db execer, sch *schema.Schema, id domain.ID, class, displayName string) error {
	if _, ok := sch.Class(class); !ok {
		return fmt.Errorf("%w: %s", schema.ErrUnknownClass, class)
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO instances (db_id, class, display_name) VALUES (?, ?, ?)
		 ON CONFLICT(db_id) DO UPDATE SET class = excluded.class, display_name = excluded.display_name`,
		int64(id), class, displayName,
	)
	if err != nil {
		return domain.StoreError("insert instance", err)
	}
	return nil
}

// PutAttribute replaces the values of attr on instance id. Instance-typed
// attributes take domain.ID or *domain.Instance values; the others take
// strings or integers.
func (s *Store) PutAttribute(ctx context.Context, id domain.ID, attr string, values ...any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StoreError("begin", err)
	}
	if err := putAttribute(ctx, tx, s.schema, id, attr, values); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return domain.StoreError("commit", err)
	}
	return nil
}

func putAttribute(ctx context.Context, db execer, sch *schema.Schema, id domain.ID, attr string, values []any) error {
	var class string
	err := db.QueryRowContext(ctx, "SELECT class FROM instances WHERE db_id = ?", int64(id)).Scan(&class)
	if err == sql.ErrNoRows {
		return &domain.MissingEntityError{ID: id}
	}
	if err != nil {
		return domain.StoreError("find instance", err)
	}
	if err := sch.Validate(class, attr); err != nil {
		return err
	}
	c, _ := sch.Class(class)
	def, _ := c.Attribute(attr)
	if !def.Multiple && len(values) > 1 {
		return fmt.Errorf("%s.%s is single-valued, got %d values", class, attr, len(values))
	}

	if _, err := db.ExecContext(ctx,
		"DELETE FROM attribute_values WHERE db_id = ? AND attribute = ?", int64(id), attr,
	); err != nil {
		return domain.StoreError("clear attribute", err)
	}
	for rank, v := range values {
		var ref sql.NullInt64
		var val sql.NullString
		if def.Type == schema.TypeInstance {
			switch x := v.(type) {
			case domain.ID:
				ref = sql.NullInt64{Int64: int64(x), Valid: true}
			case *domain.Instance:
				ref = sql.NullInt64{Int64: int64(x.ID), Valid: true}
			case int:
				ref = sql.NullInt64{Int64: int64(x), Valid: true}
			case int64:
				ref = sql.NullInt64{Int64: x, Valid: true}
			default:
				return fmt.Errorf("%s.%s: %T is not an instance reference", class, attr, v)
			}
		} else {
			switch x := v.(type) {
			case string:
				val = sql.NullString{String: x, Valid: true}
			case int:
				val = sql.NullString{String: strconv.Itoa(x), Valid: true}
			case int64:
				val = sql.NullString{String: strconv.FormatInt(x, 10), Valid: true}
			default:
				return fmt.Errorf("%s.%s: unsupported value type %T", class, attr, v)
			}
		}
		if _, err := db.ExecContext(ctx,
			"INSERT INTO attribute_values (db_id, attribute, rank, ref_id, value) VALUES (?, ?, ?, ?, ?)",
			int64(id), attr, rank, ref, val,
		); err != nil {
			return domain.StoreError("insert attribute value", err)
		}
	}
	return nil
}

// DeleteInstance removes an instance row. Values referencing it are kept,
// as they are in a knowledge base where an instance was deleted without
// cleaning up its referrers.
func (s *Store) DeleteInstance(ctx context.Context, id domain.ID) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM instances WHERE db_id = ?", int64(id)); err != nil {
		return domain.StoreError("delete instance", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM attribute_values WHERE db_id = ?", int64(id)); err != nil {
		return domain.StoreError("delete attribute values", err)
	}
	return nil
}

// PutDiagramDocument stores the raw document of a diagram
func (s *Store) PutDiagramDocument(ctx context.Context, diagramID domain.ID, content []byte) error {
	return putDiagramDocument(ctx, s.db, diagramID, content)
}

func putDiagramDocument(ctx context.Context, db execer, diagramID domain.ID, content []byte) error {
	if content == nil {
		content = []byte{}
	}
	_, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO diagram_documents (db_id, content, updated_at) VALUES (?, ?, ?)`,
		int64(diagramID), content, time.Now(),
	)
	if err != nil {
		return domain.StoreError("insert diagram document", err)
	}
	return nil
}

// GetRawDocument returns the stored document, or nil when there is none
func (s *Store) GetRawDocument(ctx context.Context, diagramID domain.ID) ([]byte, error) {
	var content []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT content FROM diagram_documents WHERE db_id = ?", int64(diagramID),
	).Scan(&content)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, domain.StoreError("get diagram document", err)
	}
	return content, nil
}

// Stats counts stored instances and diagram documents
func (s *Store) Stats(ctx context.Context) (instances, documents int, err error) {
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM instances").Scan(&instances); err != nil {
		return 0, 0, domain.StoreError("count instances", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM diagram_documents").Scan(&documents); err != nil {
		return 0, 0, domain.StoreError("count documents", err)
	}
	return instances, documents, nil
}
