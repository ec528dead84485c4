package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/pbaille/pathwayqa/internal/domain"
)

// Session is a run-scoped view of the store. It interns instances by id, so
// every reference to the same id within a run is the same *domain.Instance
// and loaded attributes are shared.
type Session struct {
	store  *Store
	logger *zap.Logger

	mu    sync.Mutex
	arena map[domain.ID]*domain.Instance
}

var _ domain.EntityGraphClient = (*Session)(nil)
var _ domain.DiagramDocumentStore = (*Session)(nil)

// Session starts a new run-scoped session
func (s *Store) Session() *Session {
	return &Session{
		store:  s,
		logger: s.logger.Named("session"),
		arena:  make(map[domain.ID]*domain.Instance),
	}
}

// intern returns the arena instance for id, creating it when needed.
// Unknown classes yield nil.
func (s *Session) intern(id domain.ID, class, displayName string) *domain.Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst, ok := s.arena[id]; ok {
		return inst
	}
	c, ok := s.store.schema.Class(class)
	if !ok {
		s.logger.Warn("Skipping instance of unknown class",
			zap.Int64("entity_id", int64(id)),
			zap.String("class", class))
		return nil
	}
	inst := domain.NewInstance(id, c, displayName)
	s.arena[id] = inst
	return inst
}

func (s *Session) scanInstances(rows *sql.Rows) ([]*domain.Instance, error) {
	defer rows.Close()
	var out []*domain.Instance
	for rows.Next() {
		var id int64
		var class, name string
		if err := rows.Scan(&id, &class, &name); err != nil {
			return nil, domain.StoreError("scan instance", err)
		}
		if inst := s.intern(domain.ID(id), class, name); inst != nil {
			out = append(out, inst)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StoreError("read instances", err)
	}
	return out, nil
}

func (s *Session) FetchByID(ctx context.Context, id domain.ID) (*domain.Instance, error) {
	var class, name string
	err := s.store.db.QueryRowContext(ctx,
		"SELECT class, display_name FROM instances WHERE db_id = ?", int64(id),
	).Scan(&class, &name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, domain.StoreError("fetch instance", err)
	}
	return s.intern(id, class, name), nil
}

func (s *Session) FetchByClass(ctx context.Context, class string) ([]*domain.Instance, error) {
	classes := s.store.schema.Subclasses(class)
	if len(classes) == 0 {
		return nil, fmt.Errorf("fetch %s: unknown class", class)
	}
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT db_id, class, display_name FROM instances WHERE class IN ("+placeholders(len(classes))+") ORDER BY db_id",
		stringArgs(classes)...,
	)
	if err != nil {
		return nil, domain.StoreError("fetch by class", err)
	}
	return s.scanInstances(rows)
}

func (s *Session) FetchByAttribute(ctx context.Context, class, attr string, op domain.Op, value any) ([]*domain.Instance, error) {
	if !s.store.schema.Declared(attr) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownAttribute, attr)
	}
	classes := s.store.schema.Subclasses(class)
	if len(classes) == 0 {
		return nil, fmt.Errorf("fetch %s: unknown class", class)
	}

	query := "SELECT i.db_id, i.class, i.display_name FROM instances i WHERE i.class IN (" + placeholders(len(classes)) + ") AND "
	args := stringArgs(classes)
	exists := "EXISTS (SELECT 1 FROM attribute_values av WHERE av.db_id = i.db_id AND av.attribute = ?"
	switch op {
	case domain.OpIsNull:
		query += "NOT " + exists + ")"
		args = append(args, attr)
	case domain.OpIsNotNull:
		query += exists + ")"
		args = append(args, attr)
	case domain.OpEquals:
		switch v := value.(type) {
		case domain.ID:
			query += exists + " AND av.ref_id = ?)"
			args = append(args, attr, int64(v))
		case *domain.Instance:
			query += exists + " AND av.ref_id = ?)"
			args = append(args, attr, int64(v.ID))
		case string:
			query += exists + " AND av.value = ?)"
			args = append(args, attr, v)
		default:
			return nil, fmt.Errorf("unsupported value type %T", value)
		}
	default:
		return nil, fmt.Errorf("unsupported operator %q", op)
	}
	query += " ORDER BY i.db_id"

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.StoreError("fetch by attribute", err)
	}
	return s.scanInstances(rows)
}

// LoadAttributes hydrates attrs on instances. References to deleted
// instances are logged and dropped.
func (s *Session) LoadAttributes(ctx context.Context, instances []*domain.Instance, attrs ...string) error {
	for _, attr := range attrs {
		if !s.store.schema.Declared(attr) {
			return fmt.Errorf("%w: %s", domain.ErrUnknownAttribute, attr)
		}
	}
	if len(instances) == 0 || len(attrs) == 0 {
		return nil
	}

	byID := make(map[domain.ID][]*domain.Instance, len(instances))
	var ids []domain.ID
	for _, inst := range instances {
		if _, seen := byID[inst.ID]; !seen {
			ids = append(ids, inst.ID)
		}
		byID[inst.ID] = append(byID[inst.ID], inst)
	}

	values := make(map[domain.ID]map[string][]any, len(ids))
	for start := 0; start < len(ids); start += chunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk := ids[start:min(start+chunkSize, len(ids))]
		if err := s.loadChunk(ctx, chunk, attrs, values); err != nil {
			return err
		}
	}

	for id, insts := range byID {
		for _, inst := range insts {
			for _, attr := range attrs {
				if _, declared := inst.Class.Attribute(attr); !declared {
					continue
				}
				inst.Set(attr, values[id][attr]...)
			}
		}
	}
	return nil
}

func (s *Session) loadChunk(ctx context.Context, ids []domain.ID, attrs []string, values map[domain.ID]map[string][]any) error {
	args := idArgs(ids)
	args = append(args, stringArgs(attrs)...)
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT av.db_id, av.attribute, av.ref_id, av.value, r.class, r.display_name
		FROM attribute_values av
		LEFT JOIN instances r ON r.db_id = av.ref_id
		WHERE av.db_id IN (`+placeholders(len(ids))+`)
		  AND av.attribute IN (`+placeholders(len(attrs))+`)
		ORDER BY av.db_id, av.attribute, av.rank`,
		args...,
	)
	if err != nil {
		return domain.StoreError("load attributes", err)
	}
	defer rows.Close()

	for rows.Next() {
		var owner int64
		var attr string
		var ref sql.NullInt64
		var val, refClass, refName sql.NullString
		if err := rows.Scan(&owner, &attr, &ref, &val, &refClass, &refName); err != nil {
			return domain.StoreError("scan attribute value", err)
		}
		var v any
		switch {
		case ref.Valid && !refClass.Valid:
			s.logger.Warn("Skipping reference to missing instance",
				zap.Error(&domain.MissingEntityError{ID: domain.ID(ref.Int64), ReferencedBy: domain.ID(owner), Attribute: attr}))
			continue
		case ref.Valid:
			inst := s.intern(domain.ID(ref.Int64), refClass.String, refName.String)
			if inst == nil {
				continue
			}
			v = inst
		case val.Valid:
			v = val.String
		default:
			continue
		}
		m, ok := values[domain.ID(owner)]
		if !ok {
			m = make(map[string][]any)
			values[domain.ID(owner)] = m
		}
		m[attr] = append(m[attr], v)
	}
	if err := rows.Err(); err != nil {
		return domain.StoreError("read attribute values", err)
	}
	return nil
}

func (s *Session) Existing(ctx context.Context, ids []domain.ID) (domain.IDSet, error) {
	out := make(domain.IDSet, len(ids))
	for start := 0; start < len(ids); start += chunkSize {
		chunk := ids[start:min(start+chunkSize, len(ids))]
		rows, err := s.store.db.QueryContext(ctx,
			"SELECT db_id FROM instances WHERE db_id IN ("+placeholders(len(chunk))+")",
			idArgs(chunk)...,
		)
		if err != nil {
			return nil, domain.StoreError("look up instances", err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, domain.StoreError("scan instance id", err)
			}
			out.Add(domain.ID(id))
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, domain.StoreError("read instance ids", err)
		}
	}
	return out, nil
}

func (s *Session) ReverseReferences(ctx context.Context, target *domain.Instance, attr string) ([]*domain.Instance, error) {
	if !s.store.schema.Declared(attr) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownAttribute, attr)
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT DISTINCT i.db_id, i.class, i.display_name
		FROM attribute_values av
		JOIN instances i ON i.db_id = av.db_id
		WHERE av.attribute = ? AND av.ref_id = ?
		ORDER BY i.db_id`,
		attr, int64(target.ID),
	)
	if err != nil {
		return nil, domain.StoreError("reverse references", err)
	}
	return s.scanInstances(rows)
}

func (s *Session) GetRawDocument(ctx context.Context, diagramID domain.ID) ([]byte, error) {
	return s.store.GetRawDocument(ctx, diagramID)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func idArgs(ids []domain.ID) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}
