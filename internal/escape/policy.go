// Package escape excludes previously reviewed entities from checking.
package escape

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pbaille/pathwayqa/internal/domain"
)

// CutoffLayout is the date format of the cutoff value
const CutoffLayout = "2006-01-02"

// edit timestamp layouts, most common first
var dateTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.0",
	time.RFC3339,
	"2006-01-02T15:04:05",
	CutoffLayout,
}

// Policy is the escape list with its optional cutoff. An entity is escaped
// when it is listed and has not been edited after the cutoff day.
type Policy struct {
	ids         domain.IDSet
	cutoff      time.Time
	maintenance domain.IDSet
}

// New builds a policy from ids. A zero cutoff escapes every listed id.
func New(ids []domain.ID, cutoff time.Time, maintenance []domain.ID) *Policy {
	return &Policy{
		ids:         domain.NewIDSet(ids...),
		cutoff:      cutoff,
		maintenance: domain.NewIDSet(maintenance...),
	}
}

// Load reads an escape file. An empty path yields a policy escaping nothing.
func Load(path, cutoff string, maintenance []domain.ID) (*Policy, error) {
	c, err := ParseCutoff(cutoff)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return New(nil, c, maintenance), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open escape file: %w", err)
	}
	defer f.Close()

	ids, err := ParseIDs(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return New(ids, c, maintenance), nil
}

// ParseCutoff parses a YYYY-MM-DD date; "" means no cutoff
func ParseCutoff(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(CutoffLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid escape cutoff %q: %w", s, err)
	}
	return t, nil
}

// ParseIDs reads id<TAB>... lines. Blank lines and lines starting with #
// are skipped; anything else must start with an integer id.
func ParseIDs(r io.Reader) ([]domain.ID, error) {
	var ids []domain.ID
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		field, _, _ := strings.Cut(text, "\t")
		id, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid id %q", line, field)
		}
		ids = append(ids, domain.ID(id))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read escape list: %w", err)
	}
	return ids, nil
}

// Len returns the number of listed ids
func (p *Policy) Len() int {
	return len(p.ids)
}

// Listed reports whether id is on the escape list
func (p *Policy) Listed(id domain.ID) bool {
	return p.ids.Has(id)
}

// Cutoff returns the cutoff day, zero when none
func (p *Policy) Cutoff() time.Time {
	return p.cutoff
}

// Filter splits candidates into kept and escaped, preserving order.
// Repeated calls with the same input return the same split.
func (p *Policy) Filter(ctx context.Context, client domain.EntityGraphClient, candidates []*domain.Instance) (kept, escaped []*domain.Instance, err error) {
	var listed []*domain.Instance
	for _, c := range candidates {
		if p.Listed(c.ID) {
			listed = append(listed, c)
		}
	}
	if len(listed) == 0 {
		return candidates, nil, nil
	}

	var lastEdit map[domain.ID]time.Time
	if !p.cutoff.IsZero() {
		lastEdit, err = p.lastEdits(ctx, client, listed)
		if err != nil {
			return nil, nil, err
		}
	}
	// edits before the end of the cutoff day do not count as after it
	limit := p.cutoff.AddDate(0, 0, 1)

	for _, c := range candidates {
		if !p.Listed(c.ID) {
			kept = append(kept, c)
			continue
		}
		if p.cutoff.IsZero() {
			escaped = append(escaped, c)
			continue
		}
		if t, ok := lastEdit[c.ID]; ok && !t.Before(limit) {
			kept = append(kept, c)
			continue
		}
		escaped = append(escaped, c)
	}
	return kept, escaped, nil
}

// lastEdits returns the latest qualifying edit time per entity. Entities
// without a qualifying edit are absent from the result.
func (p *Policy) lastEdits(ctx context.Context, client domain.EntityGraphClient, entities []*domain.Instance) (map[domain.ID]time.Time, error) {
	if err := client.LoadAttributes(ctx, entities, "created", "modified"); err != nil {
		return nil, fmt.Errorf("load edit history: %w", err)
	}
	var edits []*domain.Instance
	for _, e := range entities {
		edits = append(edits, e.Refs("created")...)
		edits = append(edits, e.Refs("modified")...)
	}
	edits = domain.Dedup(edits)
	if err := client.LoadAttributes(ctx, edits, "author", "dateTime"); err != nil {
		return nil, fmt.Errorf("load edits: %w", err)
	}

	out := make(map[domain.ID]time.Time)
	for _, e := range entities {
		for _, edit := range append(e.Refs("created"), e.Refs("modified")...) {
			if !p.qualifies(edit) {
				continue
			}
			t, ok := parseDateTime(edit.Str("dateTime"))
			if !ok {
				continue
			}
			if t.After(out[e.ID]) {
				out[e.ID] = t
			}
		}
	}
	return out, nil
}

// qualifies reports whether an edit was made by someone other than a
// maintenance account.
func (p *Policy) qualifies(edit *domain.Instance) bool {
	authors := edit.Refs("author")
	if len(authors) == 0 {
		return true
	}
	for _, a := range authors {
		if !p.maintenance.Has(a.ID) {
			return true
		}
	}
	return false
}

func parseDateTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
