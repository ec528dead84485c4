package domain

import "strings"

// Category is a check-specific issue label from a closed vocabulary
type Category string

// Issue is the atomic report unit: one per checked entity per check
type Issue struct {
	Category Category
	Entities []*Instance
	Detail   string
}

// NewIssue creates an issue referencing entities
func NewIssue(category Category, entities ...*Instance) *Issue {
	return &Issue{Category: category, Entities: entities}
}

// WithDetail sets a human-readable detail and returns the issue
func (i *Issue) WithDetail(detail string) *Issue {
	i.Detail = detail
	return i
}

// EntityList renders the referenced entities for a report cell
func (i *Issue) EntityList() string {
	parts := make([]string, 0, len(i.Entities))
	for _, e := range i.Entities {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, "|")
}

// EntityIDList renders the referenced entity ids for a report cell
func (i *Issue) EntityIDList() string {
	parts := make([]string, 0, len(i.Entities))
	for _, e := range i.Entities {
		parts = append(parts, e.ID.String())
	}
	return strings.Join(parts, "|")
}
