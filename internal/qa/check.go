// Package qa runs checks over candidate entities and collects their issues
// into reports.
package qa

import (
	"context"

	"github.com/pbaille/pathwayqa/internal/domain"
)

// DefaultHeader is the column header of checks that do not set their own
var DefaultHeader = []string{"ids", "entities", "issue", "detail"}

// Check is one QA rule, assembled from strategy functions
type Check struct {
	Name        string
	Description string
	Header      []string

	// CandidateClass is the schema class every candidate must belong to.
	CandidateClass string

	// Candidates selects the entities to check. When nil, all instances of
	// CandidateClass are used.
	Candidates func(ctx context.Context, rc *RunContext) ([]*domain.Instance, error)

	// Attributes are bulk-loaded on the candidates before checking.
	Attributes []string

	// Inspect checks one candidate and returns its issues.
	Inspect func(ctx context.Context, rc *RunContext, entity *domain.Instance) ([]*domain.Issue, error)

	// Rows renders one issue of a candidate. When nil, DefaultRow is used.
	Rows func(entity *domain.Instance, issue *domain.Issue) []string

	// Batch checks record a failing candidate and go on with the others;
	// otherwise the first failure ends the run.
	Batch bool
}

// header returns the column names in effect
func (c *Check) header() []string {
	if len(c.Header) > 0 {
		return c.Header
	}
	return DefaultHeader
}

func (c *Check) row(entity *domain.Instance, issue *domain.Issue) []string {
	if c.Rows != nil {
		return c.Rows(entity, issue)
	}
	return DefaultRow(entity, issue)
}

// DefaultRow renders the issue entities, category and detail
func DefaultRow(_ *domain.Instance, issue *domain.Issue) []string {
	return []string{issue.EntityIDList(), issue.EntityList(), string(issue.Category), issue.Detail}
}

// Single adapts a one-issue inspection to Check.Inspect
func Single(fn func(ctx context.Context, rc *RunContext, entity *domain.Instance) (*domain.Issue, error)) func(context.Context, *RunContext, *domain.Instance) ([]*domain.Issue, error) {
	return func(ctx context.Context, rc *RunContext, entity *domain.Instance) ([]*domain.Issue, error) {
		issue, err := fn(ctx, rc, entity)
		if err != nil || issue == nil {
			return nil, err
		}
		return []*domain.Issue{issue}, nil
	}
}
