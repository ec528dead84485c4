// Package reconcile compares the participants of a reaction in the knowledge
// base with the nodes connected to its drawn edge.
package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pbaille/pathwayqa/internal/diagram"
	"github.com/pbaille/pathwayqa/internal/domain"
)

// Role is a participant role of a reaction
type Role int

// Participant roles, in comparison order
const (
	RoleInput Role = iota
	RoleOutput
	RoleCatalyst
	RoleActivator
	RoleInhibitor
)

// Roles lists every role in comparison order
var Roles = []Role{RoleInput, RoleOutput, RoleCatalyst, RoleActivator, RoleInhibitor}

// Issue categories raised per disagreeing role
const (
	CategoryInputOutOfSync     domain.Category = "input out of sync"
	CategoryOutputOutOfSync    domain.Category = "output out of sync"
	CategoryCatalystOutOfSync  domain.Category = "catalyst out of sync"
	CategoryActivatorOutOfSync domain.Category = "activator out of sync"
	CategoryInhibitorOutOfSync domain.Category = "inhibitor out of sync"
)

func (r Role) String() string {
	switch r {
	case RoleInput:
		return "input"
	case RoleOutput:
		return "output"
	case RoleCatalyst:
		return "catalyst"
	case RoleActivator:
		return "activator"
	case RoleInhibitor:
		return "inhibitor"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// Category returns the issue category raised when the role disagrees
func (r Role) Category() domain.Category {
	switch r {
	case RoleInput:
		return CategoryInputOutOfSync
	case RoleOutput:
		return CategoryOutputOutOfSync
	case RoleCatalyst:
		return CategoryCatalystOutOfSync
	case RoleActivator:
		return CategoryActivatorOutOfSync
	case RoleInhibitor:
		return CategoryInhibitorOutOfSync
	}
	return domain.Category(r.String() + " out of sync")
}

// Stoichiometric reports whether counts matter for the role
func (r Role) Stoichiometric() bool {
	return r == RoleInput || r == RoleOutput
}

// CompareRoles checks each role in order and returns an issue for the first
// one whose model and diagram multisets differ, or nil when all agree.
// Input and output compare as multisets, with a diagram node counted
// stoichiometry[role][node] times (1 when absent); the other roles compare as
// sets. Nodes without an entity reference count as id 0 and therefore never
// match.
func CompareRoles(model map[Role][]domain.ID, drawn map[Role][]*diagram.Node, stoichiometry map[Role]map[int]int) *domain.Issue {
	for _, role := range Roles {
		modelIDs := append([]domain.ID(nil), model[role]...)
		var drawnIDs []domain.ID
		for _, n := range drawn[role] {
			copies := 1
			if role.Stoichiometric() {
				if c, ok := stoichiometry[role][n.ID]; ok {
					copies = c
				}
			}
			for i := 0; i < copies; i++ {
				drawnIDs = append(drawnIDs, n.EntityID)
			}
		}
		if !role.Stoichiometric() {
			modelIDs = unique(modelIDs)
			drawnIDs = unique(drawnIDs)
		}
		sortIDs(modelIDs)
		sortIDs(drawnIDs)

		if equalIDs(modelIDs, drawnIDs) {
			continue
		}
		onlyModel, onlyDrawn := difference(modelIDs, drawnIDs)
		return &domain.Issue{
			Category: role.Category(),
			Detail:   fmt.Sprintf("only in model: %s; only in diagram: %s", joinIDs(onlyModel), joinIDs(onlyDrawn)),
		}
	}
	return nil
}

// DiagramRoles groups the nodes of a drawn edge by role
func DiagramRoles(e *diagram.Edge) map[Role][]*diagram.Node {
	return map[Role][]*diagram.Node{
		RoleInput:     e.Inputs,
		RoleOutput:    e.Outputs,
		RoleCatalyst:  e.Helpers,
		RoleActivator: e.Activators,
		RoleInhibitor: e.Inhibitors,
	}
}

// DiagramStoichiometry returns the explicit counts of a drawn edge by role
func DiagramStoichiometry(e *diagram.Edge) map[Role]map[int]int {
	return map[Role]map[int]int{
		RoleInput:  e.InputStoichiometry,
		RoleOutput: e.OutputStoichiometry,
	}
}

func unique(ids []domain.ID) []domain.ID {
	set := domain.NewIDSet(ids...)
	return set.Sorted()
}

func sortIDs(ids []domain.ID) {
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
}

func equalIDs(a, b []domain.ID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// difference returns the multiset differences a-b and b-a of sorted lists
func difference(a, b []domain.ID) (onlyA, onlyB []domain.ID) {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			i++
			j++
		case a[i] < b[j]:
			onlyA = append(onlyA, a[i])
			i++
		default:
			onlyB = append(onlyB, b[j])
			j++
		}
	}
	onlyA = append(onlyA, a[i:]...)
	onlyB = append(onlyB, b[j:]...)
	return onlyA, onlyB
}

func joinIDs(ids []domain.ID) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}
