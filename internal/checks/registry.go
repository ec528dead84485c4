package checks

import (
	"github.com/pbaille/pathwayqa/internal/qa"
)

var constructors = []func() *qa.Check{
	DiagramMissingReactions,
	DiagramDeletedEntities,
	DiagramOrphanEntities,
	DiagramReactionSync,
	SubpathwayNotEmbedded,
	ReactionNotDrawn,
	ReactionCompartment,
	ComplexCompartment,
	EntitySetCompartment,
	ComplexSpecies,
}

// All returns a fresh instance of every check, in a fixed order
func All() []*qa.Check {
	out := make([]*qa.Check, len(constructors))
	for i, c := range constructors {
		out[i] = c()
	}
	return out
}

// Lookup returns the check with the given name
func Lookup(name string) (*qa.Check, bool) {
	for _, c := range constructors {
		if check := c(); check.Name == name {
			return check, true
		}
	}
	return nil, false
}

// Names returns every check name, in the order of All
func Names() []string {
	all := All()
	names := make([]string, len(all))
	for i, c := range all {
		names[i] = c.Name
	}
	return names
}
