package reconcile

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/pathwayqa/internal/diagram"
	"github.com/pbaille/pathwayqa/internal/domain"
	"github.com/pbaille/pathwayqa/internal/testhelpers"
)

func node(id int, entity domain.ID) *diagram.Node {
	return &diagram.Node{ID: id, Kind: "Protein", EntityID: entity}
}

func TestCompareRoles_MultisetIsOrderIndependent(t *testing.T) {
	// model: 1 x A, 2 x B, 3 x C
	model := []domain.ID{10, 20, 20, 30, 30, 30}
	a, b, c := node(1, 10), node(2, 20), node(3, 30)

	// several ways to draw the same multiset
	drawings := []struct {
		name  string
		nodes []*diagram.Node
		stoch map[Role]map[int]int
	}{
		{"stoichiometry on every node", []*diagram.Node{a, b, c}, map[Role]map[int]int{RoleInput: {2: 2, 3: 3}}},
		{"one node per copy", []*diagram.Node{c, b, a, c, b, c}, nil},
		{
			"mixed",
			[]*diagram.Node{b, node(4, 30), a, node(5, 30)},
			map[Role]map[int]int{RoleInput: {2: 2, 4: 2}},
		},
	}

	rng := rand.New(rand.NewSource(1))
	for _, d := range drawings {
		t.Run(d.name, func(t *testing.T) {
			for i := 0; i < 20; i++ {
				perm := append([]domain.ID(nil), model...)
				rng.Shuffle(len(perm), func(x, y int) { perm[x], perm[y] = perm[y], perm[x] })
				issue := CompareRoles(
					map[Role][]domain.ID{RoleInput: perm},
					map[Role][]*diagram.Node{RoleInput: d.nodes},
					d.stoch,
				)
				assert.Nil(t, issue)
			}
		})
	}
}

func TestCompareRoles_CountMismatch(t *testing.T) {
	issue := CompareRoles(
		map[Role][]domain.ID{RoleOutput: {10, 10}},
		map[Role][]*diagram.Node{RoleOutput: {node(1, 10)}},
		map[Role]map[int]int{RoleOutput: {1: 3}},
	)
	require.NotNil(t, issue)
	assert.Equal(t, CategoryOutputOutOfSync, issue.Category)
	assert.Equal(t, "only in model: -; only in diagram: 10", issue.Detail)
}

func TestCompareRoles_SharedNodeCountsPerSide(t *testing.T) {
	// node 1 is consumed twice and produced once
	shared := node(1, 10)
	drawn := map[Role][]*diagram.Node{
		RoleInput:  {shared},
		RoleOutput: {shared, node(2, 20)},
	}
	issue := CompareRoles(
		map[Role][]domain.ID{RoleInput: {10, 10}, RoleOutput: {10, 20}},
		drawn,
		map[Role]map[int]int{RoleInput: {1: 2}},
	)
	assert.Nil(t, issue)

	issue = CompareRoles(
		map[Role][]domain.ID{RoleInput: {10}, RoleOutput: {10, 10, 20}},
		drawn,
		map[Role]map[int]int{RoleInput: {1: 2}},
	)
	require.NotNil(t, issue)
	assert.Equal(t, CategoryInputOutOfSync, issue.Category)
	assert.Equal(t, "only in model: -; only in diagram: 10", issue.Detail)
}

func TestCompareRoles_FirstMismatchWins(t *testing.T) {
	issue := CompareRoles(
		map[Role][]domain.ID{
			RoleInput:     {1},
			RoleOutput:    {2},
			RoleInhibitor: {3},
		},
		map[Role][]*diagram.Node{
			RoleInput:  {node(1, 9)},
			RoleOutput: {node(2, 8)},
		},
		nil,
	)
	require.NotNil(t, issue)
	assert.Equal(t, CategoryInputOutOfSync, issue.Category)
	assert.Equal(t, "only in model: 1; only in diagram: 9", issue.Detail)
}

func TestCompareRoles_RegulatorsAreSets(t *testing.T) {
	cat := node(1, 50)
	issue := CompareRoles(
		map[Role][]domain.ID{
			RoleCatalyst:  {50, 50},
			RoleActivator: {60},
		},
		map[Role][]*diagram.Node{
			RoleCatalyst:  {cat},
			RoleActivator: {node(2, 60), node(3, 60)},
		},
		// stoichiometry never applies to catalysts
		map[Role]map[int]int{RoleCatalyst: {1: 4}},
	)
	assert.Nil(t, issue)

	issue = CompareRoles(
		map[Role][]domain.ID{RoleInhibitor: {70}},
		map[Role][]*diagram.Node{RoleInhibitor: {node(4, 71)}},
		nil,
	)
	require.NotNil(t, issue)
	assert.Equal(t, CategoryInhibitorOutOfSync, issue.Category)
}

func TestCompareRoles_UnlabeledNodeNeverMatches(t *testing.T) {
	issue := CompareRoles(
		map[Role][]domain.ID{RoleInput: {10}},
		map[Role][]*diagram.Node{RoleInput: {node(1, 10), node(2, 0)}},
		nil,
	)
	require.NotNil(t, issue)
	assert.Equal(t, "only in model: -; only in diagram: 0", issue.Detail)
}

func TestRole_Category(t *testing.T) {
	want := map[Role]domain.Category{
		RoleInput:     CategoryInputOutOfSync,
		RoleOutput:    CategoryOutputOutOfSync,
		RoleCatalyst:  CategoryCatalystOutOfSync,
		RoleActivator: CategoryActivatorOutOfSync,
		RoleInhibitor: CategoryInhibitorOutOfSync,
	}
	for _, role := range Roles {
		assert.Equal(t, want[role], role.Category(), role.String())
	}
	assert.Equal(t, domain.Category("role(9) out of sync"), Role(9).Category())
}

func TestCompareReaction(t *testing.T) {
	g := testhelpers.NewGraph()
	glc := g.Add(1, "SimpleEntity", "glucose")
	atp := g.Add(2, "SimpleEntity", "ATP")
	g6p := g.Add(3, "SimpleEntity", "G6P")
	adp := g.Add(4, "SimpleEntity", "ADP")
	hk := g.Add(5, "Complex", "hexokinase")
	inhibitor := g.Add(6, "SimpleEntity", "G6P inhibitor")
	ca := g.Add(7, "CatalystActivity", "hexokinase activity")
	ca.Set("physicalEntity", hk)
	neg := g.Add(8, "NegativeRegulation", "inhibition")
	neg.Set("regulator", inhibitor)
	rxn := g.Add(100, "Reaction", "glucose phosphorylation")
	rxn.Set("input", testhelpers.Refs(glc, atp)...)
	rxn.Set("output", testhelpers.Refs(g6p, adp)...)
	rxn.Set("catalystActivity", ca)
	rxn.Set("regulatedBy", neg)

	raw := testhelpers.NewDoc(1000).
		Node(1, "Chemical", 1).
		Node(2, "Chemical", 2).
		Node(3, "Chemical", 3).
		Node(4, "Chemical", 4).
		Node(5, "Complex", 5).
		Node(6, "Chemical", 6).
		Reaction(10, 100,
			testhelpers.In(2), testhelpers.In(1),
			testhelpers.Out(3), testhelpers.Out(4),
			testhelpers.Cat(5), testhelpers.Inh(6)).
		String()
	dg, err := diagram.Extract([]byte(raw))
	require.NoError(t, err)

	ctx := context.Background()
	issue, err := CompareReaction(ctx, g, rxn, dg.Edges[0])
	require.NoError(t, err)
	assert.Nil(t, issue)

	// drop the inhibitor from the model
	rxn.Set("regulatedBy")
	issue, err = CompareReaction(ctx, g, rxn, dg.Edges[0])
	require.NoError(t, err)
	require.NotNil(t, issue)
	assert.Equal(t, CategoryInhibitorOutOfSync, issue.Category)
	assert.Equal(t, []*domain.Instance{rxn}, issue.Entities)
}

func TestCompareReaction_SharedInputOutput(t *testing.T) {
	g := testhelpers.NewGraph()
	a := g.Add(10, "SimpleEntity", "A")
	b := g.Add(20, "SimpleEntity", "B")
	rxn := g.Add(100, "Reaction", "2A -> A + B")
	rxn.Set("input", testhelpers.Refs(a, a)...)
	rxn.Set("output", testhelpers.Refs(a, b)...)

	raw := testhelpers.NewDoc(1000).
		Node(1, "Chemical", 10).
		Node(2, "Chemical", 20).
		Reaction(5, 100, testhelpers.In(1, 2), testhelpers.Out(1), testhelpers.Out(2)).
		String()
	dg, err := diagram.Extract([]byte(raw))
	require.NoError(t, err)

	issue, err := CompareReaction(context.Background(), g, rxn, dg.Edges[0])
	require.NoError(t, err)
	assert.Nil(t, issue)
}

func TestParticipants_WrongClass(t *testing.T) {
	g := testhelpers.NewGraph()
	pw := g.Add(1, "Pathway", "pw")
	_, err := Participants(context.Background(), g, pw)
	assert.True(t, errors.Is(err, domain.ErrInvalidCandidateType))
}

func TestParticipants_StoreFailure(t *testing.T) {
	g := testhelpers.NewGraph()
	rxn := g.Add(1, "Reaction", "r")
	g.Fail["LoadAttributes"] = errors.New("timeout")
	_, err := Participants(context.Background(), g, rxn)
	assert.True(t, errors.Is(err, domain.ErrBackingStore))
}
