package compartment

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pbaille/pathwayqa/internal/domain"
	"github.com/pbaille/pathwayqa/internal/testhelpers"
)

const testTable = `
compartments:
  - {id: 1, name: cytosol, neighbors: [2, 4]}
  - {id: 2, name: plasma membrane, neighbors: [3]}
  - {id: 3, name: extracellular region}
  - {id: 4, name: nuclear envelope, neighbors: [5]}
  - {id: 5, name: nucleoplasm}
exceptions:
  - {reaction: 2, entity: 1}
`

type world struct {
	g      *testhelpers.Graph
	engine *Engine

	cytosol, membrane, extracellular, envelope, nucleoplasm, nucleus *domain.Instance
}

func newWorld(t *testing.T) *world {
	t.Helper()
	table, err := ParseTable(strings.NewReader(testTable))
	require.NoError(t, err)

	w := &world{g: testhelpers.NewGraph()}
	cell := w.g.Compartment(100, "cell")
	w.cytosol = w.g.Compartment(1, "cytosol", cell)
	w.membrane = w.g.Compartment(2, "plasma membrane", cell)
	w.extracellular = w.g.Compartment(3, "extracellular region")
	w.nucleus = w.g.Compartment(6, "nucleus", cell)
	w.envelope = w.g.Compartment(4, "nuclear envelope", w.nucleus)
	w.nucleoplasm = w.g.Compartment(5, "nucleoplasm", w.nucleus)
	w.engine = NewEngine(w.g, table, zap.NewNop())
	return w
}

func (w *world) reaction(id domain.ID, declared []*domain.Instance, participants ...*domain.Instance) *domain.Instance {
	rxn := w.g.Add(id, "Reaction", "rxn")
	rxn.Set("compartment", testhelpers.Refs(declared...)...)
	rxn.Set("input", testhelpers.Refs(participants...)...)
	return rxn
}

func TestParseTable_Symmetric(t *testing.T) {
	table, err := ParseTable(strings.NewReader(testTable))
	require.NoError(t, err)
	assert.True(t, table.Adjacent(1, 2))
	assert.True(t, table.Adjacent(2, 1))
	assert.True(t, table.Adjacent(5, 4))
	assert.False(t, table.Adjacent(1, 5))
	assert.True(t, table.Excepted(2, 1))
	assert.False(t, table.Excepted(1, 2))
	assert.Equal(t, "nucleoplasm", table.Name(5))
}

func TestParseTable_Rejects(t *testing.T) {
	_, err := ParseTable(strings.NewReader("compartments:\n  - {id: 1, name: a}\n  - {id: 1, name: b}\n"))
	assert.Error(t, err)
	_, err = ParseTable(strings.NewReader("compartments:\n  - {id: 0, name: a}\n"))
	assert.Error(t, err)
}

func TestDefaultTable(t *testing.T) {
	table := DefaultTable()
	assert.Greater(t, table.Len(), 10)
	assert.True(t, table.Adjacent(70101, 876))
	assert.True(t, table.Adjacent(876, 70101))
}

func TestAncestors(t *testing.T) {
	w := newWorld(t)
	anc, err := w.engine.Ancestors(context.Background(), w.nucleoplasm)
	require.NoError(t, err)
	assert.Equal(t, domain.NewIDSet(5, 6, 100), anc)
}

func TestAncestors_Cycle(t *testing.T) {
	g := testhelpers.NewGraph()
	a := g.Compartment(1, "a")
	b := g.Compartment(2, "b", a)
	a.Set("instanceOf", b)
	e := NewEngine(g, DefaultTable(), zap.NewNop())
	anc, err := e.Ancestors(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, domain.NewIDSet(1, 2), anc)
}

func TestReactionPolicy_AdjacentWithoutDeclared(t *testing.T) {
	w := newWorld(t)
	for _, pair := range [][2]*domain.Instance{
		{w.cytosol, w.membrane},
		{w.membrane, w.cytosol},
		{w.envelope, w.nucleoplasm},
	} {
		a := w.g.Entity(10, "SimpleEntity", "a", pair[0])
		b := w.g.Entity(11, "SimpleEntity", "b", pair[1])
		rxn := w.reaction(20, nil, a, b)
		issue, err := w.engine.CheckContainer(context.Background(), Reaction, rxn)
		require.NoError(t, err)
		require.NotNil(t, issue)
		assert.Equal(t, CategoryNoReactionCompartment, issue.Category)
	}
}

func TestReactionPolicy(t *testing.T) {
	w := newWorld(t)
	inCytosol := w.g.Entity(10, "SimpleEntity", "glucose", w.cytosol)
	atMembrane := w.g.Entity(11, "EntityWithAccessionedSequence", "transporter", w.membrane)
	outside := w.g.Entity(12, "SimpleEntity", "glucose", w.extracellular)
	inNucleus := w.g.Entity(13, "SimpleEntity", "ATP", w.nucleoplasm)

	tests := []struct {
		name         string
		declared     []*domain.Instance
		participants []*domain.Instance
		want         domain.Category
	}{
		{"single compartment", []*domain.Instance{w.cytosol}, []*domain.Instance{inCytosol}, ""},
		{"declared ancestor", []*domain.Instance{w.nucleus}, []*domain.Instance{inNucleus}, ""},
		{"too many", []*domain.Instance{w.cytosol}, []*domain.Instance{inCytosol, atMembrane, outside}, CategoryTooManyCompartments},
		{"not adjacent", []*domain.Instance{w.cytosol}, []*domain.Instance{inCytosol, inNucleus}, CategoryNotAdjacent},
		{"too many declared", []*domain.Instance{w.cytosol, w.membrane, w.extracellular}, []*domain.Instance{inCytosol}, CategoryTooManyReactionCompartments},
		{"declared elsewhere", []*domain.Instance{w.extracellular}, []*domain.Instance{inCytosol}, CategoryMismatch},
		{"two declared two participants", []*domain.Instance{w.membrane, w.extracellular}, []*domain.Instance{outside, atMembrane}, ""},
		{"two declared one participant", []*domain.Instance{w.cytosol, w.membrane}, []*domain.Instance{inCytosol}, CategoryMismatch},
		{"exception pair", []*domain.Instance{w.membrane}, []*domain.Instance{inCytosol}, ""},
		{"transport declared once", []*domain.Instance{w.membrane}, []*domain.Instance{atMembrane, outside}, ""},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rxn := w.reaction(domain.ID(1000+i), tt.declared, tt.participants...)
			issue, err := w.engine.CheckContainer(context.Background(), Reaction, rxn)
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, issue)
				return
			}
			require.NotNil(t, issue)
			assert.Equal(t, tt.want, issue.Category)
			assert.Equal(t, []*domain.Instance{rxn}, issue.Entities)
		})
	}
}

func TestReactionPolicy_CatalystCounts(t *testing.T) {
	w := newWorld(t)
	sub := w.g.Entity(10, "SimpleEntity", "s", w.cytosol)
	enzyme := w.g.Entity(11, "Complex", "enzyme", w.nucleoplasm)
	ca := w.g.Add(12, "CatalystActivity", "activity")
	ca.Set("physicalEntity", enzyme)
	rxn := w.reaction(20, []*domain.Instance{w.cytosol}, sub)
	rxn.Set("catalystActivity", ca)

	issue, err := w.engine.CheckContainer(context.Background(), Reaction, rxn)
	require.NoError(t, err)
	require.NotNil(t, issue)
	assert.Equal(t, CategoryNotAdjacent, issue.Category)
}

func TestComplexPolicy_CytosolNucleus(t *testing.T) {
	w := newWorld(t)
	a := w.g.Entity(10, "EntityWithAccessionedSequence", "A", w.cytosol)
	b := w.g.Entity(11, "EntityWithAccessionedSequence", "B", w.cytosol)
	cx := w.g.Entity(20, "Complex", "A:B", w.cytosol)
	cx.Set("hasComponent", testhelpers.Refs(a, b)...)
	ctx := context.Background()

	issue, err := w.engine.CheckContainer(ctx, Complex, cx)
	require.NoError(t, err)
	assert.Nil(t, issue)

	b.Set("compartment", w.nucleoplasm)
	issue, err = w.engine.CheckContainer(ctx, Complex, cx)
	require.NoError(t, err)
	require.NotNil(t, issue)
	assert.Equal(t, CategoryTooManySubunitCompartments, issue.Category)

	cx.Set("includedLocation", w.nucleoplasm)
	issue, err = w.engine.CheckContainer(ctx, Complex, cx)
	require.NoError(t, err)
	require.NotNil(t, issue)
	assert.Equal(t, CategoryNotAdjacent, issue.Category)

	b.Set("compartment", w.membrane)
	cx.Set("includedLocation", w.membrane)
	issue, err = w.engine.CheckContainer(ctx, Complex, cx)
	require.NoError(t, err)
	assert.Nil(t, issue)
}

func TestComplexPolicy_Declared(t *testing.T) {
	w := newWorld(t)
	a := w.g.Entity(10, "SimpleEntity", "A", w.membrane)
	ctx := context.Background()

	none := w.g.Entity(20, "Complex", "none")
	none.Set("hasComponent", a)
	issue, err := w.engine.CheckContainer(ctx, Complex, none)
	require.NoError(t, err)
	require.NotNil(t, issue)
	assert.Equal(t, CategoryNoComplexCompartment, issue.Category)

	two := w.g.Entity(21, "Complex", "two", w.cytosol, w.membrane)
	two.Set("hasComponent", a)
	issue, err = w.engine.CheckContainer(ctx, Complex, two)
	require.NoError(t, err)
	require.NotNil(t, issue)
	assert.Equal(t, CategoryTooManyComplexCompartments, issue.Category)

	wrong := w.g.Entity(22, "Complex", "wrong", w.cytosol)
	wrong.Set("hasComponent", a)
	issue, err = w.engine.CheckContainer(ctx, Complex, wrong)
	require.NoError(t, err)
	require.NotNil(t, issue)
	assert.Equal(t, CategoryMismatch, issue.Category)

	wrong.Set("includedLocation", w.extracellular)
	issue, err = w.engine.CheckContainer(ctx, Complex, wrong)
	require.NoError(t, err)
	require.NotNil(t, issue)
	assert.Equal(t, CategoryMismatch, issue.Category)
}

func TestEntitySetPolicy(t *testing.T) {
	w := newWorld(t)
	a := w.g.Entity(10, "SimpleEntity", "A", w.cytosol)
	b := w.g.Entity(11, "SimpleEntity", "B", w.nucleoplasm)
	c := w.g.Entity(12, "SimpleEntity", "C", w.extracellular)
	ctx := context.Background()

	set := w.g.Entity(20, "CandidateSet", "set", w.nucleoplasm, w.cytosol)
	set.Set("hasMember", a)
	set.Set("hasCandidate", b)
	issue, err := w.engine.CheckContainer(ctx, EntitySet, set)
	require.NoError(t, err)
	assert.Nil(t, issue, "no adjacency requirement for sets")

	set.Set("compartment", w.cytosol)
	issue, err = w.engine.CheckContainer(ctx, EntitySet, set)
	require.NoError(t, err)
	require.NotNil(t, issue)
	assert.Equal(t, CategoryMismatch, issue.Category)

	set.Set("hasMember", testhelpers.Refs(a, c)...)
	issue, err = w.engine.CheckContainer(ctx, EntitySet, set)
	require.NoError(t, err)
	require.NotNil(t, issue)
	assert.Equal(t, CategoryTooManyMemberCompartments, issue.Category)
}

func TestCheckContainer_WrongClass(t *testing.T) {
	w := newWorld(t)
	cx := w.g.Entity(20, "Complex", "cx", w.cytosol)
	_, err := w.engine.CheckContainer(context.Background(), Reaction, cx)
	assert.True(t, errors.Is(err, domain.ErrInvalidCandidateType))
}

func TestCheckContainer_StoreFailure(t *testing.T) {
	w := newWorld(t)
	cx := w.g.Entity(20, "Complex", "cx", w.cytosol)
	w.g.Fail["LoadAttributes"] = errors.New("connection reset")
	_, err := w.engine.CheckContainer(context.Background(), Complex, cx)
	assert.True(t, errors.Is(err, domain.ErrBackingStore))
}
