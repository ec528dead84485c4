package qa

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pbaille/pathwayqa/internal/domain"
	"github.com/pbaille/pathwayqa/internal/escape"
	"github.com/pbaille/pathwayqa/internal/testhelpers"
)

const categoryOdd domain.Category = "odd id"

func newRunner(g *testhelpers.Graph, policy *escape.Policy) (*Runner, *int32) {
	var contexts int32
	factory := func() *RunContext {
		atomic.AddInt32(&contexts, 1)
		return NewRunContext(g, g, nil, Options{}, zap.NewNop())
	}
	return NewRunner(factory, policy, zap.NewNop()), &contexts
}

func complexes(g *testhelpers.Graph, ids ...domain.ID) []*domain.Instance {
	var out []*domain.Instance
	for _, id := range ids {
		out = append(out, g.Add(id, "Complex", "complex"))
	}
	return out
}

func oddCheck() *Check {
	return &Check{
		Name:           "odd",
		CandidateClass: "Complex",
		Attributes:     []string{"hasComponent"},
		Inspect: Single(func(ctx context.Context, rc *RunContext, e *domain.Instance) (*domain.Issue, error) {
			if e.ID%2 == 1 {
				return domain.NewIssue(categoryOdd, e).WithDetail("odd"), nil
			}
			return nil, nil
		}),
	}
}

func TestRun_Done(t *testing.T) {
	g := testhelpers.NewGraph()
	complexes(g, 1, 2, 3, 4)
	g.Add(10, "Reaction", "not a candidate")
	runner, contexts := newRunner(g, escape.New([]domain.ID{3}, time.Time{}, nil))

	res, err := runner.Run(context.Background(), oddCheck(), nil)
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, []State{
		StateIdle, StateLoadingCandidates, StateLoadingAttributes,
		StateEscaping, StateChecking, StateReporting, StateDone,
	}, res.History)
	assert.Equal(t, int32(1), *contexts)

	assert.Equal(t, []domain.ID{3}, domain.IDs(res.Escaped))
	assert.Equal(t, 3, res.Checked)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, DefaultHeader, res.Report.Header())
	assert.Equal(t, [][]string{{"1", "complex [Complex:1]", "odd id", "odd"}}, res.Report.Rows())
	assert.NotEqual(t, "", res.RunID.String())
	assert.Contains(t, res.FileName(), "odd-")
}

func TestRun_EmptyReportIsValid(t *testing.T) {
	g := testhelpers.NewGraph()
	runner, _ := newRunner(g, nil)
	res, err := runner.Run(context.Background(), oddCheck(), complexes(g, 2, 4))
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.True(t, res.Report.Empty())
}

func TestRun_InvalidCandidateType(t *testing.T) {
	g := testhelpers.NewGraph()
	rxn := g.Add(1, "Reaction", "r")
	runner, _ := newRunner(g, nil)
	res, err := runner.Run(context.Background(), oddCheck(), []*domain.Instance{rxn})
	assert.True(t, errors.Is(err, domain.ErrInvalidCandidateType))
	assert.Equal(t, StateFailed, res.State)
}

func TestRun_AttributeLoadingIsFatal(t *testing.T) {
	g := testhelpers.NewGraph()
	complexes(g, 1)
	g.Fail["LoadAttributes"] = errors.New("lost connection")
	runner, _ := newRunner(g, nil)
	res, err := runner.Run(context.Background(), oddCheck(), nil)
	assert.True(t, errors.Is(err, domain.ErrBackingStore))
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, StateLoadingAttributes, res.History[len(res.History)-2])
}

func failingCheck(batch bool, failure error) *Check {
	c := oddCheck()
	c.Batch = batch
	inner := c.Inspect
	c.Inspect = func(ctx context.Context, rc *RunContext, e *domain.Instance) ([]*domain.Issue, error) {
		if e.ID == 3 {
			return nil, failure
		}
		return inner(ctx, rc, e)
	}
	return c
}

func TestRun_BatchContinuesPastEntityFailure(t *testing.T) {
	g := testhelpers.NewGraph()
	complexes(g, 1, 3, 5)
	runner, _ := newRunner(g, nil)

	res, err := runner.Run(context.Background(), failingCheck(true, errors.New("bad data")), nil)
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, domain.ID(3), res.Skipped[0].Entity.ID)
	assert.Equal(t, 2, res.Report.Len())
}

func TestRun_BatchStopsOnStoreFailure(t *testing.T) {
	g := testhelpers.NewGraph()
	complexes(g, 1, 3, 5)
	runner, _ := newRunner(g, nil)

	res, err := runner.Run(context.Background(), failingCheck(true, domain.StoreError("query", errors.New("timeout"))), nil)
	assert.True(t, errors.Is(err, domain.ErrBackingStore))
	assert.Equal(t, StateFailed, res.State)
	// rows found before the failure are kept
	assert.Equal(t, 1, res.Report.Len())
}

func TestRun_SingleEntityFailureIsFatal(t *testing.T) {
	g := testhelpers.NewGraph()
	complexes(g, 1, 3, 5)
	runner, _ := newRunner(g, nil)

	res, err := runner.Run(context.Background(), failingCheck(false, errors.New("bad data")), nil)
	require.Error(t, err)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 2, res.Checked)
	assert.Equal(t, 1, res.Report.Len())
}

func TestRun_Cancelled(t *testing.T) {
	g := testhelpers.NewGraph()
	complexes(g, 1, 3, 5)
	runner, _ := newRunner(g, nil)

	ctx, cancel := context.WithCancel(context.Background())
	c := oddCheck()
	inner := c.Inspect
	c.Inspect = func(ctx context.Context, rc *RunContext, e *domain.Instance) ([]*domain.Issue, error) {
		if e.ID == 3 {
			cancel()
		}
		return inner(ctx, rc, e)
	}

	res, err := runner.Run(ctx, c, nil)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, res.State)
	assert.Nil(t, res.Report)
	assert.Equal(t, 2, res.Checked)

	res, err = runner.Run(ctx, oddCheck(), nil)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, res.State)
	assert.Equal(t, []State{StateIdle, StateCancelled}, res.History)
}

func TestRunAll(t *testing.T) {
	g := testhelpers.NewGraph()
	complexes(g, 1, 2)
	runner, contexts := newRunner(g, nil)

	blocking := &Check{
		Name:           "blocking",
		CandidateClass: "Complex",
		Inspect: func(ctx context.Context, rc *RunContext, e *domain.Instance) ([]*domain.Issue, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	broken := failingCheck(false, domain.StoreError("query", errors.New("down")))
	broken.Name = "broken"
	complexes(g, 3)

	results, err := runner.RunAll(context.Background(), []*Check{oddCheck(), blocking, broken}, 0)
	assert.True(t, errors.Is(err, domain.ErrBackingStore))
	require.Len(t, results, 3)
	assert.Equal(t, int32(3), *contexts)
	assert.Equal(t, StateCancelled, results[1].State)
	assert.Equal(t, StateFailed, results[2].State)
	assert.Contains(t, []State{StateDone, StateCancelled}, results[0].State)
}

func TestRunAll_Independent(t *testing.T) {
	g := testhelpers.NewGraph()
	complexes(g, 1, 2, 3)
	runner, _ := newRunner(g, nil)

	second := oddCheck()
	second.Name = "odd-again"
	results, err := runner.RunAll(context.Background(), []*Check{oddCheck(), second}, 1)
	require.NoError(t, err)
	for _, res := range results {
		assert.Equal(t, StateDone, res.State)
		assert.Equal(t, 2, res.Report.Len())
	}
	assert.NotEqual(t, results[0].RunID, results[1].RunID)
}

func TestRunContext_Usage(t *testing.T) {
	g := testhelpers.NewGraph()
	pw := g.Add(10, "Pathway", "pw")
	rxn := g.Add(1, "Reaction", "r")
	pw.Set("hasEvent", rxn)
	g.Diagram(500, pw, testhelpers.NewDoc(10).Node(1, "Protein", 0).Reaction(2, 1, testhelpers.In(1)).String())

	rc := NewRunContext(g, g, nil, Options{}, zap.NewNop())
	idx, err := rc.Usage(context.Background())
	require.NoError(t, err)
	assert.True(t, idx.IsDrawn(1))

	calls := g.Calls["FetchByClass"]
	_, err = rc.Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, calls, g.Calls["FetchByClass"])
}

func TestRunIDs(t *testing.T) {
	g := testhelpers.NewGraph()
	complexes(g, 1, 2, 3)
	runner, _ := newRunner(g, nil)

	res, err := runner.RunIDs(context.Background(), oddCheck(), []domain.ID{2, 3})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Checked)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, domain.ID(3), res.Issues[0].Entities[0].ID)

	res, err = runner.RunIDs(context.Background(), oddCheck(), []domain.ID{1, 99})
	assert.ErrorIs(t, err, domain.ErrMissingEntity)
	assert.Equal(t, StateFailed, res.State)
}
