package escape

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/pathwayqa/internal/domain"
	"github.com/pbaille/pathwayqa/internal/testhelpers"
)

func TestParseIDs(t *testing.T) {
	ids, err := ParseIDs(strings.NewReader("# reviewed 2023\n\n12\tglucose\n 34 \n56\tATP\tnote\n"))
	require.NoError(t, err)
	assert.Equal(t, []domain.ID{12, 34, 56}, ids)

	_, err = ParseIDs(strings.NewReader("12\n\nabc\tx\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escape.tsv")
	require.NoError(t, os.WriteFile(path, []byte("1\ta\n2\tb\n"), 0o644))

	p, err := Load(path, "2024-03-01", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len())
	assert.True(t, p.Listed(2))
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), p.Cutoff())

	_, err = Load(path, "01/03/2024", nil)
	assert.Error(t, err)

	p, err = Load("", "", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing"), "", nil)
	assert.Error(t, err)
}

type history struct {
	g     *testhelpers.Graph
	bot   *domain.Instance
	human *domain.Instance
	next  domain.ID
}

func newHistory() *history {
	g := testhelpers.NewGraph()
	return &history{
		g:     g,
		bot:   g.Add(9000, "Person", "release bot"),
		human: g.Add(9001, "Person", "curator"),
		next:  5000,
	}
}

func (h *history) edit(author *domain.Instance, when string) *domain.Instance {
	h.next++
	e := h.g.Add(h.next, "InstanceEdit", when)
	e.Set("author", author)
	e.Set("dateTime", when)
	return e
}

func TestFilter_Cutoff(t *testing.T) {
	h := newHistory()
	ctx := context.Background()

	old := h.g.Add(1, "Complex", "reviewed, untouched")
	old.Set("created", h.edit(h.human, "2020-01-01 10:00:00"))

	sameDay := h.g.Add(2, "Complex", "edited on cutoff day")
	sameDay.Set("created", h.edit(h.human, "2020-01-01 10:00:00"))
	sameDay.Set("modified", h.edit(h.human, "2024-03-01 23:59:59"))

	edited := h.g.Add(3, "Complex", "edited after review")
	edited.Set("created", h.edit(h.human, "2020-01-01 10:00:00"))
	edited.Set("modified", testhelpers.Refs(h.edit(h.human, "2024-05-02 09:00:00"))...)

	botOnly := h.g.Add(4, "Complex", "touched by maintenance")
	botOnly.Set("created", h.edit(h.human, "2020-01-01 10:00:00"))
	botOnly.Set("modified", h.edit(h.bot, "2024-06-01 00:00:00"))

	noHistory := h.g.Add(5, "Complex", "no edits")
	unlisted := h.g.Add(6, "Complex", "never reviewed")

	cutoff, err := ParseCutoff("2024-03-01")
	require.NoError(t, err)
	p := New([]domain.ID{1, 2, 3, 4, 5}, cutoff, []domain.ID{h.bot.ID})

	candidates := []*domain.Instance{unlisted, old, sameDay, edited, botOnly, noHistory}
	kept, escaped, err := p.Filter(ctx, h.g, candidates)
	require.NoError(t, err)
	assert.Equal(t, []domain.ID{6, 3}, domain.IDs(kept))
	assert.Equal(t, []domain.ID{1, 2, 4, 5}, domain.IDs(escaped))

	// filtering again, or filtering the kept set, escapes nothing new
	kept2, escaped2, err := p.Filter(ctx, h.g, candidates)
	require.NoError(t, err)
	assert.Equal(t, domain.IDs(kept), domain.IDs(kept2))
	assert.Equal(t, domain.IDs(escaped), domain.IDs(escaped2))

	kept3, escaped3, err := p.Filter(ctx, h.g, kept)
	require.NoError(t, err)
	assert.Equal(t, domain.IDs(kept), domain.IDs(kept3))
	assert.Empty(t, escaped3)
}

func TestFilter_NoCutoff(t *testing.T) {
	h := newHistory()
	a := h.g.Add(1, "Complex", "a")
	a.Set("modified", h.edit(h.human, "2030-01-01 00:00:00"))
	b := h.g.Add(2, "Complex", "b")

	p := New([]domain.ID{1}, time.Time{}, nil)
	kept, escaped, err := p.Filter(context.Background(), h.g, []*domain.Instance{a, b})
	require.NoError(t, err)
	assert.Equal(t, []domain.ID{2}, domain.IDs(kept))
	assert.Equal(t, []domain.ID{1}, domain.IDs(escaped))
	assert.Zero(t, h.g.Calls["LoadAttributes"])
}

func TestFilter_StoreFailure(t *testing.T) {
	h := newHistory()
	a := h.g.Add(1, "Complex", "a")
	h.g.Fail["LoadAttributes"] = errors.New("closed")
	p := New([]domain.ID{1}, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), nil)
	_, _, err := p.Filter(context.Background(), h.g, []*domain.Instance{a})
	assert.True(t, errors.Is(err, domain.ErrBackingStore))
}

func TestParseDateTime(t *testing.T) {
	for _, s := range []string{"2024-03-01 12:00:00", "2024-03-01 12:00:00.0", "2024-03-01T12:00:00Z", "2024-03-01"} {
		_, ok := parseDateTime(s)
		assert.True(t, ok, s)
	}
	_, ok := parseDateTime("yesterday")
	assert.False(t, ok)
}
