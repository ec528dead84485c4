package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder(t *testing.T) {
	b := NewBuilder("id", "name", "issue")
	require.NoError(t, b.Add("1", "glucose", "missing"))
	require.NoError(t, b.Add("2", "ATP"))
	assert.Error(t, b.Add("3", "x", "y", "z"))
	assert.Equal(t, 2, b.Len())

	r := b.Build()
	assert.Equal(t, [][]string{{"1", "glucose", "missing"}, {"2", "ATP", ""}}, r.Rows())

	// later additions and caller mutation do not leak into the report
	require.NoError(t, b.Add("4", "late", ""))
	r.Rows()[0][0] = "changed"
	r.Header()[0] = "changed"
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, "1", r.Rows()[0][0])
	assert.Equal(t, "id", r.Header()[0])
}

func TestEmpty(t *testing.T) {
	r := NewBuilder("id").Build()
	assert.True(t, r.Empty())

	var buf bytes.Buffer
	require.NoError(t, r.WriteTSV(&buf))
	assert.Equal(t, "id\n", buf.String())

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"header":["id"],"rows":[]}`, string(data))
}

func TestWriteTSV_EscapesCells(t *testing.T) {
	b := NewBuilder("id", "detail")
	require.NoError(t, b.Add("1", "a\tb\nc"))
	var buf bytes.Buffer
	require.NoError(t, b.Build().WriteTSV(&buf))
	assert.Equal(t, "id\tdetail\n1\ta b c\n", buf.String())
}

func TestExport(t *testing.T) {
	b := NewBuilder("id", "name")
	require.NoError(t, b.Add("1", "glucose"))
	dir := filepath.Join(t.TempDir(), "nested", "reports")

	path, err := b.Build().Export(dir, "check.tsv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "check.tsv"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "id\tname\n1\tglucose\n", string(data))

	_, err = b.Build().Export(dir, "")
	assert.Error(t, err)
}

func TestJSON(t *testing.T) {
	b := NewBuilder("id", "name")
	require.NoError(t, b.Add("1", "glucose"))
	data, err := json.Marshal(b.Build())
	require.NoError(t, err)

	var back Report
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, []string{"id", "name"}, back.Header())
	assert.Equal(t, [][]string{{"1", "glucose"}}, back.Rows())
}
