// Package report holds the tabular output of a check run.
package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Builder accumulates rows under a fixed header
type Builder struct {
	header []string
	rows   [][]string
}

// NewBuilder creates a builder for the given column header
func NewBuilder(header ...string) *Builder {
	return &Builder{header: append([]string(nil), header...)}
}

// Add appends a row. Short rows are padded and long rows rejected.
func (b *Builder) Add(cells ...string) error {
	if len(cells) > len(b.header) {
		return fmt.Errorf("row has %d cells, header has %d", len(cells), len(b.header))
	}
	row := make([]string, len(b.header))
	copy(row, cells)
	b.rows = append(b.rows, row)
	return nil
}

// Len returns the number of rows added so far
func (b *Builder) Len() int {
	return len(b.rows)
}

// Build returns the immutable report
func (b *Builder) Build() *Report {
	rows := make([][]string, len(b.rows))
	for i, r := range b.rows {
		rows[i] = append([]string(nil), r...)
	}
	return &Report{header: append([]string(nil), b.header...), rows: rows}
}

// Report is an immutable table of issues
type Report struct {
	header []string
	rows   [][]string
}

// Header returns a copy of the column names
func (r *Report) Header() []string {
	return append([]string(nil), r.header...)
}

// Rows returns a copy of the rows
func (r *Report) Rows() [][]string {
	out := make([][]string, len(r.rows))
	for i, row := range r.rows {
		out[i] = append([]string(nil), row...)
	}
	return out
}

func (r *Report) Len() int    { return len(r.rows) }
func (r *Report) Empty() bool { return len(r.rows) == 0 }

// WriteTSV writes the header and rows as tab-delimited lines. Tabs and
// newlines inside cells are replaced by spaces.
func (r *Report) WriteTSV(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if err := writeLine(bw, r.header); err != nil {
		return err
	}
	for _, row := range r.rows {
		if err := writeLine(bw, row); err != nil {
			return err
		}
	}
	return bw.Flush()
}

var cellReplacer = strings.NewReplacer("\t", " ", "\r\n", " ", "\n", " ", "\r", " ")

func writeLine(w *bufio.Writer, cells []string) error {
	for i, c := range cells {
		if i > 0 {
			if err := w.WriteByte('\t'); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(cellReplacer.Replace(c)); err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}

// Export writes the report as TSV to dir/filename, creating dir if needed,
// and returns the written path.
func (r *Report) Export(dir, filename string) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("export report: empty file name")
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create report dir: %w", err)
		}
	}
	path := filepath.Join(dir, filename)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report file: %w", err)
	}
	if err := r.WriteTSV(f); err != nil {
		f.Close()
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close report: %w", err)
	}
	return path, nil
}

type reportJSON struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

func (r *Report) MarshalJSON() ([]byte, error) {
	rows := r.rows
	if rows == nil {
		rows = [][]string{}
	}
	return json.Marshal(reportJSON{Header: r.header, Rows: rows})
}

func (r *Report) UnmarshalJSON(data []byte) error {
	var v reportJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	r.header, r.rows = v.Header, v.Rows
	return nil
}
