package output

import (
	"io"
	"sort"
	"strings"
	"text/tabwriter"
)

// Tabler is implemented by results with a table layout.
type Tabler interface {
	Table() *Table
}

// Table represents tabular data.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Table implements Tabler.
func (t *Table) Table() *Table {
	return t
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// Records returns the rows as maps keyed by lower-cased header.
func (t *Table) Records() []map[string]string {
	out := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]string, len(t.Headers))
		for i, h := range t.Headers {
			if i < len(row) {
				rec[strings.ToLower(h)] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out
}

// Render renders the table with columns aligned.
func (t *Table) Render(w io.Writer, noHeaders bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if !noHeaders && len(t.Headers) > 0 {
		if _, err := io.WriteString(tw, strings.Join(t.Headers, "\t")+"\n"); err != nil {
			return err
		}
	}
	for _, row := range t.Rows {
		if _, err := io.WriteString(tw, strings.Join(row, "\t")+"\n"); err != nil {
			return err
		}
	}

	return tw.Flush()
}

// TableFormatter formats data as an aligned text table.
type TableFormatter struct {
	NoHeaders bool
}

// Format renders Tablers and string maps as tables and everything else as
// YAML.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	switch v := data.(type) {
	case nil:
		return nil
	case Tabler:
		return v.Table().Render(w, f.NoHeaders)
	case map[string]string:
		return MapTable(v).Render(w, f.NoHeaders)
	case string:
		_, err := io.WriteString(w, v+"\n")
		return err
	default:
		return (&YAMLFormatter{}).Format(w, data)
	}
}

// MapTable builds a NAME/VALUE table sorted by name.
func MapTable(m map[string]string) *Table {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	t := &Table{Headers: []string{"NAME", "VALUE"}}
	for _, name := range names {
		t.AddRow(name, m[name])
	}
	return t
}
