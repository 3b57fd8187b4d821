// Package export renders tabular payroll data into downloadable documents.
package export

import "fmt"

// Column describes one table column.
type Column struct {
	Key   string
	Title string
	// Numeric columns are right-aligned in PDF output.
	Numeric bool
}

// Table is an ordered set of rows keyed by column. Footer, when non-nil, is
// rendered after the rows using the same keys.
type Table struct {
	Title   string
	Columns []Column
	Rows    []map[string]string
	Footer  map[string]string
}

func (t Table) validate() error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("export: table has no columns")
	}
	seen := make(map[string]struct{}, len(t.Columns))
	for _, col := range t.Columns {
		if col.Key == "" {
			return fmt.Errorf("export: column without key")
		}
		if _, dup := seen[col.Key]; dup {
			return fmt.Errorf("export: duplicate column %q", col.Key)
		}
		seen[col.Key] = struct{}{}
	}
	return nil
}

func (t Table) record(row map[string]string) []string {
	out := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		out[i] = row[col.Key]
	}
	return out
}

func (t Table) header() []string {
	out := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		out[i] = col.Title
		if out[i] == "" {
			out[i] = col.Key
		}
	}
	return out
}

// Renderer turns a table into document bytes.
type Renderer interface {
	Render(Table) ([]byte, error)
	ContentType() string
	Extension() string
}
