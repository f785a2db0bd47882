// Package table is the generic data table behind every list screen: column
// definitions, search, sorting, pagination and CSV/XLSX export.
package table

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// Column describes one table column over rows of type T.
type Column[T any] struct {
	ID       string
	Header   string
	Hidden   bool
	Sortable bool
	// Accessor renders the cell value of a row.
	Accessor func(T) string
}

// Title returns Header, or a title cased form of ID when Header is empty.
func (c Column[T]) Title() string {
	if c.Header != "" {
		return c.Header
	}
	return titleCaser.String(strings.NewReplacer("_", " ", ".", " ").Replace(c.ID))
}

func (c Column[T]) value(row T) string {
	if c.Accessor == nil {
		return ""
	}
	return c.Accessor(row)
}

// Table is an ordered set of columns.
type Table[T any] struct {
	columns []Column[T]
}

// New constructs a Table.
func New[T any](columns ...Column[T]) *Table[T] {
	return &Table[T]{columns: columns}
}

// Columns returns every declared column.
func (t *Table[T]) Columns() []Column[T] {
	return append([]Column[T](nil), t.columns...)
}

// Column looks up a column by id.
func (t *Table[T]) Column(id string) (Column[T], bool) {
	for _, c := range t.columns {
		if c.ID == id {
			return c, true
		}
	}
	return Column[T]{}, false
}

// Visible returns the columns shown for a selection of ids. An empty
// selection shows every column not hidden by default; otherwise the selected
// ids are shown in declaration order. Unknown ids are ignored.
func (t *Table[T]) Visible(selection []string) []Column[T] {
	if len(selection) == 0 {
		out := make([]Column[T], 0, len(t.columns))
		for _, c := range t.columns {
			if !c.Hidden {
				out = append(out, c)
			}
		}
		return out
	}
	want := make(map[string]struct{}, len(selection))
	for _, id := range selection {
		want[strings.TrimSpace(id)] = struct{}{}
	}
	out := make([]Column[T], 0, len(selection))
	for _, c := range t.columns {
		if _, ok := want[c.ID]; ok {
			out = append(out, c)
		}
	}
	return out
}
