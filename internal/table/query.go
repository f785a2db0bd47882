package table

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Query carries the table state requested by the UI.
type Query struct {
	Page    int
	PerPage int
	Sort    string
	Desc    bool
	Search  string
	Columns []string
}

// ParseQuery reads page, per_page, sort (prefix "-" for descending), search
// and columns (comma separated) from v.
func ParseQuery(v url.Values) Query {
	q := Query{Search: strings.TrimSpace(v.Get("search"))}
	q.Page, _ = strconv.Atoi(v.Get("page"))
	q.PerPage, _ = strconv.Atoi(v.Get("per_page"))
	if s := strings.TrimSpace(v.Get("sort")); s != "" {
		q.Desc = strings.HasPrefix(s, "-")
		q.Sort = strings.TrimPrefix(s, "-")
	}
	if cols := strings.TrimSpace(v.Get("columns")); cols != "" {
		for _, c := range strings.Split(cols, ",") {
			if c = strings.TrimSpace(c); c != "" {
				q.Columns = append(q.Columns, c)
			}
		}
	}
	return q
}

// Page is one page of rows with the columns to show.
type Page[T any] struct {
	Columns    []Column[T]
	Rows       []T
	Pagination Pagination
}

// Filter returns the rows matching q.Search over the visible columns, sorted
// by q.Sort when it names a sortable column.
func (t *Table[T]) Filter(rows []T, q Query) []T {
	visible := t.Visible(q.Columns)
	out := make([]T, 0, len(rows))
	needle := strings.ToLower(q.Search)
	for _, row := range rows {
		if needle == "" || matches(visible, row, needle) {
			out = append(out, row)
		}
	}
	if col, ok := t.Column(q.Sort); ok && col.Sortable {
		sort.SliceStable(out, func(i, j int) bool {
			a, b := col.value(out[i]), col.value(out[j])
			if q.Desc {
				return less(b, a)
			}
			return less(a, b)
		})
	}
	return out
}

// Apply filters rows and cuts the requested page.
func (t *Table[T]) Apply(rows []T, q Query) Page[T] {
	filtered := t.Filter(rows, q)
	p := Paginate(len(filtered), q.Page, q.PerPage)
	start, end := p.Bounds()
	return Page[T]{Columns: t.Visible(q.Columns), Rows: filtered[start:end], Pagination: p}
}

func matches[T any](cols []Column[T], row T, needle string) bool {
	for _, c := range cols {
		if strings.Contains(strings.ToLower(c.value(row)), needle) {
			return true
		}
	}
	return false
}

// less orders numerically when both values are numbers, otherwise by
// case-insensitive text.
func less(a, b string) bool {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		return fa < fb
	}
	return strings.ToLower(a) < strings.ToLower(b)
}
