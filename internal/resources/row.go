package resources

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-console/internal/table"
)

// Row is one record as returned by the business API.
type Row map[string]any

// Lookup resolves a dotted path such as "customer.name".
func (r Row) Lookup(path string) (any, bool) {
	var cur any = map[string]any(r)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Text renders the value at path for display and export.
func (r Row) Text(path string) string {
	v, ok := r.Lookup(path)
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

// field builds a column reading path from a Row.
func field(path string, opts ...func(*table.Column[Row])) table.Column[Row] {
	c := table.Column[Row]{
		ID:       path,
		Sortable: true,
		Accessor: func(r Row) string { return r.Text(path) },
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func header(h string) func(*table.Column[Row]) {
	return func(c *table.Column[Row]) { c.Header = h }
}

func hidden(c *table.Column[Row]) { c.Hidden = true }

func unsortable(c *table.Column[Row]) { c.Sortable = false }
