package table

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type product struct {
	SKU   string
	Name  string
	Stock int
	Cost  string
}

func productTable() *Table[product] {
	return New(
		Column[product]{ID: "sku", Header: "SKU", Sortable: true, Accessor: func(p product) string { return p.SKU }},
		Column[product]{ID: "name", Sortable: true, Accessor: func(p product) string { return p.Name }},
		Column[product]{ID: "stock", Sortable: true, Accessor: func(p product) string { return strconv.Itoa(p.Stock) }},
		Column[product]{ID: "unit_cost", Hidden: true, Accessor: func(p product) string { return p.Cost }},
	)
}

func products() []product {
	return []product{
		{SKU: "A-1", Name: "Bolt", Stock: 10, Cost: "0.10"},
		{SKU: "A-2", Name: "Nut", Stock: 2, Cost: "0.05"},
		{SKU: "B-1", Name: "Washer, flat", Stock: 100, Cost: "0.01"},
	}
}

func TestPaginateClampsPage(t *testing.T) {
	cases := []struct {
		name                 string
		total, page, perPage int
		wantPage, wantPages  int
	}{
		{"zero rows", 0, 3, 10, 1, 1},
		{"below range", 25, -2, 10, 1, 3},
		{"above range", 25, 9, 10, 3, 3},
		{"in range", 25, 2, 10, 2, 3},
		{"exact fit", 20, 2, 10, 2, 2},
		{"default per page", 60, 3, 0, 3, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Paginate(tc.total, tc.page, tc.perPage)
			assert.Equal(t, tc.wantPage, p.CurrentPage)
			assert.Equal(t, tc.wantPages, p.TotalPages)
			assert.GreaterOrEqual(t, p.CurrentPage, 1)
			assert.LessOrEqual(t, p.CurrentPage, p.TotalPages)
		})
	}
	assert.Equal(t, MaxPerPage, Paginate(10, 1, 10_000).PerPage)
}

func TestApplySearchSortPage(t *testing.T) {
	tbl := productTable()

	page := tbl.Apply(products(), Query{Sort: "stock", Desc: true, PerPage: 2})
	require.Len(t, page.Rows, 2)
	assert.Equal(t, "B-1", page.Rows[0].SKU)
	assert.Equal(t, "A-1", page.Rows[1].SKU)
	assert.Equal(t, 2, page.Pagination.TotalPages)

	page = tbl.Apply(products(), Query{Sort: "stock", PerPage: 2, Page: 7})
	assert.Equal(t, 2, page.Pagination.CurrentPage)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "B-1", page.Rows[0].SKU)

	page = tbl.Apply(products(), Query{Search: "nut"})
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "A-2", page.Rows[0].SKU)

	// Hidden columns are not searched.
	assert.Empty(t, tbl.Apply(products(), Query{Search: "0.05"}).Rows)
	assert.Len(t, tbl.Apply(products(), Query{Search: "0.05", Columns: []string{"unit_cost"}}).Rows, 1)

	// Sorting on unknown or unsortable columns keeps input order.
	page = tbl.Apply(products(), Query{Sort: "unit_cost"})
	assert.Equal(t, "A-1", page.Rows[0].SKU)
}

func TestVisibleColumns(t *testing.T) {
	tbl := productTable()
	ids := func(cols []Column[product]) []string {
		out := []string{}
		for _, c := range cols {
			out = append(out, c.ID)
		}
		return out
	}
	assert.Equal(t, []string{"sku", "name", "stock"}, ids(tbl.Visible(nil)))
	assert.Equal(t, []string{"sku", "unit_cost"}, ids(tbl.Visible([]string{"unit_cost", "sku", "bogus"})))
}

func TestColumnTitle(t *testing.T) {
	tbl := productTable()
	c, _ := tbl.Column("unit_cost")
	assert.Equal(t, "Unit Cost", c.Title())
	c, _ = tbl.Column("sku")
	assert.Equal(t, "SKU", c.Title())
}

func TestWriteCSV(t *testing.T) {
	tbl := productTable()
	cols := tbl.Visible(nil)
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, cols, products()))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 1+len(products()))
	assert.Equal(t, "sku,name,stock", lines[0])
	assert.Equal(t, `B-1,"Washer, flat",100`, lines[3])
}

func TestWriteCSVFlattensLinesAndQuotesFormulas(t *testing.T) {
	cols := productTable().Visible([]string{"sku", "name"})
	rows := []product{
		{SKU: "=HYPERLINK(\"x\")", Name: "two\nlines"},
		{SKU: "@SUM(A1)", Name: "crlf\r\nend"},
		{SKU: "-12.5", Name: "+cmd"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, cols, rows))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 1+len(rows))
	assert.Equal(t, `"'=HYPERLINK(""x"")",two lines`, lines[1])
	assert.Equal(t, "'@SUM(A1),crlf end", lines[2])
	assert.Equal(t, "-12.5,'+cmd", lines[3])
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, productTable().Visible(nil), nil))
	assert.Equal(t, "sku,name,stock\n", buf.String())
}

func TestWriteXLSX(t *testing.T) {
	tbl := productTable()
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, "Products", tbl.Visible(nil), products()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Products"}, f.GetSheetList())
	rows, err := f.GetRows("Products")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"SKU", "Name", "Stock"}, rows[0])
	assert.Equal(t, []string{"A-2", "Nut", "2"}, rows[2])
}

func TestParseQuery(t *testing.T) {
	q := ParseQuery(url.Values{
		"page":     {"3"},
		"per_page": {"50"},
		"sort":     {"-name"},
		"search":   {"  bolt "},
		"columns":  {"sku, name,,"},
	})
	assert.Equal(t, Query{Page: 3, PerPage: 50, Sort: "name", Desc: true, Search: "bolt", Columns: []string{"sku", "name"}}, q)
	assert.Equal(t, Query{}, ParseQuery(url.Values{}))
}
