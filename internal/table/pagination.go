package table

// Default and maximum page sizes.
const (
	DefaultPerPage = 25
	MaxPerPage     = 200
)

// Pagination describes one page of a row set.
type Pagination struct {
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	TotalPages  int `json:"total_pages"`
	TotalRows   int `json:"total_rows"`
}

// Paginate computes the pagination of total rows. page is clamped to
// [1, TotalPages]; with zero rows there is a single empty page.
func Paginate(total, page, perPage int) Pagination {
	perPage = ClampPerPage(perPage)
	if total < 0 {
		total = 0
	}
	pages := (total + perPage - 1) / perPage
	if pages < 1 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}
	return Pagination{CurrentPage: page, PerPage: perPage, TotalPages: pages, TotalRows: total}
}

// ClampPerPage bounds a requested page size.
func ClampPerPage(perPage int) int {
	if perPage <= 0 {
		return DefaultPerPage
	}
	if perPage > MaxPerPage {
		return MaxPerPage
	}
	return perPage
}

// Bounds returns the slice bounds of the current page.
func (p Pagination) Bounds() (start, end int) {
	start = (p.CurrentPage - 1) * p.PerPage
	if start > p.TotalRows {
		start = p.TotalRows
	}
	end = start + p.PerPage
	if end > p.TotalRows {
		end = p.TotalRows
	}
	return start, end
}

// HasPrev reports whether a previous page exists.
func (p Pagination) HasPrev() bool { return p.CurrentPage > 1 }

// HasNext reports whether a next page exists.
func (p Pagination) HasNext() bool { return p.CurrentPage < p.TotalPages }
