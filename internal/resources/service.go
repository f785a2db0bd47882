// Package resources proxies the console's list and form screens to the
// business API.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/odyssey-erp/odyssey-console/internal/apiclient"
	"github.com/odyssey-erp/odyssey-console/internal/table"
)

// Upstream is the subset of the API client used by resource proxies.
type Upstream interface {
	Get(ctx context.Context, token, path string, query url.Values, out any) error
	Post(ctx context.Context, token, path string, body, out any) error
	Put(ctx context.Context, token, path string, body, out any) error
	Patch(ctx context.Context, token, path string, body, out any) error
	Delete(ctx context.Context, token, path string) error
}

// Service runs list, export and record operations for any Resource.
type Service struct {
	api         Upstream
	exportLimit int
}

// NewService constructs a Service. exportLimit caps exported rows.
func NewService(api Upstream, exportLimit int) *Service {
	if exportLimit <= 0 {
		exportLimit = 5000
	}
	return &Service{api: api, exportLimit: exportLimit}
}

// List returns one page. Paginated upstream collections are paged by the
// API; plain arrays are searched, sorted and paged locally.
func (s *Service) List(ctx context.Context, token string, res Resource, q table.Query) (table.Page[Row], error) {
	perPage := table.ClampPerPage(q.PerPage)
	page := q.Page
	if page < 1 {
		page = 1
	}
	rows, meta, err := s.fetchPage(ctx, token, res, q, page, perPage)
	if err != nil {
		return table.Page[Row]{}, err
	}
	if meta == nil {
		return res.Table.Apply(rows, q), nil
	}

	p := table.Paginate(meta.Total, page, perPage)
	if p.CurrentPage != page {
		if rows, meta, err = s.fetchPage(ctx, token, res, q, p.CurrentPage, perPage); err != nil {
			return table.Page[Row]{}, err
		}
		if meta != nil {
			p = table.Paginate(meta.Total, p.CurrentPage, perPage)
		}
	}
	return table.Page[Row]{Columns: res.Table.Visible(q.Columns), Rows: rows, Pagination: p}, nil
}

// Export collects every matching row up to the export limit.
func (s *Service) Export(ctx context.Context, token string, res Resource, q table.Query) ([]table.Column[Row], []Row, error) {
	var all []Row
	paged := false
	for page := 1; len(all) < s.exportLimit; page++ {
		rows, meta, err := s.fetchPage(ctx, token, res, q, page, table.MaxPerPage)
		if err != nil {
			return nil, nil, err
		}
		all = append(all, rows...)
		paged = meta != nil
		if meta == nil || page >= meta.LastPage || len(rows) == 0 {
			break
		}
	}
	local := q
	if paged {
		// The API already applied the search.
		local.Search = ""
	}
	filtered := res.Table.Filter(all, local)
	if len(filtered) > s.exportLimit {
		filtered = filtered[:s.exportLimit]
	}
	return res.Table.Visible(q.Columns), filtered, nil
}

func (s *Service) fetchPage(ctx context.Context, token string, res Resource, q table.Query, page, perPage int) ([]Row, *apiclient.Meta, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))
	if q.Search != "" {
		query.Set("search", q.Search)
	}
	if q.Sort != "" {
		if col, ok := res.Table.Column(q.Sort); ok && col.Sortable {
			query.Set("sort", q.Sort)
			direction := "asc"
			if q.Desc {
				direction = "desc"
			}
			query.Set("direction", direction)
		}
	}

	var raw json.RawMessage
	if err := s.api.Get(ctx, token, res.Path, query, &raw); err != nil {
		return nil, nil, err
	}
	var env apiclient.Envelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 {
		var rows []Row
		if err := json.Unmarshal(env.Data, &rows); err != nil {
			return nil, nil, fmt.Errorf("resources: decode %s: %w", res.Name, err)
		}
		return rows, env.Meta, nil
	}
	var rows []Row
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, nil, fmt.Errorf("resources: decode %s: %w", res.Name, err)
	}
	return rows, nil, nil
}

// Get fetches one record.
func (s *Service) Get(ctx context.Context, token string, res Resource, id string) (Row, error) {
	var raw json.RawMessage
	if err := s.api.Get(ctx, token, recordPath(res, id), nil, &raw); err != nil {
		return nil, err
	}
	return decodeRow(res, raw)
}

// Create posts a new record.
func (s *Service) Create(ctx context.Context, token string, res Resource, body Row) (Row, error) {
	var raw json.RawMessage
	if err := s.api.Post(ctx, token, res.Path, body, &raw); err != nil {
		return nil, err
	}
	return decodeRow(res, raw)
}

// Update replaces a record; partial selects PATCH over PUT.
func (s *Service) Update(ctx context.Context, token string, res Resource, id string, body Row, partial bool) (Row, error) {
	var raw json.RawMessage
	var err error
	if partial {
		err = s.api.Patch(ctx, token, recordPath(res, id), body, &raw)
	} else {
		err = s.api.Put(ctx, token, recordPath(res, id), body, &raw)
	}
	if err != nil {
		return nil, err
	}
	return decodeRow(res, raw)
}

// Delete removes a record.
func (s *Service) Delete(ctx context.Context, token string, res Resource, id string) error {
	return s.api.Delete(ctx, token, recordPath(res, id))
}

func recordPath(res Resource, id string) string {
	return res.Path + "/" + url.PathEscape(id)
}

func decodeRow(res Resource, raw json.RawMessage) (Row, error) {
	if len(raw) == 0 {
		return Row{}, nil
	}
	var row Row
	if err := apiclient.DecodeData(raw, &row); err != nil {
		return nil, fmt.Errorf("resources: decode %s: %w", res.Name, err)
	}
	return row, nil
}
