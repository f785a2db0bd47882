package resources

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-console/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-console/internal/rbac"
	"github.com/odyssey-erp/odyssey-console/internal/shared"
	"github.com/odyssey-erp/odyssey-console/internal/table"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

type listQuery struct {
	Page    int    `validate:"gte=0"`
	PerPage int    `validate:"gte=0,lte=200"`
	Format  string `validate:"omitempty,oneof=json csv xlsx"`
	Sort    string `validate:"max=64"`
	Search  string `validate:"max=200"`
}

type columnView struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Hidden   bool   `json:"hidden"`
	Sortable bool   `json:"sortable"`
}

type resourceView struct {
	Name    string       `json:"name"`
	Title   string       `json:"title"`
	CanEdit bool         `json:"can_edit"`
	Columns []columnView `json:"columns"`
}

// Handler serves the resource screens.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	registry *Registry
	rbac     rbac.Middleware
	validate *validator.Validate
	now      func() time.Time
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, registry *Registry, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		service:  service,
		registry: registry,
		rbac:     rbac,
		validate: validator.New(),
		now:      time.Now,
	}
}

// MountRoutes registers the catalog and one route tree per resource.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny()).Get("/", h.catalog)
	for _, res := range h.registry.All() {
		r.Route("/"+res.Name, func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(h.rbac.RequireAny(res.View, res.Edit))
				r.Get("/", h.list(res))
				r.Get("/{id}", h.show(res))
			})
			r.Group(func(r chi.Router) {
				r.Use(h.rbac.RequireAny(res.Edit))
				r.Post("/", h.create(res))
				r.Put("/{id}", h.update(res, false))
				r.Patch("/{id}", h.update(res, true))
				r.Delete("/{id}", h.destroy(res))
			})
		})
	}
}

func (h *Handler) catalog(w http.ResponseWriter, r *http.Request) {
	user := rbac.PrincipalFromContext(r.Context())
	views := []resourceView{}
	for _, res := range h.registry.All() {
		if !rbac.HasAnyPermission(user, res.View, res.Edit) {
			continue
		}
		cols := []columnView{}
		for _, c := range res.Table.Columns() {
			cols = append(cols, columnView{ID: c.ID, Title: c.Title(), Hidden: c.Hidden, Sortable: c.Sortable})
		}
		views = append(views, resourceView{
			Name:    res.Name,
			Title:   res.Title,
			CanEdit: rbac.HasPermission(user, res.Edit),
			Columns: cols,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": views})
}

func (h *Handler) list(res Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := table.ParseQuery(r.URL.Query())
		format := r.URL.Query().Get("format")
		if err := h.validate.Struct(listQuery{Page: q.Page, PerPage: q.PerPage, Format: format, Sort: q.Sort, Search: q.Search}); err != nil {
			httpx.RespondError(w, err)
			return
		}
		token := shared.TokenFromContext(r.Context())

		switch format {
		case FormatCSV, FormatXLSX:
			cols, rows, err := h.service.Export(r.Context(), token, res, q)
			if err != nil {
				h.fail(w, res, "export", err)
				return
			}
			h.writeExport(w, res, format, cols, rows)
		default:
			page, err := h.service.List(r.Context(), token, res, q)
			if err != nil {
				h.fail(w, res, "list", err)
				return
			}
			ids := make([]string, 0, len(page.Columns))
			for _, c := range page.Columns {
				ids = append(ids, c.ID)
			}
			httpx.JSON(w, http.StatusOK, map[string]any{
				"data":    page.Rows,
				"columns": ids,
				"meta":    page.Pagination,
			})
		}
	}
}

func (h *Handler) writeExport(w http.ResponseWriter, res Resource, format string, cols []table.Column[Row], rows []Row) {
	filename := fmt.Sprintf("%s-%s.%s", res.Name, h.now().Format("20060102-150405"), format)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	var err error
	if format == FormatCSV {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		err = table.WriteCSV(w, cols, rows)
	} else {
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		err = table.WriteXLSX(w, res.Title, cols, rows)
	}
	if err != nil {
		h.logger.Error("resource export write", slog.String("resource", res.Name), slog.Any("error", err))
	}
}

func (h *Handler) show(res Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		row, err := h.service.Get(r.Context(), shared.TokenFromContext(r.Context()), res, chi.URLParam(r, "id"))
		if err != nil {
			h.fail(w, res, "show", err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": row})
	}
}

func (h *Handler) create(res Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := h.decodeBody(w, r)
		if !ok {
			return
		}
		row, err := h.service.Create(r.Context(), shared.TokenFromContext(r.Context()), res, body)
		if err != nil {
			h.fail(w, res, "create", err)
			return
		}
		httpx.JSON(w, http.StatusCreated, map[string]any{"data": row})
	}
}

func (h *Handler) update(res Resource, partial bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := h.decodeBody(w, r)
		if !ok {
			return
		}
		row, err := h.service.Update(r.Context(), shared.TokenFromContext(r.Context()), res, chi.URLParam(r, "id"), body, partial)
		if err != nil {
			h.fail(w, res, "update", err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": row})
	}
}

func (h *Handler) destroy(res Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.service.Delete(r.Context(), shared.TokenFromContext(r.Context()), res, chi.URLParam(r, "id")); err != nil {
			h.fail(w, res, "delete", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request) (Row, bool) {
	var body Row
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, err)
		return nil, false
	}
	if len(body) == 0 {
		httpx.RespondError(w, fmt.Errorf("%w: empty record", httpx.ErrValidation))
		return nil, false
	}
	return body, true
}

func (h *Handler) fail(w http.ResponseWriter, res Resource, op string, err error) {
	h.logger.Error("resource "+op, slog.String("resource", res.Name), slog.Any("error", err))
	httpx.RespondError(w, err)
}
