package resources

import (
	"sort"

	"github.com/odyssey-erp/odyssey-console/internal/shared"
	"github.com/odyssey-erp/odyssey-console/internal/table"
)

// Resource describes one business entity proxied to the API.
type Resource struct {
	// Name is the console route segment and export file stem.
	Name string
	// Path is the upstream collection path.
	Path  string
	Title string
	View  string
	Edit  string
	Table *table.Table[Row]
}

// Registry maps resource names to their definitions.
type Registry struct {
	byName map[string]Resource
}

// NewRegistry builds a registry from resources.
func NewRegistry(resources ...Resource) *Registry {
	r := &Registry{byName: make(map[string]Resource, len(resources))}
	for _, res := range resources {
		r.byName[res.Name] = res
	}
	return r
}

// Lookup returns the named resource.
func (r *Registry) Lookup(name string) (Resource, bool) {
	res, ok := r.byName[name]
	return res, ok
}

// All returns the resources sorted by name.
func (r *Registry) All() []Resource {
	out := make([]Resource, 0, len(r.byName))
	for _, res := range r.byName {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DefaultRegistry declares the console's business screens.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Resource{
			Name: "companies", Path: "/companies", Title: "Companies",
			View: shared.PermCompaniesView, Edit: shared.PermCompaniesEdit,
			Table: table.New(
				field("id", header("ID")),
				field("name"),
				field("email"),
				field("phone", unsortable),
				field("tax_number", hidden),
				field("subscription.plan", header("Plan")),
				field("created_at"),
			),
		},
		Resource{
			Name: "users", Path: "/users", Title: "Users",
			View: shared.PermUsersView, Edit: shared.PermUsersEdit,
			Table: table.New(
				field("id", header("ID")),
				field("name"),
				field("email"),
				field("role.name", header("Role")),
				field("is_active", header("Active")),
				field("last_login_at", hidden),
			),
		},
		Resource{
			Name: "roles", Path: "/roles", Title: "Roles",
			View: shared.PermRolesView, Edit: shared.PermRolesEdit,
			Table: table.New(
				field("id", header("ID")),
				field("name"),
				field("description", unsortable),
				field("permissions", unsortable, hidden),
			),
		},
		Resource{
			Name: "products", Path: "/products", Title: "Products",
			View: shared.PermProductsView, Edit: shared.PermProductsEdit,
			Table: table.New(
				field("id", header("ID")),
				field("sku", header("SKU")),
				field("name"),
				field("category.name", header("Category")),
				field("price"),
				field("stock"),
				field("cost", hidden),
				field("track_serial_numbers", header("Serialised"), hidden),
			),
		},
		Resource{
			Name: "batches", Path: "/batches", Title: "Batches",
			View: shared.PermBatchesView, Edit: shared.PermBatchesEdit,
			Table: table.New(
				field("id", header("ID")),
				field("batch_number"),
				field("product.name", header("Product")),
				field("quantity"),
				field("manufactured_at", hidden),
				field("expires_at"),
			),
		},
		Resource{
			Name: "serial_numbers", Path: "/serial-numbers", Title: "Serial Numbers",
			View: shared.PermSerialNumbersView, Edit: shared.PermSerialNumbersEdit,
			Table: table.New(
				field("id", header("ID")),
				field("serial_number"),
				field("product.name", header("Product")),
				field("batch.batch_number", header("Batch")),
				field("status"),
			),
		},
		Resource{
			Name: "orders", Path: "/orders", Title: "Orders",
			View: shared.PermOrdersView, Edit: shared.PermOrdersEdit,
			Table: table.New(
				field("id", header("ID")),
				field("order_number"),
				field("customer.name", header("Customer")),
				field("status"),
				field("total"),
				field("notes", unsortable, hidden),
				field("created_at"),
			),
		},
		Resource{
			Name: "invoices", Path: "/invoices", Title: "Invoices",
			View: shared.PermInvoicesView, Edit: shared.PermInvoicesEdit,
			Table: table.New(
				field("id", header("ID")),
				field("invoice_number"),
				field("customer.name", header("Customer")),
				field("status"),
				field("total"),
				field("due_date"),
				field("paid_at", hidden),
			),
		},
		Resource{
			Name: "payments", Path: "/payments", Title: "Payments",
			View: shared.PermPaymentsView, Edit: shared.PermPaymentsEdit,
			Table: table.New(
				field("id", header("ID")),
				field("reference"),
				field("invoice.invoice_number", header("Invoice")),
				field("method"),
				field("amount"),
				field("status"),
				field("paid_at"),
			),
		},
		Resource{
			Name: "subscriptions", Path: "/subscriptions", Title: "Subscriptions",
			View: shared.PermSubscriptionsView, Edit: shared.PermSubscriptionsEdit,
			Table: table.New(
				field("id", header("ID")),
				field("company.name", header("Company")),
				field("plan"),
				field("status"),
				field("starts_at"),
				field("ends_at"),
			),
		},
		Resource{
			Name: "logistics", Path: "/logistics", Title: "Logistics",
			View: shared.PermLogisticsView, Edit: shared.PermLogisticsEdit,
			Table: table.New(
				field("id", header("ID")),
				field("tracking_number"),
				field("order.order_number", header("Order")),
				field("carrier"),
				field("status"),
				field("shipped_at"),
				field("delivered_at", hidden),
			),
		},
	)
}
