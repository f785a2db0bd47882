package shared

// Inventory, trade, finance and logistics permissions.
const (
	PermProductsView = "products.view"
	PermProductsEdit = "products.edit"

	PermBatchesView = "batches.view"
	PermBatchesEdit = "batches.edit"

	PermSerialNumbersView = "serial_numbers.view"
	PermSerialNumbersEdit = "serial_numbers.edit"

	PermOrdersView = "orders.view"
	PermOrdersEdit = "orders.edit"

	PermInvoicesView = "invoices.view"
	PermInvoicesEdit = "invoices.edit"

	PermPaymentsView = "payments.view"
	PermPaymentsEdit = "payments.edit"

	PermLogisticsView = "logistics.view"
	PermLogisticsEdit = "logistics.edit"
)

// BusinessScopes lists the permissions guarding business records.
func BusinessScopes() []string {
	return []string{
		PermProductsView,
		PermProductsEdit,
		PermBatchesView,
		PermBatchesEdit,
		PermSerialNumbersView,
		PermSerialNumbersEdit,
		PermOrdersView,
		PermOrdersEdit,
		PermInvoicesView,
		PermInvoicesEdit,
		PermPaymentsView,
		PermPaymentsEdit,
		PermLogisticsView,
		PermLogisticsEdit,
	}
}
