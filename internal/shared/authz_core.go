package shared

// Core platform permissions.
const (
	// PermAll supersedes every other permission key.
	PermAll = "*"

	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermRolesView = "roles.view"
	PermRolesEdit = "roles.edit"

	PermPermissionsView = "permissions.view"

	PermCompaniesView = "companies.view"
	PermCompaniesEdit = "companies.edit"

	PermSubscriptionsView = "subscriptions.view"
	PermSubscriptionsEdit = "subscriptions.edit"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermUsersView,
		PermUsersEdit,
		PermRolesView,
		PermRolesEdit,
		PermPermissionsView,
		PermCompaniesView,
		PermCompaniesEdit,
		PermSubscriptionsView,
		PermSubscriptionsEdit,
	}
}
