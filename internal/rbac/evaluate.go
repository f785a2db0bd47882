package rbac

import "github.com/odyssey-erp/odyssey-console/internal/shared"

// ResolvedPermissions unions the user's direct grants with those of every role.
func (u *User) ResolvedPermissions() PermissionSet {
	set := PermissionSet{}
	if u == nil {
		return set
	}
	for k := range u.Permissions {
		set[k] = struct{}{}
	}
	if u.Role != nil {
		for k := range u.Role.Permissions {
			set[k] = struct{}{}
		}
	}
	for _, role := range u.Roles {
		for k := range role.Permissions {
			set[k] = struct{}{}
		}
	}
	return set
}

// HasPermission reports whether u holds key, directly or through the
// superseding admin key.
func HasPermission(u *User, key string) bool {
	if u == nil {
		return false
	}
	return hasPermission(u.IsSuperAdmin, u.ResolvedPermissions(), normalizeKey(key))
}

// HasAnyPermission reports whether u holds at least one of keys. An empty
// list grants nothing.
func HasAnyPermission(u *User, keys ...string) bool {
	if u == nil {
		return false
	}
	granted := u.ResolvedPermissions()
	for _, k := range normalizePermissions(keys) {
		if hasPermission(u.IsSuperAdmin, granted, k) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether u holds every one of keys. An empty list
// is satisfied by any authenticated user.
func HasAllPermissions(u *User, keys ...string) bool {
	if u == nil {
		return false
	}
	granted := u.ResolvedPermissions()
	for _, k := range normalizePermissions(keys) {
		if !hasPermission(u.IsSuperAdmin, granted, k) {
			return false
		}
	}
	return true
}

func hasPermission(superUser bool, granted PermissionSet, key string) bool {
	if key == "" {
		return false
	}
	if superUser {
		return true
	}
	if _, ok := granted[shared.PermAll]; ok {
		return true
	}
	_, ok := granted[key]
	return ok
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = normalizeKey(p)
		if p == "" {
			continue
		}
		if _, seen := unique[p]; seen {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
