package rbac

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

// Permission represents an atomic capability.
type Permission struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// PermissionSet is a normalised set of permission keys. It decodes from the
// shapes the business API uses for role permissions: a list of keys, a list of
// objects carrying a name/key/slug, or a map of key to bool.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from keys.
func NewPermissionSet(keys ...string) PermissionSet {
	set := make(PermissionSet, len(keys))
	for _, k := range keys {
		set.Add(k)
	}
	return set
}

// Add inserts key with surrounding space trimmed. Blank keys are ignored.
func (s PermissionSet) Add(key string) {
	key = normalizeKey(key)
	if key == "" {
		return
	}
	s[key] = struct{}{}
}

// Has reports exact membership of key.
func (s PermissionSet) Has(key string) bool {
	_, ok := s[normalizeKey(key)]
	return ok
}

// Keys returns the sorted keys.
func (s PermissionSet) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON emits the sorted key list.
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Keys())
}

// UnmarshalJSON accepts a list of strings, a list of objects or a map of bools.
func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	set := PermissionSet{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = set
		return nil
	}
	if data[0] == '{' {
		var flags map[string]bool
		if err := json.Unmarshal(data, &flags); err != nil {
			return err
		}
		for k, granted := range flags {
			if granted {
				set.Add(k)
			}
		}
		*s = set
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 {
			continue
		}
		if item[0] == '"' {
			var key string
			if err := json.Unmarshal(item, &key); err != nil {
				return err
			}
			set.Add(key)
			continue
		}
		var obj struct {
			Name string `json:"name"`
			Key  string `json:"key"`
			Slug string `json:"slug"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return err
		}
		switch {
		case obj.Name != "":
			set.Add(obj.Name)
		case obj.Key != "":
			set.Add(obj.Key)
		default:
			set.Add(obj.Slug)
		}
	}
	*s = set
	return nil
}

// Role represents a high-level permission grouping.
type Role struct {
	ID          shared.ID     `json:"id"`
	Name        string        `json:"name"`
	Permissions PermissionSet `json:"permissions"`
}

// User is the authenticated actor as reported by the business API.
type User struct {
	ID           shared.ID     `json:"id"`
	Name         string        `json:"name"`
	Email        string        `json:"email"`
	CompanyID    shared.ID     `json:"company_id"`
	IsSuperAdmin bool          `json:"is_super_admin"`
	Role         *Role         `json:"role,omitempty"`
	Roles        []Role        `json:"roles,omitempty"`
	Permissions  PermissionSet `json:"permissions,omitempty"`
}

// Principal describes the authenticated actor.
type Principal interface {
	GetID() shared.ID
	IsSuperUser() bool
}

// GetID implements Principal.
func (u *User) GetID() shared.ID {
	if u == nil {
		return ""
	}
	return u.ID
}

// IsSuperUser implements Principal.
func (u *User) IsSuperUser() bool {
	return u != nil && u.IsSuperAdmin
}

func normalizeKey(key string) string {
	return strings.TrimSpace(key)
}
