package rbac

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role represents a named bundle of permissions.
type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// Permission represents an atomic capability.
type Permission struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// RolePermission ties a permission to a role. The pair is unique.
type RolePermission struct {
	RoleID       int64
	PermissionID int64
}

// UserRole links a user to a role. The pair is unique.
type UserRole struct {
	UserID int64
	RoleID int64
}

// NormalizeAuthority trims and uppercases an authority name. A Caser is
// stateful, so one is built per call.
func NormalizeAuthority(name string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(name))
}

// Authorities flattens the permissions reachable through roles into a sorted,
// deduplicated, uppercased authority set.
func Authorities(roles []Role) []string {
	seen := make(map[string]struct{})
	for _, role := range roles {
		for _, perm := range role.Permissions {
			name := NormalizeAuthority(perm.Name)
			if name == "" {
				continue
			}
			seen[name] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// FlattenPermissions returns the distinct permissions across roles, ordered by ID.
func FlattenPermissions(roles []Role) []Permission {
	seen := make(map[int64]struct{})
	var out []Permission
	for _, role := range roles {
		for _, perm := range role.Permissions {
			if _, ok := seen[perm.ID]; ok {
				continue
			}
			seen[perm.ID] = struct{}{}
			out = append(out, perm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
