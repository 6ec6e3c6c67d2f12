// Package users holds the user accounts and their role assignments.
package users

import (
	"time"

	"github.com/adminkit/adminkit/internal/rbac"
	"github.com/adminkit/adminkit/internal/shared"
)

// User represents a user account together with its authorization graph.
type User struct {
	ID           int64       `json:"id"`
	Username     string      `json:"username"`
	PasswordHash string      `json:"-"`
	Name         string      `json:"name"`
	Surname      string      `json:"surname"`
	Email        string      `json:"email"`
	Enabled      bool        `json:"enabled"`
	Roles        []rbac.Role `json:"roles"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// Authorities returns the uppercased permission names reachable through the user's roles.
func (u *User) Authorities() []string {
	return rbac.Authorities(u.Roles)
}

// RoleIDs returns the IDs of the assigned roles.
func (u *User) RoleIDs() []int64 {
	ids := make([]int64, 0, len(u.Roles))
	for _, role := range u.Roles {
		ids = append(ids, role.ID)
	}
	return ids
}

// UpdateInput carries a profile update. Nil pointers and a nil RoleIDs slice
// leave the field unchanged.
type UpdateInput struct {
	Username *string `json:"username" validate:"omitempty,min=3,max=64"`
	Name     *string `json:"name" validate:"omitempty,max=128"`
	Surname  *string `json:"surname" validate:"omitempty,max=128"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Enabled  *bool   `json:"enabled"`
	RoleIDs  []int64 `json:"roleIds" validate:"omitempty,dive,gt=0"`
}

// Profile is the set of scalar columns written by UpdateProfile.
type Profile struct {
	Username string
	Name     string
	Surname  string
	Email    string
	Enabled  bool
}

// CreateInput carries a new account. Enabled defaults to true.
type CreateInput struct {
	Username string  `json:"username" validate:"required,min=3,max=64"`
	Password string  `json:"password" validate:"required,min=8,max=72"`
	Name     string  `json:"name" validate:"required,max=128"`
	Surname  string  `json:"surname" validate:"required,max=128"`
	Email    string  `json:"email" validate:"required,email"`
	Enabled  *bool   `json:"enabled"`
	RoleIDs  []int64 `json:"roleIds" validate:"required,min=1,dive,gt=0"`
}

// NewUser is the row written by TxRepository.Create.
type NewUser struct {
	Username     string
	PasswordHash string
	Name         string
	Surname      string
	Email        string
	Enabled      bool
}

// ListFilter narrows a user listing. Text fields match case-insensitive
// substrings; RoleIDs keeps users holding any of the roles.
type ListFilter struct {
	Username string  `json:"username" validate:"max=64"`
	Email    string  `json:"email" validate:"max=255"`
	Name     string  `json:"name" validate:"max=128"`
	Surname  string  `json:"surname" validate:"max=128"`
	RoleIDs  []int64 `json:"roleIds" validate:"omitempty,dive,gt=0"`
}

// SortColumns maps the accepted sort keys of a user listing to columns.
var SortColumns = map[string]string{
	"id":        "id",
	"username":  "username",
	"name":      "name",
	"surname":   "surname",
	"email":     "email",
	"createdAt": "created_at",
}

// ListQuery is a filtered page request over users.
type ListQuery struct {
	Filter ListFilter
	Page   shared.PageRequest
}
