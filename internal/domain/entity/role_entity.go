package entity

import (
	"errors"
	"strings"
)

var ErrUnknownRole = errors.New("unknown role")

// Role is the closed set of privilege levels. Declaration order is privilege order.
type Role int

const (
	RoleCustomer Role = iota
	RoleModerator
	RoleAdmin
)

// Roles lists every role in ascending privilege.
var Roles = []Role{RoleCustomer, RoleModerator, RoleAdmin}

type Permission string

const (
	PermReadOwnProfile   Permission = "read:own-profile"
	PermUpdateOwnProfile Permission = "update:own-profile"
	PermReadProducts     Permission = "read:products"
	PermCreateOrders     Permission = "create:orders"
	PermReadOwnOrders    Permission = "read:own-orders"
	PermManageProducts   Permission = "manage:products"
	PermReadAllOrders    Permission = "read:all-orders"
	PermManageUsers      Permission = "manage:users"
	PermManageSystem     Permission = "manage:system"
)

func (r Role) String() string {
	switch r {
	case RoleCustomer:
		return "customer"
	case RoleModerator:
		return "moderator"
	case RoleAdmin:
		return "admin"
	}
	return "unknown"
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// ParseRole accepts the lower-case role names only.
func ParseRole(s string) (Role, error) {
	switch strings.TrimSpace(s) {
	case "customer":
		return RoleCustomer, nil
	case "moderator":
		return RoleModerator, nil
	case "admin":
		return RoleAdmin, nil
	}
	return 0, ErrUnknownRole
}

// AtLeast reports whether r grants at least the privilege of required.
func (r Role) AtLeast(required Role) bool {
	return r.Valid() && required.Valid() && r >= required
}

// Permissions returns the capabilities of r. Each role extends the one below it.
func (r Role) Permissions() []Permission {
	customer := []Permission{PermReadOwnProfile, PermUpdateOwnProfile, PermReadProducts, PermCreateOrders, PermReadOwnOrders}
	switch r {
	case RoleCustomer:
		return customer
	case RoleModerator:
		return append(customer, PermManageProducts, PermReadAllOrders)
	case RoleAdmin:
		return append(customer, PermManageProducts, PermReadAllOrders, PermManageUsers, PermManageSystem)
	}
	return nil
}

// Can reports whether r holds permission p.
func (r Role) Can(p Permission) bool {
	for _, have := range r.Permissions() {
		if have == p {
			return true
		}
	}
	return false
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, ErrUnknownRole
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
