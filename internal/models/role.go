package models

import "fmt"

// Role is the typed privilege level of an authenticated identity.
// Ordering matters: Customer < Staff < Admin.
type Role int

const (
	RoleCustomer Role = iota
	RoleStaff
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleCustomer:
		return "customer"
	case RoleStaff:
		return "staff"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// AtLeast reports whether r carries at least the privileges of min.
func (r Role) AtLeast(min Role) bool {
	return r >= min
}

// ParseRole converts the identity provider's role string into a typed Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "customer":
		return RoleCustomer, nil
	case "staff":
		return RoleStaff, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return RoleCustomer, fmt.Errorf("unknown role: %q", s)
	}
}
