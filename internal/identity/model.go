package identity

import (
	"slices"
	"time"
)

// Kind tags which variant of Principal a record is.
type Kind string

const (
	KindUser   Kind = "user"
	KindVendor Kind = "vendor"
)

// Role is an authorization tag carried in tokens.
type Role string

const (
	RoleUser   Role = "user"
	RoleVendor Role = "vendor"
	RoleAdmin  Role = "admin"
)

// Status is the account lifecycle state.
type Status string

const (
	StatusPending     Status = "pending"
	StatusActive      Status = "active"
	StatusInactive    Status = "inactive"
	StatusDeactivated Status = "deactivated"
)

// VendorProfile holds the business metadata only vendors carry.
type VendorProfile struct {
	Name          string
	OwnerName     string
	Address       string
	Location      string
	City          string
	Province      string
	CategoryIDs   []string
	WalletBalance int64
}

// Principal is a user or vendor account. Vendor is non-nil exactly when Kind
// is KindVendor. Values are treated as immutable; use the With* methods to
// derive a changed copy.
type Principal struct {
	ID        string
	Kind      Kind
	Phone     string
	Name      string
	Roles     []Role
	Status    Status
	Vendor    *VendorProfile
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasRole reports whether p carries role.
func (p Principal) HasRole(role Role) bool {
	return slices.Contains(p.Roles, role)
}

// IsAdmin reports whether p carries the admin role.
func (p Principal) IsAdmin() bool { return p.HasRole(RoleAdmin) }

// IsActive reports whether p may authenticate.
func (p Principal) IsActive() bool { return p.Status == StatusActive }

// RoleNames returns the roles as plain strings for token claims.
func (p Principal) RoleNames() []string {
	out := make([]string, len(p.Roles))
	for i, r := range p.Roles {
		out[i] = string(r)
	}
	return out
}

// WithStatus returns a copy of p in status s stamped at.
func (p Principal) WithStatus(s Status, at time.Time) Principal {
	c := p.clone()
	c.Status = s
	c.UpdatedAt = at
	return c
}

func (p Principal) clone() Principal {
	c := p
	c.Roles = slices.Clone(p.Roles)
	if p.Vendor != nil {
		v := *p.Vendor
		v.CategoryIDs = slices.Clone(p.Vendor.CategoryIDs)
		c.Vendor = &v
	}
	return c
}
