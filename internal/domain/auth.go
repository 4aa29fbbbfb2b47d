package domain

// Role is the coarse authorization level carried inside a verified credential.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleAdmin
}

// Principal is the verified identity performing a request. It is derived per
// request from a credential and never persisted.
type Principal struct {
	ID    string
	Email string
	Name  string
	Role  Role
}

// IsAdmin reports whether the principal carries the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// DisplayName returns the name when known, falling back to the id.
func (p Principal) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}
