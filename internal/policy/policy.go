// Package policy decides what a principal may do with a ticket. Every
// function is a pure predicate; callers turn a false answer into an error.
package policy

import "github.com/spec-kit/issue-tracker/internal/domain"

// CanView allows admins and the reporter. Assignees are not granted view rights.
func CanView(p domain.Principal, t *domain.Ticket) bool {
	return p.IsAdmin() || isReporter(p, t)
}

// CanEditFull allows admins and the reporter to change any mutable field.
func CanEditFull(p domain.Principal, t *domain.Ticket) bool {
	return p.IsAdmin() || isReporter(p, t)
}

// CanEditDescriptionOnly is the restricted fallback for authenticated
// principals who are neither admin nor reporter.
func CanEditDescriptionOnly(p domain.Principal, t *domain.Ticket) bool {
	return authenticated(p) && !CanEditFull(p, t)
}

// CanChangeStatus allows admins, the reporter and the current assignee.
func CanChangeStatus(p domain.Principal, t *domain.Ticket) bool {
	if p.IsAdmin() || isReporter(p, t) {
		return true
	}
	return t != nil && t.Assignee != "" && p.ID == t.Assignee
}

// CanDelete allows admins only.
func CanDelete(p domain.Principal) bool {
	return p.IsAdmin()
}

// CanCreate allows any authenticated principal.
func CanCreate(p domain.Principal) bool {
	return authenticated(p)
}

// CanComment allows any authenticated principal; there is no ownership check.
func CanComment(p domain.Principal) bool {
	return authenticated(p)
}

// ListAll reports whether listings for p are unscoped. Non-admins only see
// tickets they reported.
func ListAll(p domain.Principal) bool {
	return p.IsAdmin()
}

// RegistrationRole resolves the role granted to a new account. Only a caller
// already verified as admin may create another admin; every other case is
// forced to customer.
func RegistrationRole(requested domain.Role, caller *domain.Principal) domain.Role {
	if requested == domain.RoleAdmin && caller != nil && caller.IsAdmin() {
		return domain.RoleAdmin
	}
	return domain.RoleCustomer
}

func isReporter(p domain.Principal, t *domain.Ticket) bool {
	return t != nil && p.ID != "" && p.ID == t.Reporter
}

func authenticated(p domain.Principal) bool {
	return p.ID != ""
}
