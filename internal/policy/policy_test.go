package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/issue-tracker/internal/domain"
)

var (
	admin    = domain.Principal{ID: "a1", Role: domain.RoleAdmin}
	reporter = domain.Principal{ID: "u1", Role: domain.RoleCustomer}
	assignee = domain.Principal{ID: "u3", Role: domain.RoleCustomer}
	stranger = domain.Principal{ID: "u2", Role: domain.RoleCustomer}
	nobody   = domain.Principal{}
)

func ticket() *domain.Ticket {
	return &domain.Ticket{ID: "t1", Reporter: "u1", Assignee: "u3", Status: domain.TicketStatusOpen}
}

func TestCanView(t *testing.T) {
	assert.True(t, CanView(admin, ticket()))
	assert.True(t, CanView(reporter, ticket()))
	assert.False(t, CanView(assignee, ticket()), "assignees have no view rights")
	assert.False(t, CanView(stranger, ticket()))
	assert.False(t, CanView(nobody, ticket()))
}

func TestEditRights(t *testing.T) {
	assert.True(t, CanEditFull(admin, ticket()))
	assert.True(t, CanEditFull(reporter, ticket()))
	assert.False(t, CanEditFull(stranger, ticket()))

	assert.False(t, CanEditDescriptionOnly(admin, ticket()))
	assert.False(t, CanEditDescriptionOnly(reporter, ticket()))
	assert.True(t, CanEditDescriptionOnly(stranger, ticket()))
	assert.True(t, CanEditDescriptionOnly(assignee, ticket()))
	assert.False(t, CanEditDescriptionOnly(nobody, ticket()))
}

func TestCanChangeStatus(t *testing.T) {
	assert.True(t, CanChangeStatus(admin, ticket()))
	assert.True(t, CanChangeStatus(reporter, ticket()))
	assert.True(t, CanChangeStatus(assignee, ticket()))
	assert.False(t, CanChangeStatus(stranger, ticket()))

	unassigned := ticket()
	unassigned.Assignee = ""
	assert.False(t, CanChangeStatus(nobody, unassigned), "empty id must not match an empty assignee")
}

func TestCanDeleteAndCreate(t *testing.T) {
	assert.True(t, CanDelete(admin))
	assert.False(t, CanDelete(reporter))

	assert.True(t, CanCreate(reporter))
	assert.True(t, CanCreate(admin))
	assert.False(t, CanCreate(nobody))

	assert.True(t, CanComment(stranger))
	assert.False(t, CanComment(nobody))
}

func TestListAll(t *testing.T) {
	assert.True(t, ListAll(admin))
	assert.False(t, ListAll(reporter))
}

func TestRegistrationRole(t *testing.T) {
	assert.Equal(t, domain.RoleCustomer, RegistrationRole("", nil))
	assert.Equal(t, domain.RoleCustomer, RegistrationRole(domain.RoleAdmin, nil))
	assert.Equal(t, domain.RoleCustomer, RegistrationRole(domain.RoleAdmin, &reporter))
	assert.Equal(t, domain.RoleAdmin, RegistrationRole(domain.RoleAdmin, &admin))
	assert.Equal(t, domain.RoleCustomer, RegistrationRole(domain.RoleCustomer, &admin))
	assert.Equal(t, domain.RoleCustomer, RegistrationRole("superuser", &admin))
}
