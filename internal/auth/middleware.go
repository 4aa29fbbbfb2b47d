package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issue-tracker/internal/domain"
)

const principalKey = "auth_principal"

// AuthMiddleware validates bearer tokens and stores the principal in locals.
type AuthMiddleware struct {
	identity *Identity
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(identity *Identity) *AuthMiddleware {
	return &AuthMiddleware{identity: identity}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	principal, err := m.identity.Resolve(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return err
	}
	c.Locals(principalKey, &principal)
	return c.Next()
}

// Optional resolves a principal when a credential is present and valid, and
// continues anonymously otherwise.
func (m *AuthMiddleware) Optional(c *fiber.Ctx) error {
	if c.Get(fiber.HeaderAuthorization) != "" {
		if principal, err := m.identity.Resolve(c.Get(fiber.HeaderAuthorization)); err == nil {
			c.Locals(principalKey, &principal)
		}
	}
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*domain.Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*domain.Principal)
	return principal, ok
}
