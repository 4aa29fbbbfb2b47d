package auth

import (
	"strings"

	"github.com/spec-kit/issue-tracker/internal/domain"
	apperrors "github.com/spec-kit/issue-tracker/pkg/errorutil"
)

// Identity resolves bearer credentials into principals. The role on the
// returned principal is exactly the role inside the verified token.
type Identity struct {
	tokens *TokenManager
}

// NewIdentity wraps a token manager.
func NewIdentity(tokens *TokenManager) *Identity {
	return &Identity{tokens: tokens}
}

// Resolve accepts an Authorization header value ("Bearer <jwt>").
func (i *Identity) Resolve(credential string) (domain.Principal, error) {
	token, err := BearerToken(credential)
	if err != nil {
		return domain.Principal{}, err
	}

	claims, err := i.tokens.ParseToken(token)
	if err != nil {
		return domain.Principal{}, apperrors.NewInvalidCredential("invalid token", err)
	}
	if !claims.Role.Valid() {
		return domain.Principal{}, apperrors.NewInvalidCredential("invalid token", nil)
	}

	return domain.Principal{
		ID:    claims.Subject,
		Email: claims.Email,
		Name:  claims.Name,
		Role:  claims.Role,
	}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", apperrors.NewUnauthenticated("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.NewUnauthenticated("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}
