package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsCarryCodeAndStatus(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{NewUnauthenticated("no token"), CodeUnauthenticated, http.StatusUnauthorized},
		{NewInvalidCredential("bad token", nil), CodeInvalidCredential, http.StatusUnauthorized},
		{NewValidationError("bad", nil), CodeValidation, http.StatusBadRequest},
		{NewNotFound("ticket", nil), CodeNotFound, http.StatusNotFound},
		{NewForbidden("no"), CodeForbidden, http.StatusForbidden},
		{NewInvalidTransition("Open", "Closed"), CodeInvalidTransition, http.StatusBadRequest},
		{NewConflict("taken", nil), CodeConflict, http.StatusConflict},
		{NewInternalError(errors.New("boom")), CodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			de := ToDomainError(tc.err)
			require.NotNil(t, de)
			assert.Equal(t, tc.code, de.Code)
			assert.Equal(t, tc.status, de.HTTPStatus)
			assert.True(t, HasCode(tc.err, tc.code))
		})
	}
}

func TestInvalidTransitionDetails(t *testing.T) {
	de := ToDomainError(NewInvalidTransition("Open", "Resolved"))
	assert.Equal(t, map[string]any{"current": "Open", "requested": "Resolved"}, de.Details)
	assert.Equal(t, "invalid transition from Open to Resolved", de.Message)
}

func TestToDomainErrorWrapsUnknownAsInternal(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))

	cause := errors.New("db down")
	de := ToDomainError(cause)
	assert.Equal(t, CodeInternal, de.Code)
	assert.Equal(t, "internal server error", de.Message)
	assert.ErrorIs(t, de, cause)
}

func TestHasCodeSeesThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", NewForbidden("not yours"))
	assert.True(t, HasCode(wrapped, CodeForbidden))
	assert.False(t, HasCode(wrapped, CodeNotFound))
	assert.False(t, HasCode(errors.New("plain"), CodeForbidden))
}
