package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/issue-tracker/internal/auth"
	"github.com/spec-kit/issue-tracker/internal/domain"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("LOG_LEVEL", "error")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenIssueSignsWithConfiguredSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")

	out, err := run(t, "token", "issue", "--sub", "a1", "--email", "ops@example.com", "--role", "admin", "--name", "Ops")
	require.NoError(t, err)

	claims, err := auth.NewTokenManager(auth.TokenOptions{Secret: "cli-secret"}).ParseToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "a1", claims.Subject)
	assert.Equal(t, domain.RoleAdmin, claims.Role)
	assert.Equal(t, "Ops", claims.Name)
}

func TestTokenIssueRejectsUnknownRole(t *testing.T) {
	_, err := run(t, "token", "issue", "--sub", "a1", "--role", "root")
	require.Error(t, err)
}

func TestWorkflowShowJSON(t *testing.T) {
	t.Setenv("WORKFLOW_REOPEN_CLOSED", "true")

	out, err := run(t, "workflow", "show", "--json")
	require.NoError(t, err)

	var table map[string][]string
	require.NoError(t, json.Unmarshal([]byte(out), &table))
	assert.Equal(t, []string{"In-Progress"}, table["Open"])
	assert.Equal(t, []string{"Open"}, table["Closed"])
}

func TestWorkflowShowTable(t *testing.T) {
	out, err := run(t, "workflow", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "(terminal)")
	assert.Contains(t, out, "In-Progress")
}

func TestTicketsListEmptyMemoryStore(t *testing.T) {
	out, err := run(t, "tickets", "list", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}
