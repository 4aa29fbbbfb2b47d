package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/issue-tracker/internal/domain"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, "0.0.0.0:5000", cfg.App.Addr())
	assert.Equal(t, 8*time.Hour, cfg.Auth.AccessTokenTTL())
	assert.Equal(t, time.Hour, cfg.Auth.PasswordResetTTL())
	assert.Equal(t, cfg.Auth.JWTSecret, cfg.Auth.ResetTokenSecret)
	assert.False(t, cfg.Workflow.ReopenClosed)
	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout())
}

func TestLoadWithOverrides(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"APP_PORT":               "9000",
		"STORE_DRIVER":           "postgres",
		"POSTGRES_DSN":           "postgres://localhost/tickets",
		"POSTGRES_MAX_CONNS":     "25",
		"RESET_TOKEN_SECRET":     "reset",
		"WORKFLOW_REOPEN_CLOSED": "true",
	}))
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.App.Port)
	assert.Equal(t, int32(25), cfg.Postgres.MaxConns)
	assert.Equal(t, "reset", cfg.Auth.ResetTokenSecret)
	assert.True(t, cfg.Workflow.ReopenClosed)
}

func TestLoadRejectsBadDriver(t *testing.T) {
	_, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"STORE_DRIVER": "sqlite",
	}))
	require.Error(t, err)

	_, err = LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"STORE_DRIVER": "postgres",
	}))
	require.Error(t, err)
}

func TestWorkflowTable(t *testing.T) {
	closed := WorkflowConfig{}.Table()[domain.TicketStatusClosed]
	assert.Empty(t, closed)

	reopen := WorkflowConfig{ReopenClosed: true}.Table()
	assert.Equal(t, []domain.TicketStatus{domain.TicketStatusOpen}, reopen[domain.TicketStatusClosed])
	assert.Equal(t, []domain.TicketStatus{domain.TicketStatusInProgress}, reopen[domain.TicketStatusOpen])
}
