//go:build integration

package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/spec-kit/issue-tracker/internal/domain"
)

// Run with: go test -tags integration ./internal/repository/...
// Requires TEST_POSTGRES_DSN (migrated schema) and/or TEST_MONGODB_URI.

func exerciseTicketStore(t *testing.T, store TicketRepository) {
	ctx := context.Background()

	created, err := store.Create(ctx, &domain.Ticket{
		Title:    "Printer broken",
		Priority: domain.TicketPriorityLow,
		Status:   domain.TicketStatusOpen,
		Reporter: "it-u1",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Delete(context.Background(), created.ID) })

	_, err = store.Create(ctx, &domain.Ticket{Title: "  ", Reporter: "it-u1"})
	assert.ErrorIs(t, err, ErrInvalid)

	updated, err := store.Update(ctx, created.ID, func(tk *domain.Ticket) error {
		tk.Status = domain.TicketStatusInProgress
		tk.Reporter = "someone-else"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, updated.Status)
	assert.Equal(t, "it-u1", updated.Reporter)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	commented, err := store.AppendComment(ctx, created.ID, domain.Comment{Author: "Uma", Text: "first", CreatedAt: time.Now().UTC()})
	require.NoError(t, err)
	require.Len(t, commented.Comments, 1)

	mine, err := store.ListByReporter(ctx, "it-u1")
	require.NoError(t, err)
	require.NotEmpty(t, mine)
	assert.Equal(t, created.ID, mine[0].ID)

	require.NoError(t, store.Delete(ctx, created.ID))
	_, err = store.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, created.ID), ErrNotFound)
}

func TestPostgresTicketStore(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	exerciseTicketStore(t, NewTicketRepository(pool))
}

func TestMongoTicketStore(t *testing.T) {
	uri := os.Getenv("TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("TEST_MONGODB_URI not set")
	}
	ctx := context.Background()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	store := NewMongoTicketRepository(client.Database("issue_tracker_test"), 5*time.Second)
	require.NoError(t, store.EnsureIndexes(ctx))
	exerciseTicketStore(t, store)
}
