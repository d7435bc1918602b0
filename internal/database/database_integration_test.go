//go:build integration

package database_test

import (
	"context"
	"testing"
	"time"

	"genie-backend/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) string {
	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("genie"),
		postgres.WithUsername("genie"),
		postgres.WithPassword("genie"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	t.Cleanup(func() {
		require.NoError(t, postgresContainer.Terminate(context.Background()))
	})

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connStr
}

func TestPostgresExchangeLog(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewDatabase(setupPostgresContainer(t, ctx))
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, database.SaveExchange(ctx, db, exchange("conv-1", database.ExchangeStart, "Hello", now)))
	msg := exchange("conv-1", database.ExchangeMessage, "Who won?", now.Add(time.Second))
	require.NoError(t, database.SaveExchange(ctx, db, msg))
	require.NoError(t, database.SaveExchange(ctx, db, msg))

	conversation, err := database.GetConversation(ctx, db, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 1, conversation.MessageCount)

	exchanges, err := database.ListExchanges(ctx, db, "conv-1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, exchanges, 2)
}
