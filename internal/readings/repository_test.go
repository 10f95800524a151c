package readings

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"pathlet/internal/database"
	"pathlet/internal/insights"
	"pathlet/internal/logger"
)

func setupPostgres(t *testing.T) database.Service {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("pathlet"),
		postgres.WithUsername("pathlet"),
		postgres.WithPassword("pathlet"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.New(ctx, dsn, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.Migrate(ctx))
	// Applying the schema twice is harmless.
	require.NoError(t, db.Migrate(ctx))
	return db
}

func TestRepository_RoundTrip(t *testing.T) {
	db := setupPostgres(t)
	repo := NewRepository(db, logger.Discard())
	ctx := context.Background()

	gen, err := insights.NewStaticGenerator().Generate(ctx, &insights.BirthDetails{
		Date: "1990-08-14", Time: "06:30", City: "Lisbon", Country: "Portugal",
	})
	require.NoError(t, err)

	first := &Reading{UserID: "user-1", BirthDetails: details(), Insights: *gen}
	require.NoError(t, repo.Create(ctx, first))
	assert.NotEqual(t, uuid.Nil, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	got, err := repo.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.UserID, got.UserID)
	assert.Equal(t, first.BirthDetails, got.BirthDetails)
	assert.Equal(t, first.Insights, got.Insights)

	second := &Reading{UserID: "user-1", BirthDetails: details(), Insights: *gen}
	require.NoError(t, repo.Create(ctx, second))
	require.NoError(t, repo.Create(ctx, &Reading{UserID: "user-2", BirthDetails: details(), Insights: *gen}))

	list, err := repo.ListByUser(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)

	_, err = repo.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrReadingNotFound)

	empty, err := repo.ListByUser(ctx, "nobody", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
