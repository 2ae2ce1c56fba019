package database

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tchudometro/internal/models"
)

func TestPostgresStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}

	ctx := context.Background()
	db, err := New(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	want := sampleGuilds()
	require.NoError(t, store.Save(ctx, want))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, store.Save(ctx, models.Guilds{}))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}
