package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrator_PostgresLifecycle(t *testing.T) {
	store := connectTestStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// чистое состояние: откатываем всё, что успели применить другие тесты
	require.NoError(t, store.MigrateDown(ctx, 100))

	steps := []struct {
		name        string
		run         func() error
		wantVersion int64
		wantCount   int
	}{
		{name: "up all", run: func() error { return store.MigrateUp(ctx, 0) }, wantVersion: 3, wantCount: 3},
		{name: "repeated up is a no-op", run: func() error { return store.MigrateUp(ctx, 0) }, wantVersion: 3, wantCount: 3},
		{name: "down one", run: func() error { return store.MigrateDown(ctx, 1) }, wantVersion: 2, wantCount: 2},
		{name: "down with zero steps rolls back one", run: func() error { return store.MigrateDown(ctx, 0) }, wantVersion: 1, wantCount: 1},
		{name: "up one", run: func() error { return store.MigrateUp(ctx, 1) }, wantVersion: 2, wantCount: 2},
		{name: "down everything", run: func() error { return store.MigrateDown(ctx, 10) }, wantVersion: 0, wantCount: 0},
		{name: "down on empty schema", run: func() error { return store.MigrateDown(ctx, 1) }, wantVersion: 0, wantCount: 0},
	}

	for _, step := range steps {
		require.NoError(t, step.run(), step.name)

		version, count, err := store.MigrationStatus(ctx)
		require.NoError(t, err, step.name)
		assert.Equal(t, step.wantVersion, version, step.name)
		assert.Equal(t, step.wantCount, count, step.name)
	}

	require.NoError(t, store.MigrateUp(ctx, 0))
	infos, err := store.Migrations(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 3)
	for _, info := range infos {
		assert.True(t, info.Applied, "migration %d_%s must be applied", info.Version, info.Name)
		assert.False(t, info.AppliedAt.IsZero())
	}
}

func TestMigrator_GuardsAndUnsupportedDirection(t *testing.T) {
	var closed *Store
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.ErrorIs(t, closed.MigrateUp(ctx, 0), errStoreClosed)
	assert.ErrorIs(t, closed.MigrateDown(ctx, 1), errStoreClosed)
	_, _, err := closed.MigrationStatus(ctx)
	assert.ErrorIs(t, err, errStoreClosed)
	_, err = closed.Migrations(ctx)
	assert.ErrorIs(t, err, errStoreClosed)

	// направление проверяется до обращения к базе
	err = (&Store{db: new(sql.DB)}).migrate(ctx, migrationDirection("sideways"), 0)
	assert.ErrorContains(t, err, "unsupported migration direction")
}
