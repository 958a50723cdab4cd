package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/Skotchmaster/academy/internal/models"
)

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), "", Options{})
	assert.Error(t, err)
}

func TestOpen_SQLiteMigrateAndPing(t *testing.T) {
	ctx := context.Background()
	gdb, err := Open(ctx, "sqlite::memory:", Options{LogLevel: logger.Silent})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(gdb) })

	require.NoError(t, Migrate(ctx, gdb))
	require.NoError(t, Ping(ctx, gdb))

	for _, m := range []any{&models.Role{}, &models.User{}, &models.Worker{}, &models.RefreshToken{}} {
		assert.True(t, gdb.Migrator().HasTable(m))
	}
	assert.True(t, gdb.Migrator().HasTable("user_roles"))
	assert.True(t, gdb.Migrator().HasTable("worker_roles"))
}

func TestDialector(t *testing.T) {
	d, isSQLite := dialector("sqlite:/tmp/academy.db")
	assert.True(t, isSQLite)
	assert.Equal(t, "sqlite", d.Name())

	d, isSQLite = dialector("postgres://u:p@localhost:5432/academy?sslmode=disable")
	assert.False(t, isSQLite)
	assert.Equal(t, "postgres", d.Name())
}
