package migrations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/migrate"

	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/db/bunx"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/db/models"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/organization"
)

func TestMigrateUpAndRollback(t *testing.T) {
	ctx := context.Background()
	db, err := bunx.NewDB(ctx, ":memory:", bunx.Options{})
	require.NoError(t, err)
	defer bunx.Close(db)

	assert.True(t, IsSQLite(db))
	assert.False(t, IsPostgreSQL(db))

	migrator := migrate.NewMigrator(db, Migrations)
	require.NoError(t, migrator.Init(ctx))

	group, err := migrator.Migrate(ctx)
	require.NoError(t, err)
	assert.False(t, group.IsZero())

	count, err := db.NewSelect().Model((*models.Permission)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(organization.Permissions()), count)

	for _, table := range []string{"users", "organizations", "roles", "members", "member_roles", "invitations", "outbox_events"} {
		_, err := db.NewSelect().Table(table).Limit(1).Exec(ctx)
		require.NoError(t, err, table)
	}

	_, err = migrator.Rollback(ctx)
	require.NoError(t, err)

	_, err = db.NewSelect().Table("organizations").Limit(1).Exec(ctx)
	assert.Error(t, err)
}
