package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/db/bunx"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/migrations"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/organization"
)

// setupTestDB opens a migrated in-memory SQLite database.
func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()

	db, err := bunx.NewDB(ctx, ":memory:", bunx.Options{})
	if err != nil {
		t.Skipf("SQLite not available: %v", err)
	}
	t.Cleanup(func() { _ = bunx.Close(db) })

	migrator := migrate.NewMigrator(db, migrations.Migrations)
	require.NoError(t, migrator.Init(ctx))
	_, err = migrator.Migrate(ctx)
	require.NoError(t, err)
	return db
}

// newAcme builds an initialized organization that has not been saved yet.
func newAcme(t *testing.T, name, ownerID string) *organization.Organization {
	t.Helper()
	org, err := organization.Create(organization.CreateParams{Name: name, OwnerID: ownerID, Description: "test org"})
	require.NoError(t, err)
	require.NoError(t, org.InitializeRoles())
	require.NoError(t, org.InitializeOwner())
	return org
}

func mustRole(t *testing.T, org *organization.Organization, name string) organization.Role {
	t.Helper()
	r, ok := org.RoleByName(name)
	require.True(t, ok, "role %s missing", name)
	return r
}
