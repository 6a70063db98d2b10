package migrations

import (
	"context"
	"fmt"

	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20260110000001, down_20260110000001)
}

type tableSpec struct {
	label       string
	model       any
	foreignKeys []string
	indexes     []string
}

var initTables = []tableSpec{
	{
		label: "users",
		model: (*models.User)(nil),
	},
	{
		label: "organizations",
		model: (*models.Organization)(nil),
		indexes: []string{
			`CREATE INDEX IF NOT EXISTS idx_organizations_owner ON organizations(owner_id)`,
		},
	},
	{
		label: "roles",
		model: (*models.Role)(nil),
		foreignKeys: []string{
			`("organization_id") REFERENCES "organizations" ("id") ON DELETE CASCADE`,
		},
	},
	{
		label: "permissions",
		model: (*models.Permission)(nil),
	},
	{
		label: "role_permissions",
		model: (*models.RolePermission)(nil),
		foreignKeys: []string{
			`("role_id") REFERENCES "roles" ("id") ON DELETE CASCADE`,
			`("permission_name") REFERENCES "permissions" ("name")`,
		},
	},
	{
		label: "members",
		model: (*models.Member)(nil),
		foreignKeys: []string{
			`("organization_id") REFERENCES "organizations" ("id") ON DELETE CASCADE`,
		},
		indexes: []string{
			`CREATE INDEX IF NOT EXISTS idx_members_user ON members(user_id)`,
		},
	},
	{
		label: "member_roles",
		model: (*models.MemberRole)(nil),
		foreignKeys: []string{
			`("member_id") REFERENCES "members" ("id") ON DELETE CASCADE`,
			`("role_id") REFERENCES "roles" ("id")`,
		},
		indexes: []string{
			`CREATE INDEX IF NOT EXISTS idx_member_roles_role ON member_roles(role_id)`,
		},
	},
	{
		label: "invitations",
		model: (*models.Invitation)(nil),
		foreignKeys: []string{
			`("organization_id") REFERENCES "organizations" ("id") ON DELETE CASCADE`,
			`("role_id") REFERENCES "roles" ("id")`,
		},
		indexes: []string{
			`CREATE INDEX IF NOT EXISTS idx_invitations_email_org_status ON invitations(email, organization_id, status)`,
		},
	},
	{
		label: "outbox_events",
		model: (*models.OutboxEvent)(nil),
		indexes: []string{
			`CREATE INDEX IF NOT EXISTS idx_outbox_events_pending ON outbox_events(dispatched_at, occurred_at)`,
		},
	},
}

// up_20260110000001 creates the organization aggregate tables and the outbox
func up_20260110000001(ctx context.Context, db *bun.DB) error {
	for _, t := range initTables {
		fmt.Printf(" [up] creating %s table...", t.label)
		q := db.NewCreateTable().Model(t.model).IfNotExists()
		for _, fk := range t.foreignKeys {
			q = q.ForeignKey(fk)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("failed to create %s table: %w", t.label, err)
		}
		for _, idx := range t.indexes {
			if _, err := db.ExecContext(ctx, idx); err != nil {
				return fmt.Errorf("failed to create %s index: %w", t.label, err)
			}
		}
		fmt.Println(" OK")
	}
	return nil
}

// down_20260110000001 drops the tables in reverse dependency order
func down_20260110000001(ctx context.Context, db *bun.DB) error {
	for i := len(initTables) - 1; i >= 0; i-- {
		t := initTables[i]
		fmt.Printf(" [down] dropping %s table...", t.label)
		if _, err := db.NewDropTable().Model(t.model).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop %s table: %w", t.label, err)
		}
		fmt.Println(" OK")
	}
	return nil
}
