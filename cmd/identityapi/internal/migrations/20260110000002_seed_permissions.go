package migrations

import (
	"context"
	"fmt"

	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/db/models"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/organization"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20260110000002, down_20260110000002)
}

// up_20260110000002 seeds the permission catalog
func up_20260110000002(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] seeding permissions...")
	catalog := organization.Permissions()
	rows := make([]models.Permission, 0, len(catalog))
	for _, p := range catalog {
		rows = append(rows, models.Permission{
			Name:        p.Name,
			Description: p.Description,
			Category:    string(p.Category),
		})
	}
	_, err := db.NewInsert().
		Model(&rows).
		On("CONFLICT (name) DO UPDATE").
		Set("description = EXCLUDED.description").
		Set("category = EXCLUDED.category").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed permissions: %w", err)
	}
	fmt.Println(" OK")
	return nil
}

func down_20260110000002(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] removing permissions...")
	names := organization.PermissionNames()
	_, err := db.NewDelete().
		Model((*models.Permission)(nil)).
		Where("name IN (?)", bun.In(names)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to remove permissions: %w", err)
	}
	fmt.Println(" OK")
	return nil
}
