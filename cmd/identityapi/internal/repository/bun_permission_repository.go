package repository

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/db/models"
)

// BunPermissionRepository reads the seeded permissions table.
type BunPermissionRepository struct {
	db *bun.DB
}

func NewBunPermissionRepository(db *bun.DB) *BunPermissionRepository {
	return &BunPermissionRepository{db: db}
}

// List returns one page ordered by name plus the total count. page is
// 1-based; a non-positive pageSize returns everything.
func (r *BunPermissionRepository) List(ctx context.Context, page, pageSize int) ([]models.Permission, int, error) {
	var rows []models.Permission
	q := r.db.NewSelect().Model(&rows).Order("p.name ASC")
	if pageSize > 0 {
		if page < 1 {
			page = 1
		}
		q = q.Limit(pageSize).Offset((page - 1) * pageSize)
	}
	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list permissions: %w", err)
	}
	return rows, total, nil
}
