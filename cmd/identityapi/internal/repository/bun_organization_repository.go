package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/db/models"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/organization"
)

// BunOrganizationRepository persists organization aggregates with Bun ORM.
type BunOrganizationRepository struct {
	db   *bun.DB
	opts []organization.Option
}

// NewBunOrganizationRepository creates a Bun-backed repository. opts are
// applied to every aggregate the repository restores.
func NewBunOrganizationRepository(db *bun.DB, opts ...organization.Option) *BunOrganizationRepository {
	return &BunOrganizationRepository{db: db, opts: opts}
}

// ======== Loading ========

func (r *BunOrganizationRepository) GetByID(ctx context.Context, id string) (*organization.Organization, error) {
	return r.load(ctx, id, organization.SubgraphNone)
}

func (r *BunOrganizationRepository) GetByIDWithRoles(ctx context.Context, id string) (*organization.Organization, error) {
	return r.load(ctx, id, organization.SubgraphRoles)
}

func (r *BunOrganizationRepository) GetByIDWithMembers(ctx context.Context, id string) (*organization.Organization, error) {
	return r.load(ctx, id, organization.SubgraphMembers)
}

func (r *BunOrganizationRepository) GetByIDWithMembersAndRoles(ctx context.Context, id string) (*organization.Organization, error) {
	return r.load(ctx, id, organization.SubgraphMembers|organization.SubgraphRoles)
}

func (r *BunOrganizationRepository) GetByIDWithInvitations(ctx context.Context, id string) (*organization.Organization, error) {
	return r.load(ctx, id, organization.SubgraphInvitations)
}

func (r *BunOrganizationRepository) GetByIDWithAll(ctx context.Context, id string) (*organization.Organization, error) {
	return r.load(ctx, id, organization.SubgraphAll)
}

// GetByName loads an organization without child collections.
func (r *BunOrganizationRepository) GetByName(ctx context.Context, name string) (*organization.Organization, error) {
	var row models.Organization
	err := r.db.NewSelect().
		Model(&row).
		Where("o.name = ?", name).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("organization %q: %w", name, organization.ErrOrganizationNotFound)
		}
		return nil, fmt.Errorf("get organization by name: %w", err)
	}
	return organization.Restore(stateFromRow(row), r.opts...), nil
}

// ListByUserID returns one page of the organizations userID owns or belongs
// to, without child collections, ordered by name, plus the total. page is
// 1-based; a non-positive pageSize returns everything.
func (r *BunOrganizationRepository) ListByUserID(ctx context.Context, userID string, page, pageSize int) ([]*organization.Organization, int, error) {
	var rows []models.Organization
	memberOf := r.db.NewSelect().
		Model((*models.Member)(nil)).
		Column("organization_id").
		Where("user_id = ?", userID)
	q := r.db.NewSelect().
		Model(&rows).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("o.owner_id = ?", userID).WhereOr("o.id IN (?)", memberOf)
		}).
		Order("o.name ASC")
	if pageSize > 0 {
		if page < 1 {
			page = 1
		}
		q = q.Limit(pageSize).Offset((page - 1) * pageSize)
	}
	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list organizations by user: %w", err)
	}
	out := make([]*organization.Organization, len(rows))
	for i, row := range rows {
		out[i] = organization.Restore(stateFromRow(row), r.opts...)
	}
	return out, total, nil
}

func (r *BunOrganizationRepository) ExistsByID(ctx context.Context, id string) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*models.Organization)(nil)).
		Where("id = ?", id).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check organization exists: %w", err)
	}
	return exists, nil
}

func (r *BunOrganizationRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*models.Organization)(nil)).
		Where("name = ?", name).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check organization name: %w", err)
	}
	return exists, nil
}

func (r *BunOrganizationRepository) HasMember(ctx context.Context, orgID, userID string) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*models.Member)(nil)).
		Where("organization_id = ?", orgID).
		Where("user_id = ?", userID).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

// load reads the organization row and the requested collections inside one
// transaction.
func (r *BunOrganizationRepository) load(ctx context.Context, id string, include organization.Subgraph) (*organization.Organization, error) {
	var state organization.State
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var row models.Organization
		if err := tx.NewSelect().Model(&row).Where("o.id = ?", id).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("organization %s: %w", id, organization.ErrOrganizationNotFound)
			}
			return fmt.Errorf("get organization: %w", err)
		}
		state = stateFromRow(row)
		state.Loaded = include

		if include.Has(organization.SubgraphMembers) {
			members, err := selectMembers(ctx, tx, id)
			if err != nil {
				return err
			}
			state.Members = members
		}
		if include.Has(organization.SubgraphRoles) {
			roles, err := selectRoles(ctx, tx, id)
			if err != nil {
				return err
			}
			state.Roles = roles
		}
		if include.Has(organization.SubgraphInvitations) {
			invitations, err := selectInvitations(ctx, tx, id)
			if err != nil {
				return err
			}
			state.Invitations = invitations
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return organization.Restore(state, r.opts...), nil
}

func selectMembers(ctx context.Context, db bun.IDB, orgID string) ([]organization.Member, error) {
	var rows []models.Member
	err := db.NewSelect().
		Model(&rows).
		Relation("Roles", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("position ASC")
		}).
		Where("m.organization_id = ?", orgID).
		Order("m.joined_at ASC", "m.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	out := make([]organization.Member, len(rows))
	for i, row := range rows {
		roleIDs := make([]string, len(row.Roles))
		for j, mr := range row.Roles {
			roleIDs[j] = mr.RoleID
		}
		out[i] = organization.Member{
			ID:             row.ID,
			UserID:         row.UserID,
			OrganizationID: row.OrganizationID,
			JoinedAt:       row.JoinedAt,
			RoleIDs:        roleIDs,
		}
	}
	return out, nil
}

func selectRoles(ctx context.Context, db bun.IDB, orgID string) ([]organization.Role, error) {
	var rows []models.Role
	err := db.NewSelect().
		Model(&rows).
		Relation("Permissions", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("permission_name ASC")
		}).
		Where("r.organization_id = ?", orgID).
		Order("r.created_at ASC", "r.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	out := make([]organization.Role, len(rows))
	for i, row := range rows {
		names := make([]string, len(row.Permissions))
		for j, rp := range row.Permissions {
			names[j] = rp.PermissionName
		}
		out[i] = organization.Role{
			ID:              row.ID,
			OrganizationID:  row.OrganizationID,
			Name:            row.Name,
			Description:     row.Description,
			Color:           row.Color,
			PermissionNames: names,
			CreatedAt:       row.CreatedAt,
			UpdatedAt:       row.UpdatedAt,
		}
	}
	return out, nil
}

func selectInvitations(ctx context.Context, db bun.IDB, orgID string) ([]organization.Invitation, error) {
	var rows []models.Invitation
	err := db.NewSelect().
		Model(&rows).
		Where("i.organization_id = ?", orgID).
		Order("i.created_at ASC", "i.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	out := make([]organization.Invitation, len(rows))
	for i, row := range rows {
		out[i] = organization.Invitation{
			ID:             row.ID,
			OrganizationID: row.OrganizationID,
			Email:          row.Email,
			Token:          row.Token,
			RoleID:         row.RoleID,
			Status:         organization.InvitationStatus(row.Status),
			ExpiresAt:      row.ExpiresAt,
			CreatedAt:      row.CreatedAt,
			UpdatedAt:      row.UpdatedAt,
		}
	}
	return out, nil
}

// ======== Saving ========

// Add inserts a new organization. The stored version starts at 1.
func (r *BunOrganizationRepository) Add(ctx context.Context, org *organization.Organization) error {
	state := org.Snapshot()
	row := rowFromState(state)
	row.Version = 1

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("organization %q: %w", state.Name, ErrOrganizationNameTaken)
			}
			return fmt.Errorf("insert organization: %w", err)
		}
		if err := syncChildren(ctx, tx, state, nil); err != nil {
			return err
		}
		return insertEvents(ctx, tx, org.PendingEvents())
	})
	if err != nil {
		return err
	}
	org.Persisted(row.Version)
	return nil
}

// Update saves scalar fields, every loaded collection and the pending events.
func (r *BunOrganizationRepository) Update(ctx context.Context, org *organization.Organization) error {
	state := org.Snapshot()
	row := rowFromState(state)
	row.Version = state.Version + 1

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model(&row).
			Column("name", "description", "logo_url", "banner_url", "is_active", "version", "updated_at").
			WherePK().
			Where("version = ?", state.Version).
			Exec(ctx)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("organization %q: %w", state.Name, ErrOrganizationNameTaken)
			}
			return fmt.Errorf("update organization: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if n == 0 {
			exists, err := tx.NewSelect().Model((*models.Organization)(nil)).Where("id = ?", state.ID).Exists(ctx)
			if err != nil {
				return fmt.Errorf("check organization exists: %w", err)
			}
			if !exists {
				return fmt.Errorf("organization %s: %w", state.ID, organization.ErrOrganizationNotFound)
			}
			return fmt.Errorf("organization %s at version %d: %w", state.ID, state.Version, ErrConcurrentModification)
		}

		stored, err := storedRoleIDs(ctx, tx, state)
		if err != nil {
			return err
		}
		if err := syncChildren(ctx, tx, state, stored); err != nil {
			return err
		}
		return insertEvents(ctx, tx, org.PendingEvents())
	})
	if err != nil {
		return err
	}
	org.Persisted(row.Version)
	return nil
}

// DeleteRole removes a role that no member or invitation references and
// bumps the organization version.
func (r *BunOrganizationRepository) DeleteRole(ctx context.Context, orgID, roleID string) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := deleteRoles(ctx, tx, orgID, []string{roleID}); err != nil {
			return err
		}
		return bumpVersion(ctx, tx, orgID)
	})
}

// UpdateRolePermissions replaces the permissions of one role and bumps the
// owning organization's version.
func (r *BunOrganizationRepository) UpdateRolePermissions(ctx context.Context, roleID string, permissionNames []string) error {
	if err := organization.ValidatePermissionNames(permissionNames); err != nil {
		return err
	}
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var role models.Role
		if err := tx.NewSelect().Model(&role).Where("r.id = ?", roleID).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("role %s: %w", roleID, organization.ErrRoleNotFound)
			}
			return fmt.Errorf("get role: %w", err)
		}
		perms := map[string][]string{roleID: permissionNames}
		if err := replaceRolePermissions(ctx, tx, []string{roleID}, perms); err != nil {
			return err
		}
		return bumpVersion(ctx, tx, role.OrganizationID)
	})
}

func bumpVersion(ctx context.Context, tx bun.Tx, orgID string) error {
	res, err := tx.NewUpdate().
		Model((*models.Organization)(nil)).
		Set("version = version + 1").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", orgID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bump organization version: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("organization %s: %w", orgID, organization.ErrOrganizationNotFound)
	}
	return nil
}

// storedRoleIDs returns the role IDs currently persisted when roles are part
// of the save, so roles removed from the aggregate can be deleted.
func storedRoleIDs(ctx context.Context, tx bun.Tx, state organization.State) ([]string, error) {
	if !state.Loaded.Has(organization.SubgraphRoles) {
		return nil, nil
	}
	var ids []string
	err := tx.NewSelect().
		Model((*models.Role)(nil)).
		Column("id").
		Where("organization_id = ?", state.ID).
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("list stored roles: %w", err)
	}
	return ids, nil
}

// syncChildren writes the loaded collections. Roles are upserted first and
// deleted last so member and invitation references stay valid throughout.
func syncChildren(ctx context.Context, tx bun.Tx, state organization.State, storedRoles []string) error {
	if state.Loaded.Has(organization.SubgraphRoles) {
		if err := upsertRoles(ctx, tx, state.Roles); err != nil {
			return err
		}
	}
	if state.Loaded.Has(organization.SubgraphMembers) {
		if err := syncMembers(ctx, tx, state.ID, state.Members); err != nil {
			return err
		}
	}
	if state.Loaded.Has(organization.SubgraphInvitations) {
		if err := syncInvitations(ctx, tx, state.ID, state.Invitations); err != nil {
			return err
		}
	}
	if state.Loaded.Has(organization.SubgraphRoles) {
		keep := make(map[string]bool, len(state.Roles))
		for _, role := range state.Roles {
			keep[role.ID] = true
		}
		var removed []string
		for _, id := range storedRoles {
			if !keep[id] {
				removed = append(removed, id)
			}
		}
		if err := deleteRoles(ctx, tx, state.ID, removed); err != nil {
			return err
		}
	}
	return nil
}

func upsertRoles(ctx context.Context, tx bun.Tx, roles []organization.Role) error {
	if len(roles) == 0 {
		return nil
	}
	rows := make([]models.Role, len(roles))
	ids := make([]string, len(roles))
	perms := make(map[string][]string, len(roles))
	for i, role := range roles {
		rows[i] = models.Role{
			ID:             role.ID,
			OrganizationID: role.OrganizationID,
			Name:           role.Name,
			Description:    role.Description,
			Color:          role.Color,
			CreatedAt:      role.CreatedAt,
			UpdatedAt:      role.UpdatedAt,
		}
		ids[i] = role.ID
		perms[role.ID] = role.PermissionNames
	}
	_, err := tx.NewInsert().
		Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("description = EXCLUDED.description").
		Set("color = EXCLUDED.color").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("save roles: %w", organization.ErrDuplicateRoleName)
		}
		return fmt.Errorf("save roles: %w", err)
	}
	return replaceRolePermissions(ctx, tx, ids, perms)
}

func replaceRolePermissions(ctx context.Context, tx bun.Tx, roleIDs []string, perms map[string][]string) error {
	_, err := tx.NewDelete().
		Model((*models.RolePermission)(nil)).
		Where("role_id IN (?)", bun.In(roleIDs)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("clear role permissions: %w", err)
	}
	var rows []models.RolePermission
	for _, id := range roleIDs {
		for _, name := range perms[id] {
			rows = append(rows, models.RolePermission{RoleID: id, PermissionName: name})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	if _, err := tx.NewInsert().Model(&rows).On("CONFLICT DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("insert role permissions: %w", err)
	}
	return nil
}

func deleteRoles(ctx context.Context, tx bun.Tx, orgID string, roleIDs []string) error {
	if len(roleIDs) == 0 {
		return nil
	}
	res, err := tx.NewDelete().
		Model((*models.Role)(nil)).
		Where("organization_id = ?", orgID).
		Where("id IN (?)", bun.In(roleIDs)).
		Exec(ctx)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("delete roles: %w", ErrRoleReferenced)
		}
		return fmt.Errorf("delete roles: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("role %v: %w", roleIDs, organization.ErrRoleNotFound)
	}
	return nil
}

func syncMembers(ctx context.Context, tx bun.Tx, orgID string, members []organization.Member) error {
	del := tx.NewDelete().
		Model((*models.Member)(nil)).
		Where("organization_id = ?", orgID)
	if len(members) > 0 {
		ids := make([]string, len(members))
		for i, m := range members {
			ids[i] = m.ID
		}
		del = del.Where("id NOT IN (?)", bun.In(ids))
	}
	if _, err := del.Exec(ctx); err != nil {
		return fmt.Errorf("remove members: %w", err)
	}
	if len(members) == 0 {
		return nil
	}

	rows := make([]models.Member, len(members))
	ids := make([]string, len(members))
	var roles []models.MemberRole
	for i, m := range members {
		rows[i] = models.Member{ID: m.ID, OrganizationID: m.OrganizationID, UserID: m.UserID, JoinedAt: m.JoinedAt}
		ids[i] = m.ID
		for pos, roleID := range m.RoleIDs {
			roles = append(roles, models.MemberRole{MemberID: m.ID, RoleID: roleID, Position: pos})
		}
	}
	if _, err := tx.NewInsert().Model(&rows).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("save members: %w", organization.ErrAlreadyMember)
		}
		return fmt.Errorf("save members: %w", err)
	}

	_, err := tx.NewDelete().
		Model((*models.MemberRole)(nil)).
		Where("member_id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("clear member roles: %w", err)
	}
	if len(roles) > 0 {
		if _, err := tx.NewInsert().Model(&roles).Exec(ctx); err != nil {
			return fmt.Errorf("insert member roles: %w", err)
		}
	}
	return nil
}

func syncInvitations(ctx context.Context, tx bun.Tx, orgID string, invitations []organization.Invitation) error {
	del := tx.NewDelete().
		Model((*models.Invitation)(nil)).
		Where("organization_id = ?", orgID)
	if len(invitations) > 0 {
		ids := make([]string, len(invitations))
		for i, inv := range invitations {
			ids[i] = inv.ID
		}
		del = del.Where("id NOT IN (?)", bun.In(ids))
	}
	if _, err := del.Exec(ctx); err != nil {
		return fmt.Errorf("remove invitations: %w", err)
	}
	if len(invitations) == 0 {
		return nil
	}

	rows := make([]models.Invitation, len(invitations))
	for i, inv := range invitations {
		rows[i] = models.Invitation{
			ID:             inv.ID,
			OrganizationID: inv.OrganizationID,
			Email:          inv.Email,
			Token:          inv.Token,
			RoleID:         inv.RoleID,
			Status:         string(inv.Status),
			ExpiresAt:      inv.ExpiresAt,
			CreatedAt:      inv.CreatedAt,
			UpdatedAt:      inv.UpdatedAt,
		}
	}
	_, err := tx.NewInsert().
		Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("save invitations: %w: token collision", organization.ErrConflict)
		}
		return fmt.Errorf("save invitations: %w", err)
	}
	return nil
}

func insertEvents(ctx context.Context, tx bun.Tx, events []organization.Event) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]models.OutboxEvent, len(events))
	for i, e := range events {
		payload, err := organization.EncodeEvent(e)
		if err != nil {
			return err
		}
		rows[i] = models.OutboxEvent{
			ID:             e.EventID(),
			OrganizationID: e.OrganizationID(),
			Type:           e.EventType(),
			Payload:        payload,
			OccurredAt:     e.OccurredAt(),
		}
	}
	if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("insert outbox events: %w", err)
	}
	return nil
}

func stateFromRow(row models.Organization) organization.State {
	return organization.State{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		OwnerID:     row.OwnerID,
		LogoURL:     row.LogoURL,
		BannerURL:   row.BannerURL,
		IsActive:    row.IsActive,
		Version:     row.Version,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

func rowFromState(s organization.State) models.Organization {
	return models.Organization{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		OwnerID:     s.OwnerID,
		LogoURL:     s.LogoURL,
		BannerURL:   s.BannerURL,
		IsActive:    s.IsActive,
		Version:     s.Version,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}
