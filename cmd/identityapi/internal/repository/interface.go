package repository

import (
	"context"

	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/db/models"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/organization"
)

// OrganizationRepository loads and saves the organization aggregate. The
// GetByIDWith* variants load only the named collections; Update persists
// only the collections the instance was loaded with.
type OrganizationRepository interface {
	GetByID(ctx context.Context, id string) (*organization.Organization, error)
	GetByIDWithRoles(ctx context.Context, id string) (*organization.Organization, error)
	GetByIDWithMembers(ctx context.Context, id string) (*organization.Organization, error)
	GetByIDWithMembersAndRoles(ctx context.Context, id string) (*organization.Organization, error)
	GetByIDWithInvitations(ctx context.Context, id string) (*organization.Organization, error)
	GetByIDWithAll(ctx context.Context, id string) (*organization.Organization, error)
	GetByName(ctx context.Context, name string) (*organization.Organization, error)
	// ListByUserID returns one page of the organizations userID owns or
	// belongs to and the total count.
	ListByUserID(ctx context.Context, userID string, page, pageSize int) ([]*organization.Organization, int, error)

	ExistsByID(ctx context.Context, id string) (bool, error)
	ExistsByName(ctx context.Context, name string) (bool, error)
	HasMember(ctx context.Context, orgID, userID string) (bool, error)

	// Add inserts a new aggregate together with its pending events.
	Add(ctx context.Context, org *organization.Organization) error
	// Update saves the aggregate and its pending events in one transaction.
	// It fails with ErrConcurrentModification when the stored version moved
	// since the aggregate was loaded.
	Update(ctx context.Context, org *organization.Organization) error
	DeleteRole(ctx context.Context, orgID, roleID string) error
	UpdateRolePermissions(ctx context.Context, roleID string, permissionNames []string) error
}

// UserRepository exposes persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// Update saves the profile fields and the deactivation mark. Email and
	// ID are immutable.
	Update(ctx context.Context, user *models.User) error
}

// OutboxRepository tracks delivery of persisted domain events.
type OutboxRepository interface {
	ListPending(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkDispatched(ctx context.Context, ids []string) error
	MarkFailed(ctx context.Context, id string, cause error) error
}

// PermissionRepository lists the seeded permission catalog.
type PermissionRepository interface {
	List(ctx context.Context, page, pageSize int) ([]models.Permission, int, error)
}
