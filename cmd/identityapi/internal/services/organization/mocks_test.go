package organization

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/db/models"
	domain "github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/organization"
)

// MockOrganizationRepository is a mock implementation of repository.OrganizationRepository
type MockOrganizationRepository struct {
	mock.Mock
}

func (m *MockOrganizationRepository) org(args mock.Arguments) (*domain.Organization, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Organization), args.Error(1)
}

func (m *MockOrganizationRepository) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	return m.org(m.Called(ctx, id))
}

func (m *MockOrganizationRepository) GetByIDWithRoles(ctx context.Context, id string) (*domain.Organization, error) {
	return m.org(m.Called(ctx, id))
}

func (m *MockOrganizationRepository) GetByIDWithMembers(ctx context.Context, id string) (*domain.Organization, error) {
	return m.org(m.Called(ctx, id))
}

func (m *MockOrganizationRepository) GetByIDWithMembersAndRoles(ctx context.Context, id string) (*domain.Organization, error) {
	return m.org(m.Called(ctx, id))
}

func (m *MockOrganizationRepository) GetByIDWithInvitations(ctx context.Context, id string) (*domain.Organization, error) {
	return m.org(m.Called(ctx, id))
}

func (m *MockOrganizationRepository) GetByIDWithAll(ctx context.Context, id string) (*domain.Organization, error) {
	return m.org(m.Called(ctx, id))
}

func (m *MockOrganizationRepository) GetByName(ctx context.Context, name string) (*domain.Organization, error) {
	return m.org(m.Called(ctx, name))
}

func (m *MockOrganizationRepository) ListByUserID(ctx context.Context, userID string, page, pageSize int) ([]*domain.Organization, int, error) {
	args := m.Called(ctx, userID, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*domain.Organization), args.Int(1), args.Error(2)
}

func (m *MockOrganizationRepository) ExistsByID(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrganizationRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrganizationRepository) HasMember(ctx context.Context, orgID, userID string) (bool, error) {
	args := m.Called(ctx, orgID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrganizationRepository) Add(ctx context.Context, org *domain.Organization) error {
	args := m.Called(ctx, org)
	return args.Error(0)
}

func (m *MockOrganizationRepository) Update(ctx context.Context, org *domain.Organization) error {
	args := m.Called(ctx, org)
	return args.Error(0)
}

func (m *MockOrganizationRepository) DeleteRole(ctx context.Context, orgID, roleID string) error {
	args := m.Called(ctx, orgID, roleID)
	return args.Error(0)
}

func (m *MockOrganizationRepository) UpdateRolePermissions(ctx context.Context, roleID string, permissionNames []string) error {
	args := m.Called(ctx, roleID, permissionNames)
	return args.Error(0)
}

// MockUserRepository is a mock implementation of repository.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) Update(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

// MockOutboxRepository is a mock implementation of repository.OutboxRepository
type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) ListPending(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkDispatched(ctx context.Context, ids []string) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id string, cause error) error {
	args := m.Called(ctx, id, cause)
	return args.Error(0)
}

// recordingPublisher keeps every dispatched event.
type recordingPublisher struct {
	events []domain.Event
	err    error
}

func (p *recordingPublisher) Dispatch(_ context.Context, evts ...domain.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evts...)
	return nil
}

func (p *recordingPublisher) types() []string {
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}
