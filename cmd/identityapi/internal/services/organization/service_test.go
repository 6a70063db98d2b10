package organization

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/authz"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/db/models"
	domain "github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/organization"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/repository"
)

type fixture struct {
	orgs   *MockOrganizationRepository
	users  *MockUserRepository
	outbox *MockOutboxRepository
	pub    *recordingPublisher
	svc    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	az, err := authz.New(16)
	require.NoError(t, err)
	f := &fixture{
		orgs:   new(MockOrganizationRepository),
		users:  new(MockUserRepository),
		outbox: new(MockOutboxRepository),
		pub:    &recordingPublisher{},
	}
	f.svc = NewService(f.orgs, f.users, az).WithPublisher(f.pub).WithOutbox(f.outbox)
	return f
}

// acme returns a saved organization owned by "owner" with "bob" holding the
// Member role and "gail" holding the Guest role.
func acme(t *testing.T) *domain.Organization {
	t.Helper()
	org, err := domain.Create(domain.CreateParams{Name: "Acme", OwnerID: "owner"})
	require.NoError(t, err)
	require.NoError(t, org.InitializeRoles())
	require.NoError(t, org.InitializeOwner())
	join(t, org, "bob", "bob@example.com", domain.MemberRoleName)
	join(t, org, "gail", "gail@example.com", domain.GuestRoleName)
	org.DrainEvents()
	org.Persisted(1)
	return org
}

func join(t *testing.T, org *domain.Organization, userID, email, roleName string) {
	t.Helper()
	inv, err := org.CreateInvitation(email, roleID(t, org, roleName))
	require.NoError(t, err)
	_, err = org.AcceptInvitation(inv.ID, inv.Token, userID)
	require.NoError(t, err)
}

func roleID(t *testing.T, org *domain.Organization, name string) string {
	t.Helper()
	r, ok := org.RoleByName(name)
	require.True(t, ok, "role %s", name)
	return r.ID
}

func (f *fixture) expectSave(org *domain.Organization) {
	f.orgs.On("Update", mock.Anything, org).Return(nil).Run(func(args mock.Arguments) {
		o := args.Get(1).(*domain.Organization)
		o.Persisted(o.Version() + 1)
	}).Once()
	f.outbox.On("MarkDispatched", mock.Anything, mock.Anything).Return(nil).Maybe()
}

func TestCreateOrganization(t *testing.T) {
	t.Run("creates organization with system roles and owner", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()

		f.users.On("GetByID", mock.Anything, "owner").Return(&models.User{ID: "owner", Email: "owner@example.com"}, nil)
		f.orgs.On("ExistsByName", mock.Anything, "Acme").Return(false, nil)
		f.orgs.On("Add", mock.Anything, mock.MatchedBy(func(o *domain.Organization) bool {
			_, isMember := o.Member("owner")
			return o.Name() == "Acme" && len(o.Roles()) == 3 && isMember
		})).Return(nil)
		f.outbox.On("MarkDispatched", mock.Anything, mock.MatchedBy(func(ids []string) bool {
			return len(ids) == len(f.pub.events)
		})).Return(nil)

		org, err := f.svc.CreateOrganization(ctx, CreateOrganization{RequestedBy: "owner", Name: "Acme"})
		require.NoError(t, err)
		assert.Equal(t, "owner", org.OwnerID())
		assert.Empty(t, org.PendingEvents())
		assert.Contains(t, f.pub.types(), domain.TypeOrganizationCreated)
		assert.Contains(t, f.pub.types(), domain.TypeMemberAdded)

		f.orgs.AssertExpectations(t)
		f.outbox.AssertExpectations(t)
	})

	t.Run("reports every invalid field", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.CreateOrganization(context.Background(), CreateOrganization{
			RequestedBy: "owner",
			Name:        " ",
			LogoURL:     "not a url",
		})
		require.ErrorIs(t, err, domain.ErrValidation)
		var verrs ValidationErrors
		require.True(t, errors.As(err, &verrs))
		assert.Len(t, verrs, 2)
		assert.Equal(t, "name", verrs[0].Field)
		assert.Equal(t, "logo_url", verrs[1].Field)
		f.orgs.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)
	})

	t.Run("rejects a taken name", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.users.On("GetByID", mock.Anything, "owner").Return(&models.User{ID: "owner"}, nil)
		f.orgs.On("ExistsByName", mock.Anything, "Acme").Return(true, nil)

		_, err := f.svc.CreateOrganization(ctx, CreateOrganization{RequestedBy: "owner", Name: "Acme"})
		assert.ErrorIs(t, err, repository.ErrOrganizationNameTaken)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("deactivated owner cannot create", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		at := time.Now().UTC()
		f.users.On("GetByID", mock.Anything, "owner").Return(&models.User{ID: "owner", DeactivatedAt: &at}, nil)

		_, err := f.svc.CreateOrganization(ctx, CreateOrganization{RequestedBy: "owner", Name: "Acme"})
		assert.ErrorIs(t, err, ErrUserInactive)
		assert.ErrorIs(t, err, domain.ErrForbidden)
		f.orgs.AssertNotCalled(t, "ExistsByName", mock.Anything, mock.Anything)
	})

	t.Run("requires a known owner", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.users.On("GetByID", mock.Anything, "ghost").Return(nil, repository.ErrUserNotFound)

		_, err := f.svc.CreateOrganization(ctx, CreateOrganization{RequestedBy: "ghost", Name: "Acme"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestUpdateOrganization(t *testing.T) {
	t.Run("owner renames", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		org := acme(t)
		f.orgs.On("GetByIDWithMembersAndRoles", mock.Anything, org.ID()).Return(org, nil)
		f.orgs.On("ExistsByName", mock.Anything, "Acme Corp").Return(false, nil)
		f.expectSave(org)

		got, err := f.svc.UpdateOrganization(ctx, UpdateOrganization{
			RequestedBy:    "owner",
			OrganizationID: org.ID(),
			Name:           "Acme Corp",
			Description:    "widgets",
		})
		require.NoError(t, err)
		assert.Equal(t, "Acme Corp", got.Name())
		assert.Equal(t, 2, got.Version())
		assert.Equal(t, []string{domain.TypeOrganizationUpdated}, f.pub.types())
	})

	t.Run("keeping the name skips the uniqueness check", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		org := acme(t)
		f.orgs.On("GetByIDWithMembersAndRoles", mock.Anything, org.ID()).Return(org, nil)
		f.expectSave(org)

		_, err := f.svc.UpdateOrganization(ctx, UpdateOrganization{RequestedBy: "owner", OrganizationID: org.ID(), Name: "Acme"})
		require.NoError(t, err)
		f.orgs.AssertNotCalled(t, "ExistsByName", mock.Anything, mock.Anything)
	})

	t.Run("member without organization.manage is forbidden", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		org := acme(t)
		f.orgs.On("GetByIDWithMembersAndRoles", mock.Anything, org.ID()).Return(org, nil)

		_, err := f.svc.UpdateOrganization(ctx, UpdateOrganization{RequestedBy: "bob", OrganizationID: org.ID(), Name: "Bob Inc"})
		assert.ErrorIs(t, err, domain.ErrForbidden)
		f.orgs.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("missing organization", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.orgs.On("GetByIDWithMembersAndRoles", mock.Anything, "nope").Return(nil, domain.ErrOrganizationNotFound)

		_, err := f.svc.UpdateOrganization(ctx, UpdateOrganization{RequestedBy: "owner", OrganizationID: "nope", Name: "X"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestUpdateLogo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := acme(t)
	f.orgs.On("GetByIDWithMembersAndRoles", mock.Anything, org.ID()).Return(org, nil)
	f.expectSave(org)

	got, err := f.svc.UpdateLogo(ctx, UpdateLogo{RequestedBy: "owner", OrganizationID: org.ID(), URL: "https://cdn.example.com/logo.png"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/logo.png", got.LogoURL())

	_, err = f.svc.UpdateBanner(ctx, UpdateBanner{RequestedBy: "owner", OrganizationID: org.ID(), URL: "ftp://x"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDeactivateOrganization(t *testing.T) {
	t.Run("owner only", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		org := acme(t)
		f.orgs.On("GetByID", mock.Anything, org.ID()).Return(org, nil)

		_, err := f.svc.DeactivateOrganization(ctx, DeactivateOrganization{RequestedBy: "bob", OrganizationID: org.ID()})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("owner deactivates then the repeat is a no-op", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		org := acme(t)
		f.orgs.On("GetByID", mock.Anything, org.ID()).Return(org, nil)
		f.expectSave(org)

		got, err := f.svc.DeactivateOrganization(ctx, DeactivateOrganization{RequestedBy: "owner", OrganizationID: org.ID()})
		require.NoError(t, err)
		assert.False(t, got.IsActive())

		_, err = f.svc.DeactivateOrganization(ctx, DeactivateOrganization{RequestedBy: "owner", OrganizationID: org.ID()})
		require.NoError(t, err)
		f.orgs.AssertNumberOfCalls(t, "Update", 1)
		assert.Equal(t, []string{domain.TypeOrganizationDeactivated}, f.pub.types())
	})
}

func TestRoles(t *testing.T) {
	t.Run("owner creates a role", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		org := acme(t)
		f.orgs.On("GetByIDWithMembersAndRoles", mock.Anything, org.ID()).Return(org, nil)
		f.expectSave(org)

		role, err := f.svc.CreateRole(ctx, CreateRole{RequestedBy: "owner", OrganizationID: org.ID(), Name: "Editor", Color: "#abc"})
		require.NoError(t, err)
		assert.Equal(t, "Editor", role.Name)
		assert.Equal(t, []string{domain.TypeRoleCreated}, f.pub.types())
	})

	t.Run("bad color is a validation error", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CreateRole(context.Background(), CreateRole{RequestedBy: "owner", OrganizationID: "org", Name: "Editor", Color: "red"})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("system role cannot be deleted", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		org := acme(t)
		f.orgs.On("GetByIDWithAll", mock.Anything, org.ID()).Return(org, nil)

		err := f.svc.DeleteRole(ctx, DeleteRole{RequestedBy: "owner", OrganizationID: org.ID(), RoleID: roleID(t, org, domain.GuestRoleName)})
		assert.ErrorIs(t, err, domain.ErrSystemRole)
	})

	t.Run("unknown permission names are rejected before loading", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.UpdateRolePermissions(context.Background(), UpdateRolePermissions{
			RequestedBy:    "owner",
			OrganizationID: "org",
			RoleID:         "role",
			Permissions:    []string{"roles.view", "roles.destroy"},
		})
		require.ErrorIs(t, err, domain.ErrValidation)
		f.orgs.AssertNotCalled(t, "GetByIDWithMembersAndRoles", mock.Anything, mock.Anything)
	})

	t.Run("permissions replaced", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		org := acme(t)
		editor, err := org.AddRole("Editor", "", "")
		require.NoError(t, err)
		org.DrainEvents()
		f.orgs.On("GetByIDWithMembersAndRoles", mock.Anything, org.ID()).Return(org, nil)
		f.expectSave(org)

		got, err := f.svc.UpdateRolePermissions(ctx, UpdateRolePermissions{
			RequestedBy:    "owner",
			OrganizationID: org.ID(),
			RoleID:         editor.ID,
			Permissions:    []string{domain.PermRolesView, domain.PermRolesView, domain.PermMembersView},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{domain.PermMembersView, domain.PermRolesView}, got.PermissionNames)
	})
}

func TestMembers(t *testing.T) {
	t.Run("assigning a held role saves nothing", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		org := acme(t)
		f.orgs.On("GetByIDWithMembersAndRoles", mock.Anything, org.ID()).Return(org, nil)

		m, err := f.svc.AssignRole(ctx, AssignRole{RequestedBy: "owner", OrganizationID: org.ID(), UserID: "bob", RoleID: roleID(t, org, domain.MemberRoleName)})
		require.NoError(t, err)
		assert.Len(t, m.RoleIDs, 1)
		f.orgs.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("revoking the last role conflicts", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		org := acme(t)
		f.orgs.On("GetByIDWithMembersAndRoles", mock.Anything, org.ID()).Return(org, nil)

		_, err := f.svc.RevokeRole(ctx, RevokeRole{RequestedBy: "owner", OrganizationID: org.ID(), UserID: "bob", RoleID: roleID(t, org, domain.MemberRoleName)})
		assert.ErrorIs(t, err, domain.ErrLastRole)
	})

	t.Run("member leaves on their own", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		org := acme(t)
		f.orgs.On("GetByIDWithMembersAndRoles", mock.Anything, org.ID()).Return(org, nil)
		f.expectSave(org)

		require.NoError(t, f.svc.RemoveMember(ctx, RemoveMember{RequestedBy: "gail", OrganizationID: org.ID(), UserID: "gail"}))
		assert.Equal(t, []string{domain.TypeMemberRemoved}, f.pub.types())
	})

	t.Run("guest cannot remove others", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		org := acme(t)
		f.orgs.On("GetByIDWithMembersAndRoles", mock.Anything, org.ID()).Return(org, nil)

		err := f.svc.RemoveMember(ctx, RemoveMember{RequestedBy: "gail", OrganizationID: org.ID(), UserID: "bob"})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("owner cannot be removed", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		org := acme(t)
		f.orgs.On("GetByIDWithMembersAndRoles", mock.Anything, org.ID()).Return(org, nil)

		err := f.svc.RemoveMember(ctx, RemoveMember{RequestedBy: "owner", OrganizationID: org.ID(), UserID: "owner"})
		assert.ErrorIs(t, err, domain.ErrOwnerRemoval)
	})
}

func TestInvitations(t *testing.T) {
	t.Run("existing member cannot be invited", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		org := acme(t)
		f.orgs.On("GetByIDWithAll", mock.Anything, org.ID()).Return(org, nil)
		f.users.On("GetByEmail", mock.Anything, "bob@example.com").Return(&models.User{ID: "bob", Email: "bob@example.com"}, nil)

		_, err := f.svc.CreateInvitation(ctx, CreateInvitation{
			RequestedBy:    "owner",
			OrganizationID: org.ID(),
			Email:          "bob@example.com",
			RoleID:         roleID(t, org, domain.MemberRoleName),
		})
		assert.ErrorIs(t, err, domain.ErrAlreadyMember)
	})

	t.Run("invite then accept", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		org := acme(t)
		f.orgs.On("GetByIDWithAll", mock.Anything, org.ID()).Return(org, nil)
		f.users.On("GetByEmail", mock.Anything, "carol@example.com").Return(nil, repository.ErrUserNotFound)
		f.users.On("GetByID", mock.Anything, "carol").Return(&models.User{ID: "carol", Email: "Carol@Example.com"}, nil)
		f.orgs.On("Update", mock.Anything, org).Return(nil).Run(func(args mock.Arguments) {
			o := args.Get(1).(*domain.Organization)
			o.Persisted(o.Version() + 1)
		}).Twice()
		f.outbox.On("MarkDispatched", mock.Anything, mock.Anything).Return(nil)

		inv, err := f.svc.CreateInvitation(ctx, CreateInvitation{
			RequestedBy:    "owner",
			OrganizationID: org.ID(),
			Email:          "carol@example.com",
			RoleID:         roleID(t, org, domain.MemberRoleName),
		})
		require.NoError(t, err)
		require.NotEmpty(t, inv.Token)

		m, err := f.svc.AcceptInvitation(ctx, AcceptInvitation{
			RequestedBy:    "carol",
			OrganizationID: org.ID(),
			InvitationID:   inv.ID,
			Token:          inv.Token,
		})
		require.NoError(t, err)
		assert.Equal(t, "carol", m.UserID)
		assert.Equal(t, []string{
			domain.TypeInvitationCreated,
			domain.TypeInvitationAccepted,
			domain.TypeMemberAdded,
		}, f.pub.types())
		f.orgs.AssertExpectations(t)
	})

	t.Run("another user cannot accept", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		org := acme(t)
		inv, err := org.CreateInvitation("carol@example.com", roleID(t, org, domain.GuestRoleName))
		require.NoError(t, err)
		org.DrainEvents()
		f.orgs.On("GetByIDWithAll", mock.Anything, org.ID()).Return(org, nil)
		f.users.On("GetByID", mock.Anything, "mallory").Return(&models.User{ID: "mallory", Email: "mallory@example.com"}, nil)

		_, err = f.svc.AcceptInvitation(ctx, AcceptInvitation{RequestedBy: "mallory", OrganizationID: org.ID(), InvitationID: inv.ID, Token: inv.Token})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("deactivated invitee cannot accept but can reject", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		org := acme(t)
		inv, err := org.CreateInvitation("carol@example.com", roleID(t, org, domain.GuestRoleName))
		require.NoError(t, err)
		org.DrainEvents()
		at := time.Now().UTC()
		f.orgs.On("GetByIDWithAll", mock.Anything, org.ID()).Return(org, nil)
		f.orgs.On("GetByIDWithInvitations", mock.Anything, org.ID()).Return(org, nil)
		f.users.On("GetByID", mock.Anything, "carol").Return(&models.User{ID: "carol", Email: "carol@example.com", DeactivatedAt: &at}, nil)

		_, err = f.svc.AcceptInvitation(ctx, AcceptInvitation{RequestedBy: "carol", OrganizationID: org.ID(), InvitationID: inv.ID, Token: inv.Token})
		assert.ErrorIs(t, err, ErrUserInactive)
		_, isMember := org.Member("carol")
		assert.False(t, isMember)

		f.expectSave(org)
		got, err := f.svc.RejectInvitation(ctx, RejectInvitation{RequestedBy: "carol", OrganizationID: org.ID(), InvitationID: inv.ID, Token: inv.Token})
		require.NoError(t, err)
		assert.Equal(t, domain.InvitationRejected, got.Status)
	})

	t.Run("wrong token on reject", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		org := acme(t)
		inv, err := org.CreateInvitation("carol@example.com", roleID(t, org, domain.GuestRoleName))
		require.NoError(t, err)
		org.DrainEvents()
		f.orgs.On("GetByIDWithInvitations", mock.Anything, org.ID()).Return(org, nil)
		f.users.On("GetByID", mock.Anything, "carol").Return(&models.User{ID: "carol", Email: "carol@example.com"}, nil)

		_, err = f.svc.RejectInvitation(ctx, RejectInvitation{RequestedBy: "carol", OrganizationID: org.ID(), InvitationID: inv.ID, Token: "wrong"})
		assert.ErrorIs(t, err, domain.ErrInvalidToken)
	})
}

func TestPublishFailureLeavesEventsPending(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("subscriber down")
	ctx := context.Background()
	org := acme(t)
	f.orgs.On("GetByIDWithMembersAndRoles", mock.Anything, org.ID()).Return(org, nil)
	f.orgs.On("Update", mock.Anything, org).Return(nil)

	_, err := f.svc.CreateRole(ctx, CreateRole{RequestedBy: "owner", OrganizationID: org.ID(), Name: "Editor"})
	require.NoError(t, err)
	f.outbox.AssertNotCalled(t, "MarkDispatched", mock.Anything, mock.Anything)
}

func TestExecute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := acme(t)
	f.orgs.On("GetByIDWithMembersAndRoles", mock.Anything, org.ID()).Return(org, nil)
	f.expectSave(org)

	result, err := f.svc.Execute(ctx, CreateRole{RequestedBy: "owner", OrganizationID: org.ID(), Name: "Editor"})
	require.NoError(t, err)
	role, ok := result.(domain.Role)
	require.True(t, ok)
	assert.Equal(t, "Editor", role.Name)

	_, err = f.svc.Execute(ctx, nil)
	assert.Error(t, err)
}

func TestValidationErrors(t *testing.T) {
	var v ValidationErrors
	assert.NoError(t, v.err())

	v.required("name", "")
	v.check(domain.ValidateColor("blue"))
	v.check(errors.New("plain"))
	err := v.err()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, "validation failed: name: must not be empty; color: must be a hex color such as #FF0000; : plain", err.Error())
}

func TestUserService_CreateUser(t *testing.T) {
	users := new(MockUserRepository)
	svc := NewUserService(users)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "", "not-an-email", "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	users.On("Create", mock.Anything, mock.MatchedBy(func(u *models.User) bool { return u.Email == "ann@example.com" })).Return(nil)
	u, err := svc.CreateUser(ctx, "ann", " Ann@Example.com ", "Ann")
	require.NoError(t, err)
	assert.Equal(t, "ann", u.ID)
	users.AssertExpectations(t)
}

func TestUserService_UpdateUser(t *testing.T) {
	ctx := context.Background()
	name := "Ann Smith"
	image := "https://cdn.example.com/ann.png"

	t.Run("changes only the given fields", func(t *testing.T) {
		users := new(MockUserRepository)
		pub := &recordingPublisher{}
		svc := NewUserService(users).WithPublisher(pub)
		users.On("GetByID", mock.Anything, "ann").Return(&models.User{ID: "ann", Email: "ann@example.com", Address: "Main St 1"}, nil)
		users.On("Update", mock.Anything, mock.Anything).Return(nil)

		u, err := svc.UpdateUser(ctx, UpdateUser{UserID: "ann", RequestedBy: "ann", DisplayName: &name, ProfileImage: &image})
		require.NoError(t, err)
		assert.Equal(t, name, u.DisplayName)
		assert.Equal(t, image, u.ProfileImage)
		assert.Equal(t, "Main St 1", u.Address)
		assert.Equal(t, []string{domain.TypeUserUpdated}, pub.types())
		ev := pub.events[0].(*domain.UserUpdated)
		assert.Equal(t, "ann", ev.UserID)
		assert.NotEmpty(t, ev.EventID())
		users.AssertExpectations(t)
	})

	t.Run("unchanged fields skip the write", func(t *testing.T) {
		users := new(MockUserRepository)
		pub := &recordingPublisher{}
		svc := NewUserService(users).WithPublisher(pub)
		users.On("GetByID", mock.Anything, "ann").Return(&models.User{ID: "ann", DisplayName: name}, nil)

		_, err := svc.UpdateUser(ctx, UpdateUser{UserID: "ann", RequestedBy: "ann", DisplayName: &name})
		require.NoError(t, err)
		users.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
		assert.Empty(t, pub.events)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		svc := NewUserService(new(MockUserRepository))
		bad := "ftp://example.com/x.png"
		_, err := svc.UpdateUser(ctx, UpdateUser{UserID: "ann", RequestedBy: "ann", ProfileImage: &bad})
		require.ErrorIs(t, err, domain.ErrValidation)
		var verrs ValidationErrors
		require.True(t, errors.As(err, &verrs))
		assert.Equal(t, "profile_image", verrs[0].Field)
	})

	t.Run("cannot change another user", func(t *testing.T) {
		users := new(MockUserRepository)
		svc := NewUserService(users)
		_, err := svc.UpdateUser(ctx, UpdateUser{UserID: "ann", RequestedBy: "bob", DisplayName: &name})
		assert.ErrorIs(t, err, domain.ErrForbidden)
		users.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	})
}

func TestUserService_DeactivateActivate(t *testing.T) {
	ctx := context.Background()
	users := new(MockUserRepository)
	pub := &recordingPublisher{}
	svc := NewUserService(users).WithPublisher(pub)
	ann := &models.User{ID: "ann", Email: "ann@example.com"}
	users.On("GetByID", mock.Anything, "ann").Return(ann, nil)
	users.On("Update", mock.Anything, ann).Return(nil)

	u, err := svc.DeactivateUser(ctx, "ann", "ann")
	require.NoError(t, err)
	assert.False(t, u.IsActive())

	_, err = svc.DeactivateUser(ctx, "ann", "ann")
	require.NoError(t, err)

	u, err = svc.ActivateUser(ctx, "ann", "ann")
	require.NoError(t, err)
	assert.True(t, u.IsActive())

	assert.Equal(t, []string{domain.TypeUserDeactivated, domain.TypeUserActivated}, pub.types())
	users.AssertNumberOfCalls(t, "Update", 2)

	_, err = svc.DeactivateUser(ctx, "ann", "bob")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}
