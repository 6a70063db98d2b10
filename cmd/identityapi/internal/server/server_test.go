package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/migrate"

	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/authz"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/db/bunx"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/events"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/migrations"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/repository"
	orgsvc "github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/services/organization"
)

type testServer struct {
	t      *testing.T
	server *httptest.Server
}

// newTestServer runs the full stack on a migrated in-memory SQLite database.
func newTestServer(t *testing.T, limiter *RateLimiter) *testServer {
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

	authorizer, err := authz.New(0)
	require.NoError(t, err)
	users := repository.NewBunUserRepository(db)
	svc := orgsvc.NewService(repository.NewBunOrganizationRepository(db), users, authorizer).
		WithPermissionRepository(repository.NewBunPermissionRepository(db)).
		WithOutbox(repository.NewBunOutboxRepository(db, 0)).
		WithPublisher(events.NewDispatcher())

	schemas, err := CompileSchemas()
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(RouterOptions{
		Service: svc,
		Users:   orgsvc.NewUserService(users),
		Schemas: schemas,
		Limiter: limiter,
	}))
	t.Cleanup(srv.Close)
	return &testServer{t: t, server: srv}
}

func (s *testServer) do(method, path, userID string, body any, out any) int {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(UserIDHeader, userID)
	}
	resp, err := s.server.Client().Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *testServer) doError(method, path, userID string, body any) (int, ErrorResponse) {
	s.t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(s.t, err)
	req, err := http.NewRequest(method, s.server.URL+path, bytes.NewReader(raw))
	require.NoError(s.t, err)
	if userID != "" {
		req.Header.Set(UserIDHeader, userID)
	}
	resp, err := s.server.Client().Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	var er ErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&er)
	return resp.StatusCode, er
}

// setupAcme registers owner and jane and creates the Acme organization.
func (s *testServer) setupAcme() (orgID string, roles map[string]string) {
	s.t.Helper()
	require.Equal(s.t, http.StatusCreated, s.do(http.MethodPost, "/users", "owner", map[string]string{"email": "owner@acme.io"}, nil))
	require.Equal(s.t, http.StatusCreated, s.do(http.MethodPost, "/users", "jane", map[string]string{"email": "jane@acme.io", "display_name": "Jane"}, nil))

	var org organizationResponse
	require.Equal(s.t, http.StatusCreated, s.do(http.MethodPost, "/organizations", "owner", map[string]string{"name": "Acme", "description": "Rockets"}, &org))
	require.NotEmpty(s.t, org.ID)
	assert.Equal(s.t, "owner", org.OwnerID)
	assert.True(s.t, org.IsActive)

	var list []roleResponse
	require.Equal(s.t, http.StatusOK, s.do(http.MethodGet, "/organizations/"+org.ID+"/roles", "owner", nil, &list))
	roles = make(map[string]string, len(list))
	for _, r := range list {
		roles[r.Name] = r.ID
	}
	require.Len(s.t, roles, 3)
	return org.ID, roles
}

// inviteJane invites and admits jane with the Member role.
func (s *testServer) inviteJane(orgID, roleID string) {
	s.t.Helper()
	var inv invitationCreatedResponse
	require.Equal(s.t, http.StatusCreated, s.do(http.MethodPost, "/organizations/"+orgID+"/invitations", "owner",
		map[string]string{"email": "jane@acme.io", "role_id": roleID}, &inv))
	require.NotEmpty(s.t, inv.Token)

	var m memberResponse
	require.Equal(s.t, http.StatusOK, s.do(http.MethodPost, "/organizations/"+orgID+"/invitations/"+inv.ID+"/accept", "jane",
		map[string]string{"token": inv.Token}, &m))
	assert.Equal(s.t, "jane", m.UserID)
	assert.Equal(s.t, []string{roleID}, m.RoleIDs)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", "", nil, nil))
}

func TestRequiresCallerHeader(t *testing.T) {
	s := newTestServer(t, nil)
	code, body := s.doError(http.MethodPost, "/organizations", "", map[string]string{"name": "Acme"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Contains(t, body.Error, UserIDHeader)
}

func TestListPermissions_Paginates(t *testing.T) {
	s := newTestServer(t, nil)

	var page permissionPage
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/permissions?page=1&page_size=3", "", nil, &page))
	assert.Len(t, page.Items, 3)
	assert.Equal(t, 8, page.Total)

	code, _ := s.doError(http.MethodGet, "/permissions?page=zero", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCreateOrganization_Errors(t *testing.T) {
	s := newTestServer(t, nil)
	s.setupAcme()

	code, body := s.doError(http.MethodPost, "/organizations", "owner", map[string]any{"name": "Other", "unexpected": true})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body.Error, "invalid request body")

	code, _ = s.doError(http.MethodPost, "/organizations", "owner", map[string]string{"name": "Acme"})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = s.doError(http.MethodPost, "/organizations", "stranger", map[string]string{"name": "Stranger Co"})
	assert.Equal(t, http.StatusNotFound, code)

	code, body = s.doError(http.MethodPost, "/organizations", "owner", map[string]string{"name": "Bad", "logo_url": "ftp://x"})
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotEmpty(t, body.Fields)
	assert.Equal(t, "logo_url", body.Fields[0].Field)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	s := newTestServer(t, nil)

	var u userResponse
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/users", "u1", map[string]string{"email": "Same@Acme.io"}, &u))
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "same@acme.io", u.Email)

	code, _ := s.doError(http.MethodPost, "/users", "u2", map[string]string{"email": "same@acme.io"})
	assert.Equal(t, http.StatusConflict, code)
}

func TestUserProfileLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	orgID, roles := s.setupAcme()

	var u userResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/users/jane", "owner", nil, &u))
	assert.Equal(t, "jane@acme.io", u.Email)
	assert.True(t, u.IsActive)

	require.Equal(t, http.StatusOK, s.do(http.MethodPut, "/users/me", "jane", map[string]string{
		"display_name":  "Jane Doe",
		"profile_image": "https://cdn.acme.io/jane.png",
	}, &u))
	assert.Equal(t, "Jane Doe", u.DisplayName)
	assert.Equal(t, "https://cdn.acme.io/jane.png", u.ProfileImage)

	code, _ := s.doError(http.MethodPut, "/users/me", "jane", map[string]string{"email": "other@acme.io"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.doError(http.MethodGet, "/users/nobody", "jane", nil)
	assert.Equal(t, http.StatusNotFound, code)

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/users/me/deactivate", "jane", nil, &u))
	assert.False(t, u.IsActive)
	require.NotNil(t, u.DeactivatedAt)

	var inv invitationCreatedResponse
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/organizations/"+orgID+"/invitations", "owner",
		map[string]string{"email": "jane@acme.io", "role_id": roles["Guest"]}, &inv))
	code, body := s.doError(http.MethodPost, "/organizations/"+orgID+"/invitations/"+inv.ID+"/accept", "jane", map[string]string{"token": inv.Token})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Contains(t, body.Error, "deactivated")

	code, _ = s.doError(http.MethodPost, "/organizations", "jane", map[string]string{"name": "Jane Co"})
	assert.Equal(t, http.StatusForbidden, code)

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/users/me/activate", "jane", nil, &u))
	assert.True(t, u.IsActive)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/organizations/"+orgID+"/invitations/"+inv.ID+"/accept", "jane",
		map[string]string{"token": inv.Token}, nil))
}

func TestListMyOrganizations_Paginates(t *testing.T) {
	s := newTestServer(t, nil)
	s.setupAcme()
	for _, name := range []string{"Beta", "Gamma"} {
		require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/organizations", "owner", map[string]string{"name": name}, nil))
	}

	var page organizationPage
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/users/me/organizations?page=2&page_size=2", "owner", nil, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Gamma", page.Items[0].Name)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Page)

	code, _ := s.doError(http.MethodGet, "/users/me/organizations?page_size=0", "owner", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestInvitationFlow(t *testing.T) {
	s := newTestServer(t, nil)
	orgID, roles := s.setupAcme()
	s.inviteJane(orgID, roles["Member"])

	var members []orgsvc.MemberView
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/organizations/"+orgID+"/members", "owner", nil, &members))
	assert.Len(t, members, 2)

	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/organizations/"+orgID+`/members?filter=user_id+%3D%3D+%22jane%22`, "owner", nil, &members))
	require.Len(t, members, 1)
	assert.Equal(t, []string{"Member"}, members[0].RoleNames)

	var invs []orgsvc.InvitationView
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/organizations/"+orgID+"/invitations", "owner", nil, &invs))
	require.Len(t, invs, 1)
	assert.Equal(t, "Accepted", invs[0].Status)

	var orgs organizationPage
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/users/me/organizations", "jane", nil, &orgs))
	require.Len(t, orgs.Items, 1)
	assert.Equal(t, orgID, orgs.Items[0].ID)
	assert.Equal(t, 1, orgs.Total)

	code, _ := s.doError(http.MethodGet, "/organizations/"+orgID+"/members?filter=%3D%3D", "owner", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestInvitation_WrongTokenAndWrongUser(t *testing.T) {
	s := newTestServer(t, nil)
	orgID, roles := s.setupAcme()
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/users", "mallory", map[string]string{"email": "mallory@evil.io"}, nil))

	var inv invitationCreatedResponse
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/organizations/"+orgID+"/invitations", "owner",
		map[string]string{"email": "jane@acme.io", "role_id": roles["Guest"]}, &inv))

	code, _ := s.doError(http.MethodPost, "/organizations/"+orgID+"/invitations/"+inv.ID+"/accept", "jane", map[string]string{"token": "wrong"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.doError(http.MethodPost, "/organizations/"+orgID+"/invitations/"+inv.ID+"/accept", "mallory", map[string]string{"token": inv.Token})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.doError(http.MethodGet, "/organizations/"+orgID+"/invitations/"+inv.ID, "mallory", nil)
	assert.Equal(t, http.StatusForbidden, code)

	var view orgsvc.InvitationView
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/organizations/"+orgID+"/invitations/"+inv.ID, "jane", nil, &view))
	assert.Equal(t, "Pending", view.Status)
	assert.Equal(t, "Guest", view.RoleName)

	var rejected invitationStatusResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/organizations/"+orgID+"/invitations/"+inv.ID+"/reject", "jane",
		map[string]string{"token": inv.Token}, &rejected))
	assert.Equal(t, "Rejected", rejected.Status)

	code, _ = s.doError(http.MethodPost, "/organizations/"+orgID+"/invitations/"+inv.ID+"/accept", "jane", map[string]string{"token": inv.Token})
	assert.Equal(t, http.StatusConflict, code)
}

func TestMemberPermissions(t *testing.T) {
	s := newTestServer(t, nil)
	orgID, roles := s.setupAcme()
	s.inviteJane(orgID, roles["Member"])

	code, _ := s.doError(http.MethodPut, "/organizations/"+orgID, "jane", map[string]string{"name": "Jane Co"})
	assert.Equal(t, http.StatusForbidden, code)

	var roleList []roleResponse
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/organizations/"+orgID+"/roles", "jane", nil, &roleList))

	code, _ = s.doError(http.MethodPost, "/organizations/"+orgID+"/roles", "jane", map[string]string{"name": "Editors"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.doError(http.MethodGet, "/organizations/"+orgID, "stranger", nil)
	assert.Equal(t, http.StatusForbidden, code)

	// Promotion to Admin grants management.
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/organizations/"+orgID+"/members/jane/roles/"+roles["Admin"], "owner", nil, nil))
	var org organizationResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodPut, "/organizations/"+orgID, "jane", map[string]string{"name": "Acme Rockets"}, &org))
	assert.Equal(t, "Acme Rockets", org.Name)

	code, _ = s.doError(http.MethodPost, "/organizations/"+orgID+"/deactivate", "jane", nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestRoleLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	orgID, roles := s.setupAcme()
	s.inviteJane(orgID, roles["Member"])
	base := "/organizations/" + orgID

	var role roleResponse
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, base+"/roles", "owner",
		map[string]string{"name": "Editors", "color": "#00ff00"}, &role))
	assert.False(t, role.IsSystem)
	assert.Empty(t, role.Permissions)

	code, _ := s.doError(http.MethodPost, base+"/roles", "owner", map[string]string{"name": "Editors"})
	assert.Equal(t, http.StatusConflict, code)

	require.Equal(t, http.StatusOK, s.do(http.MethodPut, base+"/roles/"+role.ID+"/permissions", "owner",
		map[string][]string{"permissions": {"members.view", "invitations.manage"}}, &role))
	assert.ElementsMatch(t, []string{"members.view", "invitations.manage"}, role.Permissions)

	code, body := s.doError(http.MethodPut, base+"/roles/"+role.ID+"/permissions", "owner",
		map[string][]string{"permissions": {"rockets.launch"}})
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotEmpty(t, body.Fields)
	assert.Equal(t, "permissions", body.Fields[0].Field)

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, base+"/members/jane/roles/"+role.ID, "owner", nil, nil))

	var janeRoles []roleResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, base+"/members/jane/roles", "jane", nil, &janeRoles))
	assert.Len(t, janeRoles, 2)

	code, _ = s.doError(http.MethodDelete, base+"/roles/"+roles["Admin"], "owner", nil)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = s.doError(http.MethodDelete, base+"/roles/"+role.ID, "owner", nil)
	assert.Equal(t, http.StatusConflict, code)

	require.Equal(t, http.StatusOK, s.do(http.MethodDelete, base+"/members/jane/roles/"+role.ID, "owner", nil, nil))
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, base+"/roles/"+role.ID, "owner", nil, nil))
	code, _ = s.doError(http.MethodGet, base+"/roles/"+role.ID, "owner", nil)
	assert.Equal(t, http.StatusNotFound, code)

	require.Equal(t, http.StatusOK, s.do(http.MethodGet, base+"/members/jane/roles", "jane", nil, &janeRoles))
	require.Len(t, janeRoles, 1)
	assert.Equal(t, "Member", janeRoles[0].Name)
}

func TestRemoveMember(t *testing.T) {
	s := newTestServer(t, nil)
	orgID, roles := s.setupAcme()
	s.inviteJane(orgID, roles["Member"])
	base := "/organizations/" + orgID

	code, _ := s.doError(http.MethodDelete, base+"/members/owner", "owner", nil)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = s.doError(http.MethodDelete, base+"/members/jane/roles/"+roles["Member"], "owner", nil)
	assert.Equal(t, http.StatusConflict, code)

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, base+"/members/jane", "jane", nil, nil))

	code, _ = s.doError(http.MethodGet, base, "jane", nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestDeactivateAndActivate(t *testing.T) {
	s := newTestServer(t, nil)
	orgID, roles := s.setupAcme()
	base := "/organizations/" + orgID

	var org organizationResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, base+"/deactivate", "owner", nil, &org))
	assert.False(t, org.IsActive)

	code, _ := s.doError(http.MethodPost, base+"/invitations", "owner", map[string]string{"email": "jane@acme.io", "role_id": roles["Guest"]})
	assert.Equal(t, http.StatusConflict, code)

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, base+"/activate", "owner", nil, &org))
	assert.True(t, org.IsActive)

	require.Equal(t, http.StatusOK, s.do(http.MethodPut, base+"/logo", "owner", map[string]string{"url": "https://cdn.acme.io/logo.png"}, &org))
	assert.Equal(t, "https://cdn.acme.io/logo.png", org.LogoURL)
}

func TestAcceptInvitation_RateLimited(t *testing.T) {
	limiter, err := NewRateLimiter(0.001, 1)
	require.NoError(t, err)
	s := newTestServer(t, limiter)
	orgID, _ := s.setupAcme()
	path := "/organizations/" + orgID + "/invitations/missing/accept"

	code, _ := s.doError(http.MethodPost, path, "jane", map[string]string{"token": "guess"})
	assert.Equal(t, http.StatusNotFound, code)

	code, body := s.doError(http.MethodPost, path, "jane", map[string]string{"token": "guess"})
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "too many requests", body.Error)

	// Buckets are per caller.
	code, _ = s.doError(http.MethodPost, path, "owner", map[string]string{"token": "guess"})
	assert.Equal(t, http.StatusNotFound, code)
}
